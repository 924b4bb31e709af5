package model

import (
	"fmt"

	"github.com/notargets/StressRefine/element"
	"github.com/notargets/StressRefine/errors"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
)

// FromMeshFile reads a tetrahedral mesh (Gambit neutral, Gmsh, SU2) and
// builds a model with every element at order p
func FromMeshFile(meshfile string, mat element.Material, p int) (*Model, error) {
	msh, err := readers.ReadMeshFile(meshfile)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "model", "FromMeshFile", meshfile)
	}
	// Verify that this meshfile has only tetrahedra
	for k, v := range msh.EtoV {
		if len(v) != 4 {
			return nil, errors.WrapConfiguration(&errors.ElementError{ElementID: k, Err: errors.ErrUnsupportedShape},
				"model", "FromMeshFile", fmt.Sprintf("%s: element with %d vertices", meshfile, len(v)))
		}
	}
	verts := make([][3]float64, len(msh.Vertices))
	for i, v := range msh.Vertices {
		for j := 0; j < len(v) && j < 3; j++ {
			verts[i][j] = v[j]
		}
	}
	return New(verts, msh.EtoV, mat, p)
}

// Box meshes the box [0,lx]×[0,ly]×[0,lz] with nx×ny×nz cells, each cut
// into six tetrahedra along its main diagonal
func Box(nx, ny, nz int, lx, ly, lz float64) (verts [][3]float64, EToV [][]int) {
	id := func(i, j, k int) int { return i + (nx+1)*(j+(ny+1)*k) }
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				verts = append(verts, [3]float64{
					lx * float64(i) / float64(nx),
					ly * float64(j) / float64(ny),
					lz * float64(k) / float64(nz),
				})
			}
		}
	}
	// paths from corner 000 to 111 through one axis at a time
	perms := [6][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				for _, perm := range perms {
					c := [3]int{i, j, k}
					tet := []int{id(c[0], c[1], c[2])}
					for _, axis := range perm {
						c[axis]++
						tet = append(tet, id(c[0], c[1], c[2]))
					}
					EToV = append(EToV, tet)
				}
			}
		}
	}
	return
}
