package element

import (
	"fmt"
	"math"

	"github.com/notargets/StressRefine/errors"
	"gonum.org/v1/gonum/mat"
)

// TetCapability is the hierarchical p-version linear tetrahedron with
// straight edges
type TetCapability struct{}

func NewTetCapability() *TetCapability { return &TetCapability{} }

func (TetCapability) NumVertices() int { return 4 }
func (TetCapability) NumFaces() int    { return 4 }

func (TetCapability) FaceVertices(face int) []int {
	f := TetFaces[face]
	return []int{f[0], f[1], f[2]}
}

func (TetCapability) NumModes(el *Element) int {
	return NumTetModes(el.P, el.EdgeP, el.FaceP)
}

// tetGeometry holds the affine map of one element
type tetGeometry struct {
	detJ float64       // |det J|, six times the volume
	grad [4][3]float64 // ∇λ_i, constant over the element
}

func checkTet(el *Element) error {
	if len(el.Nodes) != 4 || len(el.Coords) != 4 || len(el.EdgeP) != 6 || len(el.FaceP) != 4 {
		return errors.WrapConfiguration(
			fmt.Errorf("tet needs 4 nodes, 6 edge and 4 face orders; got %d, %d, %d",
				len(el.Nodes), len(el.EdgeP), len(el.FaceP)),
			"element", "checkTet", "")
	}
	return nil
}

func newTetGeometry(el *Element) (g tetGeometry, err error) {
	if err = checkTet(el); err != nil {
		return
	}
	X := el.Coords
	J := mat.NewDense(3, 3, nil)
	var h float64
	for c := 0; c < 3; c++ {
		var l2 float64
		for r := 0; r < 3; r++ {
			d := X[c+1][r] - X[0][r]
			J.Set(r, c, d)
			l2 += d * d
		}
		h = math.Max(h, math.Sqrt(l2))
	}
	det := mat.Det(J)
	if math.Abs(det) <= 1.e-12*h*h*h {
		err = errors.WrapNumerical(&errors.ElementError{ElementID: el.ID, Err: errors.ErrDegenerateElement},
			"element", "newTetGeometry", fmt.Sprintf("det J = %g", det))
		return
	}
	var Jinv mat.Dense
	if err = Jinv.Inverse(J); err != nil {
		err = errors.WrapNumerical(&errors.ElementError{ElementID: el.ID, Err: errors.ErrDegenerateElement},
			"element", "newTetGeometry", err.Error())
		return
	}
	g.detJ = math.Abs(det)
	for i := 1; i < 4; i++ {
		for j := 0; j < 3; j++ {
			g.grad[i][j] = Jinv.At(i-1, j)
			g.grad[0][j] -= g.grad[i][j]
		}
	}
	return
}

func (TetCapability) Volume(el *Element) (float64, error) {
	g, err := newTetGeometry(el)
	if err != nil {
		return 0, err
	}
	return g.detJ / 6, nil
}

func barycentric(xi [3]float64) [4]float64 {
	return [4]float64{1 - xi[0] - xi[1] - xi[2], xi[0], xi[1], xi[2]}
}

func pointLambda(at Point) ([4]float64, error) {
	if len(at.Coords) != 4 {
		return [4]float64{}, errors.WrapConfiguration(
			fmt.Errorf("tet point needs 4 barycentric coordinates, got %d", len(at.Coords)),
			"element", "pointLambda", "")
	}
	return [4]float64{at.Coords[0], at.Coords[1], at.Coords[2], at.Coords[3]}, nil
}

// fillB writes the strain-displacement matrix at lam into B (6×3n)
func fillB(B *mat.Dense, modes []mode, g *tetGeometry, lam [4]float64) {
	var dl [4]float64
	for a, m := range modes {
		m.eval(lam, &dl)
		var gx, gy, gz float64
		for i := 0; i < 4; i++ {
			gx += dl[i] * g.grad[i][0]
			gy += dl[i] * g.grad[i][1]
			gz += dl[i] * g.grad[i][2]
		}
		c := 3 * a
		B.Set(0, c, gx)
		B.Set(3, c, gy)
		B.Set(5, c, gz)
		B.Set(1, c+1, gy)
		B.Set(3, c+1, gx)
		B.Set(4, c+1, gz)
		B.Set(2, c+2, gz)
		B.Set(4, c+2, gy)
		B.Set(5, c+2, gx)
	}
}

// Stiffness integrates Bᵀ D B over the element. Local dof 3*mode+comp.
func (TetCapability) Stiffness(el *Element) (*mat.SymDense, error) {
	g, err := newTetGeometry(el)
	if err != nil {
		return nil, err
	}
	modes := tetModes(el)
	n := 3 * len(modes)
	D := el.Material.Elasticity()
	rule := NewTetRule(el.MaxOrder() + 1)

	var (
		B   = mat.NewDense(6, n, nil)
		DB  = mat.NewDense(6, n, nil)
		tmp = mat.NewDense(n, n, nil)
		acc = mat.NewDense(n, n, nil)
	)
	for q, xi := range rule.Xi {
		fillB(B, modes, &g, barycentric(xi))
		DB.Mul(D, B)
		DB.Scale(rule.W[q]*g.detJ, DB)
		tmp.Mul(B.T(), DB)
		acc.Add(acc, tmp)
	}

	ke := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			ke.SetSym(i, j, acc.At(i, j))
		}
	}
	return ke, nil
}

// VolumeForce integrates φ b over the element for a constant body force b
func (TetCapability) VolumeForce(el *Element, b [3]float64) ([]float64, error) {
	g, err := newTetGeometry(el)
	if err != nil {
		return nil, err
	}
	modes := tetModes(el)
	f := make([]float64, 3*len(modes))
	rule := NewTetRule(el.MaxOrder() + 1)
	var dl [4]float64
	for q, xi := range rule.Xi {
		lam := barycentric(xi)
		w := rule.W[q] * g.detJ
		for a, m := range modes {
			phi := m.eval(lam, &dl)
			for c := 0; c < 3; c++ {
				f[3*a+c] += w * phi * b[c]
			}
		}
	}
	return f, nil
}

func (TetCapability) Stress(el *Element, u []float64, at Point) (stress, strain [6]float64, err error) {
	g, err := newTetGeometry(el)
	if err != nil {
		return
	}
	lam, err := pointLambda(at)
	if err != nil {
		return
	}
	modes := tetModes(el)
	n := 3 * len(modes)
	if len(u) != n {
		err = errors.WrapConfiguration(
			fmt.Errorf("element %d has %d local dofs, got %d coefficients", el.ID, n, len(u)),
			"element", "Stress", "")
		return
	}
	B := mat.NewDense(6, n, nil)
	fillB(B, modes, &g, lam)
	var eps, sig mat.VecDense
	eps.MulVec(B, mat.NewVecDense(n, u))
	sig.MulVec(el.Material.Elasticity(), &eps)
	for i := 0; i < 6; i++ {
		strain[i] = eps.AtVec(i)
		stress[i] = sig.AtVec(i)
	}
	return
}

// SamplePoints returns the four vertices and the centroid
func (TetCapability) SamplePoints(el *Element) []Point {
	pts := make([]Point, 0, 5)
	for i := 0; i < 4; i++ {
		c := make([]float64, 4)
		c[i] = 1
		pts = append(pts, Point{Coords: c, Vertex: i})
	}
	return append(pts, Point{Coords: []float64{.25, .25, .25, .25}, Vertex: -1})
}

func (TetCapability) FaceCentroid(el *Element, face int) Point {
	c := make([]float64, 4)
	for _, v := range TetFaces[face] {
		c[v] = 1. / 3.
	}
	return Point{Coords: c, Vertex: -1}
}

func (TetCapability) Position(el *Element, at Point) (x [3]float64) {
	for i, l := range at.Coords {
		for j := 0; j < 3; j++ {
			x[j] += l * el.Coords[i][j]
		}
	}
	return
}

// ShapeValues evaluates every mode of the element at a point
func (TetCapability) ShapeValues(el *Element, at Point) ([]float64, error) {
	if err := checkTet(el); err != nil {
		return nil, err
	}
	lam, err := pointLambda(at)
	if err != nil {
		return nil, err
	}
	modes := tetModes(el)
	vals := make([]float64, len(modes))
	var dl [4]float64
	for a, m := range modes {
		vals[a] = m.eval(lam, &dl)
	}
	return vals, nil
}
