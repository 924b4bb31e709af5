package element

// Tetrahedron topology, local vertex indices
var (
	TetEdges = [6][2]int{{0, 1}, {1, 2}, {0, 2}, {0, 3}, {1, 3}, {2, 3}}
	TetFaces = [4][3]int{
		{0, 1, 2}, // Face 0
		{0, 1, 3}, // Face 1
		{1, 2, 3}, // Face 2
		{0, 2, 3}, // Face 3
	}
)

// EdgeModes returns the number of modes on an edge of order p
func EdgeModes(p int) int {
	if p < 2 {
		return 0
	}
	return p - 1
}

// FaceModes returns the Legendre index pairs of the modes on a
// triangular face of order p, in mode order
func FaceModes(p int) [][2]int {
	var idx [][2]int
	for t := 0; t <= p-3; t++ {
		for a := t; a >= 0; a-- {
			idx = append(idx, [2]int{a, t - a})
		}
	}
	return idx
}

// InteriorModes returns the Legendre index triples of the interior
// bubbles of a tetrahedron of order p, in mode order
func InteriorModes(p int) [][3]int {
	var idx [][3]int
	for t := 0; t <= p-4; t++ {
		for a := t; a >= 0; a-- {
			for b := t - a; b >= 0; b-- {
				idx = append(idx, [3]int{a, b, t - a - b})
			}
		}
	}
	return idx
}

// legendre returns P_n(x) and its derivative
func legendre(n int, x float64) (p, dp float64) {
	if n == 0 {
		return 1, 0
	}
	p0, p1 := 1., x
	d0, d1 := 0., 1.
	for k := 1; k < n; k++ {
		fk := float64(k)
		p2 := ((2*fk+1)*x*p1 - fk*p0) / (fk + 1)
		d2 := d0 + (2*fk+1)*p1
		p0, p1 = p1, p2
		d0, d1 = d1, d2
	}
	return p1, d1
}

// blend is one Legendre factor P_n(λ[hi] - λ[lo])
type blend struct {
	lo, hi, n int
}

// mode is a product of barycentric coordinates and Legendre blends
type mode struct {
	bubble []int
	blends []blend
}

// eval returns the mode value and fills dl with its partial derivatives
// with respect to the four barycentric coordinates
func (m mode) eval(lam [4]float64, dl *[4]float64) float64 {
	*dl = [4]float64{}

	bub := 1.
	for _, i := range m.bubble {
		bub *= lam[i]
	}
	var dbub [4]float64
	for ii, i := range m.bubble {
		prod := 1.
		for jj, j := range m.bubble {
			if jj != ii {
				prod *= lam[j]
			}
		}
		dbub[i] += prod
	}

	var (
		vals [3]float64
		ders [3]float64
		leg  = 1.
	)
	for q, b := range m.blends {
		vals[q], ders[q] = legendre(b.n, lam[b.hi]-lam[b.lo])
		leg *= vals[q]
	}

	for i := 0; i < 4; i++ {
		dl[i] = dbub[i] * leg
	}
	for q, b := range m.blends {
		others := 1.
		for r := range m.blends {
			if r != q {
				others *= vals[r]
			}
		}
		d := bub * ders[q] * others
		dl[b.hi] += d
		dl[b.lo] -= d
	}
	return bub * leg
}

// tetModes lists the shape modes of a tetrahedron in local mode order:
// vertices, edges, faces, interior. Edge and face modes are oriented by
// global node id so neighbors agree on the shared functions.
func tetModes(el *Element) []mode {
	g := el.Nodes
	modes := make([]mode, 0, 4)
	for i := 0; i < 4; i++ {
		modes = append(modes, mode{bubble: []int{i}})
	}
	for e, ed := range TetEdges {
		i, j := ed[0], ed[1]
		if g[i] > g[j] {
			i, j = j, i
		}
		for k := 2; k <= el.EdgeP[e]; k++ {
			modes = append(modes, mode{
				bubble: []int{i, j},
				blends: []blend{{lo: i, hi: j, n: k - 2}},
			})
		}
	}
	for f, fc := range TetFaces {
		v := sortByNode(g, fc)
		for _, ab := range FaceModes(el.FaceP[f]) {
			modes = append(modes, mode{
				bubble: []int{v[0], v[1], v[2]},
				blends: []blend{{lo: v[0], hi: v[1], n: ab[0]}, {lo: v[0], hi: v[2], n: ab[1]}},
			})
		}
	}
	for _, abc := range InteriorModes(el.P) {
		modes = append(modes, mode{
			bubble: []int{0, 1, 2, 3},
			blends: []blend{{lo: 0, hi: 1, n: abc[0]}, {lo: 0, hi: 2, n: abc[1]}, {lo: 0, hi: 3, n: abc[2]}},
		})
	}
	return modes
}

func sortByNode(g []int, local [3]int) [3]int {
	v := local
	if g[v[0]] > g[v[1]] {
		v[0], v[1] = v[1], v[0]
	}
	if g[v[1]] > g[v[2]] {
		v[1], v[2] = v[2], v[1]
	}
	if g[v[0]] > g[v[1]] {
		v[0], v[1] = v[1], v[0]
	}
	return v
}

// NumTetModes returns the number of scalar modes of a tetrahedron
func NumTetModes(p int, edgeP []int, faceP []int) int {
	n := 4
	for _, q := range edgeP {
		n += EdgeModes(q)
	}
	for _, q := range faceP {
		n += len(FaceModes(q))
	}
	return n + len(InteriorModes(p))
}
