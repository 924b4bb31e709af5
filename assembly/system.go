package assembly

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
	"github.com/notargets/StressRefine/solution"
	"gonum.org/v1/gonum/mat"
)

// System is the assembled linear system K u = f. K is stored in full
// (both triangles) as a dictionary-of-keys matrix; f is the vector of the
// solution store and is overwritten by the solution in place.
type System struct {
	N    int
	K    *sparse.DOK
	RHS  *solution.Store
	diag []float64
}

// NewSystem returns an empty n×n system over rhs, which must hold n entries
func NewSystem(n int, rhs *solution.Store) *System {
	if rhs.Len() != n {
		panic(fmt.Sprintf("right-hand side has %d entries, system %d", rhs.Len(), n))
	}
	return &System{N: n, K: sparse.NewDOK(n, n), RHS: rhs, diag: make([]float64, n)}
}

// Add accumulates v into K[i][j]
func (s *System) Add(i, j int, v float64) {
	if v == 0 {
		return
	}
	s.K.Set(i, j, s.K.At(i, j)+v)
	if i == j {
		s.diag[i] += v
	}
}

// AddDiagonal accumulates v into K[i][i]
func (s *System) AddDiagonal(i int, v float64) { s.Add(i, i, v) }

// AddRHS accumulates v into f[i]
func (s *System) AddRHS(i int, v float64) { s.RHS.PlusAssign(i, v) }

// AddBlock scatters a local matrix; entries with eq < 0 are dropped
func (s *System) AddBlock(eqs []int, ke mat.Matrix) {
	for a, ea := range eqs {
		if ea < 0 {
			continue
		}
		for b, eb := range eqs {
			if eb < 0 {
				continue
			}
			s.Add(ea, eb, ke.At(a, b))
		}
	}
}

func (s *System) Diagonal(i int) float64 { return s.diag[i] }

// MaxDiagonal returns max |K[i][i]|
func (s *System) MaxDiagonal() (m float64) {
	for _, d := range s.diag {
		m = math.Max(m, math.Abs(d))
	}
	return
}

// MeanDiagonal returns the mean of |K[i][i]|
func (s *System) MeanDiagonal() float64 {
	if s.N == 0 {
		return 0
	}
	var sum float64
	for _, d := range s.diag {
		sum += math.Abs(d)
	}
	return sum / float64(s.N)
}

// NNZ returns the number of stored entries of K
func (s *System) NNZ() int { return s.K.NNZ() }

// Dense copies K into a dense symmetric matrix
func (s *System) Dense() *mat.SymDense {
	d := mat.NewSymDense(s.N, nil)
	s.K.DoNonZero(func(i, j int, v float64) {
		if i <= j {
			d.SetSym(i, j, v)
		}
	})
	return d
}

// MulVec returns K x
func (s *System) MulVec(x []float64) []float64 {
	y := make([]float64, s.N)
	s.K.DoNonZero(func(i, j int, v float64) {
		y[i] += v * x[j]
	})
	return y
}
