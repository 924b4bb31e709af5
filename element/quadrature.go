package element

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// JacobiGQ computes the N+1 point Gauss quadrature for the weight
// (1-x)^alpha (1+x)^beta on [-1,1] with the Golub-Welsch eigenvalue method
func JacobiGQ(alpha, beta float64, N int) (X, W []float64) {
	if N == 0 {
		return []float64{-(alpha - beta) / (alpha + beta + 2.)}, []float64{Gamma0(alpha, beta)}
	}

	h1 := make([]float64, N+1)
	for i := 0; i < N+1; i++ {
		h1[i] = 2*float64(i) + alpha + beta
	}

	// main diagonal: d0[i] = -(β²-α²)/((2i+α+β)*(2i+α+β+2))
	d0 := make([]float64, N+1)
	fac := beta*beta - alpha*alpha
	for i := 0; i < N+1; i++ {
		d0[i] = fac / (h1[i] * (h1[i] + 2.))
	}
	if alpha+beta < 10*1.e-16 {
		d0[0] = 0.
	}

	d1 := make([]float64, N)
	for i := 0; i < N; i++ {
		ip1 := float64(i + 1)
		val := h1[i]
		d1[i] = 2.0 / (val + 2.0) * math.Sqrt(
			ip1*(ip1+alpha+beta)*(ip1+alpha)*(ip1+beta)/(val+1)/(val+3),
		)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(symTriDiagonal(d0, d1), true); !ok {
		panic("eigenvalue decomposition failed")
	}
	X = eig.Values(nil)

	vecs := mat.NewDense(N+1, N+1, nil)
	eig.VectorsTo(vecs)
	W = make([]float64, N+1)
	g0 := Gamma0(alpha, beta)
	for i := range W {
		v := vecs.At(0, i)
		W[i] = v * v * g0
	}
	return X, W
}

// Gamma0 is the integral of the Jacobi weight over [-1,1]
func Gamma0(alpha, beta float64) float64 {
	ab1 := alpha + beta + 1.
	a1 := alpha + 1.
	b1 := beta + 1.
	return math.Gamma(a1) * math.Gamma(b1) * math.Pow(2, ab1) / ab1 / math.Gamma(ab1)
}

func symTriDiagonal(d0, d1 []float64) *mat.SymDense {
	n := len(d0)
	tri := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		tri.SetSym(i, i, d0[i])
		if i < n-1 {
			tri.SetSym(i, i+1, d1[i])
		}
	}
	return tri
}

// TetRule is a quadrature rule on the unit tetrahedron
// {ξ1,ξ2,ξ3 >= 0, ξ1+ξ2+ξ3 <= 1}; the weights sum to 1/6
type TetRule struct {
	Xi [][3]float64
	W  []float64
}

var (
	tetRulesMu sync.Mutex
	tetRules   = map[int]*TetRule{}
)

// NewTetRule returns the collapsed-coordinate Gauss-Jacobi rule with n
// points per direction. It integrates polynomials of total degree 2n-1
// exactly. Rules are cached and shared; callers must not modify them.
func NewTetRule(n int) *TetRule {
	if n < 1 {
		n = 1
	}
	tetRulesMu.Lock()
	defer tetRulesMu.Unlock()
	if r, ok := tetRules[n]; ok {
		return r
	}

	// Duffy map: the (1-b) and (1-c)^2 Jacobian factors are absorbed by
	// the Jacobi weights, leaving a constant 1/64
	a, wa := JacobiGQ(0, 0, n-1)
	b, wb := JacobiGQ(1, 0, n-1)
	c, wc := JacobiGQ(2, 0, n-1)

	r := &TetRule{
		Xi: make([][3]float64, 0, n*n*n),
		W:  make([]float64, 0, n*n*n),
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				xi1 := (1 + a[i]) * (1 - b[j]) * (1 - c[k]) / 8
				xi2 := (1 + b[j]) * (1 - c[k]) / 4
				xi3 := (1 + c[k]) / 2
				r.Xi = append(r.Xi, [3]float64{xi1, xi2, xi3})
				r.W = append(r.W, wa[i]*wb[j]*wc[k]/64)
			}
		}
	}
	tetRules[n] = r
	return r
}
