package element

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Material is an isotropic linear-elastic material
type Material struct {
	E  float64 // Young's modulus
	Nu float64 // Poisson's ratio
}

// Elasticity returns the 6×6 constitutive matrix for the stress/strain
// ordering xx, yy, zz, xy, yz, xz with engineering shear strains
func (m Material) Elasticity() *mat.SymDense {
	lam := m.E * m.Nu / ((1 + m.Nu) * (1 - 2*m.Nu))
	g := m.E / (2 * (1 + m.Nu))
	d := mat.NewSymDense(6, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			d.SetSym(i, j, lam)
		}
		d.SetSym(i, i, lam+2*g)
		d.SetSym(i+3, i+3, g)
	}
	return d
}

// VonMises returns the von Mises equivalent of a stress vector
func VonMises(s [6]float64) float64 {
	a := s[0] - s[1]
	b := s[1] - s[2]
	c := s[2] - s[0]
	return math.Sqrt(0.5*(a*a+b*b+c*c) + 3*(s[3]*s[3]+s[4]*s[4]+s[5]*s[5]))
}

// EquivalentStrain returns the von Mises equivalent of an engineering strain vector
func EquivalentStrain(e [6]float64) float64 {
	mean := (e[0] + e[1] + e[2]) / 3
	dx, dy, dz := e[0]-mean, e[1]-mean, e[2]-mean
	ss := dx*dx + dy*dy + dz*dz + 0.5*(e[3]*e[3]+e[4]*e[4]+e[5]*e[5])
	return math.Sqrt(2. / 3. * ss)
}
