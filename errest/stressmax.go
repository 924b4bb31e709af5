package errest

import "github.com/notargets/StressRefine/element"

// Sample is the stress state at one sampled point
type Sample struct {
	ElementID int
	Node      int // global node at the point, -1 off vertices
	Position  [3]float64
	Stress    [6]float64
	Strain    [6]float64
}

// StressMax tracks the largest von Mises stress and equivalent strain
// seen over a set of samples. Equal values keep the lowest element id.
type StressMax struct {
	VonMises  float64
	Stress    [6]float64
	Position  [3]float64
	ElementID int
	Node      int

	Strain        float64
	StrainElement int
}

func (m *StressMax) Reset() {
	*m = StressMax{ElementID: -1, Node: -1, StrainElement: -1}
}

func (m *StressMax) Consider(s Sample) {
	vm := element.VonMises(s.Stress)
	if m.ElementID < 0 || vm > m.VonMises || (vm == m.VonMises && s.ElementID < m.ElementID) {
		m.VonMises = vm
		m.Stress = s.Stress
		m.Position = s.Position
		m.ElementID = s.ElementID
		m.Node = s.Node
	}
	eq := element.EquivalentStrain(s.Strain)
	if m.StrainElement < 0 || eq > m.Strain || (eq == m.Strain && s.ElementID < m.StrainElement) {
		m.Strain = eq
		m.StrainElement = s.ElementID
	}
}

// Merge folds the maxima of o into m with the same tie rule as Consider
func (m *StressMax) Merge(o StressMax) {
	if o.ElementID >= 0 && (m.ElementID < 0 || o.VonMises > m.VonMises ||
		(o.VonMises == m.VonMises && o.ElementID < m.ElementID)) {
		m.VonMises = o.VonMises
		m.Stress = o.Stress
		m.Position = o.Position
		m.ElementID = o.ElementID
		m.Node = o.Node
	}
	if o.StrainElement >= 0 && (m.StrainElement < 0 || o.Strain > m.Strain ||
		(o.Strain == m.Strain && o.StrainElement < m.StrainElement)) {
		m.Strain = o.Strain
		m.StrainElement = o.StrainElement
	}
}
