package model

import (
	"fmt"
	"io"
	"os"

	"github.com/notargets/StressRefine/constraint"
	"github.com/notargets/StressRefine/element"
	"github.com/notargets/StressRefine/errors"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// LoadCase is the YAML description of material, supports and loads
type LoadCase struct {
	Material     MaterialSpec      `yaml:"material"`
	Order        int               `yaml:"p"`
	Fixed        []ConstraintSpec  `yaml:"fixed"`
	Enforced     []ConstraintSpec  `yaml:"enforced"`
	Penalty      []ConstraintSpec  `yaml:"penalty"`
	VolumeForces []VolumeForceSpec `yaml:"volume_forces"`
	// Inactive elements are left out of the stiffness, the estimate and refinement
	Inactive []int `yaml:"inactive"`
}

type MaterialSpec struct {
	E  float64 `yaml:"e"`
	Nu float64 `yaml:"nu"`
}

// NodeSelector picks nodes by id or by a coordinate plane
type NodeSelector struct {
	Nodes []int      `yaml:"nodes"`
	Plane *PlaneSpec `yaml:"plane"`
}

type PlaneSpec struct {
	Axis  string  `yaml:"axis"`
	Value float64 `yaml:"value"`
	Tol   float64 `yaml:"tol"`
}

type ConstraintSpec struct {
	NodeSelector `yaml:",inline"`

	Dofs   []string    `yaml:"dofs"`
	Values []float64   `yaml:"values"`
	LCS    [][]float64 `yaml:"lcs"`
}

type VolumeForceSpec struct {
	Elements []int      `yaml:"elements"` // empty means all
	Force    [3]float64 `yaml:"force"`
}

// ReadLoadCase decodes a load case
func ReadLoadCase(r io.Reader) (*LoadCase, error) {
	var lc LoadCase
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&lc); err != nil && err != io.EOF {
		return nil, errors.WrapConfiguration(err, "model", "ReadLoadCase", "")
	}
	return &lc, nil
}

// LoadCaseFile reads a load case file
func LoadCaseFile(path string) (*LoadCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "model", "LoadCaseFile", path)
	}
	defer f.Close()
	return ReadLoadCase(f)
}

// ElementMaterial returns the material, defaulting to steel in SI units
func (lc *LoadCase) ElementMaterial() element.Material {
	m := element.Material{E: lc.Material.E, Nu: lc.Material.Nu}
	if m.E == 0 {
		m = element.Material{E: 200.e9, Nu: 0.3}
	}
	return m
}

// Apply installs the constraints and volume forces on the model and sets
// the initial order when one is given
func (lc *LoadCase) Apply(m *Model) error {
	if lc.Order > 0 {
		m.SetUniformOrder(lc.Order)
	}
	if len(lc.Inactive) > 0 {
		elems := m.Elements()
		for _, k := range lc.Inactive {
			if k < 0 || k >= len(elems) {
				return errors.WrapConfiguration(errors.ErrInvalidConfig, "model", "Apply",
					fmt.Sprintf("inactive element %d", k))
			}
			elems[k].Inactive = true
		}
		m.Refresh()
	}
	groups := []struct {
		kind  constraint.Kind
		specs []ConstraintSpec
	}{
		{constraint.Fixed, lc.Fixed},
		{constraint.Enforced, lc.Enforced},
		{constraint.Penalty, lc.Penalty},
	}
	for _, g := range groups {
		for i, spec := range g.specs {
			c, err := spec.resolve(m, g.kind)
			if err != nil {
				return errors.WrapConfiguration(err, "model", "Apply", fmt.Sprintf("%s[%d]", g.kind, i))
			}
			m.AddConstraint(c)
		}
	}
	for _, vf := range lc.VolumeForces {
		ids := vf.Elements
		if len(ids) == 0 {
			for k := range m.Elements() {
				ids = append(ids, k)
			}
		}
		for _, k := range ids {
			if k < 0 || k >= len(m.Elements()) {
				return errors.WrapConfiguration(errors.ErrInvalidConfig, "model", "Apply",
					fmt.Sprintf("volume force on element %d", k))
			}
			m.SetVolumeForce(k, vf.Force)
		}
	}
	return nil
}

func axisIndex(name string) (int, error) {
	switch name {
	case "x", "X":
		return 0, nil
	case "y", "Y":
		return 1, nil
	case "z", "Z":
		return 2, nil
	}
	return 0, fmt.Errorf("%w: unknown axis %q", errors.ErrInvalidConfig, name)
}

func (s ConstraintSpec) resolve(m *Model, kind constraint.Kind) (constraint.Constraint, error) {
	c := constraint.Constraint{Kind: kind, Nodes: append([]int(nil), s.Nodes...)}
	if s.Plane != nil {
		axis, err := axisIndex(s.Plane.Axis)
		if err != nil {
			return c, err
		}
		tol := s.Plane.Tol
		if tol == 0 {
			tol = 1.e-9
		}
		c.Nodes = append(c.Nodes, m.NodesWhere(axis, s.Plane.Value, tol)...)
	}
	if len(c.Nodes) == 0 {
		return c, fmt.Errorf("%w: constraint selects no nodes", errors.ErrMissingNode)
	}
	if len(s.Dofs) == 0 {
		s.Dofs = []string{"x", "y", "z"}
	}
	if kind != constraint.Fixed && len(s.Values) != len(s.Dofs) {
		return c, fmt.Errorf("%w: %d dofs, %d values", errors.ErrInvalidConfig, len(s.Dofs), len(s.Values))
	}
	for i, d := range s.Dofs {
		axis, err := axisIndex(d)
		if err != nil {
			return c, err
		}
		c.Dofs[axis] = true
		if kind != constraint.Fixed {
			c.Values[axis] = s.Values[i]
		}
	}
	if s.LCS != nil {
		if len(s.LCS) != 3 {
			return c, fmt.Errorf("%w: lcs needs 3 rows", errors.ErrInvalidConfig)
		}
		data := make([]float64, 0, 9)
		for _, row := range s.LCS {
			if len(row) != 3 {
				return c, fmt.Errorf("%w: lcs rows need 3 entries", errors.ErrInvalidConfig)
			}
			data = append(data, row...)
		}
		c.LCS = mat.NewDense(3, 3, data)
	}
	return c, nil
}
