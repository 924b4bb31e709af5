package model

import (
	"fmt"
	"sort"

	"github.com/notargets/StressRefine/constraint"
	"github.com/notargets/StressRefine/element"
	"github.com/notargets/StressRefine/errors"
	"github.com/notargets/StressRefine/partitions"
)

// Model is a tetrahedral mesh with hierarchical p-version elements.
// Vertex modes take the node ids; edge, face and interior modes follow in
// edge id, face id and element order. Function fn = 3*mode + component.
type Model struct {
	nodes    [][3]float64
	elements []*element.Element
	topo     *topology

	edgeP []int
	faceP []int

	nodeUsed      []bool
	edgeMode0     []int // first mode of each edge
	faceMode0     []int
	interiorMode0 []int
	numModes      int

	constraints  []constraint.Constraint
	volumeForces map[int][3]float64
}

// New builds a model from vertex coordinates and tet connectivity, every
// element starting at order p
func New(vertices [][3]float64, EToV [][]int, mat element.Material, p int) (*Model, error) {
	if len(EToV) == 0 {
		return nil, errors.WrapConfiguration(errors.ErrInvalidConfig, "model", "New", "mesh has no elements")
	}
	if p < 1 {
		return nil, errors.WrapConfiguration(errors.ErrInvalidConfig, "model", "New",
			fmt.Sprintf("polynomial order %d", p))
	}
	for k, v := range EToV {
		if len(v) != 4 {
			return nil, errors.WrapConfiguration(&errors.ElementError{ElementID: k, Err: errors.ErrUnsupportedShape},
				"model", "New", fmt.Sprintf("%d vertices", len(v)))
		}
		for _, n := range v {
			if n < 0 || n >= len(vertices) {
				return nil, errors.WrapConfiguration(&errors.ElementError{ElementID: k, Err: errors.ErrMissingNode},
					"model", "New", fmt.Sprintf("node %d", n))
			}
		}
	}

	m := &Model{
		nodes:        vertices,
		topo:         buildTopology(EToV),
		volumeForces: make(map[int][3]float64),
	}
	m.elements = make([]*element.Element, len(EToV))
	for k, v := range EToV {
		el := &element.Element{
			ID:       k,
			Shape:    element.Tet,
			Nodes:    append([]int(nil), v...),
			Coords:   make([][3]float64, 4),
			P:        p,
			EdgeP:    make([]int, 6),
			FaceP:    make([]int, 4),
			Material: mat,
		}
		for i, n := range v {
			el.Coords[i] = vertices[n]
		}
		m.elements[k] = el
	}
	m.Refresh()
	return m, nil
}

func (m *Model) Elements() []*element.Element { return m.elements }
func (m *Model) NumNodes() int                { return len(m.nodes) }
func (m *Model) Node(i int) [3]float64        { return m.nodes[i] }
func (m *Model) NumModes() int                { return m.numModes }
func (m *Model) NumFunctions() int            { return 3 * m.numModes }
func (m *Model) NumEdges() int                { return len(m.topo.edgeNodes) }
func (m *Model) NumFaces() int                { return len(m.topo.faceNodes) }

// Refresh propagates element orders to edges and faces (max over the
// adjacent active elements), renumbers the modes and rebuilds every
// element's function list. Call it after changing any element order.
func (m *Model) Refresh() {
	t := m.topo
	m.edgeP = make([]int, len(t.edgeNodes))
	m.faceP = make([]int, len(t.faceNodes))
	m.nodeUsed = make([]bool, len(m.nodes))
	for i := range m.edgeP {
		m.edgeP[i] = 1
	}
	for i := range m.faceP {
		m.faceP[i] = 1
	}
	for k, el := range m.elements {
		if el.Inactive {
			continue
		}
		for _, n := range el.Nodes {
			m.nodeUsed[n] = true
		}
		for _, e := range t.elemEdges[k] {
			m.edgeP[e] = max(m.edgeP[e], el.P)
		}
		for _, f := range t.elemFaces[k] {
			m.faceP[f] = max(m.faceP[f], el.P)
		}
	}

	mode := len(m.nodes)
	m.edgeMode0 = make([]int, len(m.edgeP))
	for e, p := range m.edgeP {
		m.edgeMode0[e] = mode
		mode += element.EdgeModes(p)
	}
	m.faceMode0 = make([]int, len(m.faceP))
	for f, p := range m.faceP {
		m.faceMode0[f] = mode
		mode += len(element.FaceModes(p))
	}
	m.interiorMode0 = make([]int, len(m.elements))
	for k, el := range m.elements {
		m.interiorMode0[k] = mode
		if !el.Inactive {
			mode += len(element.InteriorModes(el.P))
		}
	}
	m.numModes = mode

	for k, el := range m.elements {
		for i, e := range t.elemEdges[k] {
			el.EdgeP[i] = m.edgeP[e]
		}
		for i, f := range t.elemFaces[k] {
			el.FaceP[i] = m.faceP[f]
		}
		if el.Inactive {
			el.Functions = nil
			continue
		}
		el.Functions = m.elementFunctions(k)
	}
}

// elementFunctions lists the functions of element k in local dof order,
// matching the mode order of the tet capability
func (m *Model) elementFunctions(k int) []int {
	el := m.elements[k]
	t := m.topo
	var modes []int
	modes = append(modes, el.Nodes...)
	for _, e := range t.elemEdges[k] {
		for i := 0; i < element.EdgeModes(m.edgeP[e]); i++ {
			modes = append(modes, m.edgeMode0[e]+i)
		}
	}
	for _, f := range t.elemFaces[k] {
		for i := range element.FaceModes(m.faceP[f]) {
			modes = append(modes, m.faceMode0[f]+i)
		}
	}
	for i := range element.InteriorModes(el.P) {
		modes = append(modes, m.interiorMode0[k]+i)
	}
	fns := make([]int, 0, 3*len(modes))
	for _, md := range modes {
		fns = append(fns, 3*md, 3*md+1, 3*md+2)
	}
	return fns
}

// Skipped reports functions that belong to no active element
func (m *Model) Skipped(fn int) bool {
	mode := fn / 3
	if mode < len(m.nodes) {
		return !m.nodeUsed[mode]
	}
	return false
}

// VertexMode implements constraint.Locator
func (m *Model) VertexMode(node int) (int, bool) {
	if node < 0 || node >= len(m.nodes) || !m.nodeUsed[node] {
		return 0, false
	}
	return node, true
}

// EntityModes implements constraint.Locator
func (m *Model) EntityModes(nodes []int) []int {
	in := make(map[int]bool, len(nodes))
	for _, n := range nodes {
		in[n] = true
	}
	var modes []int
	for e, en := range m.topo.edgeNodes {
		if in[en[0]] && in[en[1]] {
			for i := 0; i < element.EdgeModes(m.edgeP[e]); i++ {
				modes = append(modes, m.edgeMode0[e]+i)
			}
		}
	}
	for f, fn := range m.topo.faceNodes {
		if in[fn[0]] && in[fn[1]] && in[fn[2]] {
			for i := range element.FaceModes(m.faceP[f]) {
				modes = append(modes, m.faceMode0[f]+i)
			}
		}
	}
	return modes
}

// FaceNeighbor returns the element and local face across face f of element k
func (m *Model) FaceNeighbor(k, f int) (nb, nbFace int, ok bool) {
	nb, nbFace = m.topo.EToE[k][f], m.topo.EToF[k][f]
	return nb, nbFace, nb != k
}

// Connectivity describes the mesh for the partition builder
func (m *Model) Connectivity() *partitions.MeshConnectivity {
	K := len(m.elements)
	mc := &partitions.MeshConnectivity{
		NumElements:  K,
		ElementTypes: make([]element.Shape, K),
		DofsPerElem:  make([]int, K),
		EToE:         m.topo.EToE,
		EToF:         m.topo.EToF,
	}
	for k, el := range m.elements {
		mc.ElementTypes[k] = el.Shape
		mc.DofsPerElem[k] = len(el.Functions)
	}
	return mc
}

// SetUniformOrder sets every element to order p and refreshes the numbering
func (m *Model) SetUniformOrder(p int) {
	for _, el := range m.elements {
		el.P = p
	}
	m.Refresh()
}

// MaxOrder returns the highest element order
func (m *Model) MaxOrder() int {
	p := 0
	for _, el := range m.elements {
		if !el.Inactive && el.P > p {
			p = el.P
		}
	}
	return p
}

func (m *Model) Constraints() []constraint.Constraint { return m.constraints }

func (m *Model) AddConstraint(c constraint.Constraint) {
	m.constraints = append(m.constraints, c)
}

// SetVolumeForce sets the body force per unit volume of an element
func (m *Model) SetVolumeForce(k int, b [3]float64) {
	m.volumeForces[k] = b
}

// VolumeForce returns the body force of element k
func (m *Model) VolumeForce(k int) ([3]float64, bool) {
	b, ok := m.volumeForces[k]
	return b, ok
}

// NodesWhere returns the ids of the used nodes whose coordinate on axis
// lies within tol of value, ascending
func (m *Model) NodesWhere(axis int, value, tol float64) []int {
	var ids []int
	for i, x := range m.nodes {
		if m.nodeUsed[i] && x[axis] >= value-tol && x[axis] <= value+tol {
			ids = append(ids, i)
		}
	}
	sort.Ints(ids)
	return ids
}
