package model

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/notargets/StressRefine/constraint"
	"github.com/notargets/StressRefine/element"
	"github.com/notargets/StressRefine/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var steel = element.Material{E: 200.e9, Nu: 0.3}

func unitCube(t *testing.T, p int) *Model {
	verts, etov := Box(1, 1, 1, 1, 1, 1)
	m, err := New(verts, etov, steel, p)
	require.NoError(t, err)
	return m
}

func TestBoxTopology(t *testing.T) {
	m := unitCube(t, 1)
	assert.Len(t, m.Elements(), 6)
	assert.Equal(t, 8, m.NumNodes())
	assert.Equal(t, 19, m.NumEdges())
	assert.Equal(t, 18, m.NumFaces())

	tc := element.NewTetCapability()
	var vol float64
	for _, el := range m.Elements() {
		v, err := tc.Volume(el)
		require.NoError(t, err)
		vol += v
	}
	assert.InDelta(t, 1., vol, 1.e-14)

	var boundary int
	for k := range m.Elements() {
		for f := 0; f < 4; f++ {
			nb, nbf, ok := m.FaceNeighbor(k, f)
			if !ok {
				boundary++
				continue
			}
			back, backf, ok := m.FaceNeighbor(nb, nbf)
			require.True(t, ok)
			assert.Equal(t, k, back)
			assert.Equal(t, f, backf)
		}
	}
	assert.Equal(t, 12, boundary)
}

func TestModeCounts(t *testing.T) {
	m := unitCube(t, 1)
	assert.Equal(t, 8, m.NumModes())
	m.SetUniformOrder(2)
	assert.Equal(t, 8+19, m.NumModes())
	m.SetUniformOrder(3)
	assert.Equal(t, 8+19*2+18, m.NumModes())
	assert.Equal(t, 3*m.NumModes(), m.NumFunctions())

	for _, el := range m.Elements() {
		assert.Len(t, el.Functions, 3*element.NewTetCapability().NumModes(el))
		for _, q := range el.EdgeP {
			assert.Equal(t, 3, q)
		}
	}
}

func TestEdgeOrderIsMaxOfNeighbors(t *testing.T) {
	m := unitCube(t, 1)
	m.Elements()[0].P = 4
	m.Refresh()
	// every element touches the main diagonal, which now carries order 4
	for _, el := range m.Elements() {
		var has4 bool
		for _, q := range el.EdgeP {
			has4 = has4 || q == 4
		}
		assert.True(t, has4, "element %d", el.ID)
	}
	assert.Equal(t, 4, m.MaxOrder())
}

// displacement of a global coefficient vector at barycentric point lam of el
func evalAt(t *testing.T, el *element.Element, coef []float64, lam []float64) [3]float64 {
	vals, err := element.NewTetCapability().ShapeValues(el, element.Point{Coords: lam, Vertex: -1})
	require.NoError(t, err)
	var u [3]float64
	for a, v := range vals {
		for c := 0; c < 3; c++ {
			u[c] += v * coef[el.Functions[3*a+c]]
		}
	}
	return u
}

func TestSharedFacesAreConforming(t *testing.T) {
	m := unitCube(t, 1)
	for k, el := range m.Elements() {
		el.P = 2 + k%4
	}
	m.Refresh()
	rng := rand.New(rand.NewSource(3))
	coef := make([]float64, m.NumFunctions())
	for i := range coef {
		coef[i] = rng.Float64() - 0.5
	}

	weights := []float64{0.2, 0.3, 0.5}
	for k, el := range m.Elements() {
		for f, fv := range element.TetFaces {
			nb, _, ok := m.FaceNeighbor(k, f)
			if !ok {
				continue
			}
			other := m.Elements()[nb]
			// weights follow the global node ids so both sides name one point
			face := sort3([3]int{el.Nodes[fv[0]], el.Nodes[fv[1]], el.Nodes[fv[2]]})
			lamA := make([]float64, 4)
			lamB := make([]float64, 4)
			for i, n := range face {
				for lv := 0; lv < 4; lv++ {
					if el.Nodes[lv] == n {
						lamA[lv] = weights[i]
					}
					if other.Nodes[lv] == n {
						lamB[lv] = weights[i]
					}
				}
			}
			ua := evalAt(t, el, coef, lamA)
			ub := evalAt(t, other, coef, lamB)
			for c := 0; c < 3; c++ {
				assert.InDelta(t, ua[c], ub[c], 1.e-12, "elements %d/%d face %d", k, nb, f)
			}
		}
	}
}

func TestLocator(t *testing.T) {
	m := unitCube(t, 3)
	bottom := m.NodesWhere(2, 0, 1.e-9)
	assert.Equal(t, []int{0, 1, 2, 3}, bottom)
	// 4 cube edges + 1 diagonal with 2 modes each, 2 faces with 1 mode each
	assert.Len(t, m.EntityModes(bottom), 12)

	mode, ok := m.VertexMode(5)
	assert.True(t, ok)
	assert.Equal(t, 5, mode)
	_, ok = m.VertexMode(8)
	assert.False(t, ok)
}

func TestSkippedAndInactive(t *testing.T) {
	verts, etov := Box(1, 1, 1, 1, 1, 1)
	verts = append(verts, [3]float64{5, 5, 5}) // orphan node
	m, err := New(verts, etov, steel, 2)
	require.NoError(t, err)
	assert.True(t, m.Skipped(3*8))
	assert.False(t, m.Skipped(0))
	_, ok := m.VertexMode(8)
	assert.False(t, ok)

	m.Elements()[2].Inactive = true
	m.Refresh()
	assert.Nil(t, m.Elements()[2].Functions)
	assert.NotNil(t, m.Elements()[1].Functions)
}

func TestLoadCaseInactive(t *testing.T) {
	lc, err := ReadLoadCase(strings.NewReader("inactive: [1, 4]\n"))
	require.NoError(t, err)
	m := unitCube(t, 2)
	require.NoError(t, lc.Apply(m))
	for k, el := range m.Elements() {
		assert.Equal(t, k == 1 || k == 4, el.Inactive, "element %d", k)
	}
	assert.Nil(t, m.Elements()[4].Functions)
	assert.NotNil(t, m.Elements()[0].Functions)

	lc, err = ReadLoadCase(strings.NewReader("inactive: [6]\n"))
	require.NoError(t, err)
	err = lc.Apply(unitCube(t, 1))
	assert.True(t, errors.IsConfiguration(err))
}

func TestNewRejectsBadMeshes(t *testing.T) {
	verts, _ := Box(1, 1, 1, 1, 1, 1)
	_, err := New(verts, [][]int{{0, 1, 2, 3, 4, 5}}, steel, 1)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedShape))
	_, err = New(verts, [][]int{{0, 1, 2, 30}}, steel, 1)
	assert.True(t, errors.Is(err, errors.ErrMissingNode))
	_, err = New(verts, nil, steel, 1)
	assert.True(t, errors.IsConfiguration(err))
	_, err = FromMeshFile("does-not-exist.neu", steel, 1)
	assert.True(t, errors.IsConfiguration(err))
}

const cantilever = `
material:
  e: 70.e9
  nu: 0.33
p: 2
fixed:
  - plane: {axis: x, value: 0}
enforced:
  - nodes: [7]
    dofs: [z]
    values: [-0.001]
penalty:
  - nodes: [6]
    dofs: [x]
    values: [0]
    lcs: [[0, 1, 0], [-1, 0, 0], [0, 0, 1]]
volume_forces:
  - force: [0, 0, -9.81]
`

func TestLoadCase(t *testing.T) {
	lc, err := ReadLoadCase(strings.NewReader(cantilever))
	require.NoError(t, err)
	assert.Equal(t, 70.e9, lc.ElementMaterial().E)

	m := unitCube(t, 1)
	require.NoError(t, lc.Apply(m))
	assert.Equal(t, 2, m.MaxOrder())

	cons := m.Constraints()
	require.Len(t, cons, 3)
	assert.Equal(t, constraint.Fixed, cons[0].Kind)
	assert.Equal(t, []int{0, 2, 4, 6}, cons[0].Nodes)
	assert.Equal(t, [3]bool{true, true, true}, cons[0].Dofs)
	assert.Equal(t, [3]float64{0, 0, -0.001}, cons[1].Values)
	require.NotNil(t, cons[2].LCS)
	assert.Equal(t, -1., cons[2].LCS.At(1, 0))

	b, ok := m.VolumeForce(5)
	assert.True(t, ok)
	assert.Equal(t, -9.81, b[2])

	_, err = ReadLoadCase(strings.NewReader("bogus: 1\n"))
	assert.True(t, errors.IsConfiguration(err))

	bad, err := ReadLoadCase(strings.NewReader("enforced:\n  - nodes: [1]\n    dofs: [x, y]\n    values: [1]\n"))
	require.NoError(t, err)
	assert.True(t, errors.Is(bad.Apply(unitCube(t, 1)), errors.ErrInvalidConfig))
}
