package analysis

import (
	"math"
	"slices"
	"testing"

	"github.com/notargets/StressRefine/assembly"
	"github.com/notargets/StressRefine/constraint"
	"github.com/notargets/StressRefine/element"
	"github.com/notargets/StressRefine/errest"
	"github.com/notargets/StressRefine/errors"
	"github.com/notargets/StressRefine/logging"
	"github.com/notargets/StressRefine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var unitMaterial = element.Material{E: 1., Nu: 0.3}

var allDofs = [3]bool{true, true, true}

func singleTet(t *testing.T) *model.Model {
	verts := [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	m, err := model.New(verts, [][]int{{0, 1, 2, 3}}, unitMaterial, 1)
	require.NoError(t, err)
	return m
}

func cube(t *testing.T, p int) *model.Model {
	verts, etov := model.Box(1, 1, 1, 1, 1, 1)
	m, err := model.New(verts, etov, unitMaterial, p)
	require.NoError(t, err)
	return m
}

// cantilever is a unit cube clamped on x = 0 and loaded by a volume force
func cantilever(t *testing.T) *model.Model {
	m := cube(t, 1)
	m.AddConstraint(constraint.Constraint{Kind: constraint.Fixed, Nodes: m.NodesWhere(0, 0, 1.e-9), Dofs: allDofs})
	for k := range m.Elements() {
		m.SetVolumeForce(k, [3]float64{0, 0, -1})
	}
	return m
}

// orderChecker reports an error that depends only on the element order
type orderChecker func(el *element.Element) float64

func (f orderChecker) Check(in errest.Input) ([]errest.ElementError, error) {
	var out []errest.ElementError
	for _, el := range in.Model.Elements() {
		if !el.Inactive {
			out = append(out, errest.ElementError{ElementID: el.ID, SmoothRaw: f(el)})
		}
	}
	return out, nil
}

func newAnalysis(m Model, opts Options) *Analysis {
	return New(m, opts, logging.Discard())
}

func TestSingleTetEquilibrium(t *testing.T) {
	m := singleTet(t)
	m.AddConstraint(constraint.Constraint{Kind: constraint.Fixed, Nodes: []int{0}, Dofs: allDofs})
	m.AddConstraint(constraint.Constraint{Kind: constraint.Enforced, Nodes: []int{1},
		Dofs: [3]bool{true, false, false}, Values: [3]float64{1, 0, 0}})

	a := newAnalysis(m, Options{Assembly: assembly.Options{SoftSprings: true}})
	var seen []State
	c := &Controller{OnTransition: func(from, to State) { seen = append(seen, to) }}
	res, err := c.Run(a)
	require.NoError(t, err)

	assert.Equal(t, 8, a.Numbering.NumEquations)
	assert.Equal(t, Converged, res.State)
	assert.Equal(t, 1, res.Passes)
	assert.Equal(t, []State{Numbering, Assembling, Solving, Estimating, Deciding, Converged}, seen)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1., a.DisplacementCoeff(3))

	el := m.Elements()[0]
	K, err := element.NewTetCapability().Stiffness(el)
	require.NoError(t, err)
	u := mat.NewVecDense(len(el.Functions), a.ElementCoeffs(el))
	var f mat.VecDense
	f.MulVec(K, u)
	load := math.Abs(f.AtVec(3))
	require.Greater(t, load, 0.)
	for i := 4; i < 12; i++ {
		assert.Less(t, math.Abs(f.AtVec(i)), 1.e-6*load, "free dof %d", i)
	}
	// the reaction at node 0 balances the enforced load
	assert.InDelta(t, 0., f.AtVec(0)+f.AtVec(3), 1.e-6*load)

	maxDisp, node := a.NodalMaxDisp()
	assert.GreaterOrEqual(t, maxDisp, 1.)
	assert.NotEqual(t, 0, node)
}

func TestZeroLoad(t *testing.T) {
	m := cube(t, 4)
	nodes := make([]int, m.NumNodes())
	for i := range nodes {
		nodes[i] = i
	}
	m.AddConstraint(constraint.Constraint{Kind: constraint.Fixed, Nodes: nodes, Dofs: allDofs})

	a := newAnalysis(m, Options{})
	res, err := (&Controller{}).Run(a)
	require.NoError(t, err)
	assert.Equal(t, Converged, res.State)
	// only the interior bubbles are free
	assert.Equal(t, 3*len(m.Elements()), a.Numbering.NumEquations)
	for _, v := range a.Solution.Vector() {
		assert.Equal(t, 0., v)
	}
	assert.Equal(t, 0., res.MaxDisplacement)
	assert.Equal(t, 0., res.StressMax.VonMises)
}

func TestNoEquations(t *testing.T) {
	m := cube(t, 1)
	nodes := make([]int, m.NumNodes())
	for i := range nodes {
		nodes[i] = i
	}
	m.AddConstraint(constraint.Constraint{Kind: constraint.Fixed, Nodes: nodes, Dofs: allDofs})

	a := newAnalysis(m, Options{})
	res, err := (&Controller{}).Run(a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoEquations))
	assert.True(t, errors.IsConfiguration(err))
	var pe *errors.PassError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Pass)
	assert.Equal(t, 0, pe.NumEquations)
	require.NotNil(t, res)
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, 0, res.Passes)
	assert.Equal(t, -1, res.MaxDisplacementNode)
}

func TestSingularSystem(t *testing.T) {
	m := singleTet(t)
	a := newAnalysis(m, Options{})
	res, err := (&Controller{}).Run(a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSingularSystem))
	assert.True(t, errors.IsNumerical(err))
	var pe *errors.PassError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Pass)
	assert.Equal(t, m.NumFunctions(), pe.NumEquations)
	assert.Equal(t, Failed, res.State)
}

func TestErrorDecreasesWithOrder(t *testing.T) {
	m := cantilever(t)
	a := newAnalysis(m, Options{
		AdaptLoopMax: 4,
		Refine:       errest.RefinerOptions{Tolerance: 0.01, MaxPJump: 1},
	})
	a.Checker = orderChecker(func(el *element.Element) float64 {
		return 0.5 / float64(el.P*el.P)
	})

	res, err := (&Controller{}).Run(a)
	require.NoError(t, err)
	assert.Equal(t, MaxIterationsReached, res.State)
	require.Len(t, res.Records, 4)
	for i, rec := range res.Records {
		assert.Equal(t, i+1, rec.Pass)
		assert.Equal(t, i+1, rec.MaxP)
		assert.InDelta(t, 0.5/float64((i+1)*(i+1)), rec.Error, 1.e-15)
		if i > 0 {
			prev := res.Records[i-1]
			assert.LessOrEqual(t, rec.Error, prev.Error)
			assert.Greater(t, rec.NumEquations, prev.NumEquations)
		}
	}
	assert.Equal(t, 4, res.Best.Pass)
	assert.Equal(t, []PCount{{P: 4, Elements: 6}}, res.PStats)
}

func TestRefinesOnlyElementsAboveTolerance(t *testing.T) {
	m := cantilever(t)
	a := newAnalysis(m, Options{
		AdaptLoopMax: 2,
		Refine:       errest.RefinerOptions{Tolerance: 0.05, MaxPJump: 2},
	})
	a.Checker = orderChecker(func(el *element.Element) float64 {
		if el.ID%2 == 0 && el.P == 1 {
			return 0.2
		}
		return 0.01
	})

	res, err := (&Controller{}).Run(a)
	require.NoError(t, err)
	assert.Equal(t, Converged, res.State)
	require.Len(t, res.Records, 2)
	assert.Greater(t, res.Records[1].NumEquations, res.Records[0].NumEquations)
	for _, el := range m.Elements() {
		if el.ID%2 == 0 {
			assert.Equal(t, 3, el.P, "element %d", el.ID)
		} else {
			assert.Equal(t, 1, el.P, "element %d", el.ID)
		}
	}
	assert.Equal(t, []PCount{{P: 1, Elements: 3}, {P: 3, Elements: 3}}, res.PStats)
}

func TestStopsAtOrderCap(t *testing.T) {
	m := cantilever(t)
	a := newAnalysis(m, Options{
		AdaptLoopMax: 10,
		Refine:       errest.RefinerOptions{Tolerance: 0.05, MaxP: 2},
	})
	a.Checker = orderChecker(func(*element.Element) float64 { return 1 })

	res, err := (&Controller{}).Run(a)
	require.NoError(t, err)
	assert.Equal(t, MaxIterationsReached, res.State)
	assert.Equal(t, 2, res.Passes)
	assert.Equal(t, 2, m.MaxOrder())
}

func TestFinalPassOrderCap(t *testing.T) {
	m := cantilever(t)
	a := newAnalysis(m, Options{
		AdaptLoopMax: 3,
		Refine:       errest.RefinerOptions{Tolerance: 0.05, MaxP: 2, FinalMaxP: 4},
	})
	a.Checker = orderChecker(func(*element.Element) float64 { return 1 })

	res, err := (&Controller{}).Run(a)
	require.NoError(t, err)
	assert.Equal(t, MaxIterationsReached, res.State)
	require.Len(t, res.Records, 3)
	for i, want := range []int{1, 2, 4} {
		assert.Equal(t, want, res.Records[i].MaxP, "pass %d", i+1)
	}
}

func TestPointSupportIsSacrificial(t *testing.T) {
	m := cantilever(t)
	corner := -1
	for n := 0; n < m.NumNodes(); n++ {
		if m.Node(n) == [3]float64{1, 0, 0} {
			corner = n
		}
	}
	require.GreaterOrEqual(t, corner, 0)
	m.AddConstraint(constraint.Constraint{Kind: constraint.Fixed, Nodes: []int{corner}, Dofs: allDofs})

	var want []int
	for _, el := range m.Elements() {
		if slices.Contains(el.Nodes, corner) {
			want = append(want, el.ID)
		}
	}
	require.NotEmpty(t, want)
	require.Less(t, len(want), len(m.Elements()))

	a := newAnalysis(m, Options{
		AdaptLoopMax: 2,
		Refine:       errest.RefinerOptions{Tolerance: 0.05, MaxPJump: 1},
		Sacrificial:  errest.SacrificialOptions{Enabled: true, GrowthRatio: 1.e6},
	})
	a.Checker = orderChecker(func(*element.Element) float64 { return 1 })
	res, err := (&Controller{}).Run(a)
	require.NoError(t, err)

	assert.Equal(t, want, res.Sacrificial)
	assert.NotContains(t, want, res.StressMax.ElementID)
	for _, el := range m.Elements() {
		if slices.Contains(want, el.ID) {
			assert.Equal(t, 1, el.P, "element %d", el.ID)
		} else {
			assert.Equal(t, 2, el.P, "element %d", el.ID)
		}
	}

	// detection is off by default and a new run clears the marks
	a.Options.Sacrificial.Enabled = false
	res, err = (&Controller{}).Run(a)
	require.NoError(t, err)
	assert.Empty(t, res.Sacrificial)
}

// axialBar is a unit bar of three cells along x with ν = 0, held at x = 0
// and laterally everywhere, under a unit axial volume force. The exact
// displacement x - x²/2 is quadratic.
func axialBar(t *testing.T) *model.Model {
	verts, etov := model.Box(3, 1, 1, 1, 1, 1)
	m, err := model.New(verts, etov, element.Material{E: 1, Nu: 0}, 1)
	require.NoError(t, err)
	all := make([]int, m.NumNodes())
	for i := range all {
		all[i] = i
	}
	m.AddConstraint(constraint.Constraint{Kind: constraint.Fixed, Nodes: m.NodesWhere(0, 0, 1.e-9), Dofs: [3]bool{true, false, false}})
	m.AddConstraint(constraint.Constraint{Kind: constraint.Fixed, Nodes: all, Dofs: [3]bool{false, true, true}})
	for k := range m.Elements() {
		m.SetVolumeForce(k, [3]float64{1, 0, 0})
	}
	return m
}

func TestUniformRefinementReducesStressError(t *testing.T) {
	m := axialBar(t)
	a := newAnalysis(m, Options{
		AdaptLoopMax: 3,
		Refine:       errest.RefinerOptions{Tolerance: 1.e-12, Uniform: true},
	})
	res, err := (&Controller{}).Run(a)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Records), 2)

	recs := res.Records
	for i := 1; i < len(recs); i++ {
		assert.LessOrEqual(t, recs[i].Error, recs[i-1].Error+1.e-9, "pass %d", recs[i].Pass)
		assert.Greater(t, recs[i].MaxP, recs[i-1].MaxP)
	}
	first, last := recs[0].Error, recs[len(recs)-1].Error
	assert.Greater(t, first, 0.1)
	assert.Greater(t, first, 100*last)

	// quadratic elements reproduce the exact tip displacement
	assert.InDelta(t, 0.5, res.MaxDisplacement, 1.e-9)
	assert.InDelta(t, 1., res.StressMax.VonMises, 1.e-9)
}

func TestRunIsRepeatable(t *testing.T) {
	m := cantilever(t)
	a := newAnalysis(m, Options{AdaptLoopMax: 1})
	first, err := (&Controller{}).Run(a)
	require.NoError(t, err)
	second, err := (&Controller{}).Run(a)
	require.NoError(t, err)
	assert.Equal(t, first.Passes, second.Passes)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.InDelta(t, first.MaxDisplacement, second.MaxDisplacement, 1.e-12*first.MaxDisplacement)
}

// pulledCantilever adds an enforced z displacement on the free end
func pulledCantilever(t *testing.T, p int) *model.Model {
	m := cantilever(t)
	m.AddConstraint(constraint.Constraint{Kind: constraint.Enforced, Nodes: m.NodesWhere(0, 1, 1.e-9),
		Dofs: [3]bool{false, false, true}, Values: [3]float64{0, 0, 0.1}})
	m.SetUniformOrder(p)
	return m
}

func TestSuperposeMatchesFromZero(t *testing.T) {
	ref := newAnalysis(pulledCantilever(t, 2), Options{AdaptLoopMax: 1})
	want, err := (&Controller{}).Run(ref)
	require.NoError(t, err)
	require.Greater(t, want.MaxDisplacement, 0.)

	opts := Options{AdaptLoopMax: 1, Assembly: assembly.Options{RHSMode: constraint.Superpose}}
	a := newAnalysis(pulledCantilever(t, 2), opts)
	first, err := (&Controller{}).Run(a)
	require.NoError(t, err)
	assert.False(t, a.Constraints.Superposed())
	second, err := (&Controller{}).Run(a)
	require.NoError(t, err)
	assert.True(t, a.Constraints.Superposed())

	for _, got := range []*Result{first, second} {
		assert.InDelta(t, want.MaxDisplacement, got.MaxDisplacement, 1.e-9*want.MaxDisplacement)
		assert.Equal(t, want.MaxDisplacementNode, got.MaxDisplacementNode)
		assert.InDelta(t, want.StressMax.VonMises, got.StressMax.VonMises, 1.e-9*want.StressMax.VonMises)
	}
}

func TestPenaltyMatchesElimination(t *testing.T) {
	run := func(opts constraint.Options) (float64, int) {
		m := cantilever(t)
		m.SetUniformOrder(3)
		a := newAnalysis(m, Options{AdaptLoopMax: 1, Constraints: opts})
		_, err := (&Controller{}).Run(a)
		require.NoError(t, err)
		return a.NodalMaxDisp()
	}
	want, wantNode := run(constraint.Options{})
	got, gotNode := run(constraint.Options{AllAsPenalty: true})
	require.Greater(t, want, 0.)
	assert.InDelta(t, want, got, 1.e-3*want)
	assert.Equal(t, wantNode, gotNode)
}

func TestSetEdgesToOrder(t *testing.T) {
	m := cube(t, 1)
	a := newAnalysis(m, Options{})
	a.SetEdgesToOrder(3)
	for _, el := range m.Elements() {
		assert.Equal(t, 3, el.P)
		for _, p := range el.EdgeP {
			assert.Equal(t, 3, p)
		}
	}
	assert.Equal(t, []PCount{{P: 3, Elements: 6}}, a.PStats())
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	_, ok := r.Best()
	assert.False(t, ok)
	_, ok = r.Last()
	assert.False(t, ok)

	r.Append(PassRecord{Pass: 1, Error: 0.3})
	r.Append(PassRecord{Pass: 2, Error: 0.1})
	r.Append(PassRecord{Pass: 3, Error: 0.1})
	best, ok := r.Best()
	require.True(t, ok)
	assert.Equal(t, 2, best.Pass)
	last, _ := r.Last()
	assert.Equal(t, 3, last.Pass)
	assert.Equal(t, 3, r.Len())

	assert.Panics(t, func() { r.Append(PassRecord{Pass: 5}) })
}

func TestUnits(t *testing.T) {
	u := &Units{}
	assert.Equal(t, 2., u.Stress(2))
	require.NoError(t, u.Set(1.e-6, 1.e3, "MPa", "mm"))
	assert.True(t, u.IsSet())
	assert.InDelta(t, 2., u.Stress(2.e6), 1.e-12)
	assert.Equal(t, 1500., u.Length(1.5))
	s, l := u.Labels()
	assert.Equal(t, "MPa", s)
	assert.Equal(t, "mm", l)

	err := u.Set(1, 1, "Pa", "m")
	assert.True(t, errors.IsConfiguration(err))
	assert.Error(t, (&Units{}).Set(0, 1, "", ""))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "max_iterations_reached", MaxIterationsReached.String())
	assert.True(t, Failed.Terminal())
	assert.False(t, Solving.Terminal())
}
