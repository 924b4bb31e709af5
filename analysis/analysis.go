package analysis

import (
	"log/slog"
	"math"
	"sort"

	"github.com/notargets/StressRefine/assembly"
	"github.com/notargets/StressRefine/constraint"
	"github.com/notargets/StressRefine/element"
	"github.com/notargets/StressRefine/errest"
	"github.com/notargets/StressRefine/metric"
	"github.com/notargets/StressRefine/numbering"
	"github.com/notargets/StressRefine/solution"
	"github.com/notargets/StressRefine/solver"
)

// Model is everything the controller needs from the mesh
type Model interface {
	assembly.Model
	constraint.Locator
	errest.Model
	NumFunctions() int
	Skipped(fn int) bool
	Constraints() []constraint.Constraint
	// Refresh recomputes entity orders and function maps after element
	// orders change
	Refresh()
	MaxOrder() int
}

const DefaultAdaptLoopMax = 3

type Options struct {
	AdaptLoopMax int
	Assembly     assembly.Options
	Constraints  constraint.Options
	Refine       errest.RefinerOptions
	Sacrificial  errest.SacrificialOptions
}

// Analysis is the state of one adaptive run. The controller passes it
// through every phase; each phase reads what the previous ones left.
type Analysis struct {
	Model     Model
	Evaluator element.Evaluator
	Checker   errest.Checker
	Solver    solver.Solver
	Options   Options
	Units     *Units
	Recorder  *Recorder
	Logger    *slog.Logger
	Metrics   *metric.AnalysisMetrics

	RunID         string
	Pass          int
	State         State
	Solution      *solution.Store
	Numbering     numbering.Result
	Constraints   *constraint.Processor
	Partial       *constraint.Partial // folded prescribed displacements, kept for Superpose
	System        *assembly.System
	AssemblyStats assembly.Stats
	Estimate      *errest.Estimate
}

// New returns an analysis of m with the built-in element library, stress
// checker and Cholesky solver. Any of them may be replaced before Run.
func New(m Model, opts Options, logger *slog.Logger) *Analysis {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AdaptLoopMax < 1 {
		opts.AdaptLoopMax = DefaultAdaptLoopMax
	}
	return &Analysis{
		Model:     m,
		Evaluator: element.NewLibrary(),
		Checker:   errest.StressChecker{},
		Solver:    solver.New(solver.Options{}, logger),
		Options:   opts,
		Units:     &Units{},
		Recorder:  &Recorder{},
		Logger:    logger,
		Solution:  solution.NewStore(),
		Partial:   constraint.NewPartial(),
	}
}

// DisplacementCoeff returns the coefficient of function fn in the current
// solution: the solved value, the prescribed value of an eliminated
// function, or zero
func (a *Analysis) DisplacementCoeff(fn int) float64 {
	if eq := a.Numbering.Equation(fn); eq >= 0 {
		return a.Solution.Get(eq)
	}
	if a.Constraints != nil {
		if v, ok := a.Constraints.Value(fn); ok {
			return v
		}
	}
	return 0
}

// ElementCoeffs returns the local coefficient vector of el
func (a *Analysis) ElementCoeffs(el *element.Element) []float64 {
	u := make([]float64, len(el.Functions))
	for i, fn := range el.Functions {
		u[i] = a.DisplacementCoeff(fn)
	}
	return u
}

// NodalMaxDisp returns the largest displacement magnitude over the mesh
// nodes and the node where it occurs, -1 when there are no nodes
func (a *Analysis) NodalMaxDisp() (maxDisp float64, node int) {
	node = -1
	for n := 0; n < a.Model.NumNodes(); n++ {
		mode, ok := a.Model.VertexMode(n)
		if !ok {
			continue
		}
		var ss float64
		for c := 0; c < numbering.NumComponents; c++ {
			u := a.DisplacementCoeff(numbering.FunctionID(mode, c))
			ss += u * u
		}
		if d := math.Sqrt(ss); node < 0 || d > maxDisp {
			maxDisp, node = d, n
		}
	}
	return
}

// PCount is the number of active elements at one order
type PCount struct {
	P        int
	Elements int
}

// PStats returns the distribution of element orders, ascending in p
func (a *Analysis) PStats() []PCount {
	counts := make(map[int]int)
	for _, el := range a.Model.Elements() {
		if !el.Inactive {
			counts[el.P]++
		}
	}
	out := make([]PCount, 0, len(counts))
	for p, n := range counts {
		out = append(out, PCount{P: p, Elements: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].P < out[j].P })
	return out
}

// SetEdgesToOrder sets every element, and with it every edge and face,
// to order p
func (a *Analysis) SetEdgesToOrder(p int) {
	for _, el := range a.Model.Elements() {
		el.P = p
	}
	a.Model.Refresh()
}
