package analysis

import (
	"log/slog"
	"time"

	"github.com/notargets/StressRefine/assembly"
	"github.com/notargets/StressRefine/constraint"
	"github.com/notargets/StressRefine/errest"
	"github.com/notargets/StressRefine/errors"
	"github.com/notargets/StressRefine/logging"
	"github.com/notargets/StressRefine/numbering"
)

// Result is what a run leaves for reporting
type Result struct {
	RunID               string
	State               State
	Passes              int
	Records             []PassRecord
	Best                PassRecord
	StressMax           errest.StressMax
	MaxDisplacement     float64
	MaxDisplacementNode int
	PStats              []PCount
	Sacrificial         []int // elements left out of the stress maximum and refinement
	Elapsed             time.Duration
}

// Controller runs the adaptive loop
type Controller struct {
	// OnTransition, when set, is called on every state change
	OnTransition func(from, to State)
}

func (c *Controller) enter(a *Analysis, s State) {
	from := a.State
	a.State = s
	if c.OnTransition != nil {
		c.OnTransition(from, s)
	}
}

type phase struct {
	state State
	run   func(a *Analysis, log *slog.Logger) error
}

// Run drives a through numbering, assembly, solve and estimation until
// the error is within tolerance, the pass limit is reached or no element
// can be raised. A fatal error ends the run in Failed and is returned as
// an *errors.PassError together with the partial result.
func (c *Controller) Run(a *Analysis) (*Result, error) {
	start := time.Now()
	log, runID := logging.WithRun(a.Logger)
	a.RunID = runID
	a.Pass = 0
	a.State = Initializing
	a.Recorder = &Recorder{}
	a.Estimate = nil

	refiner := errest.NewRefiner(a.Options.Refine)
	estimator := errest.NewEstimator(a.Checker, log)
	errest.ClearSacrificial(a.Model.Elements())
	estimator.UseDetector(errest.NewDetector(a.Options.Sacrificial, constraint.PointNodes(a.Model.Constraints())))
	phases := []phase{
		{Numbering, number},
		{Assembling, assemble},
		{Solving, solve},
		{Estimating, func(a *Analysis, log *slog.Logger) (err error) {
			a.Estimate, err = estimator.Estimate(errest.Input{Model: a.Model, Evaluator: a.Evaluator, Solution: a})
			return
		}},
	}
	log.Info("starting adaptive run",
		"elements", len(a.Model.Elements()),
		"loop_max", a.Options.AdaptLoopMax,
		"tolerance", refiner.Tolerance())

	for a.Pass = 1; ; a.Pass++ {
		plog := logging.WithPass(log, a.Pass)
		a.Metrics.StartPass()
		for _, ph := range phases {
			c.enter(a, ph.state)
			t0 := time.Now()
			if err := ph.run(a, logging.WithPhase(plog, ph.state.String())); err != nil {
				return c.fail(a, plog, err, start)
			}
			a.Metrics.ObservePhase(ph.state.String(), time.Since(t0))
		}

		c.enter(a, Deciding)
		est := a.Estimate
		rec := PassRecord{
			Pass:         a.Pass,
			MaxP:         a.Model.MaxOrder(),
			NumEquations: a.Numbering.NumEquations,
			Error:        est.Global,
			MaxStress:    est.StressMax.VonMises,
		}
		a.Recorder.Append(rec)
		a.Metrics.ObservePass(rec.NumEquations, rec.Error, rec.MaxStress, rec.MaxP)
		plog.Info("pass complete",
			"max_p", rec.MaxP,
			"equations", rec.NumEquations,
			"error", rec.Error,
			"max_von_mises", a.Units.Stress(rec.MaxStress),
			"worst_element", est.MaxElement)

		if refiner.Converged(est) {
			c.enter(a, Converged)
			break
		}
		if a.Pass >= a.Options.AdaptLoopMax {
			c.enter(a, MaxIterationsReached)
			break
		}
		refiner.SetFinal(a.Pass+1 == a.Options.AdaptLoopMax)
		raised := refiner.Apply(est, a.Model.Elements())
		if len(raised) == 0 {
			plog.Warn("error above tolerance with every element at its order cap")
			c.enter(a, MaxIterationsReached)
			break
		}
		plog.Debug("raised element orders", "elements", len(raised))
		a.Model.Refresh()
	}

	res := c.result(a, start)
	log.Info("adaptive run finished", "state", res.State.String(), "passes", res.Passes, "elapsed", res.Elapsed)
	return res, nil
}

func (c *Controller) fail(a *Analysis, log *slog.Logger, err error, start time.Time) (*Result, error) {
	failedIn := a.State
	c.enter(a, Failed)
	class := "unclassified"
	if cl, ok := errors.ClassOf(err); ok {
		class = cl.String()
	}
	a.Metrics.Failure(class)
	log.Error("pass failed", "phase", failedIn.String(), "class", class, "equations", a.Numbering.NumEquations, "error", err)
	return c.result(a, start), &errors.PassError{Pass: a.Pass, NumEquations: a.Numbering.NumEquations, Err: err}
}

func (c *Controller) result(a *Analysis, start time.Time) *Result {
	res := &Result{
		RunID:               a.RunID,
		State:               a.State,
		Passes:              a.Recorder.Len(),
		Records:             a.Recorder.Records(),
		MaxDisplacementNode: -1,
		PStats:              a.PStats(),
		Elapsed:             time.Since(start),
	}
	res.Best, _ = a.Recorder.Best()
	if a.Estimate != nil {
		res.StressMax = a.Estimate.StressMax
		res.Sacrificial = a.Estimate.Sacrificial
	}
	if a.State != Failed {
		res.MaxDisplacement, res.MaxDisplacementNode = a.NodalMaxDisp()
	}
	return res
}

// number sets the function flags from the model and the constraints and
// assigns the equations of the pass
func number(a *Analysis, log *slog.Logger) error {
	m := a.Model
	a.Numbering = numbering.Result{}
	nfun := m.NumFunctions()
	a.Solution.AllocateFlags(nfun)
	for fn := 0; fn < nfun; fn++ {
		a.Solution.SetSkip(fn, m.Skipped(fn))
	}
	a.Constraints = constraint.NewProcessor(m.Constraints(), a.Options.Constraints)
	a.Constraints.UsePartial(a.Partial)
	if err := a.Constraints.Mark(m, a.Solution); err != nil {
		return err
	}
	res, err := numbering.Numberer{}.Number(a.Solution)
	a.Numbering = res
	if err != nil {
		return err
	}
	a.Solution.Allocate(res.NumEquations)
	log.Debug("numbered",
		"functions", nfun,
		"equations", res.NumEquations,
		"smooth_equations", res.NumSmoothEquations,
		"eliminated", a.Constraints.NumEliminated(),
		"springs", a.Constraints.NumSprings())
	return nil
}

func assemble(a *Analysis, log *slog.Logger) error {
	sys, stats, err := assembly.NewAssembler(a.Options.Assembly, log).Assemble(assembly.Input{
		Model:       a.Model,
		Evaluator:   a.Evaluator,
		Numbering:   a.Numbering,
		Constraints: a.Constraints,
		RHS:         a.Solution,
	})
	a.System, a.AssemblyStats = sys, stats
	if err != nil {
		return err
	}
	if stats.Spilled {
		a.Metrics.AddSpilled(stats.Elements)
	}
	return nil
}

func solve(a *Analysis, log *slog.Logger) error {
	return a.Solver.Solve(a.System)
}
