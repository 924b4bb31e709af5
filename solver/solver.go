package solver

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/notargets/StressRefine/assembly"
	"github.com/notargets/StressRefine/errors"
	"gonum.org/v1/gonum/mat"
)

// Solver solves an assembled system in place: on success the right-hand
// side of sys holds the solution.
type Solver interface {
	Solve(sys *assembly.System) error
}

type Kind uint8

const (
	Cholesky Kind = iota
	LU
)

func (k Kind) String() string {
	switch k {
	case Cholesky:
		return "cholesky"
	case LU:
		return "lu"
	default:
		return fmt.Sprintf("solver(%d)", uint8(k))
	}
}

// ParseKind maps a configuration name to a solver kind
func ParseKind(name string) (Kind, error) {
	switch name {
	case "", "cholesky":
		return Cholesky, nil
	case "lu":
		return LU, nil
	}
	return Cholesky, errors.WrapConfiguration(errors.ErrInvalidConfig, "solver", "ParseKind",
		fmt.Sprintf("unknown solver %q", name))
}

const (
	DefaultConditionLimit = 1.e14
	// DefaultMaxEquations keeps the dense factor near 3 GB
	DefaultMaxEquations = 20000
)

// Options configure a backend. Both backends factor a dense copy of the
// system, so memory grows as 8 N² bytes; systems above MaxEquations are
// rejected before the copy is made.
type Options struct {
	Kind           Kind
	ConditionLimit float64 // reject factorizations with a larger condition estimate
	MaxEquations   int
}

// New returns the backend selected by opts
func New(opts Options, logger *slog.Logger) Solver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ConditionLimit <= 0 {
		opts.ConditionLimit = DefaultConditionLimit
	}
	if opts.MaxEquations <= 0 {
		opts.MaxEquations = DefaultMaxEquations
	}
	logger = logger.With("component", "solver", "backend", opts.Kind.String())
	if opts.Kind == LU {
		return &LUSolver{limit: opts.ConditionLimit, maxEq: opts.MaxEquations, logger: logger}
	}
	return &CholeskySolver{limit: opts.ConditionLimit, maxEq: opts.MaxEquations, logger: logger}
}

func singular(op string, n int, msg string) error {
	return errors.WrapNumerical(errors.ErrSingularSystem, "solver", op, fmt.Sprintf("%d equations: %s", n, msg))
}

func checkSize(op string, n, maxEq int) error {
	if maxEq > 0 && n > maxEq {
		return errors.WrapResource(errors.ErrSystemTooLarge, "solver", op,
			fmt.Sprintf("%d equations, limit %d (%d MB dense)", n, maxEq, int64(n)*int64(n)*8>>20))
	}
	return nil
}

func checkCondition(op string, n int, cond, limit float64) error {
	if math.IsNaN(cond) || cond > limit {
		return singular(op, n, fmt.Sprintf("condition estimate %.3g above %.3g", cond, limit))
	}
	return nil
}

// CholeskySolver factors K = LLᵀ; K must be symmetric positive definite
type CholeskySolver struct {
	limit  float64
	maxEq  int
	logger *slog.Logger
}

func (s *CholeskySolver) Solve(sys *assembly.System) error {
	start := time.Now()
	if sys.N == 0 {
		return singular("Cholesky", 0, "empty system")
	}
	if err := checkSize("Cholesky", sys.N, s.maxEq); err != nil {
		return err
	}
	var ch mat.Cholesky
	if ok := ch.Factorize(sys.Dense()); !ok {
		return singular("Cholesky", sys.N, "matrix is not positive definite")
	}
	cond := ch.Cond()
	if err := checkCondition("Cholesky", sys.N, cond, s.limit); err != nil {
		return err
	}
	b := mat.NewVecDense(sys.N, append([]float64(nil), sys.RHS.Vector()...))
	var x mat.VecDense
	if err := ch.SolveVecTo(&x, b); err != nil {
		return errors.WrapNumerical(err, "solver", "Cholesky", "")
	}
	sys.RHS.Copy(x.RawVector().Data)
	s.logger.Debug("solved", "equations", sys.N, "cond", cond, "elapsed", time.Since(start))
	return nil
}

// LUSolver factors PA = LU and accepts indefinite systems
type LUSolver struct {
	limit  float64
	maxEq  int
	logger *slog.Logger
}

func (s *LUSolver) Solve(sys *assembly.System) error {
	start := time.Now()
	if sys.N == 0 {
		return singular("LU", 0, "empty system")
	}
	if err := checkSize("LU", sys.N, s.maxEq); err != nil {
		return err
	}
	var lu mat.LU
	lu.Factorize(sys.Dense())
	cond := lu.Cond()
	if err := checkCondition("LU", sys.N, cond, s.limit); err != nil {
		return err
	}
	b := mat.NewVecDense(sys.N, append([]float64(nil), sys.RHS.Vector()...))
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, b); err != nil {
		return errors.WrapNumerical(err, "solver", "LU", "")
	}
	sys.RHS.Copy(x.RawVector().Data)
	s.logger.Debug("solved", "equations", sys.N, "cond", cond, "elapsed", time.Since(start))
	return nil
}
