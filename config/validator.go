package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // config key, e.g. "adapt.tolerance"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

func ValidLogLevels() []string      { return []string{"debug", "info", "warn", "error"} }
func ValidLogFormats() []string     { return []string{"json", "text"} }
func ValidSolverBackends() []string { return []string{"cholesky", "lu"} }
func ValidStrategies() []string     { return []string{"block", "roundrobin", "graph"} }

// Validate checks the Config and returns every problem found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateAdapt()...)
	errs = append(errs, c.validateAssembly()...)
	errs = append(errs, c.validateSolver()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validateAdapt() (errs []ValidationError) {
	a := c.Adapt
	if a.LoopMax < 1 {
		errs = append(errs, ValidationError{"adapt.loop_max", a.LoopMax, "must be at least 1"})
	}
	if a.Tolerance <= 0 || a.Tolerance >= 1 {
		errs = append(errs, ValidationError{"adapt.tolerance", a.Tolerance, "must be in (0, 1)"})
	}
	if a.InitialP < 1 {
		errs = append(errs, ValidationError{"adapt.initial_p", a.InitialP, "must be at least 1"})
	}
	if a.MaxP < a.InitialP {
		errs = append(errs, ValidationError{"adapt.max_p", a.MaxP, "must not be below initial_p"})
	}
	if a.MaxPJump < 1 {
		errs = append(errs, ValidationError{"adapt.max_p_jump", a.MaxPJump, "must be at least 1"})
	}
	if a.LowStressMaxP < 0 {
		errs = append(errs, ValidationError{"adapt.low_stress_max_p", a.LowStressMaxP, "must not be negative"})
	}
	if a.LowStressFraction < 0 || a.LowStressFraction >= 1 {
		errs = append(errs, ValidationError{"adapt.low_stress_fraction", a.LowStressFraction, "must be in [0, 1)"})
	}
	if a.FinalMaxP != 0 && a.FinalMaxP < a.InitialP {
		errs = append(errs, ValidationError{"adapt.final_max_p", a.FinalMaxP, "must be 0 or not below initial_p"})
	}
	if a.SacrificialGrowthRatio <= 1 {
		errs = append(errs, ValidationError{"adapt.sacrificial_growth_ratio", a.SacrificialGrowthRatio, "must be greater than 1"})
	}
	if a.SacrificialStressFraction <= 0 || a.SacrificialStressFraction > 1 {
		errs = append(errs, ValidationError{"adapt.sacrificial_stress_fraction", a.SacrificialStressFraction, "must be in (0, 1]"})
	}
	if a.SacrificialFlattenedQuality <= 0 || a.SacrificialFlattenedQuality >= 1 {
		errs = append(errs, ValidationError{"adapt.sacrificial_flattened_quality", a.SacrificialFlattenedQuality, "must be in (0, 1)"})
	}
	return
}

func (c *Config) validateAssembly() (errs []ValidationError) {
	a := c.Assembly
	if a.Workers < 1 {
		errs = append(errs, ValidationError{"assembly.workers", a.Workers, "must be at least 1"})
	}
	if a.PartitionsPer < 1 {
		errs = append(errs, ValidationError{"assembly.partitions_per_worker", a.PartitionsPer, "must be at least 1"})
	}
	if !slices.Contains(ValidStrategies(), a.Strategy) {
		errs = append(errs, ValidationError{"assembly.strategy", a.Strategy,
			fmt.Sprintf("must be one of %v", ValidStrategies())})
	}
	if a.SpillBudgetMB < 0 {
		errs = append(errs, ValidationError{"assembly.spill_budget_mb", a.SpillBudgetMB, "must not be negative"})
	}
	if a.SoftSpringScale < 0 {
		errs = append(errs, ValidationError{"assembly.soft_spring_scale", a.SoftSpringScale, "must not be negative"})
	}
	return
}

func (c *Config) validateSolver() (errs []ValidationError) {
	if !slices.Contains(ValidSolverBackends(), c.Solver.Backend) {
		errs = append(errs, ValidationError{"solver.backend", c.Solver.Backend,
			fmt.Sprintf("must be one of %v", ValidSolverBackends())})
	}
	if c.Solver.ConditionLimit <= 1 {
		errs = append(errs, ValidationError{"solver.condition_limit", c.Solver.ConditionLimit, "must be greater than 1"})
	}
	if c.Solver.MaxEquations < 1 {
		errs = append(errs, ValidationError{"solver.max_equations", c.Solver.MaxEquations, "must be at least 1"})
	}
	if c.Constraints.PenaltyScale <= 0 {
		errs = append(errs, ValidationError{"constraints.penalty_scale", c.Constraints.PenaltyScale, "must be positive"})
	}
	return
}

func (c *Config) validateLogging() (errs []ValidationError) {
	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{"logging.level", c.Logging.Level,
			fmt.Sprintf("must be one of %v", ValidLogLevels())})
	}
	if !slices.Contains(ValidLogFormats(), c.Logging.Format) {
		errs = append(errs, ValidationError{"logging.format", c.Logging.Format,
			fmt.Sprintf("must be one of %v", ValidLogFormats())})
	}
	return
}
