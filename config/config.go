package config

import (
	"strings"

	"github.com/notargets/StressRefine/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. STRESSREFINE_ADAPT_TOLERANCE
const EnvPrefix = "STRESSREFINE"

// Config is the complete run configuration
type Config struct {
	Adapt       AdaptConfig      `mapstructure:"adapt"`
	Assembly    AssemblyConfig   `mapstructure:"assembly"`
	Solver      SolverConfig     `mapstructure:"solver"`
	Constraints ConstraintConfig `mapstructure:"constraints"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
}

// AdaptConfig controls the adaptive loop
type AdaptConfig struct {
	// LoopMax is the maximum number of passes (default: 3)
	LoopMax int `mapstructure:"loop_max"`
	// Tolerance is the target relative error (default: 0.05)
	Tolerance float64 `mapstructure:"tolerance"`
	// InitialP is the starting order of every element (default: 2)
	InitialP int `mapstructure:"initial_p"`
	MaxP     int `mapstructure:"max_p"`
	// MaxPJump limits the order increase of one element in one pass
	MaxPJump int `mapstructure:"max_p_jump"`
	// Uniform raises every element by one each pass instead of by error
	Uniform bool `mapstructure:"uniform"`
	// Elements below LowStressFraction of the peak stress stop at
	// LowStressMaxP; 0 disables
	LowStressMaxP     int     `mapstructure:"low_stress_max_p"`
	LowStressFraction float64 `mapstructure:"low_stress_fraction"`
	// FinalMaxP caps the orders of the last pass instead of MaxP; 0 keeps MaxP
	FinalMaxP int `mapstructure:"final_max_p"`
	// DetectSacrificial leaves elements with singular stress out of the
	// stress maximum and of refinement
	DetectSacrificial           bool    `mapstructure:"detect_sacrificial"`
	SacrificialGrowthRatio      float64 `mapstructure:"sacrificial_growth_ratio"`
	SacrificialStressFraction   float64 `mapstructure:"sacrificial_stress_fraction"`
	SacrificialFlattenedQuality float64 `mapstructure:"sacrificial_flattened_quality"`
}

// AssemblyConfig controls stiffness assembly
type AssemblyConfig struct {
	// Workers is the number of parallel element tasks, 1 is sequential
	Workers       int    `mapstructure:"workers"`
	PartitionsPer int    `mapstructure:"partitions_per_worker"`
	Strategy      string `mapstructure:"strategy"` // block, roundrobin or graph
	// SpillBudgetMB bounds the element matrices held in memory; 0 is unbounded
	SpillBudgetMB   int64   `mapstructure:"spill_budget_mb"`
	ScratchDir      string  `mapstructure:"scratch_dir"`
	SoftSprings     bool    `mapstructure:"soft_springs"`
	SoftSpringScale float64 `mapstructure:"soft_spring_scale"`
	// Superpose reuses the folded enforced displacements while the
	// equations are unchanged
	Superpose bool `mapstructure:"superpose"`
}

type SolverConfig struct {
	Backend        string  `mapstructure:"backend"` // cholesky or lu
	ConditionLimit float64 `mapstructure:"condition_limit"`
	// MaxEquations bounds the dense factorization, which holds N² values
	MaxEquations int `mapstructure:"max_equations"`
}

type ConstraintConfig struct {
	PenaltyScale float64 `mapstructure:"penalty_scale"`
	AllAsPenalty bool    `mapstructure:"all_as_penalty"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
	File   string `mapstructure:"file"`   // empty writes to stderr
}

type MetricsConfig struct {
	// Textfile is written in the node exporter textfile format after the run
	Textfile string `mapstructure:"textfile"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Adapt: AdaptConfig{
			LoopMax:   3,
			Tolerance: 0.05,
			InitialP:  2,
			MaxP:      8,
			MaxPJump:  2,

			SacrificialGrowthRatio:      1.5,
			SacrificialStressFraction:   0.5,
			SacrificialFlattenedQuality: 0.05,
		},
		Assembly: AssemblyConfig{
			Workers:         1,
			PartitionsPer:   4,
			Strategy:        "graph",
			SoftSprings:     true,
			SoftSpringScale: 1.e-8,
		},
		Solver: SolverConfig{
			Backend:        "cholesky",
			ConditionLimit: 1.e14,
			MaxEquations:   20000,
		},
		Constraints: ConstraintConfig{
			PenaltyScale: 1.e6,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("adapt.loop_max", d.Adapt.LoopMax)
	v.SetDefault("adapt.tolerance", d.Adapt.Tolerance)
	v.SetDefault("adapt.initial_p", d.Adapt.InitialP)
	v.SetDefault("adapt.max_p", d.Adapt.MaxP)
	v.SetDefault("adapt.max_p_jump", d.Adapt.MaxPJump)
	v.SetDefault("adapt.uniform", d.Adapt.Uniform)
	v.SetDefault("adapt.low_stress_max_p", d.Adapt.LowStressMaxP)
	v.SetDefault("adapt.low_stress_fraction", d.Adapt.LowStressFraction)
	v.SetDefault("adapt.final_max_p", d.Adapt.FinalMaxP)
	v.SetDefault("adapt.detect_sacrificial", d.Adapt.DetectSacrificial)
	v.SetDefault("adapt.sacrificial_growth_ratio", d.Adapt.SacrificialGrowthRatio)
	v.SetDefault("adapt.sacrificial_stress_fraction", d.Adapt.SacrificialStressFraction)
	v.SetDefault("adapt.sacrificial_flattened_quality", d.Adapt.SacrificialFlattenedQuality)

	v.SetDefault("assembly.workers", d.Assembly.Workers)
	v.SetDefault("assembly.partitions_per_worker", d.Assembly.PartitionsPer)
	v.SetDefault("assembly.strategy", d.Assembly.Strategy)
	v.SetDefault("assembly.spill_budget_mb", d.Assembly.SpillBudgetMB)
	v.SetDefault("assembly.scratch_dir", d.Assembly.ScratchDir)
	v.SetDefault("assembly.soft_springs", d.Assembly.SoftSprings)
	v.SetDefault("assembly.soft_spring_scale", d.Assembly.SoftSpringScale)
	v.SetDefault("assembly.superpose", d.Assembly.Superpose)

	v.SetDefault("solver.backend", d.Solver.Backend)
	v.SetDefault("solver.condition_limit", d.Solver.ConditionLimit)
	v.SetDefault("solver.max_equations", d.Solver.MaxEquations)

	v.SetDefault("constraints.penalty_scale", d.Constraints.PenaltyScale)
	v.SetDefault("constraints.all_as_penalty", d.Constraints.AllAsPenalty)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)

	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}

// NewViper returns a viper instance with defaults, environment overrides
// and, when cfgFile is set, that YAML file
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapConfiguration(err, "config", "NewViper", cfgFile)
		}
	}
	return v, nil
}

// Load reads the configuration from v and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapConfiguration(err, "config", "Load", "")
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.WrapConfiguration(ValidationErrors(errs), "config", "Load", "")
	}
	return &cfg, nil
}

// SpillBudget returns the spill budget in bytes
func (c *AssemblyConfig) SpillBudget() int64 { return c.SpillBudgetMB << 20 }
