package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/notargets/StressRefine/analysis"
	"github.com/notargets/StressRefine/assembly"
	"github.com/notargets/StressRefine/config"
	"github.com/notargets/StressRefine/constraint"
	"github.com/notargets/StressRefine/element"
	"github.com/notargets/StressRefine/errest"
	"github.com/notargets/StressRefine/errors"
	"github.com/notargets/StressRefine/logging"
	"github.com/notargets/StressRefine/metric"
	"github.com/notargets/StressRefine/model"
	"github.com/notargets/StressRefine/partitions"
	"github.com/notargets/StressRefine/solver"
	"github.com/notargets/StressRefine/spill"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type runFlags struct {
	mesh  string
	loads string
	box   []int
	size  []float64
	units string
}

// flagKeys maps command flags to the configuration keys they override
var flagKeys = map[string]string{
	"p":         "adapt.initial_p",
	"loop-max":  "adapt.loop_max",
	"tolerance": "adapt.tolerance",
	"max-p":     "adapt.max_p",
	"uniform":   "adapt.uniform",

	"final-max-p":        "adapt.final_max_p",
	"detect-sacrificial": "adapt.detect_sacrificial",

	"workers":   "assembly.workers",
	"strategy":  "assembly.strategy",
	"solver":    "solver.backend",
	"log-level": "logging.level",
	"metrics":   "metrics.textfile",
}

func newRunCmd() *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an adaptive analysis",
		Long: `Run an adaptive analysis of a mesh file, or of a generated box, under the
constraints and volume forces of a load case file.

Example:
  stressrefine run --mesh bracket.neu --loads bracket.yaml --tolerance 0.02
  stressrefine run --box 4,1,1 --size 10,1,1 --loads cantilever.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd, rf)
		},
	}

	f := cmd.Flags()
	f.StringVar(&rf.mesh, "mesh", "", "mesh file (Gambit neutral, Gmsh or SU2)")
	f.StringVar(&rf.loads, "loads", "", "load case file (YAML)")
	f.IntSliceVar(&rf.box, "box", []int{1, 1, 1}, "cells of the generated box mesh when no mesh file is given")
	f.Float64SliceVar(&rf.size, "size", []float64{1, 1, 1}, "extent of the generated box mesh")
	f.StringVar(&rf.units, "units", "si", "output units: si (Pa, m) or mm (MPa, mm)")
	f.Int("p", 0, "initial polynomial order")
	f.Int("loop-max", 0, "maximum number of adaptive passes")
	f.Float64("tolerance", 0, "target relative stress error")
	f.Int("max-p", 0, "highest polynomial order")
	f.Bool("uniform", false, "raise every element by one order per pass")
	f.Int("final-max-p", 0, "highest polynomial order of the last pass, 0 uses --max-p")
	f.Bool("detect-sacrificial", false, "leave elements with singular stress out of the maximum and of refinement")
	f.Int("workers", 0, "parallel element tasks during assembly")
	f.String("strategy", "", "element partitioning: block, roundrobin or graph")
	f.String("solver", "", "solver backend: cholesky or lu")
	f.String("log-level", "", "debug, info, warn or error")
	f.String("metrics", "", "write Prometheus metrics to this textfile after the run")
	_ = cmd.MarkFlagRequired("loads")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgFile, _ := cmd.Root().PersistentFlags().GetString("config")
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}
	return config.Load(v)
}

// bindFlags lets flags the user set override the file and environment
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		if fl := cmd.Flags().Lookup(name); fl != nil && fl.Changed {
			if err := v.BindPFlag(key, fl); err != nil {
				return errors.WrapConfiguration(err, "cmd", "bindFlags", name)
			}
		}
	}
	return nil
}

func buildModel(rf runFlags, mat element.Material) (*model.Model, error) {
	if rf.mesh != "" {
		return model.FromMeshFile(rf.mesh, mat, 1)
	}
	if len(rf.box) != 3 || len(rf.size) != 3 {
		return nil, errors.WrapConfiguration(errors.ErrInvalidConfig, "cmd", "buildModel",
			"--box and --size take three values")
	}
	if rf.box[0] < 1 || rf.box[1] < 1 || rf.box[2] < 1 {
		return nil, errors.WrapConfiguration(errors.ErrInvalidConfig, "cmd", "buildModel",
			fmt.Sprintf("box cells %v", rf.box))
	}
	verts, etov := model.Box(rf.box[0], rf.box[1], rf.box[2], rf.size[0], rf.size[1], rf.size[2])
	return model.New(verts, etov, mat, 1)
}

func analysisOptions(cfg *config.Config) (analysis.Options, error) {
	strategy, err := partitions.ParseStrategy(cfg.Assembly.Strategy)
	if err != nil {
		return analysis.Options{}, err
	}
	rhsMode := constraint.FromZero
	if cfg.Assembly.Superpose {
		rhsMode = constraint.Superpose
	}
	return analysis.Options{
		AdaptLoopMax: cfg.Adapt.LoopMax,
		Assembly: assembly.Options{
			Workers:         cfg.Assembly.Workers,
			PartitionsPer:   cfg.Assembly.PartitionsPer,
			Strategy:        strategy,
			Spill:           spill.Policy{Budget: cfg.Assembly.SpillBudget()},
			ScratchDir:      cfg.Assembly.ScratchDir,
			SoftSprings:     cfg.Assembly.SoftSprings,
			SoftSpringScale: cfg.Assembly.SoftSpringScale,
			RHSMode:         rhsMode,
		},
		Constraints: constraint.Options{
			PenaltyScale: cfg.Constraints.PenaltyScale,
			AllAsPenalty: cfg.Constraints.AllAsPenalty,
		},
		Refine: errest.RefinerOptions{
			Tolerance:         cfg.Adapt.Tolerance,
			MaxP:              cfg.Adapt.MaxP,
			MaxPJump:          cfg.Adapt.MaxPJump,
			LowStressMaxP:     cfg.Adapt.LowStressMaxP,
			LowStressFraction: cfg.Adapt.LowStressFraction,
			Uniform:           cfg.Adapt.Uniform,
			FinalMaxP:         cfg.Adapt.FinalMaxP,
		},
		Sacrificial: errest.SacrificialOptions{
			Enabled:            cfg.Adapt.DetectSacrificial,
			GrowthRatio:        cfg.Adapt.SacrificialGrowthRatio,
			HighStressFraction: cfg.Adapt.SacrificialStressFraction,
			FlattenedQuality:   cfg.Adapt.SacrificialFlattenedQuality,
		},
	}, nil
}

func setUnits(u *analysis.Units, name string) error {
	switch name {
	case "si":
		return u.Set(1, 1, "Pa", "m")
	case "mm":
		return u.Set(1.e-6, 1.e3, "MPa", "mm")
	default:
		return errors.WrapConfiguration(errors.ErrInvalidConfig, "cmd", "setUnits",
			fmt.Sprintf("unknown units %q", name))
	}
}

func runAnalysis(cmd *cobra.Command, rf runFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.Open(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return errors.WrapResource(err, "cmd", "runAnalysis", "log file")
	}
	defer func() { _ = closeLog() }()

	lc, err := model.LoadCaseFile(rf.loads)
	if err != nil {
		return err
	}
	m, err := buildModel(rf, lc.ElementMaterial())
	if err != nil {
		return err
	}
	if err := lc.Apply(m); err != nil {
		return err
	}
	p := cfg.Adapt.InitialP
	if lc.Order > 0 && !cmd.Flags().Changed("p") {
		p = lc.Order
	}

	opts, err := analysisOptions(cfg)
	if err != nil {
		return err
	}
	kind, err := solver.ParseKind(cfg.Solver.Backend)
	if err != nil {
		return err
	}
	a := analysis.New(m, opts, logger)
	a.Solver = solver.New(solver.Options{
		Kind:           kind,
		ConditionLimit: cfg.Solver.ConditionLimit,
		MaxEquations:   cfg.Solver.MaxEquations,
	}, logger)
	a.Metrics = metric.NewAnalysisMetrics()
	if err := setUnits(a.Units, rf.units); err != nil {
		return err
	}
	a.SetEdgesToOrder(p)

	res, runErr := (&analysis.Controller{}).Run(a)
	printReport(cmd.OutOrStdout(), res, a.Units)
	if cfg.Metrics.Textfile != "" {
		if err := a.Metrics.WriteToTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("failed to write metrics", slog.String("path", cfg.Metrics.Textfile), slog.Any("error", err))
		}
	}
	return runErr
}

func printReport(w io.Writer, res *analysis.Result, u *analysis.Units) {
	if res == nil {
		return
	}
	stressUnit, lengthUnit := u.Labels()
	fmt.Fprintf(w, "run %s: %s after %d passes (%s)\n", res.RunID, res.State, res.Passes, res.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "%5s %5s %10s %12s %14s\n", "pass", "max p", "equations", "error", "max vm ["+stressUnit+"]")
	for _, rec := range res.Records {
		fmt.Fprintf(w, "%5d %5d %10d %12.4e %14.6e\n", rec.Pass, rec.MaxP, rec.NumEquations, rec.Error, u.Stress(rec.MaxStress))
	}
	if res.Passes == 0 {
		return
	}
	sm := res.StressMax
	fmt.Fprintf(w, "max von Mises %.6e %s in element %d at (%.4g, %.4g, %.4g) %s\n",
		u.Stress(sm.VonMises), stressUnit, sm.ElementID,
		u.Length(sm.Position[0]), u.Length(sm.Position[1]), u.Length(sm.Position[2]), lengthUnit)
	fmt.Fprintf(w, "max equivalent strain %.6e in element %d\n", sm.Strain, sm.StrainElement)
	if res.MaxDisplacementNode >= 0 {
		fmt.Fprintf(w, "max displacement %.6e %s at node %d\n", u.Length(res.MaxDisplacement), lengthUnit, res.MaxDisplacementNode)
	}
	if len(res.Sacrificial) > 0 {
		fmt.Fprintf(w, "sacrificial elements %v\n", res.Sacrificial)
	}
	for _, pc := range res.PStats {
		fmt.Fprintf(w, "p=%d: %d elements\n", pc.P, pc.Elements)
	}
}
