package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/notargets/StressRefine/analysis"
	"github.com/notargets/StressRefine/constraint"
	"github.com/notargets/StressRefine/element"
	"github.com/notargets/StressRefine/errors"
	"github.com/notargets/StressRefine/partitions"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cantileverLoads = `material:
  e: 1000
  nu: 0.3
fixed:
  - plane: {axis: x, value: 0}
volume_forces:
  - force: [0, 0, -1]
`

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "stressrefine", root.Use)
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestRunBox(t *testing.T) {
	loads := writeFile(t, "loads.yaml", cantileverLoads)
	prom := filepath.Join(t.TempDir(), "run.prom")

	out, err := executeCommand(newRootCmd(), "run",
		"--loads", loads,
		"--box", "2,1,1",
		"--size", "2,1,1",
		"--p", "1",
		"--loop-max", "2",
		"--max-p", "2",
		"--log-level", "error",
		"--metrics", prom,
		"--units", "mm")
	require.NoError(t, err)
	assert.Contains(t, out, "pass")
	assert.Contains(t, out, "max vm [MPa]")
	assert.Contains(t, out, "max displacement")

	content, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(content), "stressrefine_adapt_equations")
}

func TestRunNeedsLoads(t *testing.T) {
	_, err := executeCommand(newRootCmd(), "run", "--box", "1,1,1")
	assert.Error(t, err)
}

func TestRunMissingConfig(t *testing.T) {
	loads := writeFile(t, "loads.yaml", cantileverLoads)
	_, err := executeCommand(newRootCmd(), "--config", filepath.Join(t.TempDir(), "none.yaml"), "run", "--loads", loads)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestRunUnconstrainedFails(t *testing.T) {
	loads := writeFile(t, "loads.yaml", "material: {e: 1, nu: 0.3}\n")
	cfg := writeFile(t, "config.yaml", "assembly:\n  soft_springs: false\nlogging:\n  level: error\n")
	out, err := executeCommand(newRootCmd(), "--config", cfg, "run", "--loads", loads, "--p", "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSingularSystem))
	var pe *errors.PassError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Pass)
	assert.Contains(t, out, "failed after 0 passes")
}

func TestFlagsOverrideConfig(t *testing.T) {
	cfgFile := writeFile(t, "config.yaml", "adapt:\n  loop_max: 7\n  tolerance: 0.1\nassembly:\n  strategy: block\n")
	root := newRootCmd()
	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	require.NoError(t, root.PersistentFlags().Set("config", cfgFile))
	require.NoError(t, run.Flags().Set("tolerance", "0.02"))
	require.NoError(t, run.Flags().Set("strategy", "roundrobin"))
	require.NoError(t, run.Flags().Set("final-max-p", "9"))
	require.NoError(t, run.Flags().Set("detect-sacrificial", "true"))

	cfg, err := loadConfig(run)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Adapt.LoopMax)
	assert.Equal(t, 0.02, cfg.Adapt.Tolerance)

	opts, err := analysisOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, partitions.RoundRobin, opts.Assembly.Strategy)
	assert.Equal(t, 7, opts.AdaptLoopMax)
	assert.Equal(t, 0.02, opts.Refine.Tolerance)
	assert.Equal(t, 9, opts.Refine.FinalMaxP)
	assert.True(t, opts.Sacrificial.Enabled)
	assert.Equal(t, 1.5, opts.Sacrificial.GrowthRatio)
	assert.Equal(t, constraint.FromZero, opts.Assembly.RHSMode)

	cfg.Assembly.Superpose = true
	opts, err = analysisOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, constraint.Superpose, opts.Assembly.RHSMode)
}

func TestBuildModelRejectsBadBox(t *testing.T) {
	mat := element.Material{E: 1, Nu: 0.3}
	_, err := buildModel(runFlags{box: []int{1, 0, 1}, size: []float64{1, 1, 1}}, mat)
	assert.True(t, errors.IsConfiguration(err))
	_, err = buildModel(runFlags{box: []int{1, 1}, size: []float64{1, 1, 1}}, mat)
	assert.True(t, errors.IsConfiguration(err))
}

func TestSetUnits(t *testing.T) {
	u := &analysis.Units{}
	require.NoError(t, setUnits(u, "si"))
	s, l := u.Labels()
	assert.Equal(t, "Pa", s)
	assert.Equal(t, "m", l)
	assert.True(t, errors.IsConfiguration(setUnits(&analysis.Units{}, "furlongs")))
}
