package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stressrefine",
		Short: "Adaptive p-version finite element stress analysis",
		Long: `StressRefine solves linear elastic problems on tetrahedral meshes and
raises the polynomial order of the elements where the estimated stress
error is above tolerance, until the error converges or the pass limit
is reached.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	root.PersistentFlags().StringP("config", "c", "", "config file (YAML); STRESSREFINE_* environment variables override it")

	root.AddCommand(newRunCmd())
	return root
}
