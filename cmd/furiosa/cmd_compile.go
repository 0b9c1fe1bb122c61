package main

import (
	"github.com/furiosa-ai/furiosa-client-go/internal/app"
	"github.com/furiosa-ai/furiosa-client-go/pkg/furiosa"
	"github.com/spf13/cobra"
)

type compileFlags struct {
	targetNPUSpec  string
	compilerConfig string
	targetIR       string
}

func (f *compileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.targetNPUSpec, "target-npu-spec", "", "NPU spec file (YAML or JSON)")
	cmd.Flags().StringVar(&f.compilerConfig, "compiler-config", "", "compiler config file (YAML or JSON)")
	cmd.Flags().StringVar(&f.targetIR, "target-ir", furiosa.DefaultTargetIR.String(), "target IR: dfg, ldfg, cdfg, gir, lir or enf")
	_ = cmd.MarkFlagRequired("target-npu-spec")
}

func newCompileCmd(c *cli) *cobra.Command {
	var (
		flags  compileFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "compile MODEL",
		Short: "Compile a model for the target NPU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := app.LoadCompileOptions(flags.targetNPUSpec, flags.compilerConfig, flags.targetIR)
			if err != nil {
				return err
			}
			return c.withRunner(cmd.Context(), func(r *app.Runner) error {
				out, err := r.Compile(cmd.Context(), args[0], output, opts)
				if err != nil {
					return err
				}
				printOutcome(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default <model>.<target-ir>)")
	return cmd
}

func newBatchCmd(c *cli) *cobra.Command {
	var (
		flags     compileFlags
		outputDir string
	)
	cmd := &cobra.Command{
		Use:   "batch MODEL...",
		Short: "Compile several models concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := app.LoadCompileOptions(flags.targetNPUSpec, flags.compilerConfig, flags.targetIR)
			if err != nil {
				return err
			}
			return c.withRunner(cmd.Context(), func(r *app.Runner) error {
				outcomes, err := r.CompileBatch(cmd.Context(), args, outputDir, opts)
				for _, out := range outcomes {
					printOutcome(cmd.OutOrStdout(), out)
				}
				return err
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for artifacts (default next to each model)")
	return cmd
}
