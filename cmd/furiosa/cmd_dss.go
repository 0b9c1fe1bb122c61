package main

import (
	"github.com/furiosa-ai/furiosa-client-go/internal/app"
	"github.com/spf13/cobra"
)

func newCalibrateCmd(c *cli) *cobra.Command {
	var (
		inputTensors []string
		output       string
	)
	cmd := &cobra.Command{
		Use:   "calibrate MODEL",
		Short: "Build a calibration model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRunner(cmd.Context(), func(r *app.Runner) error {
				out, err := r.Calibrate(cmd.Context(), args[0], output, inputTensors)
				if err != nil {
					return err
				}
				printOutcome(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&inputTensors, "input-tensors", nil, "comma separated input tensor names")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default <model>_calibrated.onnx)")
	return cmd
}

func newQuantizeCmd(c *cli) *cobra.Command {
	var (
		inputTensors  []string
		dynamicRanges string
		output        string
	)
	cmd := &cobra.Command{
		Use:   "quantize MODEL",
		Short: "Quantize a model with per-tensor dynamic ranges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ranges, err := app.LoadDynamicRanges(dynamicRanges)
			if err != nil {
				return err
			}
			return c.withRunner(cmd.Context(), func(r *app.Runner) error {
				out, err := r.Quantize(cmd.Context(), args[0], output, inputTensors, ranges)
				if err != nil {
					return err
				}
				printOutcome(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&inputTensors, "input-tensors", nil, "comma separated input tensor names")
	cmd.Flags().StringVar(&dynamicRanges, "dynamic-ranges", "", "tensor name to [min, max] file (YAML or JSON)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default <model>_quantized.onnx)")
	_ = cmd.MarkFlagRequired("dynamic-ranges")
	return cmd
}

func newOptimizeCmd(c *cli) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "optimize MODEL",
		Short: "Optimize a model graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRunner(cmd.Context(), func(r *app.Runner) error {
				out, err := r.Optimize(cmd.Context(), args[0], output)
				if err != nil {
					return err
				}
				printOutcome(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default <model>_optimized.onnx)")
	return cmd
}
