package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/furiosa-ai/furiosa-client-go/internal/domain"
	"github.com/furiosa-ai/furiosa-client-go/pkg/furiosa"
	"github.com/furiosa-ai/furiosa-client-go/pkg/npuspec"
	"golang.org/x/sync/errgroup"
)

// ErrDuplicateOutput reports a batch in which two sources map to one artifact path.
var ErrDuplicateOutput = errors.New("duplicate output path")

// CompileOptions are the documents shared by every source in a compile run.
type CompileOptions struct {
	TargetNPUSpec  json.RawMessage
	CompilerConfig json.RawMessage
	TargetIR       furiosa.TargetIR
}

// LoadCompileOptions reads the NPU spec and optional compiler config (YAML or JSON)
// and validates the target IR.
func LoadCompileOptions(specPath, compilerConfigPath, targetIR string) (CompileOptions, error) {
	ir, err := furiosa.ParseTargetIR(targetIR)
	if err != nil {
		return CompileOptions{}, err
	}

	spec, err := npuspec.Load(specPath)
	if err != nil {
		return CompileOptions{}, fmt.Errorf("load target npu spec: %w", err)
	}

	opts := CompileOptions{TargetNPUSpec: spec, TargetIR: ir}
	if strings.TrimSpace(compilerConfigPath) != "" {
		cc, err := npuspec.Load(compilerConfigPath)
		if err != nil {
			return CompileOptions{}, fmt.Errorf("load compiler config: %w", err)
		}
		opts.CompilerConfig = cc
	}
	return opts, nil
}

// LoadDynamicRanges reads a tensor name to [min, max] table.
func LoadDynamicRanges(path string) (map[string]furiosa.DynamicRange, error) {
	ranges := make(map[string]furiosa.DynamicRange)
	if err := npuspec.LoadInto(path, &ranges); err != nil {
		return nil, fmt.Errorf("load dynamic ranges: %w", err)
	}
	return ranges, nil
}

// DefaultOutputPath names the artifact written next to source.
func DefaultOutputPath(op domain.Operation, source string, targetIR furiosa.TargetIR) string {
	base := strings.TrimSuffix(source, filepath.Ext(source))
	switch op {
	case domain.OpCompile:
		if targetIR == "" {
			targetIR = furiosa.DefaultTargetIR
		}
		return base + "." + targetIR.String()
	case domain.OpCalibrate:
		return base + "_calibrated.onnx"
	case domain.OpQuantize:
		return base + "_quantized.onnx"
	case domain.OpOptimize:
		return base + "_optimized.onnx"
	default:
		return base + ".out"
	}
}

// Compile compiles one source model into output.
func (r *Runner) Compile(ctx context.Context, source, output string, opts CompileOptions) (domain.Outcome, error) {
	if opts.TargetIR == "" {
		opts.TargetIR = furiosa.DefaultTargetIR
	}
	if output == "" {
		output = DefaultOutputPath(domain.OpCompile, source, opts.TargetIR)
	}
	job := domain.Job{
		Operation:  domain.OpCompile,
		SourcePath: source,
		OutputPath: output,
		TargetIR:   opts.TargetIR.String(),
	}
	docs := [][]byte{opts.TargetNPUSpec, opts.CompilerConfig, []byte(opts.TargetIR)}

	return r.execute(ctx, job, docs, func(ctx context.Context, src []byte) ([]byte, error) {
		req := furiosa.CompileRequest{
			TargetNPUSpec: opts.TargetNPUSpec,
			TargetIR:      opts.TargetIR,
			Filename:      filepath.Base(source),
			Source:        src,
		}
		if len(opts.CompilerConfig) > 0 {
			req.CompilerConfig = opts.CompilerConfig
		}
		return r.client.Compile(ctx, req)
	})
}

// CompileBatch compiles every source concurrently, at most parallelism at a
// time. Each artifact lands in outputDir, or next to its source when outputDir
// is empty. Failures do not stop the other jobs; they are joined in the error.
// Outcomes are returned in the order of sources. A batch in which two sources
// would write the same artifact fails with ErrDuplicateOutput before any submission.
func (r *Runner) CompileBatch(ctx context.Context, sources []string, outputDir string, opts CompileOptions) ([]domain.Outcome, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources to compile")
	}
	if opts.TargetIR == "" {
		opts.TargetIR = furiosa.DefaultTargetIR
	}

	outputs, err := batchOutputs(sources, outputDir, opts.TargetIR)
	if err != nil {
		return nil, err
	}

	r.log.InfoObj("batch started", "batch_meta", map[string]any{
		"sources":     len(sources),
		"parallelism": r.parallelism,
		"target_ir":   opts.TargetIR,
	})

	outcomes := make([]domain.Outcome, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			outcomes[i], errs[i] = r.Compile(ctx, src, outputs[i], opts)
			return nil
		})
	}
	_ = g.Wait()

	err = errors.Join(errs...)
	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}
	r.log.InfoObj("batch completed", "batch_meta", map[string]any{
		"sources":   len(sources),
		"succeeded": len(sources) - failed,
		"failed":    failed,
	})
	return outcomes, err
}

// batchOutputs resolves the artifact path of every source and rejects batches
// where two sources would write the same file.
func batchOutputs(sources []string, outputDir string, targetIR furiosa.TargetIR) ([]string, error) {
	outputs := make([]string, len(sources))
	seen := make(map[string]string, len(sources))
	for i, src := range sources {
		output := DefaultOutputPath(domain.OpCompile, src, targetIR)
		if outputDir != "" {
			output = filepath.Join(outputDir, filepath.Base(output))
		}
		key := filepath.Clean(output)
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: %s and %s both write %s", ErrDuplicateOutput, prev, src, output)
		}
		seen[key] = src
		outputs[i] = output
	}
	return outputs, nil
}

// tensorsDoc encodes input tensor names the way the request carries them.
func tensorsDoc(inputTensors []string) []byte {
	if inputTensors == nil {
		inputTensors = []string{}
	}
	doc, _ := json.Marshal(inputTensors)
	return doc
}

// Calibrate builds a calibration model for source.
func (r *Runner) Calibrate(ctx context.Context, source, output string, inputTensors []string) (domain.Outcome, error) {
	if output == "" {
		output = DefaultOutputPath(domain.OpCalibrate, source, "")
	}
	job := domain.Job{Operation: domain.OpCalibrate, SourcePath: source, OutputPath: output}
	docs := [][]byte{tensorsDoc(inputTensors)}

	return r.execute(ctx, job, docs, func(ctx context.Context, src []byte) ([]byte, error) {
		return r.client.BuildCalibrationModel(ctx, furiosa.CalibrateRequest{
			Filename:     filepath.Base(source),
			Source:       src,
			InputTensors: inputTensors,
		})
	})
}

// Quantize quantizes source with the given dynamic ranges.
func (r *Runner) Quantize(ctx context.Context, source, output string, inputTensors []string, ranges map[string]furiosa.DynamicRange) (domain.Outcome, error) {
	if output == "" {
		output = DefaultOutputPath(domain.OpQuantize, source, "")
	}
	job := domain.Job{Operation: domain.OpQuantize, SourcePath: source, OutputPath: output}
	// json.Marshal sorts map keys, so the digest is stable.
	rangesDoc, err := json.Marshal(ranges)
	if err != nil {
		return domain.Outcome{Job: job, Err: err}, fmt.Errorf("encode dynamic ranges: %w", err)
	}
	docs := [][]byte{tensorsDoc(inputTensors), rangesDoc}

	return r.execute(ctx, job, docs, func(ctx context.Context, src []byte) ([]byte, error) {
		return r.client.Quantize(ctx, furiosa.QuantizeRequest{
			Filename:      filepath.Base(source),
			Source:        src,
			InputTensors:  inputTensors,
			DynamicRanges: ranges,
		})
	})
}

// Optimize asks the service for a graph-optimized copy of source.
func (r *Runner) Optimize(ctx context.Context, source, output string) (domain.Outcome, error) {
	if output == "" {
		output = DefaultOutputPath(domain.OpOptimize, source, "")
	}
	job := domain.Job{Operation: domain.OpOptimize, SourcePath: source, OutputPath: output}

	return r.execute(ctx, job, nil, func(ctx context.Context, src []byte) ([]byte, error) {
		return r.client.Optimize(ctx, furiosa.OptimizeRequest{
			Filename: filepath.Base(source),
			Source:   src,
		})
	})
}
