package furiosa

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TargetIR selects the representation the compiler emits.
type TargetIR string

const (
	TargetDFG  TargetIR = "dfg"
	TargetLDFG TargetIR = "ldfg"
	TargetCDFG TargetIR = "cdfg"
	TargetGIR  TargetIR = "gir"
	TargetLIR  TargetIR = "lir"
	TargetENF  TargetIR = "enf"
)

// DefaultTargetIR is used when a CompileRequest leaves TargetIR empty.
const DefaultTargetIR = TargetENF

// DefaultFilename names the uploaded source when the caller gives none.
const DefaultFilename = "noname"

var targetIRs = []TargetIR{TargetDFG, TargetLDFG, TargetCDFG, TargetGIR, TargetLIR, TargetENF}

// ParseTargetIR parses a target IR name case-insensitively.
func ParseTargetIR(s string) (TargetIR, error) {
	ir, err := lookupTargetIR(s)
	if err != nil {
		return "", invalidRequest("parse target ir", err)
	}
	return ir, nil
}

func lookupTargetIR(s string) (TargetIR, error) {
	name := TargetIR(strings.ToLower(strings.TrimSpace(s)))
	for _, ir := range targetIRs {
		if ir == name {
			return ir, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTargetIR, s)
}

func (t TargetIR) String() string { return string(t) }

// CompileRequest is one compilation of Source for the hardware described by TargetNPUSpec.
//
// TargetNPUSpec and CompilerConfig are JSON documents: any value json.Marshal accepts,
// json.RawMessage included. A nil CompilerConfig is left out of the request.
type CompileRequest struct {
	TargetNPUSpec  any
	CompilerConfig any
	TargetIR       TargetIR
	Filename       string
	Source         []byte
}

// NewCompileRequest returns a request with the default target IR and filename.
func NewCompileRequest(targetNPUSpec any, source []byte) CompileRequest {
	return CompileRequest{
		TargetNPUSpec: targetNPUSpec,
		TargetIR:      DefaultTargetIR,
		Filename:      DefaultFilename,
		Source:        source,
	}
}

// CalibrateRequest asks for a calibration model built from an ONNX source.
type CalibrateRequest struct {
	Filename     string
	Source       []byte
	InputTensors []string
}

// DynamicRange is the [min, max] range observed for a tensor.
type DynamicRange [2]float32

// QuantizeRequest asks for a quantized model given per-tensor dynamic ranges.
type QuantizeRequest struct {
	Filename      string
	Source        []byte
	InputTensors  []string
	DynamicRanges map[string]DynamicRange
}

// OptimizeRequest asks for a graph-optimized copy of an ONNX source.
type OptimizeRequest struct {
	Filename string
	Source   []byte
}

// VersionInfo describes the service build.
type VersionInfo struct {
	Version   string `json:"version"`
	GitHash   string `json:"git_hash"`
	BuildTime string `json:"build_time"`
}

// Multipart part names understood by the service.
const (
	partTargetNPUSpec  = "target_npu_spec"
	partCompilerConfig = "compiler_config"
	partTargetIR       = "target_ir"
	partSource         = "source"
	partInputTensors   = "input_tensors"
	partDynamicRanges  = "dynamic_ranges"
)

// fields returns the text parts of a compile request.
func (r CompileRequest) fields() (map[string]string, error) {
	target := r.TargetIR
	if target == "" {
		target = DefaultTargetIR
	}
	target, err := lookupTargetIR(string(target))
	if err != nil {
		return nil, err
	}
	if r.TargetNPUSpec == nil {
		return nil, fmt.Errorf("%s is required", partTargetNPUSpec)
	}
	spec, err := marshalDocument(partTargetNPUSpec, r.TargetNPUSpec)
	if err != nil {
		return nil, err
	}
	out := map[string]string{
		partTargetIR:      string(target),
		partTargetNPUSpec: spec,
	}
	if r.CompilerConfig != nil {
		cfg, err := marshalDocument(partCompilerConfig, r.CompilerConfig)
		if err != nil {
			return nil, err
		}
		out[partCompilerConfig] = cfg
	}
	return out, nil
}

func (r CalibrateRequest) fields() (map[string]string, error) {
	tensors, err := marshalDocument(partInputTensors, nonNil(r.InputTensors))
	if err != nil {
		return nil, err
	}
	return map[string]string{partInputTensors: tensors}, nil
}

func (r QuantizeRequest) fields() (map[string]string, error) {
	tensors, err := marshalDocument(partInputTensors, nonNil(r.InputTensors))
	if err != nil {
		return nil, err
	}
	ranges := r.DynamicRanges
	if ranges == nil {
		ranges = map[string]DynamicRange{}
	}
	encoded, err := marshalDocument(partDynamicRanges, ranges)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		partInputTensors:  tensors,
		partDynamicRanges: encoded,
	}, nil
}

func marshalDocument(name string, v any) (string, error) {
	if raw, ok := v.(json.RawMessage); ok && !json.Valid(raw) {
		return "", fmt.Errorf("%s is not valid JSON", name)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	return string(b), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func filenameOrDefault(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return DefaultFilename
	}
	return name
}
