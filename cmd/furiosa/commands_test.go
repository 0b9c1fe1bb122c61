package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/furiosa-ai/furiosa-client-go/internal/config"
	"github.com/furiosa-ai/furiosa-client-go/internal/logger"
	"github.com/furiosa-ai/furiosa-client-go/pkg/furiosa"
)

type fakeClient struct {
	compiles []furiosa.CompileRequest
	quantize []furiosa.QuantizeRequest
}

func (f *fakeClient) Endpoint() furiosa.Endpoint { return furiosa.DefaultEndpoint }

func (f *fakeClient) Compile(_ context.Context, req furiosa.CompileRequest) ([]byte, error) {
	f.compiles = append(f.compiles, req)
	return []byte("enf"), nil
}

func (f *fakeClient) BuildCalibrationModel(context.Context, furiosa.CalibrateRequest) ([]byte, error) {
	return []byte("calibrated"), nil
}

func (f *fakeClient) Quantize(_ context.Context, req furiosa.QuantizeRequest) ([]byte, error) {
	f.quantize = append(f.quantize, req)
	return []byte("quantized"), nil
}

func (f *fakeClient) Optimize(context.Context, furiosa.OptimizeRequest) ([]byte, error) {
	return []byte("optimized"), nil
}

func (f *fakeClient) ServerVersion(context.Context) (furiosa.VersionInfo, error) {
	return furiosa.VersionInfo{Version: "0.5.0", GitHash: "abc1234", BuildTime: "2024-01-01"}, nil
}

func execute(t *testing.T, client serviceClient, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(&cli{
		cfg: &config.Config{Parallelism: 2, CacheType: "none"},
		log: logger.NopLogger{},
		newClient: func() (serviceClient, error) {
			if client == nil {
				return nil, errors.New("no client")
			}
			return client, nil
		},
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCompileCommandWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, dir, "mnist.onnx", "onnx")
	spec := writeFile(t, dir, "warboy.yaml", "npu: warboy\n")
	client := &fakeClient{}

	out, err := execute(t, client, "compile", model, "--target-npu-spec", spec, "--target-ir", "DFG")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !strings.Contains(out, filepath.Join(dir, "mnist.dfg")) {
		t.Fatalf("unexpected output %q", out)
	}
	if len(client.compiles) != 1 || client.compiles[0].TargetIR != furiosa.TargetDFG {
		t.Fatalf("compile requests = %+v", client.compiles)
	}
	if _, err := os.Stat(filepath.Join(dir, "mnist.dfg")); err != nil {
		t.Fatalf("artifact: %v", err)
	}
}

func TestCompileCommandRequiresSpec(t *testing.T) {
	model := writeFile(t, t.TempDir(), "m.onnx", "onnx")
	if _, err := execute(t, &fakeClient{}, "compile", model); err == nil {
		t.Fatalf("expected missing --target-npu-spec error")
	}
}

func TestBatchCommandCompilesAll(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.onnx", "a")
	b := writeFile(t, dir, "b.onnx", "b")
	spec := writeFile(t, dir, "spec.json", `{"npu":"warboy"}`)
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, &fakeClient{}, "batch", a, b, "--target-npu-spec", spec, "--output-dir", outDir)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if strings.Count(out, "->") != 2 {
		t.Fatalf("unexpected output %q", out)
	}
	for _, name := range []string{"a.enf", "b.enf"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}

func TestQuantizeCommandLoadsRanges(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, dir, "net.onnx", "net")
	ranges := writeFile(t, dir, "ranges.yaml", "input: [-1.5, 2.5]\n")
	client := &fakeClient{}

	if _, err := execute(t, client, "quantize", model, "--input-tensors", "input", "--dynamic-ranges", ranges); err != nil {
		t.Fatalf("quantize: %v", err)
	}
	if len(client.quantize) != 1 {
		t.Fatalf("quantize requests = %+v", client.quantize)
	}
	if got := client.quantize[0].DynamicRanges["input"]; got != (furiosa.DynamicRange{-1.5, 2.5}) {
		t.Fatalf("range = %v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "net_quantized.onnx")); err != nil {
		t.Fatalf("artifact: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, &fakeClient{}, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, want := range []string{"client: " + furiosa.Version, furiosa.EndpointVariant, "server: 0.5.0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}

	out, err = execute(t, nil, "version", "--client")
	if err != nil || strings.Contains(out, "server:") {
		t.Fatalf("client-only version: %q, %v", out, err)
	}
}

func TestClientFactoryErrorPropagates(t *testing.T) {
	model := writeFile(t, t.TempDir(), "m.onnx", "onnx")
	if _, err := execute(t, nil, "optimize", model); err == nil {
		t.Fatalf("expected client construction error")
	}
}

func TestBrokenConfigOnlyFailsServiceCommands(t *testing.T) {
	errBadConfig := errors.New("parallelism must be positive")
	runCLI := func(args ...string) (string, error) {
		loads := 0
		root := newRootCmd(&cli{
			loadConfig: func() (*config.Config, logger.Logger, error) {
				loads++
				return nil, nil, errBadConfig
			},
			newClient: func() (serviceClient, error) { return &fakeClient{}, nil },
		})
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetArgs(args)
		err := root.ExecuteContext(context.Background())
		if err == nil && loads != 0 {
			t.Fatalf("%v: config loaded %d times", args, loads)
		}
		return out.String(), err
	}

	if out, err := runCLI("--help"); err != nil || !strings.Contains(out, "compile") {
		t.Fatalf("--help: %q, %v", out, err)
	}
	if out, err := runCLI("version", "--client"); err != nil || !strings.Contains(out, furiosa.Version) {
		t.Fatalf("version --client: %q, %v", out, err)
	}
	model := writeFile(t, t.TempDir(), "m.onnx", "onnx")
	if _, err := runCLI("optimize", model); !errors.Is(err, errBadConfig) {
		t.Fatalf("optimize should surface the config error, got %v", err)
	}
}
