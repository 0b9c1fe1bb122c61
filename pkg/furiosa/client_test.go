package furiosa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

var testCreds = Credentials{AccessKeyID: "id", SecretAccessKey: "secret"}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(WithCredentials(testCreds), withEndpoint(Endpoint(url+"/api/v1")), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

type capturedRequest struct {
	path     string
	headers  http.Header
	fields   map[string]string
	filename string
	source   []byte
}

func captureMultipart(t *testing.T, r *http.Request) capturedRequest {
	t.Helper()
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		t.Errorf("parse multipart: %v", err)
		return capturedRequest{}
	}
	out := capturedRequest{path: r.URL.Path, headers: r.Header.Clone(), fields: map[string]string{}}
	for k, v := range r.MultipartForm.Value {
		out.fields[k] = v[0]
	}
	if file, hdr, err := r.FormFile("source"); err == nil {
		out.filename = hdr.Filename
		out.source, _ = io.ReadAll(file)
		file.Close()
	}
	return out
}

func TestCompileSendsAuthenticatedMultipartRequest(t *testing.T) {
	var (
		mu  sync.Mutex
		got capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = captureMultipart(t, r)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0x01, 0x02, 0x03})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	spec := map[string]any{"npu": map[string]any{"dpes": 64}}
	req := NewCompileRequest(spec, []byte("tflite-bytes"))
	req.CompilerConfig = map[string]any{}
	req.Filename = "mnist.tflite"

	artifact, err := c.Compile(context.Background(), req)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(artifact) != 3 {
		t.Fatalf("artifact = %v", artifact)
	}

	mu.Lock()
	defer mu.Unlock()
	if got.path != "/api/v1/compiler" {
		t.Fatalf("path = %s", got.path)
	}
	if got.headers.Get("X-FuriosaAI-Access-Key-ID") != "id" || got.headers.Get("X-FuriosaAI-Secret-Access-KEY") != "secret" {
		t.Fatalf("credential headers missing: %v", got.headers)
	}
	if got.headers.Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}
	if ua := got.headers.Get("User-Agent"); ua != UserAgent() {
		t.Fatalf("User-Agent = %q", ua)
	}
	if got.fields["target_ir"] != "enf" {
		t.Fatalf("target_ir = %q", got.fields["target_ir"])
	}
	if got.fields["compiler_config"] != "{}" {
		t.Fatalf("compiler_config = %q", got.fields["compiler_config"])
	}
	var decoded map[string]map[string]float64
	if err := json.Unmarshal([]byte(got.fields["target_npu_spec"]), &decoded); err != nil || decoded["npu"]["dpes"] != 64 {
		t.Fatalf("target_npu_spec = %q (%v)", got.fields["target_npu_spec"], err)
	}
	if got.filename != "mnist.tflite" || string(got.source) != "tflite-bytes" {
		t.Fatalf("source part = %q %q", got.filename, got.source)
	}
}

func TestCompileOmitsCompilerConfigAndDefaultsFilename(t *testing.T) {
	var got capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = captureMultipart(t, r)
		_, _ = w.Write([]byte("enf"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Compile(context.Background(), CompileRequest{
		TargetNPUSpec: json.RawMessage(`{"dpes":64}`),
		TargetIR:      "LIR",
		Source:        []byte("x"),
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, ok := got.fields["compiler_config"]; ok {
		t.Fatalf("compiler_config should be omitted")
	}
	if got.fields["target_ir"] != "lir" {
		t.Fatalf("target_ir = %q", got.fields["target_ir"])
	}
	if got.fields["target_npu_spec"] != `{"dpes":64}` {
		t.Fatalf("target_npu_spec = %q", got.fields["target_npu_spec"])
	}
	if got.filename != DefaultFilename {
		t.Fatalf("filename = %q", got.filename)
	}
}

func TestCompileUnreachableEndpointIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	artifact, err := c.Compile(context.Background(), NewCompileRequest(map[string]any{}, []byte("x")))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if artifact != nil {
		t.Fatalf("expected no artifact, got %v", artifact)
	}
	if KindName(err) != "transport" {
		t.Fatalf("KindName = %s", KindName(err))
	}
}

func TestCompileServiceErrorCarriesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":"InvalidModel","message":"unsupported operator","trace_id":"t-1"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Compile(context.Background(), NewCompileRequest(map[string]any{}, []byte("x")))
	if !errors.Is(err, ErrService) {
		t.Fatalf("expected ErrService, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "InvalidModel" || apiErr.TraceID != "t-1" || apiErr.Message != "unsupported operator" {
		t.Fatalf("unexpected error fields %+v", apiErr)
	}
	if apiErr.RequestID == "" {
		t.Fatalf("request id not recorded")
	}
}

func TestCompileUnauthorizedIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error_code":"Unauthorized","message":"invalid api key"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Compile(context.Background(), NewCompileRequest(map[string]any{}, []byte("x")))
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if errors.Is(err, ErrService) {
		t.Fatalf("auth error must not match ErrService")
	}
}

func TestCompileEmptySuccessBodyIsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.Compile(context.Background(), NewCompileRequest(map[string]any{}, []byte("x"))); !errors.Is(err, ErrService) {
		t.Fatalf("expected ErrService, got %v", err)
	}
}

func TestCompileRejectsInvalidRequestsWithoutSending(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	cases := map[string]CompileRequest{
		"empty source":  NewCompileRequest(map[string]any{}, nil),
		"missing spec":  {Source: []byte("x")},
		"bad target ir": {TargetNPUSpec: map[string]any{}, TargetIR: "asm", Source: []byte("x")},
		"bad raw spec":  {TargetNPUSpec: json.RawMessage(`{`), Source: []byte("x")},
		"unmarshalable": {TargetNPUSpec: map[string]any{"f": func() {}}, Source: []byte("x")},
	}
	for name, req := range cases {
		if _, err := c.Compile(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%s: expected ErrInvalidRequest, got %v", name, err)
		}
	}
	if calls != 0 {
		t.Fatalf("server should not be called, got %d calls", calls)
	}
}

func TestCompileHonoursContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Compile(ctx, NewCompileRequest(map[string]any{}, []byte("x")))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline in chain, got %v", err)
	}
}

func TestEndpointIsFixedAcrossSubmissions(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Host+r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	before := c.Endpoint()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Compile(context.Background(), NewCompileRequest(map[string]any{}, []byte("x"))); err != nil {
				t.Errorf("Compile: %v", err)
			}
		}()
	}
	wg.Wait()

	if c.Endpoint() != before {
		t.Fatalf("endpoint changed from %s to %s", before, c.Endpoint())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 8 {
		t.Fatalf("expected 8 submissions, got %d", len(paths))
	}
	for _, p := range paths {
		if p != paths[0] {
			t.Fatalf("submission went to %s, expected %s", p, paths[0])
		}
	}
}

func TestQuantizeAndCalibrateEncodeTensorParts(t *testing.T) {
	got := map[string]capturedRequest{}
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := captureMultipart(t, r)
		mu.Lock()
		got[req.path] = req
		mu.Unlock()
		_, _ = w.Write([]byte("onnx"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	if _, err := c.BuildCalibrationModel(ctx, CalibrateRequest{Filename: "m.onnx", Source: []byte("m"), InputTensors: []string{"input"}}); err != nil {
		t.Fatalf("BuildCalibrationModel: %v", err)
	}
	if _, err := c.Quantize(ctx, QuantizeRequest{
		Filename:      "m.onnx",
		Source:        []byte("m"),
		InputTensors:  []string{"input"},
		DynamicRanges: map[string]DynamicRange{"input": {0, 1}},
	}); err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	if _, err := c.Optimize(ctx, OptimizeRequest{Filename: "m.onnx", Source: []byte("m")}); err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	calib := got["/api/v1/dss/build-calibration-model"]
	if calib.fields["input_tensors"] != `["input"]` {
		t.Fatalf("calibration input_tensors = %q", calib.fields["input_tensors"])
	}
	quant := got["/api/v1/dss/quantize"]
	if quant.fields["dynamic_ranges"] != `{"input":[0,1]}` {
		t.Fatalf("dynamic_ranges = %q", quant.fields["dynamic_ranges"])
	}
	if opt, ok := got["/api/v1/dss/optimize"]; !ok || string(opt.source) != "m" {
		t.Fatalf("optimize request missing or wrong: %+v", opt)
	}
}

func TestServerVersionDecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/version" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"version":"0.2.0","git_hash":"abc","build_time":"2021-01-01"}`))
	}))
	defer srv.Close()

	info, err := newTestClient(t, srv.URL).ServerVersion(context.Background())
	if err != nil {
		t.Fatalf("ServerVersion: %v", err)
	}
	if info.Version != "0.2.0" || info.GitHash != "abc" {
		t.Fatalf("unexpected version %+v", info)
	}
}
