// Package furiosa is a client for the FuriosaAI compiler service.
//
// The client reads FURIOSA_ACCESS_KEY_ID and FURIOSA_SECRET_ACCESS_KEY from the
// environment, falling back to $HOME/.furiosa/credential:
//
//	FURIOSA_ACCESS_KEY_ID=XXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX
//	FURIOSA_SECRET_ACCESS_KEY=YYYYYYYYYYYYYYYYYYYYYYYYYYYYYYYY
//
// The API endpoint is chosen at build time with the local or production build
// tags; without a tag the client talks to the sandbox.
package furiosa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/furiosa-ai/furiosa-client-go/pkg/httpclient"
	"github.com/google/uuid"
)

// Version of this client, reported in the User-Agent header.
const Version = "0.1.0"

// DefaultTimeout bounds a single HTTP exchange with the service.
const DefaultTimeout = 10 * time.Minute

const (
	accessKeyIDHeader     = "X-FuriosaAI-Access-Key-ID"
	secretAccessKeyHeader = "X-FuriosaAI-Secret-Access-KEY"
	requestIDHeader       = "X-Request-Id"

	octetStream = "application/octet-stream"
)

// API paths relative to the endpoint.
const (
	pathCompiler         = "compiler"
	pathCalibrationModel = "dss/build-calibration-model"
	pathQuantize         = "dss/quantize"
	pathOptimize         = "dss/optimize"
	pathVersion          = "version"
)

// UserAgent is sent with every request.
func UserAgent() string {
	return fmt.Sprintf("FuriosaAI Go Client (ver.%s)", Version)
}

// Client submits requests to the compiler service. It is immutable after New and
// safe for concurrent use.
type Client struct {
	http     httpclient.Client
	endpoint Endpoint
	creds    Credentials
	log      Logger
}

type options struct {
	creds    *Credentials
	timeout  time.Duration
	log      Logger
	http     httpclient.Client
	endpoint Endpoint
}

// Option customizes New.
type Option func(*options)

// WithCredentials skips environment and credential file lookup.
func WithCredentials(c Credentials) Option {
	return func(o *options) { o.creds = &c }
}

// WithTimeout sets the HTTP timeout of the default transport.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l Logger) Option {
	return func(o *options) { o.log = l }
}

// WithHTTPClient replaces the resty transport.
func WithHTTPClient(c httpclient.Client) Option {
	return func(o *options) { o.http = c }
}

// withEndpoint points the client at a test server.
func withEndpoint(e Endpoint) Option {
	return func(o *options) { o.endpoint = e }
}

// New builds a Client bound to DefaultEndpoint.
func New(opts ...Option) (*Client, error) {
	o := options{timeout: DefaultTimeout, endpoint: DefaultEndpoint}
	for _, opt := range opts {
		opt(&o)
	}

	var creds Credentials
	if o.creds != nil {
		creds = *o.creds
		if !creds.Valid() {
			return nil, configError("new client", ErrNoCredentials)
		}
	} else {
		loaded, err := LoadCredentials()
		if err != nil {
			return nil, err
		}
		creds = loaded
	}

	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	hc := o.http
	if hc == nil {
		hc = httpclient.NewRestyClient(o.timeout, UserAgent())
	}

	c := &Client{
		http:     hc,
		endpoint: o.endpoint,
		creds:    creds,
		log:      ensureLogger(o.log),
	}
	c.log.InfoObj("furiosa client ready", "client", map[string]any{
		"endpoint":      c.endpoint.String(),
		"access_key_id": creds.AccessKeyID,
	})
	return c, nil
}

// Endpoint returns the API endpoint every request goes to.
func (c *Client) Endpoint() Endpoint { return c.endpoint }

// Compile sends the source model to the compiler and returns the compiled binary.
func (c *Client) Compile(ctx context.Context, req CompileRequest) ([]byte, error) {
	const op = "compile"
	fields, err := req.fields()
	if err != nil {
		return nil, invalidRequest(op, err)
	}
	return c.submit(ctx, op, pathCompiler, fields, req.Filename, req.Source)
}

// BuildCalibrationModel returns an ONNX model instrumented for calibration.
func (c *Client) BuildCalibrationModel(ctx context.Context, req CalibrateRequest) ([]byte, error) {
	const op = "build calibration model"
	fields, err := req.fields()
	if err != nil {
		return nil, invalidRequest(op, err)
	}
	return c.submit(ctx, op, pathCalibrationModel, fields, req.Filename, req.Source)
}

// Quantize returns the source model quantized with the given dynamic ranges.
func (c *Client) Quantize(ctx context.Context, req QuantizeRequest) ([]byte, error) {
	const op = "quantize"
	fields, err := req.fields()
	if err != nil {
		return nil, invalidRequest(op, err)
	}
	return c.submit(ctx, op, pathQuantize, fields, req.Filename, req.Source)
}

// Optimize returns a graph-optimized copy of the source model.
func (c *Client) Optimize(ctx context.Context, req OptimizeRequest) ([]byte, error) {
	return c.submit(ctx, "optimize", pathOptimize, nil, req.Filename, req.Source)
}

// ServerVersion asks the service for its build information.
func (c *Client) ServerVersion(ctx context.Context) (VersionInfo, error) {
	const op = "server version"
	requestID := uuid.NewString()
	resp, err := c.http.Get(ctx, c.endpoint.URL(pathVersion), c.headers(requestID))
	if err != nil {
		return VersionInfo{}, &Error{Kind: ErrTransport, Op: op, RequestID: requestID, Err: err}
	}
	if !isSuccess(resp.StatusCode()) {
		return VersionInfo{}, responseError(op, requestID, resp.StatusCode(), resp.Header("Content-Type"), resp.Body())
	}
	var info VersionInfo
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return VersionInfo{}, &Error{Kind: ErrService, Op: op, StatusCode: resp.StatusCode(), RequestID: requestID, Message: "malformed version payload", Err: err}
	}
	return info, nil
}

// submit posts one multipart request and unwraps the binary answer.
func (c *Client) submit(ctx context.Context, op, path string, fields map[string]string, filename string, source []byte) ([]byte, error) {
	if len(source) == 0 {
		return nil, invalidRequest(op, fmt.Errorf("%s is empty", partSource))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requestID := uuid.NewString()
	url := c.endpoint.URL(path)
	start := time.Now()
	c.log.DebugObj("furiosa request sending", "furiosa_request", map[string]any{
		"op":           op,
		"url":          url,
		"request_id":   requestID,
		"source_bytes": len(source),
	})

	resp, err := c.http.PostMultipart(ctx, url, c.headers(requestID), fields, httpclient.FilePart{
		Field:       partSource,
		FileName:    filenameOrDefault(filename),
		ContentType: octetStream,
		Data:        source,
	})
	if err != nil {
		c.log.ErrorObj("furiosa request failed", "furiosa_transport_error", map[string]any{
			"op":         op,
			"request_id": requestID,
			"error":      err.Error(),
		})
		return nil, &Error{Kind: ErrTransport, Op: op, RequestID: requestID, Err: err}
	}

	status := resp.StatusCode()
	if !isSuccess(status) {
		apiErr := responseError(op, requestID, status, resp.Header("Content-Type"), resp.Body())
		c.log.ErrorObj("furiosa request rejected", "furiosa_service_error", map[string]any{
			"op":         op,
			"request_id": requestID,
			"status":     status,
			"code":       apiErr.Code,
			"trace_id":   apiErr.TraceID,
			"message":    apiErr.Message,
		})
		return nil, apiErr
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, &Error{Kind: ErrService, Op: op, StatusCode: status, RequestID: requestID, Message: "empty artifact"}
	}
	c.log.InfoObj("furiosa request completed", "furiosa_result", map[string]any{
		"op":             op,
		"request_id":     requestID,
		"artifact_bytes": len(body),
		"elapsed_ms":     time.Since(start).Milliseconds(),
	})
	return body, nil
}

func (c *Client) headers(requestID string) map[string]string {
	return map[string]string{
		accessKeyIDHeader:     c.creds.AccessKeyID,
		secretAccessKeyHeader: c.creds.SecretAccessKey,
		requestIDHeader:       requestID,
	}
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
