package furiosa

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Error kinds. Use errors.Is(err, ErrTransport) and friends to classify a failure.
var (
	// ErrConfig reports missing or malformed local configuration such as credentials.
	ErrConfig = errors.New("configuration error")
	// ErrInvalidRequest reports a request rejected before anything was sent.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTransport reports that no response was received from the service.
	ErrTransport = errors.New("transport error")
	// ErrAuth reports that the service refused the credentials.
	ErrAuth = errors.New("authentication error")
	// ErrService reports that the service rejected or failed the request.
	ErrService = errors.New("service error")
)

var (
	// ErrNoCredentials reports that neither the environment nor the credential file holds both keys.
	ErrNoCredentials = errors.New(AccessKeyIDEnv + ", " + SecretAccessKeyEnv + " must be set")
	// ErrInvalidTargetIR reports a target IR name outside the supported set.
	ErrInvalidTargetIR = errors.New("unknown target ir")
)

const maxMessageBytes = 512

// Error is returned by every Client operation.
type Error struct {
	Kind       error
	Op         string
	StatusCode int
	// Code and TraceID come from the service error payload when present.
	Code      string
	TraceID   string
	RequestID string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d", e.StatusCode)
		if e.Code != "" {
			fmt.Fprintf(&b, ", code %s", e.Code)
		}
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error kind as well as the wrapped cause.
func (e *Error) Is(target error) bool { return target == e.Kind }

// KindOf returns the kind sentinel of err, or nil when err is not a client error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// KindName is a short label for err's kind, suitable for logs and events.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrConfig:
		return "config"
	case ErrInvalidRequest:
		return "invalid_request"
	case ErrTransport:
		return "transport"
	case ErrAuth:
		return "auth"
	case ErrService:
		return "service"
	default:
		if err == nil {
			return ""
		}
		return "unknown"
	}
}

func configError(op string, err error) *Error {
	return &Error{Kind: ErrConfig, Op: op, Err: err}
}

func invalidRequest(op string, err error) *Error {
	return &Error{Kind: ErrInvalidRequest, Op: op, Err: err}
}

// apiResponse is the error payload of the service.
type apiResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	TraceID   string `json:"trace_id,omitempty"`
}

// responseError turns a non-2xx response into an *Error.
func responseError(op, requestID string, status int, contentType string, body []byte) *Error {
	kind := ErrService
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		kind = ErrAuth
	}
	e := &Error{Kind: kind, Op: op, StatusCode: status, RequestID: requestID}

	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err == nil && (payload.Message != "" || payload.ErrorCode != "") {
		e.Code = payload.ErrorCode
		e.TraceID = payload.TraceID
		e.Message = payload.Message
		return e
	}
	if strings.Contains(strings.ToLower(contentType), "html") {
		if text := htmlText(body); text != "" {
			e.Message = text
			return e
		}
	}
	e.Message = bodySnippet(body)
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// htmlText reduces an HTML error page, typically from a gateway, to its title or visible text.
func htmlText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return truncate(title)
	}
	for _, sel := range []string{"h1", "body"} {
		if text := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " "); text != "" {
			return truncate(text)
		}
	}
	return ""
}

func bodySnippet(body []byte) string {
	return truncate(strings.TrimSpace(string(body)))
}

// truncate caps s at maxMessageBytes without splitting a UTF-8 sequence.
func truncate(s string) string {
	if len(s) <= maxMessageBytes {
		return s
	}
	cut := maxMessageBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
