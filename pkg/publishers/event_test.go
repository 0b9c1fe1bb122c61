package publishers

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/furiosa-ai/furiosa-client-go/internal/domain"
	"github.com/furiosa-ai/furiosa-client-go/pkg/furiosa"
)

func sampleEvent() Event {
	return NewEvent("https://sandbox.example/api/v1", domain.Outcome{
		Job: domain.Job{
			Operation:  domain.OpCompile,
			SourcePath: "models/mnist.onnx",
			OutputPath: "models/mnist.enf",
			TargetIR:   "enf",
		},
		Digest:        "abc123",
		ArtifactBytes: 42,
		Elapsed:       1500 * time.Millisecond,
	})
}

func TestNewEventSucceeded(t *testing.T) {
	evt := sampleEvent()
	if evt.Status != StatusSucceeded {
		t.Fatalf("Status = %q", evt.Status)
	}
	if evt.ElapsedMs != 1500 {
		t.Fatalf("ElapsedMs = %d", evt.ElapsedMs)
	}
	if evt.ErrorKind != "" || evt.Error != "" {
		t.Fatalf("unexpected error fields: %+v", evt)
	}
	attrs := evt.Attributes()
	if attrs["operation"] != "compile" || attrs["status"] != StatusSucceeded {
		t.Fatalf("Attributes = %#v", attrs)
	}
}

func TestNewEventCarriesErrorKind(t *testing.T) {
	err := fmt.Errorf("job mnist: %w", &furiosa.Error{Kind: furiosa.ErrAuth, Op: "compile", StatusCode: 401})
	evt := NewEvent("https://sandbox.example/api/v1", domain.Outcome{
		Job: domain.Job{Operation: domain.OpQuantize},
		Err: err,
	})
	if evt.Status != StatusFailed {
		t.Fatalf("Status = %q", evt.Status)
	}
	if evt.ErrorKind != "auth" {
		t.Fatalf("ErrorKind = %q", evt.ErrorKind)
	}

	evt = NewEvent("", domain.Outcome{Err: errors.New("disk full")})
	if evt.ErrorKind != "unknown" {
		t.Fatalf("ErrorKind for plain error = %q", evt.ErrorKind)
	}
}
