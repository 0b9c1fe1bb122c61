package publishers

import (
	"time"

	"github.com/furiosa-ai/furiosa-client-go/internal/domain"
	"github.com/furiosa-ai/furiosa-client-go/pkg/furiosa"
)

// Event statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Event represents the payload published downstream once a job finishes.
type Event struct {
	Job           domain.Job `json:"job"`
	Endpoint      string     `json:"endpoint"`
	Digest        string     `json:"digest,omitempty"`
	Status        string     `json:"status"`
	ArtifactBytes int        `json:"artifact_bytes"`
	Cached        bool       `json:"cached"`
	ErrorKind     string     `json:"error_kind,omitempty"`
	Error         string     `json:"error,omitempty"`
	ElapsedMs     int64      `json:"elapsed_ms"`
	CompletedAt   time.Time  `json:"completed_at"`
}

// NewEvent constructs an Event for the given job outcome.
func NewEvent(endpoint string, out domain.Outcome) Event {
	evt := Event{
		Job:           out.Job,
		Endpoint:      endpoint,
		Digest:        out.Digest,
		Status:        StatusSucceeded,
		ArtifactBytes: out.ArtifactBytes,
		Cached:        out.Cached,
		ElapsedMs:     out.Elapsed.Milliseconds(),
		CompletedAt:   time.Now().UTC(),
	}
	if out.Err != nil {
		evt.Status = StatusFailed
		evt.ErrorKind = furiosa.KindName(out.Err)
		evt.Error = out.Err.Error()
	}
	return evt
}

// Attributes are the message attributes queue-style sinks attach to an event.
func (e Event) Attributes() map[string]string {
	return map[string]string{
		"operation": string(e.Job.Operation),
		"status":    e.Status,
	}
}
