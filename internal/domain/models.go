package domain

import "time"

// Domain contains core models shared by the runner and the publishers.

// Operation names a service call.
type Operation string

const (
	OpCompile   Operation = "compile"
	OpCalibrate Operation = "calibrate"
	OpQuantize  Operation = "quantize"
	OpOptimize  Operation = "optimize"
)

// Job is one source model submitted to the service and where its artifact goes.
type Job struct {
	Operation  Operation `json:"operation"`
	SourcePath string    `json:"source_path"`
	OutputPath string    `json:"output_path"`
	TargetIR   string    `json:"target_ir,omitempty"`
}

// Outcome records how a Job ended.
type Outcome struct {
	Job           Job
	Digest        string
	ArtifactBytes int
	Cached        bool
	Elapsed       time.Duration
	Err           error
}

// Succeeded reports whether the job produced an artifact.
func (o Outcome) Succeeded() bool { return o.Err == nil }
