// Package telemetry provides a JSONL event stream of connectivity
// recomputation jobs. Every job start, abort and completion is recorded as one
// structured JSON line so that runs can be audited and timed offline.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds identify the type of telemetry event.
const (
	KindJobStart    = "job_start"
	KindJobAborted  = "job_aborted"
	KindJobDone     = "job_done"
	KindDynamicDone = "dynamic_done"
)

// Event represents a single telemetry record. Each event carries a timestamp,
// a kind tag, the job it belongs to and optional structured data.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	JobID     string    `json:"job,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// JobStats is the payload of a finished job.
type JobStats struct {
	Items       int   `json:"items"`
	Clusters    int   `json:"clusters"`
	Nets        int   `json:"nets"`
	RebuiltNets int   `json:"rebuilt_nets"`
	Unconnected int   `json:"unconnected"`
	Conflicts   int   `json:"conflicts"`
	ElapsedMS   int64 `json:"elapsed_ms"`
}

// NewJobID returns a fresh identifier for a recomputation job.
func NewJobID() string {
	return uuid.NewString()
}

// Emitter writes telemetry events to a JSONL file. It is safe for concurrent
// use by multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewEmitter creates a new Emitter that writes JSONL events to the file at
// path. The file is created if it does not exist, or appended to if it does.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	return &Emitter{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

// Emit writes a single event to the JSONL file. It is safe for concurrent use.
// Calling Emit on a nil Emitter is a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// Job emits an event of kind for jobID stamped with the current time.
func (e *Emitter) Job(kind, jobID string, data any) error {
	return e.Emit(Event{Timestamp: time.Now().UTC(), Kind: kind, JobID: jobID, Data: data})
}

// Close flushes and closes the underlying file. Calling Close on a nil
// Emitter is a no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}
