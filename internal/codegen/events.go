package codegen

import "github.com/google/uuid"

// Event types emitted on the generation stream
const (
	EventProgress = "progress"
	EventArtifact = "artifact"
	EventError    = "error"
	EventDone     = "done"
)

// StreamEvent is one unit on the wire from a generation run to its caller.
// Exactly one terminal event (error or done) is emitted per run.
type StreamEvent struct {
	Type     string         `json:"type"`
	Message  string         `json:"message,omitempty"`
	Artifact *ArtifactEvent `json:"artifact,omitempty"`
	Stored   int            `json:"stored,omitempty"`
	Partial  bool           `json:"partial,omitempty"`
}

// ArtifactEvent carries a persisted artifact: the generated file name, its
// code and the component identity it was stored under.
type ArtifactEvent struct {
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	ComponentID uuid.UUID `json:"componentId"`
	Version     int       `json:"version"`
}

// EventSink abstracts the open response a run writes to. Write delivers one
// event to the caller; an error from Write means the caller is gone and the
// run should stop. Close is idempotent.
type EventSink interface {
	Write(event StreamEvent) error
	Close() error
}

// ProgressEvent builds a progress event with free-form status text.
func ProgressEvent(message string) StreamEvent {
	return StreamEvent{Type: EventProgress, Message: message}
}

// ErrorEvent builds the terminal error event.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}

// DoneEvent builds the terminal success event.
func DoneEvent(stored int, partial bool) StreamEvent {
	return StreamEvent{Type: EventDone, Stored: stored, Partial: partial}
}
