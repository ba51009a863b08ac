// Package stream implements the Push-Stream Session: the server side of
// the push-streaming protocol described in spec.md §6, transport-agnostic
// at the frame level (frames.go) and bound to gorilla/websocket at the
// transport level (conn.go) — mirroring the teacher's pkg/api/websocket.go
// WSMessage{Type, Data} envelope shape.
package stream

import "time"

// FrameType is the wire discriminator for a server→client frame.
type FrameType string

const (
	FrameConnected FrameType = "connected"
	FrameEvent     FrameType = "event"
	FrameState     FrameType = "state"
	FrameError     FrameType = "error"
)

// Frame is the envelope every server→client message is wrapped in.
type Frame struct {
	Type FrameType `json:"type"`
	Data any       `json:"data"`
}

// Close codes, per spec.md §6.
const (
	CloseNormal      = 1000 // task reached terminal status, clean close
	CloseIdleTimeout = 1001 // idle timeout or peer gone
	CloseNotFound    = 4404 // task_id does not exist
)

// ConnectedData is the payload of a "connected" frame.
type ConnectedData struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// ErrorData is the payload of an "error" frame.
type ErrorData struct {
	Message string `json:"message"`
}

// StateData is the payload of a "state" frame: the wire projection of
// eventmodel.TaskState.
type StateData struct {
	TaskID       string     `json:"task_id"`
	Status       string     `json:"status"`
	Progress     float64    `json:"progress"`
	CurrentStage string     `json:"current_stage,omitempty"`
	LastMessage  string     `json:"last_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
