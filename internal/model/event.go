package model

import "time"

// Engine lifecycle event types.
const (
	EventTerminated = "terminated"
)

// Reasons attached to a terminated event.
const (
	ReasonProcessExited = "process exited"
	ReasonHostStopped   = "host stopped"
)

// NoExitCode is reported when the engine's exit status is unavailable.
const NoExitCode = -1

// EngineEvent describes a change in the engine process's own state.
type EngineEvent struct {
	Type     string    `json:"type"`
	ExitCode int       `json:"exit_code"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// EngineEventRecord is a persisted EngineEvent.
type EngineEventRecord struct {
	ID        string `json:"id"`
	ManagerID string `json:"manager_id"`
	EngineEvent
}
