// Package events contains the WebSocket event contracts pushed to dashboard clients.
package events

import (
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// MessageTypeAgendaUpdated is sent after every pipeline run, successful or not
	MessageTypeAgendaUpdated MessageType = "agenda.updated"

	MessageTypeConnect MessageType = "connect"
	MessageTypeError   MessageType = "error"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// WebSocketMessage represents a complete WebSocket message
type WebSocketMessage struct {
	BaseMessage
	Data interface{} `json:"data,omitempty"`
}

// AgendaUpdated describes the outcome of a run without carrying any appointment text
type AgendaUpdated struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"` // succeeded|empty|failed
	ErrorKind  string `json:"error_kind,omitempty"`
	Total      int    `json:"total"`
	Upcoming   int    `json:"upcoming"`
	Historical int    `json:"historical"`
	DurationMS int64  `json:"duration_ms"`
}
