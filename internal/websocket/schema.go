package websocket

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSave   Action = "save"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SaveRequest is sent by the client to persist one answer. It carries the
// same fields as the HTTP save endpoint.
type SaveRequest struct {
	Action Action `json:"action"`
	model.AnswerSave
}

// SubmitRequest is sent by the client to complete the session.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

// SavedResponse acknowledges a save. Revision echoes the request so a
// client can match acknowledgements to edits.
type SavedResponse struct {
	Event      Event     `json:"event"`
	QuestionID uuid.UUID `json:"question_id"`
	Revision   int64     `json:"revision"`
}

type SubmittedResponse struct {
	Event   Event          `json:"event"`
	Session *model.Session `json:"session"`
}

// ErrorResponse carries the same error codes as the HTTP envelope.
type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   string            `json:"code"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
