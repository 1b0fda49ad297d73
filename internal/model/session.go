package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates attempt session states as stored.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
)

// Session is one taker's single attempt at a test. StartTime is assigned by
// the database when the session is created and never changes.
type Session struct {
	ID              uuid.UUID            `json:"id"`
	TestID          uuid.UUID            `json:"test_id"`
	TakerID         int                  `json:"taker_id"`
	StartTime       time.Time            `json:"start_time"`
	EndTime         *time.Time           `json:"end_time,omitempty"`
	Status          SessionStatus        `json:"status"`
	Answers         map[uuid.UUID]Answer `json:"answers"`
	MarkedForReview []uuid.UUID          `json:"marked_for_review"`
	Score           *float64             `json:"score,omitempty"`
	// Revision is the highest answer revision the server has accepted.
	Revision int64 `json:"revision"`
}

// SessionDetails is everything the attempt client needs to resume a session.
type SessionDetails struct {
	Session   Session    `json:"session"`
	Test      Test       `json:"test"`
	Questions []Question `json:"questions"`
}

// StartSessionRequest is the payload for starting (or resuming) an attempt.
type StartSessionRequest struct {
	TestID uuid.UUID `json:"test_id" binding:"required"`
}

// AnswerSave is one persisted edit: the current answer of a question together
// with its review mark. Revision increases with every edit made by a client
// so that a late, older save never replaces a newer one.
type AnswerSave struct {
	QuestionID      uuid.UUID `json:"question_id" binding:"required"`
	Answer          Answer    `json:"answer"`
	MarkedForReview bool      `json:"marked_for_review"`
	Revision        int64     `json:"revision" binding:"min=1"`
}
