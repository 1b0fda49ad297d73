package model

import "github.com/google/uuid"

// Test is the read-only description of an exam. Duration is in minutes.
// Instructions is markdown written by the test author.
type Test struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Subject      string    `json:"subject"`
	Duration     int       `json:"duration"`
	TotalMarks   float64   `json:"total_marks"`
	NumQuestions int       `json:"num_questions"`
	Description  string    `json:"description,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
}

// TestInstructions is shown to a taker before the test starts.
type TestInstructions struct {
	Test
	// SessionStatus is the state of the taker's session for the test, empty
	// when none was started yet.
	SessionStatus SessionStatus `json:"session_status,omitempty"`
}

// Resumable reports whether the taker already has a running session.
func (t TestInstructions) Resumable() bool {
	return t.SessionStatus == SessionStatusInProgress
}
