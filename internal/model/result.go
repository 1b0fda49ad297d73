package model

import (
	"time"

	"github.com/google/uuid"
)

// GradeReport is what grading produces for a completed session.
type GradeReport struct {
	Summary   ResultSummary    `json:"summary"`
	Questions []QuestionResult `json:"questions"`
}

// ResultSummary aggregates a graded session.
type ResultSummary struct {
	TotalQuestions int     `json:"total_questions"`
	Attempted      int     `json:"attempted"`
	Unattempted    int     `json:"unattempted"`
	Correct        int     `json:"correct"`
	Incorrect      int     `json:"incorrect"`
	Score          float64 `json:"score"`
	Percentage     string  `json:"percentage"`
}

// QuestionResult is the graded outcome of one question.
type QuestionResult struct {
	QuestionID    uuid.UUID    `json:"question_id"`
	QuestionText  string       `json:"question_text"`
	QuestionType  QuestionType `json:"question_type"`
	Options       []string     `json:"options,omitempty"`
	StudentAnswer Answer       `json:"student_answer"`
	CorrectAnswer Answer       `json:"correct_answer"`
	IsCorrect     bool         `json:"is_correct"`
	Marks         float64      `json:"marks"`
	ScoreEarned   float64      `json:"score_earned"`
}

// Result is returned by result retrieval once a session has been graded.
type Result struct {
	Session   ResultSession    `json:"session"`
	Test      Test             `json:"test"`
	Summary   ResultSummary    `json:"summary"`
	Questions []QuestionResult `json:"questions"`
}

// ResultSession is the session part of a Result.
type ResultSession struct {
	ID        uuid.UUID  `json:"id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Score     float64    `json:"score"`
}
