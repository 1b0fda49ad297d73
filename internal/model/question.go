package model

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported answer formats.
type QuestionType string

const (
	QuestionTypeMCQ             QuestionType = "mcq"
	QuestionTypeMultipleCorrect QuestionType = "multiple_correct"
	QuestionTypeTrueFalse       QuestionType = "true_false"
	QuestionTypeNumerical       QuestionType = "numerical"
)

// Question is a single item of a test. CorrectAnswer never leaves the server.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	TestID        uuid.UUID    `json:"test_id"`
	Text          string       `json:"question_text"`
	Type          QuestionType `json:"question_type"`
	Options       []string     `json:"options,omitempty"`
	Marks         float64      `json:"marks"`
	NegativeMarks float64      `json:"negative_marks"`
	Order         int          `json:"order"`
	CorrectAnswer Answer       `json:"-"`
}

// ValidateAnswer checks that a non-empty answer has the shape the question
// type expects. Empty answers (cleared responses) are always accepted.
func (q Question) ValidateAnswer(a Answer) error {
	if a.IsEmpty() {
		return nil
	}

	switch q.Type {
	case QuestionTypeMCQ, QuestionTypeTrueFalse:
		if a.Kind != AnswerOption {
			return fmt.Errorf("%w: %s expects a single option", ErrInvalidAnswer, q.Type)
		}
		if a.Option < 0 || a.Option >= len(q.Options) {
			return fmt.Errorf("%w: option %d out of range", ErrInvalidAnswer, a.Option)
		}
	case QuestionTypeMultipleCorrect:
		if a.Kind != AnswerOptions {
			return fmt.Errorf("%w: %s expects an option set", ErrInvalidAnswer, q.Type)
		}
		for _, o := range a.Options {
			if o < 0 || o >= len(q.Options) {
				return fmt.Errorf("%w: option %d out of range", ErrInvalidAnswer, o)
			}
		}
	case QuestionTypeNumerical:
		if a.Kind != AnswerNumeric {
			return fmt.Errorf("%w: %s expects a numeric literal", ErrInvalidAnswer, q.Type)
		}
		if _, err := strconv.ParseFloat(a.Numeric, 64); err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrInvalidAnswer, a.Numeric)
		}
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrInvalidAnswer, q.Type)
	}
	return nil
}
