package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/model"
)

func itoa(n int) string { return strconv.Itoa(n) }

// optionIndex maps a "1".."9" key to a zero-based option index.
func optionIndex(k string) (int, bool) {
	if len(k) != 1 || k[0] < '1' || k[0] > '9' {
		return 0, false
	}
	return int(k[0] - '1'), true
}

// optionLetter labels option i as A, B, C...
func optionLetter(i int) string {
	if i < 0 || i >= 26 {
		return strconv.Itoa(i + 1)
	}
	return string(rune('A' + i))
}

func parseQuestionNumber(s string, total int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > total {
		return 0, fmt.Errorf("enter a question number between 1 and %d", total)
	}
	return n, nil
}

func inputErrorMessage(err error) string {
	switch {
	case errors.Is(err, attempt.ErrWrongQuestionType):
		return "That action does not apply to this question"
	case errors.Is(err, attempt.ErrNotInProgress):
		return "The exam is no longer in progress"
	case errors.Is(err, model.ErrInvalidAnswer):
		return "Invalid answer: " + err.Error()
	default:
		return err.Error()
	}
}

// timerLow reports whether the countdown is inside the warning window.
func timerLow(remaining int) bool {
	return remaining <= int(attempt.WarningThreshold.Seconds())
}

// performanceMessage grades a percentage string as rendered in results.
func performanceMessage(percentage string) string {
	p, err := strconv.ParseFloat(strings.TrimSpace(percentage), 64)
	if err != nil {
		p = 0
	}
	switch {
	case p >= 90:
		return "Outstanding Performance!"
	case p >= 75:
		return "Great Job!"
	case p >= 50:
		return "Good Effort!"
	default:
		return "Keep Practicing!"
	}
}

// answerLabel renders an answer in the taker's terms: option letters for
// choice questions, the literal for numerical ones.
func answerLabel(a model.Answer) string {
	switch a.Kind {
	case model.AnswerOption:
		return optionLetter(a.Option)
	case model.AnswerOptions:
		if len(a.Options) == 0 {
			return "not answered"
		}
		parts := make([]string, len(a.Options))
		for i, o := range a.Options {
			parts[i] = optionLetter(o)
		}
		return strings.Join(parts, ", ")
	case model.AnswerNumeric:
		if a.Numeric == "" {
			return "not answered"
		}
		return a.Numeric
	default:
		return "not answered"
	}
}

func typeLabel(t model.QuestionType) string {
	switch t {
	case model.QuestionTypeMCQ:
		return "Single choice"
	case model.QuestionTypeMultipleCorrect:
		return "Multiple correct"
	case model.QuestionTypeTrueFalse:
		return "True / False"
	case model.QuestionTypeNumerical:
		return "Numerical"
	default:
		return string(t)
	}
}

func formatMarks(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
