package service

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// GradeSession scores a completed attempt. A question is correct when the
// answer matches exactly: the same option, the same option set, or the same
// number. Wrong attempted answers lose the question's negative marks;
// unattempted questions score zero.
func GradeSession(questions []model.Question, answers map[uuid.UUID]model.Answer) model.GradeReport {
	report := model.GradeReport{Questions: make([]model.QuestionResult, 0, len(questions))}
	var totalMarks float64

	for _, q := range questions {
		totalMarks += q.Marks
		given := answers[q.ID]

		qr := model.QuestionResult{
			QuestionID:    q.ID,
			QuestionText:  q.Text,
			QuestionType:  q.Type,
			Options:       q.Options,
			StudentAnswer: given,
			CorrectAnswer: q.CorrectAnswer,
			Marks:         q.Marks,
		}

		switch {
		case given.IsEmpty():
			report.Summary.Unattempted++
		case given.Equal(q.CorrectAnswer):
			qr.IsCorrect = true
			qr.ScoreEarned = q.Marks
			report.Summary.Attempted++
			report.Summary.Correct++
		default:
			qr.ScoreEarned = -q.NegativeMarks
			report.Summary.Attempted++
			report.Summary.Incorrect++
		}

		report.Summary.Score += qr.ScoreEarned
		report.Questions = append(report.Questions, qr)
	}

	report.Summary.TotalQuestions = len(questions)
	report.Summary.Percentage = percentage(report.Summary.Score, totalMarks)
	return report
}

func percentage(score, total float64) string {
	if total <= 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", score/total*100)
}
