package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/model"
)

const paletteColumns = 10

// View implements tea.Model.
func (m Model) View() string {
	switch m.screen {
	case screenGrading:
		return m.renderGrading()
	case screenResult:
		return m.renderResult()
	case screenFailed:
		return m.renderFailed()
	}
	if m.view.Total == 0 {
		return "Loading exam..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	switch m.screen {
	case screenConfirm:
		b.WriteString(m.renderConfirm())
	case screenLeave:
		b.WriteString(m.renderLeave())
	default:
		b.WriteString(m.renderQuestion())
	}
	b.WriteString("\n\n")
	b.WriteString(m.renderPalette())
	b.WriteString("\n")
	b.WriteString(m.renderSummary())
	b.WriteString("\n\n")
	b.WriteString(m.renderNotice())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	v := m.view
	title := v.Test.Name
	if v.Test.Subject != "" {
		title += " · " + v.Test.Subject
	}
	timer := m.styles.Timer
	if timerLow(v.Remaining) {
		timer = m.styles.TimerLow
	}
	right := timer.Render("⏱ " + attempt.FormatClock(v.Remaining))
	switch v.State {
	case attempt.StateSubmitting:
		right = m.styles.Warning.Render("submitting…") + "  " + right
	default:
		if v.Unsaved > 0 {
			right = m.styles.Muted.Render(fmt.Sprintf("saving %d…", v.Unsaved)) + "  " + right
		}
	}

	left := m.styles.Title.Render(title)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 2 {
		gap = 2
	}
	return m.styles.Header.Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderQuestion() string {
	v := m.view
	q := v.Question

	var b strings.Builder
	meta := fmt.Sprintf("Question %d of %d · %s · +%s", v.Index+1, v.Total, typeLabel(q.Type), formatMarks(q.Marks))
	if q.NegativeMarks > 0 {
		meta += " / -" + formatMarks(q.NegativeMarks)
	}
	if v.Marked {
		meta += " · " + lipgloss.NewStyle().Foreground(lipgloss.Color(colorMarked)).Render("marked for review")
	}
	b.WriteString(m.styles.Muted.Render(meta))
	b.WriteString("\n\n")
	b.WriteString(m.styles.Text.Render(q.Text))
	b.WriteString("\n\n")

	if q.Type == model.QuestionTypeNumerical {
		if m.mode == inputNumeric {
			b.WriteString(m.input.View())
		} else {
			b.WriteString(m.styles.Muted.Render("Your answer: "))
			if v.Answered {
				b.WriteString(m.styles.Selected.Render(v.Answer.Numeric))
			} else {
				b.WriteString(m.styles.Muted.Render("(press e to enter a number)"))
			}
		}
	} else {
		multi := q.Type == model.QuestionTypeMultipleCorrect
		for i, opt := range q.Options {
			chosen := v.Answer.Contains(i)
			line := fmt.Sprintf("%s %d. %s", optionMarker(multi, chosen), i+1, opt)
			if chosen {
				line = m.styles.Selected.Render(line)
			} else {
				line = m.styles.Text.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	if m.mode == inputJump {
		b.WriteString("\n")
		b.WriteString(m.input.View())
	}
	return m.styles.Box.Render(strings.TrimRight(b.String(), "\n"))
}

func optionMarker(multi, chosen bool) string {
	switch {
	case multi && chosen:
		return "[x]"
	case multi:
		return "[ ]"
	case chosen:
		return "(•)"
	default:
		return "( )"
	}
}

func (m Model) renderPalette() string {
	var rows []string
	var row []string
	for i, s := range m.view.Palette {
		row = append(row, paletteCell(i+1, s, i == m.view.Index))
		if len(row) == paletteColumns {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderSummary() string {
	t := m.view.Summary
	items := []struct {
		status attempt.Status
		label  string
		n      int
	}{
		{attempt.StatusAnswered, "Answered", t.Answered},
		{attempt.StatusNotAnswered, "Not answered", t.NotAnswered},
		{attempt.StatusMarked, "Marked", t.Marked},
		{attempt.StatusAnsweredMarked, "Answered & marked", t.AnsweredMarked},
		{attempt.StatusNotVisited, "Not visited", t.NotVisited},
	}
	parts := make([]string, len(items))
	for i, it := range items {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color(statusColors[it.status])).Render("■")
		parts[i] = fmt.Sprintf("%s %s %d", dot, it.label, it.n)
	}
	return m.styles.Muted.Render(strings.Join(parts, "   "))
}

func (m Model) renderConfirm() string {
	t := m.view.Summary
	lines := []string{
		m.styles.Title.Render("Submit exam?"),
		"",
		fmt.Sprintf("Answered:      %d", t.Answered+t.AnsweredMarked),
		fmt.Sprintf("Not answered:  %d", t.NotAnswered),
		fmt.Sprintf("Marked:        %d", t.Marked+t.AnsweredMarked),
		fmt.Sprintf("Not visited:   %d", t.NotVisited),
		"",
		m.styles.Muted.Render("You cannot change your answers after submitting."),
		m.styles.Accent.Render("y") + " submit   " + m.styles.Accent.Render("n") + " go back",
	}
	return m.styles.Box.BorderForeground(lipgloss.Color(colorWarning)).Render(strings.Join(lines, "\n"))
}

func (m Model) renderLeave() string {
	lines := []string{
		m.styles.Title.Render("Leave the exam?"),
		"",
		fmt.Sprintf("%d answer(s) are not saved yet and may be lost.", m.view.Unsaved),
		m.styles.Muted.Render("The timer keeps running while you are away."),
		"",
		m.styles.Accent.Render("y") + " leave   " + m.styles.Accent.Render("n") + " stay",
	}
	return m.styles.Box.BorderForeground(lipgloss.Color(colorWarning)).Render(strings.Join(lines, "\n"))
}

func (m Model) renderNotice() string {
	if m.notice == nil {
		return ""
	}
	n := m.notice
	switch n.Kind {
	case attempt.NoticeWarning:
		return m.styles.Warning.Render("⚠ " + n.Message)
	case attempt.NoticeTimeUp, attempt.NoticeSubmitFailed, attempt.NoticeSaveFailed:
		msg := n.Message
		if n.Err != nil && n.Kind != attempt.NoticeTimeUp {
			msg += ": " + n.Err.Error()
		}
		return m.styles.Danger.Render("✖ " + msg)
	default:
		return m.styles.Muted.Render(n.Message)
	}
}

func (m Model) renderFooter() string {
	if m.mode != inputNone {
		return m.styles.Footer.Render("enter confirm · esc cancel")
	}
	parts := make([]string, 0, len(m.keys.footerHelp()))
	for _, k := range m.keys.footerHelp() {
		h := k.Help()
		parts = append(parts, m.styles.Accent.Render(h.Key)+" "+h.Desc)
	}
	return m.styles.Footer.Render(strings.Join(parts, " · "))
}

func (m Model) renderGrading() string {
	return m.styles.Box.Render(
		m.styles.Success.Render("Exam submitted successfully!") + "\n\n" +
			m.spinner.View() + " Waiting for your result…\n\n" +
			m.styles.Footer.Render("q quit (the result stays available)"),
	)
}

func (m Model) renderFailed() string {
	msg := "Something went wrong"
	if m.failure != nil {
		msg = m.failure.Error()
	}
	return m.styles.Box.BorderForeground(lipgloss.Color(colorDanger)).Render(
		m.styles.Danger.Render(msg) + "\n\n" + m.styles.Footer.Render("q quit"),
	)
}

func (m Model) renderResult() string {
	if m.result == nil {
		return ""
	}
	return RenderResult(*m.result) + "\n" + m.styles.Footer.Render("q quit")
}

// RenderResult formats a graded result for the terminal.
func RenderResult(r model.Result) string {
	st := newStyles()
	s := r.Summary

	var b strings.Builder
	b.WriteString(st.Title.Render(r.Test.Name))
	b.WriteString("\n")
	b.WriteString(st.Success.Render(performanceMessage(s.Percentage)))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Score        %s / %s (%s%%)\n", formatMarks(s.Score), formatMarks(r.Test.TotalMarks), s.Percentage)
	fmt.Fprintf(&b, "Correct      %d\n", s.Correct)
	fmt.Fprintf(&b, "Incorrect    %d\n", s.Incorrect)
	fmt.Fprintf(&b, "Unattempted  %d\n", s.Unattempted)
	fmt.Fprintf(&b, "Attempted    %d of %d\n", s.Attempted, s.TotalQuestions)

	if len(r.Questions) > 0 {
		b.WriteString("\n")
	}
	for i, q := range r.Questions {
		mark := st.Danger.Render("✖")
		switch {
		case q.StudentAnswer.IsEmpty():
			mark = st.Muted.Render("–")
		case q.IsCorrect:
			mark = st.Success.Render("✔")
		}
		fmt.Fprintf(&b, "%s %2d. %s  %s\n", mark, i+1, q.QuestionText,
			st.Muted.Render(fmt.Sprintf("(%s)", formatMarks(q.ScoreEarned))))
		if !q.IsCorrect {
			fmt.Fprintf(&b, "       yours: %s · correct: %s\n", answerLabel(q.StudentAnswer), answerLabel(q.CorrectAnswer))
		}
	}
	return st.Box.Render(strings.TrimRight(b.String(), "\n"))
}
