package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/stemsi/exstem-attempt/internal/model"
)

func sampleInstructions() model.TestInstructions {
	return model.TestInstructions{Test: model.Test{
		ID:           uuid.New(),
		Name:         "JEE Mock 3",
		Subject:      "Physics",
		Duration:     180,
		NumQuestions: 75,
		TotalMarks:   300,
		Description:  "Full syllabus",
		Instructions: "1. Each correct answer carries 4 marks.\n2. One mark is deducted for a wrong answer.",
	}}
}

func pressInstructions(m Instructions, keys ...tea.KeyMsg) (Instructions, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(k)
		m = next.(Instructions)
	}
	return m, cmd
}

func TestInstructions_StartRequiresAgreement(t *testing.T) {
	m := NewInstructions(sampleInstructions())

	m, cmd := pressInstructions(m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || m.Accepted() {
		t.Fatal("started without agreeing")
	}
	if !strings.Contains(m.View(), "Please agree") {
		t.Fatal("no prompt to agree")
	}

	m, _ = pressInstructions(m, tea.KeyMsg{Type: tea.KeySpace})
	m, cmd = pressInstructions(m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.Accepted() || !isQuit(cmd) {
		t.Fatal("agreeing and pressing enter should start")
	}
}

func TestInstructions_AgreementToggles(t *testing.T) {
	m := NewInstructions(sampleInstructions())
	m, _ = pressInstructions(m, runes("a"), runes("a"), tea.KeyMsg{Type: tea.KeyEnter})
	if m.Accepted() {
		t.Fatal("second toggle should withdraw agreement")
	}
}

func TestInstructions_BackDoesNotStart(t *testing.T) {
	m := NewInstructions(sampleInstructions())
	m, cmd := pressInstructions(m, tea.KeyMsg{Type: tea.KeySpace}, runes("q"))
	if m.Accepted() || !isQuit(cmd) {
		t.Fatal("q should leave without starting")
	}
}

func TestInstructions_ViewShowsTestFacts(t *testing.T) {
	next, _ := NewInstructions(sampleInstructions()).Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	view := next.(Instructions).View()
	for _, want := range []string{"JEE Mock 3", "Full syllabus", "180 minutes", "Questions 75", "Total marks 300", "4 marks"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
