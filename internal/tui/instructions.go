package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// instructionsChrome is the height taken by everything around the scrolling
// instructions body.
const instructionsChrome = 12

type instructionKeys struct {
	Agree  key.Binding
	Start  key.Binding
	Scroll key.Binding
	Quit   key.Binding
	Force  key.Binding
}

func defaultInstructionKeys() instructionKeys {
	return instructionKeys{
		Agree:  key.NewBinding(key.WithKeys(" ", "a"), key.WithHelp("space", "agree")),
		Start:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "start")),
		Scroll: key.NewBinding(key.WithKeys("up", "down", "k", "j", "pgup", "pgdown"), key.WithHelp("↑/↓", "scroll")),
		Quit:   key.NewBinding(key.WithKeys("q", "esc"), key.WithHelp("q", "back")),
		Force:  key.NewBinding(key.WithKeys("ctrl+c")),
	}
}

// Instructions is the pre-start screen: test facts, the author's
// instructions and the agreement the taker must give before starting.
type Instructions struct {
	info   model.TestInstructions
	keys   instructionKeys
	styles styles
	body   viewport.Model
	ready  bool
	width  int

	agreed   bool
	accepted bool
	notice   string
}

// NewInstructions creates the pre-start model.
func NewInstructions(info model.TestInstructions) Instructions {
	return Instructions{
		info:   info,
		keys:   defaultInstructionKeys(),
		styles: newStyles(),
		body:   viewport.New(80, 10),
	}
}

// Accepted reports whether the taker agreed and chose to start.
func (m Instructions) Accepted() bool { return m.accepted }

// Init implements tea.Model.
func (m Instructions) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Instructions) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		h := msg.Height - instructionsChrome
		if h < 3 {
			h = 3
		}
		m.body.Width = msg.Width - 4
		m.body.Height = h
		m.body.SetContent(wrapInstructions(m.info.Instructions, m.body.Width))
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Force, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Agree):
			m.agreed = !m.agreed
			m.notice = ""
			return m, nil
		case key.Matches(msg, m.keys.Start):
			if !m.agreed {
				m.notice = "Please agree to the instructions before starting"
				return m, nil
			}
			m.accepted = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.body, cmd = m.body.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Instructions) View() string {
	in := m.info
	var b strings.Builder

	title := in.Name
	if in.Subject != "" {
		title += " · " + in.Subject
	}
	b.WriteString(m.styles.Title.Render(title))
	b.WriteString("\n")
	if in.Description != "" {
		b.WriteString(m.styles.Muted.Render(in.Description))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.styles.Text.Render(fmt.Sprintf("Duration %d minutes   Questions %d   Total marks %s",
		in.Duration, in.NumQuestions, formatMarks(in.TotalMarks))))
	b.WriteString("\n\n")

	body := m.body.View()
	if !m.ready {
		body = wrapInstructions(in.Instructions, 76)
	}
	if strings.TrimSpace(in.Instructions) == "" {
		body = m.styles.Muted.Render("No special instructions for this test.")
	}
	b.WriteString(m.styles.Box.Render(body))
	b.WriteString("\n\n")

	box := "[ ]"
	if m.agreed {
		box = m.styles.Success.Render("[x]")
	}
	b.WriteString(box + " I have read and agree to the instructions")
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(m.styles.Warning.Render("⚠ " + m.notice))
	}
	b.WriteString("\n")

	help := []key.Binding{m.keys.Agree, m.keys.Start, m.keys.Scroll, m.keys.Quit}
	parts := make([]string, 0, len(help))
	for _, k := range help {
		h := k.Help()
		parts = append(parts, m.styles.Accent.Render(h.Key)+" "+h.Desc)
	}
	b.WriteString(m.styles.Footer.Render(strings.Join(parts, " · ")))
	return b.String()
}

// wrapInstructions word-wraps the markdown source. Markup is shown as
// written; headings and lists read fine as plain text.
func wrapInstructions(text string, width int) string {
	if width < 20 {
		width = 20
	}
	return lipgloss.NewStyle().Width(width).Render(strings.TrimSpace(text))
}

// RunInstructions shows the pre-start screen and reports whether the taker
// agreed to start.
func RunInstructions(ctx context.Context, info model.TestInstructions) (bool, error) {
	p := tea.NewProgram(NewInstructions(info), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return false, err
	}
	m, ok := final.(Instructions)
	return ok && m.Accepted(), nil
}
