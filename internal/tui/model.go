package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/model"
)

var _ Controller = (*attempt.Controller)(nil)

// Controller is the part of *attempt.Controller the UI drives.
type Controller interface {
	View() attempt.View
	Goto(i int) error
	Next() error
	Previous() error
	SelectOption(option int) error
	ToggleOption(option int) error
	SetNumeric(literal string) error
	ClearResponse() error
	ToggleMark() error
	SaveAndNext() error
	Submit(ctx context.Context) error
}

// ResultFetcher waits for a submitted session to be graded.
type ResultFetcher interface {
	WaitResult(ctx context.Context, sessionID uuid.UUID, every time.Duration) (*model.Result, error)
}

// Options configures the UI. Controller must already be loaded.
type Options struct {
	Context    context.Context
	Controller Controller
	Results    ResultFetcher
	Notices    <-chan attempt.Notice
	RenderTick time.Duration
	ResultPoll time.Duration
	ResultWait time.Duration
}

type screen int

const (
	screenAttempt screen = iota
	screenConfirm
	screenLeave
	screenGrading
	screenResult
	screenFailed
)

type inputMode int

const (
	inputNone inputMode = iota
	inputNumeric
	inputJump
)

// Model is the Bubble Tea model of one attempt.
type Model struct {
	ctx     context.Context
	ctrl    Controller
	results ResultFetcher
	notices <-chan attempt.Notice
	keys    keyMap
	styles  styles

	renderTick time.Duration
	resultPoll time.Duration
	resultWait time.Duration

	width  int
	height int

	screen  screen
	view    attempt.View
	notice  *attempt.Notice
	input   textinput.Model
	mode    inputMode
	spinner spinner.Model

	sessionID uuid.UUID
	result    *model.Result
	failure   error
	completed bool
}

// New creates the UI model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	renderTick := opts.RenderTick
	if renderTick <= 0 {
		renderTick = 250 * time.Millisecond
	}
	resultPoll := opts.ResultPoll
	if resultPoll <= 0 {
		resultPoll = 2 * time.Second
	}
	resultWait := opts.ResultWait
	if resultWait <= 0 {
		resultWait = 2 * time.Minute
	}

	in := textinput.New()
	in.CharLimit = 32

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:        ctx,
		ctrl:       opts.Controller,
		results:    opts.Results,
		notices:    opts.Notices,
		keys:       defaultKeyMap(),
		styles:     newStyles(),
		renderTick: renderTick,
		resultPoll: resultPoll,
		resultWait: resultWait,
		input:      in,
		spinner:    sp,
	}
	m.view = m.ctrl.View()
	m.sessionID = m.view.SessionID
	if m.view.State == attempt.StateCompleted {
		m.completed = true
		m.screen = screenGrading
	}
	return m
}

// Completed reports whether the attempt was submitted while the UI ran.
func (m Model) Completed() bool { return m.completed }

// SessionID is the id of the attempt shown.
func (m Model) SessionID() uuid.UUID { return m.sessionID }

// Result is the graded result, if it arrived before the UI exited.
func (m Model) Result() *model.Result { return m.result }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.renderTick), m.spinner.Tick}
	if m.notices != nil {
		cmds = append(cmds, waitNotice(m.notices))
	}
	if m.screen == screenGrading {
		cmds = append(cmds, m.fetchResult())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.view = m.ctrl.View()
		return m, tickCmd(m.renderTick)

	case noticeMsg:
		var cmd tea.Cmd
		m, cmd = m.handleNotice(attempt.Notice(msg))
		return m, tea.Batch(cmd, waitNotice(m.notices))

	case submitDoneMsg:
		m.view = m.ctrl.View()
		if msg.err != nil && !errors.Is(msg.err, attempt.ErrSubmitSuppressed) && m.screen == screenConfirm {
			m.screen = screenAttempt
		}
		return m, nil

	case resultMsg:
		if msg.err != nil {
			m.failure = msg.err
			m.screen = screenFailed
			return m, nil
		}
		m.result = msg.result
		m.screen = screenResult
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleNotice(n attempt.Notice) (Model, tea.Cmd) {
	m.view = m.ctrl.View()
	switch n.Kind {
	case attempt.NoticeCompleted:
		m.completed = true
		m.notice = nil
		m.mode = inputNone
		m.input.Blur()
		if n.SessionID != uuid.Nil {
			m.sessionID = n.SessionID
		}
		m.screen = screenGrading
		return m, m.fetchResult()
	case attempt.NoticeLoadFailed, attempt.NoticeFailed:
		m.failure = n.Err
		if m.failure == nil {
			m.failure = errors.New(n.Message)
		}
		m.screen = screenFailed
		return m, nil
	case attempt.NoticeTimeUp:
		m.mode = inputNone
		m.input.Blur()
		if m.screen == screenConfirm || m.screen == screenLeave {
			m.screen = screenAttempt
		}
	}
	m.notice = &n
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m, tea.Quit
	}

	switch m.screen {
	case screenResult, screenFailed:
		if key.Matches(msg, m.keys.Quit, m.keys.Cancel, m.keys.SaveNext) {
			return m, tea.Quit
		}
		return m, nil
	case screenGrading:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		return m, nil
	case screenConfirm:
		switch {
		case key.Matches(msg, m.keys.Confirm):
			return m, m.submit()
		case key.Matches(msg, m.keys.Cancel):
			m.screen = screenAttempt
		}
		return m, nil
	case screenLeave:
		switch {
		case key.Matches(msg, m.keys.Confirm):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Cancel, m.keys.Quit):
			m.screen = screenAttempt
		}
		return m, nil
	}

	if m.mode != inputNone {
		return m.handleInputKey(msg)
	}

	var err error
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.view = m.ctrl.View()
		if m.view.State == attempt.StateInProgress && m.view.Unsaved > 0 {
			m.screen = screenLeave
			return m, nil
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Prev):
		err = m.ctrl.Previous()
	case key.Matches(msg, m.keys.Next):
		err = m.ctrl.Next()
	case key.Matches(msg, m.keys.Option):
		err = m.chooseOption(msg.String())
	case key.Matches(msg, m.keys.Edit):
		if m.view.Question.Type != model.QuestionTypeNumerical {
			err = attempt.ErrWrongQuestionType
			break
		}
		m.beginInput(inputNumeric, m.view.Answer.Numeric, "answer: ")
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Jump):
		m.beginInput(inputJump, "", "go to question: ")
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Mark):
		err = m.ctrl.ToggleMark()
	case key.Matches(msg, m.keys.Clear):
		err = m.ctrl.ClearResponse()
	case key.Matches(msg, m.keys.SaveNext):
		err = m.ctrl.SaveAndNext()
	case key.Matches(msg, m.keys.Submit):
		if m.view.State == attempt.StateInProgress {
			m.screen = screenConfirm
		}
	}
	m.setErr(err)
	m.view = m.ctrl.View()
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.endInput()
		return m, nil
	case tea.KeyEnter:
		value := m.input.Value()
		mode := m.mode
		m.endInput()
		var err error
		switch mode {
		case inputNumeric:
			err = m.ctrl.SetNumeric(value)
		case inputJump:
			var n int
			n, err = parseQuestionNumber(value, m.view.Total)
			if err == nil {
				err = m.ctrl.Goto(n - 1)
			}
		}
		m.setErr(err)
		m.view = m.ctrl.View()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) beginInput(mode inputMode, value, prompt string) {
	m.mode = mode
	m.input.Prompt = prompt
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
}

func (m *Model) endInput() {
	m.mode = inputNone
	m.input.Blur()
	m.input.Reset()
}

func (m *Model) chooseOption(k string) error {
	idx, ok := optionIndex(k)
	if !ok {
		return nil
	}
	switch m.view.Question.Type {
	case model.QuestionTypeMultipleCorrect:
		return m.ctrl.ToggleOption(idx)
	case model.QuestionTypeNumerical:
		return attempt.ErrWrongQuestionType
	default:
		return m.ctrl.SelectOption(idx)
	}
}

func (m *Model) setErr(err error) {
	if err == nil {
		return
	}
	m.notice = &attempt.Notice{Kind: attempt.NoticeWarning, Message: inputErrorMessage(err), Err: err}
}

func (m Model) submit() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return submitDoneMsg{err: ctrl.Submit(ctx)}
	}
}

func (m Model) fetchResult() tea.Cmd {
	if m.results == nil {
		return tea.Quit
	}
	ctx, results, id := m.ctx, m.results, m.sessionID
	poll, wait := m.resultPoll, m.resultWait
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		res, err := results.WaitResult(ctx, id, poll)
		return resultMsg{result: res, err: err}
	}
}

// Messages

type tickMsg time.Time

type noticeMsg attempt.Notice

type submitDoneMsg struct{ err error }

type resultMsg struct {
	result *model.Result
	err    error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitNotice(ch <-chan attempt.Notice) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg(n)
	}
}

// Run starts the Bubble Tea program and returns the final model. A
// cancelled context ends it with the context's error.
func Run(opts Options) (Model, error) {
	ctx := opts.contextOrBackground()
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = ctx.Err()
	}
	if m, ok := final.(Model); ok {
		return m, err
	}
	return Model{}, err
}

func (o Options) contextOrBackground() context.Context {
	if o.Context == nil {
		return context.Background()
	}
	return o.Context
}
