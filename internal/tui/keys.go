package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Prev      key.Binding
	Next      key.Binding
	Option    key.Binding
	Edit      key.Binding
	Jump      key.Binding
	Mark      key.Binding
	Clear     key.Binding
	SaveNext  key.Binding
	Submit    key.Binding
	Confirm   key.Binding
	Cancel    key.Binding
	Quit      key.Binding
	ForceQuit key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Prev:      key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "prev")),
		Next:      key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "next")),
		Option:    key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "option")),
		Edit:      key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "enter number")),
		Jump:      key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "go to")),
		Mark:      key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mark")),
		Clear:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
		SaveNext:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save & next")),
		Submit:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "submit")),
		Confirm:   key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "confirm")),
		Cancel:    key.NewBinding(key.WithKeys("n", "N", "esc"), key.WithHelp("n", "cancel")),
		Quit:      key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		ForceQuit: key.NewBinding(key.WithKeys("ctrl+c")),
	}
}

// footerHelp lists the bindings shown under the question.
func (k keyMap) footerHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Option, k.Edit, k.Jump, k.Mark, k.Clear, k.SaveNext, k.Submit, k.Quit}
}
