// Package tui renders an exam attempt in the terminal.
//
// The Bubble Tea model is a thin shell over attempt.Controller: every key
// maps to one controller operation and every frame is drawn from a
// Controller.View snapshot. The controller owns the countdown, persistence,
// and submission; the model only forwards its notices to the screen.
//
// Keys:
//
//	←/→ h/l     previous / next question
//	1-9         select (or toggle, for multiple correct) an option
//	e           edit a numerical answer
//	g           jump to a question number
//	m           mark / unmark for review
//	c           clear the response
//	enter       save and next
//	s then y    submit
//	q           quit (the attempt stays open and can be resumed)
package tui
