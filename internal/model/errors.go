package model

import "errors"

// Domain errors shared by the server and the attempt client. The HTTP layer
// maps them to response codes and the client maps the codes back, so
// errors.Is works on both sides of the wire.
var (
	ErrNotFound         = errors.New("not found")
	ErrSessionCompleted = errors.New("session already completed")
	ErrResultPending    = errors.New("result not graded yet")
	ErrInvalidAnswer    = errors.New("invalid answer")
	ErrNoQuestions      = errors.New("test has no questions")
)
