package attempt

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// AnswerStore maps question ids to the taker's current answer. It is what
// the UI displays and what gets persisted. Not safe for concurrent use; the
// Controller serializes access.
type AnswerStore struct {
	values map[uuid.UUID]model.Answer
}

// NewAnswerStore seeds a store from persisted answers. Empty values are
// dropped so they classify as unanswered.
func NewAnswerStore(seed map[uuid.UUID]model.Answer) *AnswerStore {
	s := &AnswerStore{values: make(map[uuid.UUID]model.Answer, len(seed))}
	for id, a := range seed {
		s.Set(id, a)
	}
	return s
}

// Set replaces the stored answer (last write wins). Setting an empty answer
// removes the key.
func (s *AnswerStore) Set(id uuid.UUID, a model.Answer) {
	if a.IsEmpty() {
		delete(s.values, id)
		return
	}
	s.values[id] = a
}

// Clear removes the answer entirely.
func (s *AnswerStore) Clear(id uuid.UUID) {
	delete(s.values, id)
}

// Get returns the stored answer and whether one is present.
func (s *AnswerStore) Get(id uuid.UUID) (model.Answer, bool) {
	a, ok := s.values[id]
	return a, ok
}

// Answered reports whether the question currently has a non-empty answer.
func (s *AnswerStore) Answered(id uuid.UUID) bool {
	_, ok := s.values[id]
	return ok
}

// ToggleOption flips one option of a multiple-correct answer and stores the
// rewritten set. Turning the last option off clears the answer.
func (s *AnswerStore) ToggleOption(id uuid.UUID, option int) model.Answer {
	cur, _ := s.Get(id)
	next := cur.Toggle(option)
	s.Set(id, next)
	return next
}

// Len returns the number of answered questions.
func (s *AnswerStore) Len() int { return len(s.values) }

// Snapshot returns a copy of the stored answers.
func (s *AnswerStore) Snapshot() map[uuid.UUID]model.Answer {
	out := make(map[uuid.UUID]model.Answer, len(s.values))
	for id, a := range s.values {
		out[id] = a
	}
	return out
}
