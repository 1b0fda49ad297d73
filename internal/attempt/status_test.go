package attempt

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		visited, answered, marked bool
		want                      Status
	}{
		{false, false, false, StatusNotVisited},
		{false, true, false, StatusNotVisited},
		{false, false, true, StatusNotVisited},
		{false, true, true, StatusNotVisited},
		{true, false, false, StatusNotAnswered},
		{true, true, false, StatusAnswered},
		{true, false, true, StatusMarked},
		{true, true, true, StatusAnsweredMarked},
	}
	for _, tt := range tests {
		got := Classify(tt.visited, tt.answered, tt.marked)
		if got != tt.want {
			t.Errorf("Classify(visited=%v, answered=%v, marked=%v) = %q, want %q",
				tt.visited, tt.answered, tt.marked, got, tt.want)
		}
	}
}

func TestSummarize_CountsSumToTotal(t *testing.T) {
	palette := []Status{
		StatusAnswered, StatusAnswered, StatusNotAnswered,
		StatusMarked, StatusAnsweredMarked, StatusNotVisited, StatusNotVisited,
	}
	got := Summarize(palette)
	want := Tally{Answered: 2, NotAnswered: 1, Marked: 1, AnsweredMarked: 1, NotVisited: 2}
	if got != want {
		t.Fatalf("Summarize = %+v, want %+v", got, want)
	}
	if got.Total() != len(palette) {
		t.Fatalf("Total = %d, want %d", got.Total(), len(palette))
	}
}

func TestAnswerStore_ToggleSequence(t *testing.T) {
	q := uuid.New()
	s := NewAnswerStore(nil)

	if got := s.ToggleOption(q, 1); !got.Equal(model.OptionsAnswer(1)) {
		t.Fatalf("after toggling 1: %v", got)
	}
	if got := s.ToggleOption(q, 2); !got.Equal(model.OptionsAnswer(1, 2)) {
		t.Fatalf("after toggling 2: %v", got)
	}
	if got := s.ToggleOption(q, 1); !got.Equal(model.OptionsAnswer(2)) {
		t.Fatalf("after toggling 1 again: %v", got)
	}
	s.ToggleOption(q, 2)
	if s.Answered(q) {
		t.Fatal("emptied set still counts as answered")
	}
}

func TestAnswerStore_NumericZeroIsAnswered(t *testing.T) {
	q := uuid.New()
	s := NewAnswerStore(nil)
	s.Set(q, model.NumericAnswer("0"))
	if !s.Answered(q) {
		t.Fatal("numeric 0 should count as answered")
	}
	s.Set(q, model.NumericAnswer("  "))
	if s.Answered(q) {
		t.Fatal("blank literal should clear the answer")
	}
}

func TestAnswerStore_ClearRemovesKey(t *testing.T) {
	q := uuid.New()
	s := NewAnswerStore(map[uuid.UUID]model.Answer{
		q:          model.OptionAnswer(0),
		uuid.New(): {},
	})
	if s.Len() != 1 {
		t.Fatalf("seeded Len = %d, want 1 (empty seed dropped)", s.Len())
	}
	s.Clear(q)
	if _, ok := s.Get(q); ok {
		t.Fatal("cleared answer still present")
	}
	if len(s.Snapshot()) != 0 {
		t.Fatal("snapshot not empty after clear")
	}
}
