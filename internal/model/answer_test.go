package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestAnswer_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Answer
	}{
		{"null", `null`, Answer{}},
		{"single option", `2`, OptionAnswer(2)},
		{"option set is normalized", `[3,1,3]`, OptionsAnswer(1, 3)},
		{"empty set", `[]`, OptionsAnswer()},
		{"numeric literal", `" 4.5 "`, NumericAnswer("4.5")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Answer
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.in, err)
			}
			if got.Kind != tt.want.Kind || !got.Equal(tt.want) {
				t.Fatalf("Unmarshal(%s) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAnswer_UnmarshalRejectsGarbage(t *testing.T) {
	for _, in := range []string{`true`, `1.5`, `["a"]`, `{}`} {
		var a Answer
		err := json.Unmarshal([]byte(in), &a)
		if !errors.Is(err, ErrInvalidAnswer) {
			t.Errorf("Unmarshal(%s) error = %v, want ErrInvalidAnswer", in, err)
		}
	}
}

func TestAnswer_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		a    Answer
		want bool
	}{
		{"zero value", Answer{}, true},
		{"option zero", OptionAnswer(0), false},
		{"empty set", OptionsAnswer(), true},
		{"set", OptionsAnswer(0), false},
		{"numeric zero", NumericAnswer("0"), false},
		{"blank literal", NumericAnswer("   "), true},
	}
	for _, tt := range tests {
		if got := tt.a.IsEmpty(); got != tt.want {
			t.Errorf("%s: IsEmpty = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAnswer_ToggleDoesNotMutate(t *testing.T) {
	a := OptionsAnswer(1, 2)
	b := a.Toggle(1)
	if !a.Equal(OptionsAnswer(1, 2)) {
		t.Fatalf("receiver changed to %v", a)
	}
	if !b.Equal(OptionsAnswer(2)) {
		t.Fatalf("Toggle(1) = %v, want [2]", b)
	}
	if c := OptionAnswer(3).Toggle(0); !c.Equal(OptionsAnswer(0)) {
		t.Fatalf("toggle from non-set = %v", c)
	}
}

func TestAnswer_EqualNumeric(t *testing.T) {
	if !NumericAnswer("2.50").Equal(NumericAnswer("2.5")) {
		t.Fatal("2.50 should equal 2.5")
	}
	if NumericAnswer("2.5").Equal(NumericAnswer("2.6")) {
		t.Fatal("2.5 should not equal 2.6")
	}
	if OptionAnswer(1).Equal(OptionsAnswer(1)) {
		t.Fatal("different kinds compared equal")
	}
}

func TestAnswer_MarshalJSON(t *testing.T) {
	tests := []struct {
		a    Answer
		want string
	}{
		{Answer{}, `null`},
		{OptionAnswer(1), `1`},
		{OptionsAnswer(2, 0), `[0,2]`},
		{Answer{Kind: AnswerOptions}, `[]`},
		{NumericAnswer("-3"), `"-3"`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.a)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", tt.a, err)
		}
		if string(got) != tt.want {
			t.Errorf("Marshal(%v) = %s, want %s", tt.a, got, tt.want)
		}
	}
}

func TestQuestion_ValidateAnswer(t *testing.T) {
	mcq := Question{Type: QuestionTypeMCQ, Options: []string{"a", "b"}}
	multi := Question{Type: QuestionTypeMultipleCorrect, Options: []string{"a", "b", "c"}}
	num := Question{Type: QuestionTypeNumerical}

	tests := []struct {
		name    string
		q       Question
		a       Answer
		wantErr bool
	}{
		{"empty always valid", mcq, Answer{}, false},
		{"mcq in range", mcq, OptionAnswer(1), false},
		{"mcq out of range", mcq, OptionAnswer(2), true},
		{"mcq with set", mcq, OptionsAnswer(0), true},
		{"multi in range", multi, OptionsAnswer(0, 2), false},
		{"multi out of range", multi, OptionsAnswer(3), true},
		{"multi with single", multi, OptionAnswer(0), true},
		{"numeric ok", num, NumericAnswer("-1.25"), false},
		{"numeric garbage", num, NumericAnswer("1,5"), true},
		{"numeric with option", num, OptionAnswer(0), true},
		{"unknown type", Question{Type: "essay"}, NumericAnswer("1"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.ValidateAnswer(tt.a)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateAnswer = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAnswer) {
				t.Fatalf("error %v does not wrap ErrInvalidAnswer", err)
			}
		})
	}
}
