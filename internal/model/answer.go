package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// AnswerKind tells which variant of Answer is populated.
type AnswerKind uint8

const (
	AnswerNone AnswerKind = iota
	AnswerOption
	AnswerOptions
	AnswerNumeric
)

// Answer is the value a taker gives to one question. On the wire it is a JSON
// number (single option index), an array of indices (multiple_correct), a
// string literal (numerical) or null.
type Answer struct {
	Kind    AnswerKind
	Option  int
	Options []int
	Numeric string
}

// OptionAnswer selects a single option (mcq, true_false).
func OptionAnswer(index int) Answer {
	return Answer{Kind: AnswerOption, Option: index}
}

// OptionsAnswer selects a set of options. Indices are sorted and deduplicated.
func OptionsAnswer(indices ...int) Answer {
	set := make([]int, 0, len(indices))
	seen := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		set = append(set, i)
	}
	sort.Ints(set)
	return Answer{Kind: AnswerOptions, Options: set}
}

// NumericAnswer stores a numerical literal as typed, trimmed of spaces.
func NumericAnswer(literal string) Answer {
	return Answer{Kind: AnswerNumeric, Numeric: strings.TrimSpace(literal)}
}

// IsEmpty reports whether the answer counts as "not answered". A numerical
// "0" is an answer; an empty option set or blank literal is not.
func (a Answer) IsEmpty() bool {
	switch a.Kind {
	case AnswerOption:
		return false
	case AnswerOptions:
		return len(a.Options) == 0
	case AnswerNumeric:
		return a.Numeric == ""
	default:
		return true
	}
}

// Contains reports whether option index i is selected.
func (a Answer) Contains(i int) bool {
	switch a.Kind {
	case AnswerOption:
		return a.Option == i
	case AnswerOptions:
		for _, o := range a.Options {
			if o == i {
				return true
			}
		}
	}
	return false
}

// Toggle returns a new multiple-choice answer with index i flipped. The
// receiver is never modified.
func (a Answer) Toggle(i int) Answer {
	var next []int
	if a.Kind == AnswerOptions {
		next = make([]int, 0, len(a.Options)+1)
		for _, o := range a.Options {
			if o != i {
				next = append(next, o)
			}
		}
		if len(next) == len(a.Options) {
			next = append(next, i)
		}
	} else {
		next = []int{i}
	}
	return OptionsAnswer(next...)
}

// Equal compares two answers by value. Empty answers are all equal.
func (a Answer) Equal(b Answer) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return a.IsEmpty() && b.IsEmpty()
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case AnswerOption:
		return a.Option == b.Option
	case AnswerOptions:
		if len(a.Options) != len(b.Options) {
			return false
		}
		for i := range a.Options {
			if a.Options[i] != b.Options[i] {
				return false
			}
		}
		return true
	case AnswerNumeric:
		x, errX := strconv.ParseFloat(a.Numeric, 64)
		y, errY := strconv.ParseFloat(b.Numeric, 64)
		if errX != nil || errY != nil {
			return a.Numeric == b.Numeric
		}
		return math.Abs(x-y) <= 1e-9*math.Max(1, math.Abs(y))
	}
	return false
}

func (a Answer) String() string {
	switch a.Kind {
	case AnswerOption:
		return strconv.Itoa(a.Option)
	case AnswerOptions:
		parts := make([]string, len(a.Options))
		for i, o := range a.Options {
			parts[i] = strconv.Itoa(o)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case AnswerNumeric:
		return a.Numeric
	default:
		return ""
	}
}

// MarshalJSON implements json.Marshaler.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnswerOption:
		return json.Marshal(a.Option)
	case AnswerOptions:
		if a.Options == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Options)
	case AnswerNumeric:
		return json.Marshal(a.Numeric)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Answer{}
		return nil
	}

	switch data[0] {
	case '[':
		var set []int
		if err := json.Unmarshal(data, &set); err != nil {
			return fmt.Errorf("%w: option set: %v", ErrInvalidAnswer, err)
		}
		*a = OptionsAnswer(set...)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: literal: %v", ErrInvalidAnswer, err)
		}
		*a = NumericAnswer(s)
	default:
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: option index: %v", ErrInvalidAnswer, err)
		}
		*a = OptionAnswer(n)
	}
	return nil
}
