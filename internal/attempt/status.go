package attempt

// Status is the derived display state of one question.
type Status string

const (
	StatusNotVisited     Status = "not-visited"
	StatusNotAnswered    Status = "not-answered"
	StatusAnswered       Status = "answered"
	StatusMarked         Status = "marked"
	StatusAnsweredMarked Status = "answered-marked"
)

// Classify derives a question's status. It is total: every combination of
// inputs maps to exactly one of the five statuses.
func Classify(visited, answered, marked bool) Status {
	switch {
	case !visited:
		return StatusNotVisited
	case answered && marked:
		return StatusAnsweredMarked
	case marked:
		return StatusMarked
	case answered:
		return StatusAnswered
	default:
		return StatusNotAnswered
	}
}

// Tally counts questions per status.
type Tally struct {
	Answered       int `json:"answered"`
	NotAnswered    int `json:"not_answered"`
	Marked         int `json:"marked"`
	AnsweredMarked int `json:"answered_marked"`
	NotVisited     int `json:"not_visited"`
}

// Add counts one question.
func (t *Tally) Add(s Status) {
	switch s {
	case StatusAnswered:
		t.Answered++
	case StatusNotAnswered:
		t.NotAnswered++
	case StatusMarked:
		t.Marked++
	case StatusAnsweredMarked:
		t.AnsweredMarked++
	case StatusNotVisited:
		t.NotVisited++
	}
}

// Total is the number of questions counted.
func (t Tally) Total() int {
	return t.Answered + t.NotAnswered + t.Marked + t.AnsweredMarked + t.NotVisited
}

// Summarize tallies a palette.
func Summarize(palette []Status) Tally {
	var t Tally
	for _, s := range palette {
		t.Add(s)
	}
	return t
}
