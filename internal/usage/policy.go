package usage

import (
	"fmt"
	"time"
)

// Outcome is the terminal presentation path of a search.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeSingle
	OutcomeResults
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not-found"
	case OutcomeSingle:
		return "single"
	case OutcomeResults:
		return "results"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is what the outcome policy looks at when a search ends.
type State struct {
	Count          int
	ShowPanelIfOne bool
	SinkExists     bool
	Cancelled      bool
	Failed         bool
}

// Decide picks the terminal path. A live sink always wins: whatever it
// holds is shown, even after cancellation or a source failure.
func Decide(st State) Outcome {
	switch {
	case st.SinkExists:
		return OutcomeResults
	case st.Failed:
		return OutcomeFailed
	case st.Cancelled:
		return OutcomeCancelled
	case st.Count == 0:
		return OutcomeNotFound
	case st.Count == 1 && !st.ShowPanelIfOne:
		return OutcomeSingle
	default:
		// more than one usage without a sink: the source stopped
		// mid-record, nothing presentable remains
		return OutcomeCancelled
	}
}

// Result describes a finished search.
type Result struct {
	SessionID  string        `json:"session_id"`
	Targets    []Target      `json:"targets"`
	Scope      string        `json:"scope,omitempty"`
	Count      int           `json:"count"`
	Outcome    Outcome       `json:"outcome"`
	Err        error         `json:"-"`
	LargeFiles []SkippedFile `json:"large_files,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// Summary is the one-line completion notice.
func (r Result) Summary() string {
	if r.Count == 0 {
		return "No Usages Found"
	}
	return fmt.Sprintf("%d Usage(s) Found", r.Count)
}
