package storage

import (
	"time"

	"github.com/pders01/usages/internal/usage"
)

// SearchEntry is one finished search in the history.
type SearchEntry struct {
	ID         string         `json:"id"`
	Targets    []usage.Target `json:"targets"`
	Scope      string         `json:"scope"`
	Count      int            `json:"count"`
	Outcome    string         `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	LargeFiles int            `json:"large_files"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
	Saved      int            `json:"saved"`
}

// Names joins the searched names for display.
func (e *SearchEntry) Names() string {
	return usage.TargetNames(e.Targets)
}

// EntryFromResult converts a finished search.
func EntryFromResult(res usage.Result) *SearchEntry {
	e := &SearchEntry{
		ID:         res.SessionID,
		Targets:    res.Targets,
		Scope:      res.Scope,
		Count:      res.Count,
		Outcome:    res.Outcome.String(),
		LargeFiles: len(res.LargeFiles),
		StartedAt:  res.StartedAt,
		Duration:   res.Duration,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}
