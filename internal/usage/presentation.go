package usage

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultThrottleThreshold = 1000
	DefaultThrottleWait      = time.Second
	DefaultProgressDelay     = 300 * time.Millisecond
)

// Presentation configures how one search is presented.
type Presentation struct {
	// UsagesWord names what is searched for, e.g. "usages of Foo".
	UsagesWord string
	// ScopeText names where it is searched, e.g. "project files".
	ScopeText string

	ShowPanelIfOne      bool
	ShowNotFoundMessage bool

	// ThrottleThreshold is the count above which the too-many prompt is
	// shown; zero disables it.
	ThrottleThreshold int
	ThrottleWait      time.Duration
	ProgressDelay     time.Duration

	NotFoundActions []Action

	OnResultsCreated func(sink *Sink)
	OnFinished       func(res Result)
}

func DefaultPresentation() *Presentation {
	return &Presentation{
		UsagesWord:          "usages",
		ShowNotFoundMessage: true,
		ThrottleThreshold:   DefaultThrottleThreshold,
		ThrottleWait:        DefaultThrottleWait,
		ProgressDelay:       DefaultProgressDelay,
	}
}

func (p *Presentation) usagesWord() string {
	if p.UsagesWord == "" {
		return "usages"
	}
	return p.UsagesWord
}

// ProgressTitle is the label of a running search.
func ProgressTitle(p *Presentation) string {
	if p.ScopeText == "" {
		return "Searching for " + capitalize(p.usagesWord())
	}
	return fmt.Sprintf("Searching for %s in %s", capitalize(p.usagesWord()), p.ScopeText)
}

// NotFoundMessage is shown when a search found nothing.
func NotFoundMessage(p *Presentation) string {
	word := decapitalize(p.usagesWord())
	if p.ScopeText == "" {
		return "No " + word + " found"
	}
	return fmt.Sprintf("No %s found in %s", word, p.ScopeText)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func decapitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
