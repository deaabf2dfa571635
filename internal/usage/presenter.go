package usage

import (
	"context"
	"fmt"
	"strings"
)

// Decision is the user's answer to the too-many-usages prompt.
type Decision int

const (
	DecisionContinue Decision = iota
	DecisionAbort
)

func (d Decision) String() string {
	if d == DecisionAbort {
		return "abort"
	}
	return "continue"
}

// NotificationKind selects how a notification is styled.
type NotificationKind int

const (
	NotifyInfo NotificationKind = iota
	NotifyWarning
	NotifyError
)

// Link is a follow-up a notification offers.
type Link string

const (
	LinkFindOptions Link = "find-options"
	LinkLargeFiles  Link = "large-files"
)

// Notification is a transient, dismissible message. Details hold the
// expanded text behind LinkLargeFiles.
type Notification struct {
	Kind    NotificationKind
	Lines   []string
	Links   []Link
	Details []string
}

// Message joins the notification lines for single-line surfaces.
func (n Notification) Message() string {
	return strings.Join(n.Lines, " ")
}

// HasLink reports whether l is offered.
func (n Notification) HasLink(l Link) bool {
	for _, link := range n.Links {
		if link == l {
			return true
		}
	}
	return false
}

// Action is an alternative offered when nothing was found.
type Action struct {
	Name string
	Run  func(ctx context.Context) error
}

// Presenter surfaces search state to the user. Every method may be called
// from a search goroutine; implementations hop to their own goroutine
// before touching presentation state.
type Presenter interface {
	// OpenResults announces a freshly materialised sink while the search
	// is still running.
	OpenResults(sink *Sink)
	// ShowResults brings the finished results view forward. activate asks
	// for focus. ErrPresenterUnavailable signals the view cannot be shown.
	ShowResults(sink *Sink, activate bool) error
	Notify(n Notification)
	ShowProgress(title string)
	DismissProgress()
	// PromptTooMany blocks until the user decides or ctx is done.
	PromptTooMany(ctx context.Context, count int) Decision
	// ChooseAction offers actions next to a plain OK. It returns the index
	// of the chosen action, or -1 for OK or when ctx is done.
	ChooseAction(ctx context.Context, message string, actions []Action) int
	NavigateTo(u *Usage) error
}

const maxLargeFilesListed = 10

// largeFilesLine is the short notice appended to notifications.
func largeFilesLine(files []SkippedFile) string {
	if len(files) == 1 {
		return "(1 large file was ignored)"
	}
	return fmt.Sprintf("(%d large files were ignored)", len(files))
}

// LargeFilesDetails describes skipped files, listing at most ten.
func LargeFilesDetails(files []SkippedFile) []string {
	switch len(files) {
	case 0:
		return nil
	case 1:
		return []string{fmt.Sprintf("File %s is too large and cannot be scanned", presentableFile(files[0]))}
	}
	lines := []string{"Files"}
	for i, f := range files {
		if i == maxLargeFilesListed {
			lines = append(lines, fmt.Sprintf("  and %d more", len(files)-maxLargeFilesListed))
			break
		}
		lines = append(lines, "  "+presentableFile(f))
	}
	return append(lines, "are too large and cannot be scanned")
}

func presentableFile(f SkippedFile) string {
	return fmt.Sprintf("'%s' (%dMb)", f.Path, f.Size/(1024*1024))
}

// notification builds a notification, adding the large-files notice when
// the source skipped anything.
func notification(kind NotificationKind, large []SkippedFile, links []Link, lines ...string) Notification {
	n := Notification{Kind: kind, Lines: lines, Links: links}
	if len(large) > 0 {
		n.Lines = append(n.Lines, largeFilesLine(large))
		n.Links = append(n.Links, LinkLargeFiles)
		n.Details = LargeFilesDetails(large)
	}
	return n
}
