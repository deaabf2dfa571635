package tui

import (
	"fmt"
	"strings"
)

// StatusKind selects the style of the status line.
type StatusKind int

const (
	StatusInfo StatusKind = iota
	StatusSuccess
	StatusWarn
	StatusError
)

// wrapErr prefixes err with the operation that failed.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Canonical short status messages used across the app.
const (
	MsgStarting      = "Starting search…"
	MsgCancelled     = "Search cancelled"
	MsgLoadingHist   = "Loading history…"
	MsgNoHistory     = "No searches yet"
	MsgNoEditor      = "No editor configured (set $EDITOR or editor.default)"
	MsgLoadingSaved  = "Loading saved results…"
	MsgRendering     = "Rendering preview…"
	MsgNothingToOpen = "Nothing selected"
)

func MsgUsagesCount(n int, searching bool) string {
	word := "usages"
	if n == 1 {
		word = "usage"
	}
	if searching {
		return fmt.Sprintf("%d %s so far…", n, word)
	}
	return fmt.Sprintf("%d %s", n, word)
}

func MsgTooMany(count int) string {
	return fmt.Sprintf("%d usages found so far. Continue searching?", count)
}

func MsgOpened(editor, location string) string {
	return fmt.Sprintf("Opened %s in %s", strings.TrimSpace(location), editor)
}
