package tui

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/usages/internal/finder"
	"github.com/pders01/usages/internal/storage"
	"github.com/pders01/usages/internal/usage"
)

// startSearch cancels the current search and starts q.
func (a *App) startSearch(q finder.Query) tea.Cmd {
	a.stopSearch()
	a.query = q
	ctx := a.ctx
	f := a.finder
	gen := a.generation
	return func() tea.Msg {
		if f == nil {
			return errorMsg{err: usage.ErrNoSource}
		}
		s, err := f.Find(ctx, q)
		if err != nil {
			return errorMsg{err: wrapErr("search", err)}
		}
		return searchStartedMsg{session: s, generation: gen}
	}
}

func (a *App) waitSession(s *usage.Session) tea.Cmd {
	ctx := a.ctx
	return func() tea.Msg {
		res, err := s.Wait(ctx)
		if err != nil {
			return nil
		}
		return searchFinishedMsg{session: s, result: res}
	}
}

// openPreview switches to the preview of u and renders it in the
// background. flash highlights the location briefly.
func (a *App) openPreview(u *usage.Usage, flash bool) tea.Cmd {
	if u == nil || !u.CanNavigate() {
		return nil
	}
	if a.view != ViewPreview {
		a.previousView = a.view
	}
	a.view = ViewPreview
	a.previewUsage = u
	a.loadingPreview = true
	a.flash = flash

	r, err := a.getRenderer()
	if err != nil {
		a.loadingPreview = false
		a.viewport.SetContent("Error initializing renderer: " + err.Error())
		return nil
	}

	contextLines := a.config.UI.Preview.ContextLines
	lang := ""
	if a.finder != nil {
		lang = a.finder.Predicate().Language(u.Path)
	}
	base := a.query.Root

	cmds := []tea.Cmd{func() tea.Msg {
		lines, first, err := readContext(u.Path, u.Line, contextLines)
		if err != nil {
			return previewRenderedMsg{usage: u, content: fmt.Sprintf("Cannot read %s: %v", u.Path, err)}
		}
		md := previewMarkdown(relativePath(u.Path, base), u, lines, first, lang)
		rendered, err := r.Render(md)
		if err != nil {
			return previewRenderedMsg{usage: u, content: md}
		}
		return previewRenderedMsg{usage: u, content: rendered}
	}}
	if flash {
		cmds = append(cmds, tea.Tick(flashDuration, func(time.Time) tea.Msg { return flashEndMsg{usage: u} }))
	}
	return tea.Batch(cmds...)
}

// readContext returns up to radius lines on each side of line (1-based)
// and the number of the first returned line.
func readContext(path string, line, radius int) ([]string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	first := max(line-radius, 1)
	last := line + radius
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		if n < first {
			continue
		}
		if n > last {
			break
		}
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, 0, err
	}
	if len(lines) == 0 {
		return nil, 0, fmt.Errorf("line %d is past the end of the file", line)
	}
	return lines, first, nil
}

// previewMarkdown renders the context as a fenced code block with a line
// gutter; the usage line is marked with an arrow.
func previewMarkdown(display string, u *usage.Usage, lines []string, first int, lang string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s:%d:%d\n\n", display, u.Line, u.Column)
	fmt.Fprintf(&b, "```%s\n", lang)
	width := len(fmt.Sprint(first + len(lines) - 1))
	for i, text := range lines {
		n := first + i
		marker := " "
		if n == u.Line {
			marker = "▶"
		}
		fmt.Fprintf(&b, "%s %*d │ %s\n", marker, width, n, text)
	}
	b.WriteString("```\n")
	return b.String()
}

func (a *App) loadHistory() tea.Cmd {
	store := a.store
	limit := a.config.Database.HistoryLimit
	return func() tea.Msg {
		if store == nil {
			return errorMsg{err: errors.New("history is not available")}
		}
		var entries []*storage.SearchEntry
		err := retryOperation(func() error {
			var err error
			entries, err = store.ListSearches(limit)
			return err
		})
		if err != nil {
			return errorMsg{err: wrapErr("load history", err)}
		}
		return historyLoadedMsg{entries: entries}
	}
}

// showSaved re-opens the usages recorded for entry. The results arrive
// through the presenter like those of a live search.
func (a *App) showSaved(entry *storage.SearchEntry) tea.Cmd {
	store, manager := a.store, a.manager
	return func() tea.Msg {
		usages, err := store.GetUsages(entry.ID)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && len(usages) == 0) {
			return statusMsg{text: "No saved usages for " + entry.Names(), kind: StatusWarn}
		}
		if err != nil {
			return errorMsg{err: wrapErr("load saved usages", err)}
		}
		p := usage.DefaultPresentation()
		p.UsagesWord = "usages of " + entry.Names()
		p.ScopeText = entry.Scope
		if _, err := manager.ShowUsages(entry.Targets, usages, p); err != nil {
			return errorMsg{err: wrapErr("show saved usages", err)}
		}
		return statusMsg{text: MsgUsagesCount(len(usages), false) + " from history", kind: StatusSuccess}
	}
}

func (a *App) deleteHistory(index int, entry *storage.SearchEntry) tea.Cmd {
	store := a.store
	return func() tea.Msg {
		if err := retryOperation(func() error { return store.DeleteSearch(entry.ID) }); err != nil {
			return errorMsg{err: wrapErr("delete search", err)}
		}
		return historyDeletedMsg{index: index}
	}
}

// openInEditor hands the terminal to terminal editors and starts the
// others in the background.
func (a *App) openInEditor(u *usage.Usage) tea.Cmd {
	if a.launcher == nil || a.launcher.Editor() == "" {
		return func() tea.Msg { return statusMsg{text: MsgNoEditor, kind: StatusWarn} }
	}
	cmd, terminal, err := a.launcher.Command(u)
	if err != nil {
		return func() tea.Msg { return errorMsg{err: wrapErr("open in editor", err)} }
	}
	if terminal {
		return tea.ExecProcess(cmd, func(err error) tea.Msg {
			return editorFinishedMsg{usage: u, err: err}
		})
	}
	launcher := a.launcher
	return func() tea.Msg {
		return editorFinishedMsg{usage: u, err: launcher.Open(u)}
	}
}

// retryOperation retries a database operation up to 3 times with exponential backoff
func retryOperation(operation func() error) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := operation(); err != nil {
			lastErr = err
			if i < maxRetries-1 {
				time.Sleep(baseDelay * time.Duration(1<<i))
			}
			continue
		}
		return nil
	}
	return lastErr
}
