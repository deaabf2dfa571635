package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/usages/internal/config"
	"github.com/pders01/usages/internal/editor"
	"github.com/pders01/usages/internal/finder"
	"github.com/pders01/usages/internal/storage"
	"github.com/pders01/usages/internal/usage"
)

const (
	drainInterval = 100 * time.Millisecond
	flashDuration = 600 * time.Millisecond
)

type App struct {
	config     *config.Config
	finder     *finder.Finder
	manager    *usage.Manager
	store      *storage.Store
	launcher   *editor.Launcher
	keyHandler *KeyHandler

	queryInput  textinput.Model
	resultsList list.Model
	historyList list.Model
	actionList  list.Model
	viewport    viewport.Model
	spinner     spinner.Model
	help        help.Model

	view         View
	previousView View

	ctx    context.Context
	cancel context.CancelFunc

	query     finder.Query
	session   *usage.Session
	sink      *usage.Sink
	searching bool
	// generation is bumped whenever the current search is stopped.
	generation int
	// retired holds the IDs of sessions the user has moved away from.
	retired map[string]bool
	draining  bool
	progress  string

	throttle *throttlePrompt
	choice   *actionChoice
	details  []string

	previewUsage   *usage.Usage
	loadingPreview bool
	flash          bool

	status     string
	statusKind StatusKind
	err        error

	width           int
	height          int
	glamourRenderer *glamour.TermRenderer
	rendererWidth   int

	initialQuery *finder.Query
}

type throttlePrompt struct {
	ctx   context.Context
	count int
	reply chan<- usage.Decision
}

type actionChoice struct {
	ctx     context.Context
	message string
	reply   chan<- int
}

// NewApp builds the model. store and launcher may be nil.
func NewApp(cfg *config.Config, f *finder.Finder, m *usage.Manager, store *storage.Store, launcher *editor.Launcher) *App {
	ApplyTheme(cfg.UI.Colors)

	resultsList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	resultsList.Title = "› usages"
	resultsList.SetShowStatusBar(true)
	resultsList.SetFilteringEnabled(true)
	resultsList.SetShowHelp(false)

	historyList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	historyList.Title = "› recent searches"
	historyList.SetShowStatusBar(false)
	historyList.SetFilteringEnabled(true)
	historyList.SetShowHelp(false)

	actionList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	actionList.SetShowStatusBar(false)
	actionList.SetFilteringEnabled(false)
	actionList.SetShowHelp(false)

	qi := textinput.New()
	qi.Placeholder = "Identifier to find..."
	qi.CharLimit = 256
	qi.Focus()

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(AccentColor)),
	)

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		config:      cfg,
		finder:      f,
		manager:     m,
		store:       store,
		launcher:    launcher,
		queryInput:  qi,
		resultsList: resultsList,
		historyList: historyList,
		actionList:  actionList,
		viewport:    viewport.New(0, 0),
		spinner:     sp,
		help:        help.New(),
		view:        ViewQuery,
		ctx:         ctx,
		cancel:      cancel,
		retired:     make(map[string]bool),
	}
	if f != nil {
		app.query = f.Query("")
	}

	app.keyHandler = NewKeyHandler(app, cfg)

	return app
}

// SetInitialQuery starts q as soon as the program runs.
func (a *App) SetInitialQuery(q finder.Query) {
	a.initialQuery = &q
	a.query = q
	a.queryInput.SetValue(q.Name)
}

func (a *App) getRenderer() (*glamour.TermRenderer, error) {
	wrap := a.config.UI.Preview.WordWrap
	if wrap <= 0 {
		wrap = 100
	}
	if w := a.width - 4; w >= 20 && w < wrap {
		wrap = w
	}

	if a.glamourRenderer == nil || a.rendererWidth != wrap {
		opts := []glamour.TermRendererOption{glamour.WithWordWrap(wrap)}
		switch style := a.config.UI.Preview.Style; style {
		case "", "auto":
			opts = append(opts, glamour.WithAutoStyle())
		default:
			opts = append(opts, glamour.WithStandardStyle(style))
		}
		r, err := glamour.NewTermRenderer(opts...)
		if err != nil {
			return nil, err
		}
		a.glamourRenderer = r
		a.rendererWidth = wrap
	}

	return a.glamourRenderer, nil
}

func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{tea.EnterAltScreen, textinput.Blink}
	if a.initialQuery != nil {
		cmds = append(cmds, a.startSearch(*a.initialQuery))
	}
	return tea.Batch(cmds...)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	a.expirePrompts()

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		return a.keyHandler.HandleKey(msg)

	case searchStartedMsg:
		if !a.adopt(msg) {
			msg.session.Cancel()
			a.retired[msg.session.ID()] = true
			return a, nil
		}
		if a.session != nil && a.session != msg.session {
			a.retired[a.session.ID()] = true
		}
		a.session = msg.session
		a.searching = true
		a.details = nil
		a.setStatus(MsgStarting, StatusInfo)
		return a, tea.Batch(a.waitSession(msg.session), a.spinner.Tick)

	case searchFinishedMsg:
		return a, a.finishSearch(msg)

	case resultsOpenedMsg:
		if !a.current(msg.sink) {
			return a, nil
		}
		a.openSink(msg.sink)
		if a.view == ViewQuery || a.view == ViewPreview {
			a.view = ViewResults
		}
		return a, a.scheduleDrain()

	case resultsShownMsg:
		if !a.current(msg.sink) {
			return a, nil
		}
		if msg.sink != a.sink {
			a.openSink(msg.sink)
		}
		a.drain()
		if msg.activate && a.view != ViewThrottle && a.view != ViewActions {
			a.view = ViewResults
		}
		return a, nil

	case drainTickMsg:
		a.drain()
		if a.sink != nil && a.sink.SearchInProgress() {
			return a, tea.Tick(drainInterval, func(time.Time) tea.Msg { return drainTickMsg{} })
		}
		a.draining = false
		return a, nil

	case notificationMsg:
		a.notify(msg.note)
		return a, nil

	case progressMsg:
		if msg.show {
			a.progress = msg.title
			return a, a.spinner.Tick
		}
		a.progress = ""
		return a, nil

	case spinner.TickMsg:
		if !a.busy() {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case throttlePromptMsg:
		if expired(msg.ctx) {
			msg.reply <- usage.DecisionAbort
			return a, nil
		}
		a.resolveThrottle(usage.DecisionAbort)
		a.throttle = &throttlePrompt{ctx: msg.ctx, count: msg.count, reply: msg.reply}
		a.pushView(ViewThrottle)
		return a, nil

	case chooseActionMsg:
		if expired(msg.ctx) {
			msg.reply <- -1
			return a, nil
		}
		a.resolveChoice(-1)
		a.choice = &actionChoice{ctx: msg.ctx, message: msg.message, reply: msg.reply}
		items := make([]list.Item, 0, len(msg.actions)+1)
		for i, act := range msg.actions {
			items = append(items, actionItem{index: i, name: act.Name})
		}
		items = append(items, actionItem{index: -1, name: "OK"})
		a.actionList.Title = "› " + msg.message
		a.actionList.SetItems(items)
		a.actionList.Select(0)
		a.pushView(ViewActions)
		return a, nil

	case navigateMsg:
		return a, a.openPreview(msg.usage, true)

	case previewRenderedMsg:
		if msg.usage == a.previewUsage {
			a.loadingPreview = false
			a.viewport.SetContent(msg.content)
			a.viewport.GotoTop()
		}
		return a, nil

	case flashEndMsg:
		if msg.usage == a.previewUsage {
			a.flash = false
		}
		return a, nil

	case historyLoadedMsg:
		items := make([]list.Item, len(msg.entries))
		for i, e := range msg.entries {
			items[i] = historyItem{entry: e}
		}
		a.historyList.SetItems(items)
		if len(items) == 0 {
			a.setStatus(MsgNoHistory, StatusInfo)
		} else {
			a.setStatus(fmt.Sprintf("%d recent searches", len(items)), StatusInfo)
		}
		return a, nil

	case historyDeletedMsg:
		a.historyList.RemoveItem(msg.index)
		a.setStatus("Search removed from history", StatusSuccess)
		return a, nil

	case editorFinishedMsg:
		if msg.err != nil {
			a.err = wrapErr("open in editor", msg.err)
		} else {
			a.setStatus(MsgOpened(a.launcher.Editor(), msg.usage.String()), StatusSuccess)
		}
		return a, nil

	case statusMsg:
		a.setStatus(msg.text, msg.kind)
		return a, nil

	case errorMsg:
		a.err = msg.err
		return a, nil
	}

	return a, nil
}

func (a *App) resize(width, height int) {
	a.width = width
	a.height = height
	body := max(height-4, 5)
	a.resultsList.SetSize(width, body)
	a.historyList.SetSize(width, body)
	a.actionList.SetSize(width, body)
	a.viewport.Width = width
	a.viewport.Height = max(body-2, 3)
	a.queryInput.Width = max(width-8, 10)
	a.help.Width = width
}

func (a *App) busy() bool {
	return a.searching || a.progress != ""
}

func (a *App) setStatus(text string, kind StatusKind) {
	a.status = text
	a.statusKind = kind
	a.err = nil
}

// pushView switches to a modal view, remembering where to return to.
func (a *App) pushView(v View) {
	if a.view != ViewThrottle && a.view != ViewActions {
		a.previousView = a.view
	}
	a.view = v
}

func (a *App) popView() {
	a.view = a.previousView
	if a.view == ViewQuery {
		a.queryInput.Focus()
	}
}

// adopt reports whether a started search should become the current one.
// A rerun must replace the search still on screen; a search from the query
// input must be the latest one asked for.
func (a *App) adopt(msg searchStartedMsg) bool {
	if msg.origin != nil {
		return msg.origin == a.session && !a.retired[msg.origin.ID()]
	}
	return msg.generation == a.generation
}

// current reports whether messages about sink may change the results view.
// Sinks of retired searches never do, and a running search keeps the view
// until it is stopped.
func (a *App) current(sink *usage.Sink) bool {
	if sink == a.sink {
		return true
	}
	if a.session != nil && sink.ID() == a.session.ID() {
		return !a.retired[sink.ID()]
	}
	if a.retired[sink.ID()] {
		return false
	}
	return a.sink == nil || a.sink.Closed() || !a.sink.SearchInProgress()
}

// stopSearch cancels the current search and retires it, so its late
// messages are ignored. A search still being started is dropped too.
func (a *App) stopSearch() {
	a.generation++
	if a.session != nil {
		a.session.Cancel()
		a.retired[a.session.ID()] = true
	}
	if a.sink != nil && a.sink.SearchInProgress() {
		a.sink.Close()
	}
}

// openSink makes sink the one the results view shows.
func (a *App) openSink(sink *usage.Sink) {
	a.sink = sink
	a.resultsList.ResetFilter()
	a.resultsList.SetItems([]list.Item{})
	a.resultsList.Title = "› " + usage.TargetNames(sink.Targets())
	if p := sink.Presentation(); p != nil && p.ScopeText != "" {
		a.resultsList.Title += " in " + p.ScopeText
	}
}

func (a *App) scheduleDrain() tea.Cmd {
	if a.draining {
		return nil
	}
	a.draining = true
	return tea.Tick(drainInterval, func(time.Time) tea.Msg { return drainTickMsg{} })
}

// drain moves newly visible usages from the sink into the list. It runs on
// the UI goroutine only.
func (a *App) drain() {
	if a.sink == nil {
		return
	}
	fresh := a.sink.Drain()
	if len(fresh) == 0 {
		return
	}
	items := a.resultsList.Items()
	for _, u := range fresh {
		items = append(items, usageItem{usage: u, base: a.query.Root})
	}
	a.resultsList.SetItems(items)
}

func (a *App) finishSearch(msg searchFinishedMsg) tea.Cmd {
	if msg.session != a.session {
		return nil
	}
	a.searching = false
	if msg.session != nil && a.retired[msg.session.ID()] {
		return nil
	}
	a.drain()

	res := msg.result
	switch res.Outcome {
	case usage.OutcomeResults:
		text := res.Summary()
		if n := len(res.LargeFiles); n > 0 {
			text += fmt.Sprintf(" • %d large files ignored (d: details)", n)
		}
		a.setStatus(text, StatusSuccess)
	case usage.OutcomeCancelled:
		a.setStatus(MsgCancelled, StatusWarn)
	case usage.OutcomeFailed:
		a.err = res.Err
	}
	return nil
}

func (a *App) notify(n usage.Notification) {
	kind := StatusInfo
	switch n.Kind {
	case usage.NotifyWarning:
		kind = StatusWarn
	case usage.NotifyError:
		kind = StatusError
	}
	text := n.Message()
	if n.HasLink(usage.LinkLargeFiles) {
		a.details = n.Details
		text += " (d: details)"
	}
	if n.HasLink(usage.LinkFindOptions) {
		text += " • " + a.keyHandler.keys.Search.Help().Key + ": change search"
	}
	a.setStatus(text, kind)
}

func expired(ctx context.Context) bool {
	return ctx != nil && ctx.Err() != nil
}

// expirePrompts takes down prompts whose search has stopped waiting.
func (a *App) expirePrompts() {
	if a.throttle != nil && expired(a.throttle.ctx) {
		a.resolveThrottle(usage.DecisionAbort)
	}
	if a.choice != nil && expired(a.choice.ctx) {
		a.resolveChoice(-1)
	}
}

func (a *App) resolveThrottle(d usage.Decision) {
	if a.throttle == nil {
		return
	}
	a.throttle.reply <- d
	a.throttle = nil
	if a.view == ViewThrottle {
		a.popView()
	}
}

func (a *App) resolveChoice(i int) {
	if a.choice == nil {
		return
	}
	a.choice.reply <- i
	a.choice = nil
	if a.view == ViewActions {
		a.popView()
	}
}

// shutdown answers pending prompts and cancels running searches.
func (a *App) shutdown() {
	a.resolveThrottle(usage.DecisionAbort)
	a.resolveChoice(-1)
	if a.manager != nil {
		a.manager.CancelAll()
	}
	a.cancel()
}

func (a *App) View() string {
	var content string
	bodyHeight := max(a.height-4, 5)

	switch a.view {
	case ViewQuery:
		toggles := []string{}
		if a.query.IgnoreCase {
			toggles = append(toggles, "ignore case")
		}
		if a.query.AllFiles {
			toggles = append(toggles, "all files")
		}
		subtitle := "in " + finder.DisplayPath(a.query.Root)
		if len(toggles) > 0 {
			subtitle += " • " + strings.Join(toggles, ", ")
		}
		content = renderCentered(a.width, bodyHeight, lipgloss.JoinVertical(
			lipgloss.Center,
			GetWelcomeMessage(),
			"",
			renderInputFrame(a.queryInput.View(), a.queryInput.Focused(), a.queryInput.Width),
			renderMuted(subtitle),
		))

	case ViewResults:
		if a.sink == nil || (len(a.resultsList.Items()) == 0 && a.searching) {
			content = renderCentered(a.width, bodyHeight, renderMuted("Waiting for results…"))
		} else {
			content = a.resultsList.View()
		}

	case ViewPreview:
		header := ""
		if u := a.previewUsage; u != nil {
			loc := relativePath(u.Path, a.query.Root) + fmt.Sprintf(":%d:%d", u.Line, u.Column)
			if a.flash {
				header = FlashStyle.Render(" " + loc + " ")
			} else {
				header = renderHeader(loc, strings.TrimSpace(u.Text), a.width)
			}
		}
		body := a.viewport.View()
		if a.loadingPreview {
			body = renderCentered(a.width, a.viewport.Height, renderMuted(MsgRendering))
		}
		content = lipgloss.JoinVertical(lipgloss.Top, header, "", body)

	case ViewThrottle:
		count := 0
		if a.throttle != nil {
			count = a.throttle.count
		}
		content = renderCentered(a.width, bodyHeight, lipgloss.JoinVertical(
			lipgloss.Center,
			StatusWarnStyle.Render("⚠ Too many usages"),
			"",
			lipgloss.NewStyle().Foreground(TextColor).Render(MsgTooMany(count)),
			"",
			renderHelp("c/enter: continue • a/esc: abort"),
		))

	case ViewActions:
		content = a.actionList.View()

	case ViewHistory:
		content = a.historyList.View()

	case ViewDetails:
		lines := append([]string{HeaderStyle.Render("› ignored files"), ""}, a.details...)
		content = lipgloss.NewStyle().
			Width(a.width).
			Height(bodyHeight).
			MaxHeight(bodyHeight).
			Render(strings.Join(lines, "\n"))
	}

	separator := SeparatorStyle.Render(strings.Repeat("─", max(a.width, 1)))
	return lipgloss.JoinVertical(lipgloss.Top, content, separator, a.statusLine(), a.help.View(a.keyHandler))
}

func (a *App) statusLine() string {
	var line string
	switch {
	case a.err != nil:
		line = ErrorMessageStyle.Render(fmt.Sprintf("✗ %v", a.err))
	case a.busy():
		text := a.progress
		if text == "" {
			text = MsgStarting
		}
		if a.sink != nil {
			text += " • " + MsgUsagesCount(a.sink.Count(), true)
		}
		line = a.spinner.View() + " " + StatusInfoStyle.Render(text)
	default:
		line = statusStyle(a.statusKind).Render(a.status)
	}
	style := StatusBarStyle
	if a.width > 0 {
		style = style.MaxWidth(a.width)
	}
	return style.Render(line)
}

func relativePath(path, base string) string {
	if base == "" {
		return path
	}
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

type usageItem struct {
	usage *usage.Usage
	base  string
}

func (i usageItem) Title() string {
	return PathStyle.Render(relativePath(i.usage.Path, i.base)) +
		LocationStyle.Render(fmt.Sprintf(":%d:%d", i.usage.Line, i.usage.Column))
}

func (i usageItem) Description() string {
	return strings.TrimSpace(i.usage.Text)
}

func (i usageItem) FilterValue() string {
	return relativePath(i.usage.Path, i.base) + " " + i.usage.Text
}

type historyItem struct {
	entry *storage.SearchEntry
}

func (i historyItem) Title() string {
	return fmt.Sprintf("%s (%s)", i.entry.Names(), i.entry.Outcome)
}

func (i historyItem) Description() string {
	parts := []string{MsgUsagesCount(i.entry.Count, false)}
	if i.entry.Scope != "" {
		parts = append(parts, i.entry.Scope)
	}
	parts = append(parts, i.entry.StartedAt.Format("Jan 2, 15:04"))
	return strings.Join(parts, " • ")
}

func (i historyItem) FilterValue() string { return i.entry.Names() }

type actionItem struct {
	index int
	name  string
}

func (i actionItem) Title() string       { return i.name }
func (i actionItem) Description() string { return "" }
func (i actionItem) FilterValue() string { return i.name }

type searchStartedMsg struct {
	session    *usage.Session
	origin     *usage.Session
	generation int
}

type searchFinishedMsg struct {
	session *usage.Session
	result  usage.Result
}

type drainTickMsg struct{}

type previewRenderedMsg struct {
	usage   *usage.Usage
	content string
}

type flashEndMsg struct {
	usage *usage.Usage
}

type historyLoadedMsg struct {
	entries []*storage.SearchEntry
}

type historyDeletedMsg struct {
	index int
}

type editorFinishedMsg struct {
	usage *usage.Usage
	err   error
}

type statusMsg struct {
	text string
	kind StatusKind
}

type errorMsg struct {
	err error
}
