package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/usages/internal/config"
	"github.com/pders01/usages/internal/usage"
)

type keyMap struct {
	Quit        key.Binding
	Search      key.Binding
	Open        key.Binding
	Cancel      key.Binding
	History     key.Binding
	Back        key.Binding
	Help        key.Binding
	Preview     key.Binding
	Details     key.Binding
	Delete      key.Binding
	Continue    key.Binding
	Abort       key.Binding
	Submit      key.Binding
	ToggleCase  key.Binding
	ToggleFiles key.Binding
}

func newKeyMap(cfg *config.Config) keyMap {
	mod := cfg.Keys.Modifier + "+"
	b := cfg.Keys.Bindings
	return keyMap{
		Quit:        key.NewBinding(key.WithKeys(b.Quit, "ctrl+c"), key.WithHelp(b.Quit, "quit")),
		Search:      key.NewBinding(key.WithKeys(mod+b.Search), key.WithHelp(mod+b.Search, "find")),
		Open:        key.NewBinding(key.WithKeys(mod+b.Open), key.WithHelp(mod+b.Open, "open in editor")),
		Cancel:      key.NewBinding(key.WithKeys(mod+b.Cancel), key.WithHelp(mod+b.Cancel, "cancel search")),
		History:     key.NewBinding(key.WithKeys(mod+b.History), key.WithHelp(mod+b.History, "history")),
		Back:        key.NewBinding(key.WithKeys(b.Back), key.WithHelp(b.Back, "back")),
		Help:        key.NewBinding(key.WithKeys(b.Help), key.WithHelp(b.Help, "more")),
		Preview:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "preview")),
		Details:     key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "ignored files")),
		Delete:      key.NewBinding(key.WithKeys("delete"), key.WithHelp("del", "forget")),
		Continue:    key.NewBinding(key.WithKeys("c", "y", "enter"), key.WithHelp("c", "continue")),
		Abort:       key.NewBinding(key.WithKeys("a", "n", b.Back), key.WithHelp("a", "abort")),
		Submit:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "search")),
		ToggleCase:  key.NewBinding(key.WithKeys(mod+"t"), key.WithHelp(mod+"t", "ignore case")),
		ToggleFiles: key.NewBinding(key.WithKeys(mod+"g"), key.WithHelp(mod+"g", "all files")),
	}
}

type KeyHandler struct {
	app         *App
	config      *config.Config
	keys        keyMap
	modifierKey string
	showAll     bool
}

func NewKeyHandler(app *App, cfg *config.Config) *KeyHandler {
	return &KeyHandler{
		app:         app,
		config:      cfg,
		keys:        newKeyMap(cfg),
		modifierKey: cfg.Keys.Modifier + "+",
	}
}

func (kh *KeyHandler) HandleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	kh.app.err = nil

	if kh.isInTextInputMode() {
		return kh.handleTextInputMode(msg)
	}

	if model, cmd, handled := kh.handleCustomKeys(msg); handled {
		return model, cmd
	}

	return kh.delegateToCharm(msg)
}

func (kh *KeyHandler) isInTextInputMode() bool {
	switch kh.app.view {
	case ViewQuery:
		return kh.app.queryInput.Focused()
	case ViewResults:
		return kh.app.resultsList.FilterState() == list.Filtering
	case ViewHistory:
		return kh.app.historyList.FilterState() == list.Filtering
	default:
		return false
	}
}

func (kh *KeyHandler) handleTextInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a := kh.app
	if msg.String() == "ctrl+c" {
		return kh.quit()
	}

	switch a.view {
	case ViewResults:
		var cmd tea.Cmd
		a.resultsList, cmd = a.resultsList.Update(msg)
		return a, cmd
	case ViewHistory:
		var cmd tea.Cmd
		a.historyList, cmd = a.historyList.Update(msg)
		return a, cmd
	}

	switch {
	case key.Matches(msg, kh.keys.Back):
		return kh.navigateBack()
	case key.Matches(msg, kh.keys.Submit):
		return kh.submitQuery()
	case key.Matches(msg, kh.keys.ToggleCase):
		a.query.IgnoreCase = !a.query.IgnoreCase
		return a, nil
	case key.Matches(msg, kh.keys.ToggleFiles):
		a.query.AllFiles = !a.query.AllFiles
		return a, nil
	case key.Matches(msg, kh.keys.History):
		return kh.openHistory()
	}

	var cmd tea.Cmd
	a.queryInput, cmd = a.queryInput.Update(msg)
	return a, cmd
}

func (kh *KeyHandler) submitQuery() (tea.Model, tea.Cmd) {
	a := kh.app
	name := sanitizeQuery(a.queryInput.Value())
	if name == "" {
		return a, nil
	}
	a.queryInput.SetValue(name)
	q := a.query
	q.Name = name
	return a, a.startSearch(q)
}

// handleCustomKeys handles only our custom action keys
func (kh *KeyHandler) handleCustomKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	a := kh.app

	// Modal prompts answer before any global key.
	switch a.view {
	case ViewThrottle:
		return kh.handleThrottleKeys(msg)
	case ViewActions:
		return kh.handleActionKeys(msg)
	}

	switch {
	case key.Matches(msg, kh.keys.Quit):
		model, cmd := kh.quit()
		return model, cmd, true
	case key.Matches(msg, kh.keys.Back):
		model, cmd := kh.navigateBack()
		return model, cmd, true
	case key.Matches(msg, kh.keys.Search):
		model, cmd := kh.enterQueryMode()
		return model, cmd, true
	case key.Matches(msg, kh.keys.History):
		model, cmd := kh.openHistory()
		return model, cmd, true
	case key.Matches(msg, kh.keys.Cancel):
		if a.session != nil && a.searching {
			a.session.Cancel()
		}
		return a, nil, true
	case key.Matches(msg, kh.keys.Help):
		kh.showAll = !kh.showAll
		a.help.ShowAll = kh.showAll
		return a, nil, true
	}

	switch a.view {
	case ViewResults:
		return kh.handleResultsKeys(msg)
	case ViewPreview:
		if key.Matches(msg, kh.keys.Open) && a.previewUsage != nil {
			return a, a.openInEditor(a.previewUsage), true
		}
	case ViewHistory:
		return kh.handleHistoryKeys(msg)
	}
	return a, nil, false
}

func (kh *KeyHandler) handleResultsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	a := kh.app
	switch {
	case key.Matches(msg, kh.keys.Preview):
		if i, ok := a.resultsList.SelectedItem().(usageItem); ok {
			return a, a.openPreview(i.usage, false), true
		}
		return a, nil, true
	case key.Matches(msg, kh.keys.Open):
		if i, ok := a.resultsList.SelectedItem().(usageItem); ok {
			return a, a.openInEditor(i.usage), true
		}
		a.setStatus(MsgNothingToOpen, StatusInfo)
		return a, nil, true
	case key.Matches(msg, kh.keys.Details):
		if len(a.details) > 0 {
			a.previousView = a.view
			a.view = ViewDetails
		}
		return a, nil, true
	}
	return a, nil, false
}

func (kh *KeyHandler) handleHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	a := kh.app
	i, ok := a.historyList.SelectedItem().(historyItem)
	switch {
	case key.Matches(msg, kh.keys.Preview):
		if !ok {
			return a, nil, true
		}
		a.stopSearch()
		a.setStatus(MsgLoadingSaved, StatusInfo)
		return a, a.showSaved(i.entry), true
	case key.Matches(msg, kh.keys.Delete):
		if !ok {
			return a, nil, true
		}
		return a, a.deleteHistory(a.historyList.Index(), i.entry), true
	}
	return a, nil, false
}

func (kh *KeyHandler) handleThrottleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	a := kh.app
	switch {
	case msg.String() == "ctrl+c":
		model, cmd := kh.quit()
		return model, cmd, true
	case key.Matches(msg, kh.keys.Continue):
		a.resolveThrottle(usage.DecisionContinue)
	case key.Matches(msg, kh.keys.Abort):
		a.resolveThrottle(usage.DecisionAbort)
	}
	return a, nil, true
}

func (kh *KeyHandler) handleActionKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	a := kh.app
	switch {
	case msg.String() == "ctrl+c":
		model, cmd := kh.quit()
		return model, cmd, true
	case key.Matches(msg, kh.keys.Back):
		a.resolveChoice(-1)
		return a, nil, true
	case msg.String() == "enter":
		choice := -1
		if i, ok := a.actionList.SelectedItem().(actionItem); ok {
			choice = i.index
		}
		a.resolveChoice(choice)
		if choice >= 0 {
			a.setStatus(MsgStarting, StatusInfo)
		}
		return a, nil, true
	}
	var cmd tea.Cmd
	a.actionList, cmd = a.actionList.Update(msg)
	return a, cmd, true
}

// delegateToCharm lets Charm handle all keys we don't intercept
func (kh *KeyHandler) delegateToCharm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a := kh.app
	var cmd tea.Cmd

	switch a.view {
	case ViewResults:
		a.resultsList, cmd = a.resultsList.Update(msg)
	case ViewHistory:
		a.historyList, cmd = a.historyList.Update(msg)
	case ViewPreview:
		a.viewport, cmd = a.viewport.Update(msg)
	case ViewQuery:
		a.queryInput.Focus()
		a.queryInput, cmd = a.queryInput.Update(msg)
	}
	return a, cmd
}

func (kh *KeyHandler) quit() (tea.Model, tea.Cmd) {
	kh.app.shutdown()
	return kh.app, tea.Quit
}

// navigateBack implements smart back navigation
func (kh *KeyHandler) navigateBack() (tea.Model, tea.Cmd) {
	a := kh.app
	switch a.view {
	case ViewQuery:
		if a.sink != nil {
			a.view = ViewResults
			a.queryInput.Blur()
			return a, nil
		}
		return kh.quit()

	case ViewResults:
		if a.sink != nil && a.sink.SearchInProgress() {
			a.sink.Close()
		}
		return kh.enterQueryMode()

	case ViewPreview:
		a.previewUsage = nil
		a.flash = false
		if a.sink != nil {
			a.view = ViewResults
		} else {
			a.view = a.previousView
		}
		if a.view == ViewQuery {
			a.queryInput.Focus()
		}
		return a, nil

	case ViewHistory, ViewDetails:
		a.popView()
		return a, nil

	default:
		return kh.quit()
	}
}

func (kh *KeyHandler) enterQueryMode() (tea.Model, tea.Cmd) {
	a := kh.app
	a.view = ViewQuery
	a.queryInput.Focus()
	a.queryInput.CursorEnd()
	return a, nil
}

func (kh *KeyHandler) openHistory() (tea.Model, tea.Cmd) {
	a := kh.app
	if a.view != ViewHistory {
		a.previousView = a.view
	}
	a.queryInput.Blur()
	a.view = ViewHistory
	a.setStatus(MsgLoadingHist, StatusInfo)
	return a, a.loadHistory()
}

// sanitizeQuery trims the input and keeps its first word only.
func sanitizeQuery(input string) string {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return ""
	}
	q := fields[0]
	if len(q) > 256 {
		q = q[:256]
	}
	return q
}

// ShortHelp returns the bindings for the current view.
func (kh *KeyHandler) ShortHelp() []key.Binding {
	k := kh.keys
	switch kh.app.view {
	case ViewQuery:
		return []key.Binding{k.Submit, k.ToggleCase, k.ToggleFiles, k.History, k.Back}
	case ViewResults:
		help := []key.Binding{k.Preview, k.Open, k.Search}
		if kh.app.searching {
			help = append(help, k.Cancel)
		}
		if len(kh.app.details) > 0 {
			help = append(help, k.Details)
		}
		return append(help, k.Help)
	case ViewPreview:
		return []key.Binding{k.Open, k.Back}
	case ViewHistory:
		return []key.Binding{k.Preview, k.Delete, k.Back}
	case ViewThrottle:
		return []key.Binding{k.Continue, k.Abort}
	case ViewActions:
		return []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "choose")),
			k.Back,
		}
	case ViewDetails:
		return []key.Binding{k.Back}
	default:
		return nil
	}
}

func (kh *KeyHandler) FullHelp() [][]key.Binding {
	k := kh.keys
	return [][]key.Binding{
		kh.ShortHelp(),
		{k.Search, k.History, k.Cancel},
		{k.Help, k.Quit},
	}
}
