package tui

import (
	"context"
	"errors"
	"testing"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/usages/internal/config"
	"github.com/pders01/usages/internal/storage"
	"github.com/pders01/usages/internal/usage"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.TestConfig()
	app := NewApp(cfg, nil, usage.NewManager(NewPresenter()), nil, nil)
	app.resize(100, 30)
	return app
}

func testSink(t *testing.T, usages ...*usage.Usage) *usage.Sink {
	t.Helper()
	sink := usage.NewSink("s1", []usage.Target{{Name: "Parse"}}, nil)
	for _, u := range usages {
		require.NoError(t, sink.Append(u))
	}
	return sink
}

func TestViewStateTransitions(t *testing.T) {
	tests := []struct {
		name         string
		initialView  View
		msg          tea.Msg
		expectedView View
		setupFunc    func(*App)
	}{
		{
			name:         "ViewResults to ViewPreview on Enter",
			initialView:  ViewResults,
			msg:          tea.KeyMsg{Type: tea.KeyEnter},
			expectedView: ViewPreview,
			setupFunc: func(a *App) {
				a.queryInput.Blur()
				a.sink = testSink(t)
				a.resultsList.SetItems([]list.Item{usageItem{usage: &usage.Usage{Path: "main.go", Line: 3, Column: 2}}})
			},
		},
		{
			name:         "ViewPreview to ViewResults on Escape",
			initialView:  ViewPreview,
			msg:          tea.KeyMsg{Type: tea.KeyEsc},
			expectedView: ViewResults,
			setupFunc: func(a *App) {
				a.queryInput.Blur()
				a.sink = testSink(t)
			},
		},
		{
			name:         "ViewPreview back to previous view without results",
			initialView:  ViewPreview,
			msg:          tea.KeyMsg{Type: tea.KeyEsc},
			expectedView: ViewQuery,
			setupFunc: func(a *App) {
				a.queryInput.Blur()
				a.previousView = ViewQuery
			},
		},
		{
			name:         "ViewResults to ViewQuery on Escape",
			initialView:  ViewResults,
			msg:          tea.KeyMsg{Type: tea.KeyEsc},
			expectedView: ViewQuery,
			setupFunc: func(a *App) {
				a.queryInput.Blur()
				a.sink = testSink(t)
			},
		},
		{
			name:         "ViewQuery back to ViewResults on Escape",
			initialView:  ViewQuery,
			msg:          tea.KeyMsg{Type: tea.KeyEsc},
			expectedView: ViewResults,
			setupFunc: func(a *App) {
				a.sink = testSink(t)
			},
		},
		{
			name:         "ViewResults to ViewQuery on ctrl+f",
			initialView:  ViewResults,
			msg:          tea.KeyMsg{Type: tea.KeyCtrlF},
			expectedView: ViewQuery,
			setupFunc: func(a *App) {
				a.queryInput.Blur()
			},
		},
		{
			name:         "ViewResults to ViewHistory on ctrl+r",
			initialView:  ViewResults,
			msg:          tea.KeyMsg{Type: tea.KeyCtrlR},
			expectedView: ViewHistory,
			setupFunc: func(a *App) {
				a.queryInput.Blur()
			},
		},
		{
			name:         "ViewHistory back on Escape",
			initialView:  ViewHistory,
			msg:          tea.KeyMsg{Type: tea.KeyEsc},
			expectedView: ViewResults,
			setupFunc: func(a *App) {
				a.queryInput.Blur()
				a.previousView = ViewResults
			},
		},
		{
			name:         "ViewResults to ViewDetails on d",
			initialView:  ViewResults,
			msg:          tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")},
			expectedView: ViewDetails,
			setupFunc: func(a *App) {
				a.queryInput.Blur()
				a.details = []string{"File 'big.go' (3Mb) is too large and cannot be scanned"}
			},
		},
		{
			name:         "d without details stays on results",
			initialView:  ViewResults,
			msg:          tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")},
			expectedView: ViewResults,
			setupFunc: func(a *App) {
				a.queryInput.Blur()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			app.view = tt.initialView
			if tt.setupFunc != nil {
				tt.setupFunc(app)
			}

			updatedModel, _ := app.Update(tt.msg)
			updatedApp := updatedModel.(*App)

			assert.Equal(t, tt.expectedView, updatedApp.view)
		})
	}
}

func TestResultsOpenedAndDrained(t *testing.T) {
	app := newTestApp(t)
	sink := testSink(t, &usage.Usage{Path: "a.go", Line: 1, Column: 1, Text: "Parse()"})
	sink.SetSearchInProgress(true)

	_, cmd := app.Update(resultsOpenedMsg{sink: sink})
	assert.NotNil(t, cmd, "opening results schedules a drain")
	assert.Equal(t, ViewResults, app.view)
	assert.Empty(t, app.resultsList.Items(), "usages appear only on drain")

	require.NoError(t, sink.Append(&usage.Usage{Path: "b.go", Line: 2, Column: 4}))
	_, cmd = app.Update(drainTickMsg{})
	assert.Len(t, app.resultsList.Items(), 2)
	assert.NotNil(t, cmd, "drain keeps ticking while the search runs")

	sink.SetSearchInProgress(false)
	_, cmd = app.Update(drainTickMsg{})
	assert.Nil(t, cmd)
	assert.False(t, app.draining)
}

func TestResultsShownReplacesSink(t *testing.T) {
	app := newTestApp(t)
	old := testSink(t, &usage.Usage{Path: "a.go", Line: 1})
	app.openSink(old)

	fresh := usage.NewSink("s2", []usage.Target{{Name: "Parse"}}, nil)
	require.NoError(t, fresh.Append(&usage.Usage{Path: "b.go", Line: 2}))
	app.Update(resultsShownMsg{sink: fresh, activate: true})

	assert.False(t, old.Closed())
	assert.Same(t, fresh, app.sink)
	assert.Equal(t, ViewResults, app.view)
	require.Len(t, app.resultsList.Items(), 1)
	assert.Equal(t, "b.go", app.resultsList.Items()[0].(usageItem).usage.Path)
}

type blockingSource struct{}

func (blockingSource) Generate(ctx context.Context, _ usage.Consumer) error {
	<-ctx.Done()
	return ctx.Err()
}

func startSession(t *testing.T, m *usage.Manager) *usage.Session {
	t.Helper()
	s, err := m.Search(context.Background(), usage.Request{
		Targets: []usage.Target{{Name: "Parse"}},
		Factory: func() (usage.Source, error) { return blockingSource{}, nil },
	})
	require.NoError(t, err)
	t.Cleanup(s.Cancel)
	return s
}

func TestStaleSearchMessages(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, a *App) tea.Msg
		check func(t *testing.T, a *App)
	}{
		{
			name: "late results of a replaced search keep the running one",
			setup: func(t *testing.T, a *App) tea.Msg {
				older := usage.NewSink("older", []usage.Target{{Name: "Parse"}}, nil)
				a.openSink(older)
				newer := usage.NewSink("newer", []usage.Target{{Name: "Parse"}}, nil)
				newer.SetSearchInProgress(true)
				a.Update(resultsOpenedMsg{sink: newer})
				return resultsShownMsg{sink: older, activate: true}
			},
			check: func(t *testing.T, a *App) {
				assert.Equal(t, "newer", a.sink.ID())
				assert.False(t, a.sink.Closed())
				assert.False(t, a.sink.SearchCancelled())
			},
		},
		{
			name: "results of a cancelled session are ignored",
			setup: func(t *testing.T, a *App) tea.Msg {
				cancelled := startSession(t, a.manager)
				a.session = cancelled
				a.startSearch(a.query)
				require.True(t, cancelled.Cancelled())
				return resultsShownMsg{sink: usage.NewSink(cancelled.ID(), cancelled.Targets(), nil), activate: true}
			},
			check: func(t *testing.T, a *App) {
				assert.Nil(t, a.sink)
				assert.Equal(t, ViewQuery, a.view)
			},
		},
		{
			name: "opened sink of a cancelled session is ignored",
			setup: func(t *testing.T, a *App) tea.Msg {
				cancelled := startSession(t, a.manager)
				a.session = cancelled
				a.startSearch(a.query)
				return resultsOpenedMsg{sink: usage.NewSink(cancelled.ID(), cancelled.Targets(), nil)}
			},
			check: func(t *testing.T, a *App) {
				assert.Nil(t, a.sink)
				assert.False(t, a.draining)
			},
		},
		{
			name: "throttle prompt after the session finished",
			setup: func(t *testing.T, a *App) tea.Msg {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				reply := make(chan usage.Decision, 1)
				t.Cleanup(func() { assert.Equal(t, usage.DecisionAbort, <-reply) })
				return throttlePromptMsg{ctx: ctx, count: 1200, reply: reply}
			},
			check: func(t *testing.T, a *App) {
				assert.Nil(t, a.throttle)
				assert.Equal(t, ViewQuery, a.view)
			},
		},
		{
			name: "action chooser after the session finished",
			setup: func(t *testing.T, a *App) tea.Msg {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				reply := make(chan int, 1)
				t.Cleanup(func() { assert.Equal(t, -1, <-reply) })
				return chooseActionMsg{ctx: ctx, message: "No usages", actions: []usage.Action{{Name: "Ignore case"}}, reply: reply}
			},
			check: func(t *testing.T, a *App) {
				assert.Nil(t, a.choice)
				assert.Equal(t, ViewQuery, a.view)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			msg := tt.setup(t, app)
			app.Update(msg)
			tt.check(t, app)
		})
	}
}

func TestPromptTakenDownWhenSearchStops(t *testing.T) {
	app := newTestApp(t)
	app.queryInput.Blur()
	app.view = ViewResults

	ctx, cancel := context.WithCancel(context.Background())
	reply := make(chan usage.Decision, 1)
	app.Update(throttlePromptMsg{ctx: ctx, count: 1200, reply: reply})
	require.Equal(t, ViewThrottle, app.view)

	cancel()
	app.Update(drainTickMsg{})
	assert.Equal(t, usage.DecisionAbort, <-reply)
	assert.Nil(t, app.throttle)
	assert.Equal(t, ViewResults, app.view)
}

func TestRerunBecomesCurrentSearch(t *testing.T) {
	app := newTestApp(t)
	origin := startSession(t, app.manager)
	app.Update(searchStartedMsg{session: origin, generation: app.generation})
	require.Same(t, origin, app.session)

	rerun := startSession(t, app.manager)
	app.Update(searchStartedMsg{session: rerun, origin: origin})
	assert.Same(t, rerun, app.session)
	assert.True(t, app.searching)
	assert.False(t, rerun.Cancelled())

	// Results of the replaced search no longer reach the view.
	app.Update(resultsOpenedMsg{sink: usage.NewSink(origin.ID(), origin.Targets(), nil)})
	assert.Nil(t, app.sink)

	app.queryInput.Blur()
	app.view = ViewResults
	app.Update(tea.KeyMsg{Type: tea.KeyCtrlX})
	assert.True(t, rerun.Cancelled())

	app.startSearch(app.query)
	assert.True(t, app.retired[rerun.ID()])
}

func TestRerunOfAReplacedSearchIsDropped(t *testing.T) {
	app := newTestApp(t)
	origin := startSession(t, app.manager)
	app.Update(searchStartedMsg{session: origin, generation: app.generation})

	// The user starts a new query before the rerun is reported.
	app.startSearch(app.query)
	rerun := startSession(t, app.manager)
	app.Update(searchStartedMsg{session: rerun, origin: origin})
	assert.True(t, rerun.Cancelled())
	assert.NotSame(t, rerun, app.session)

	newer := startSession(t, app.manager)
	app.Update(searchStartedMsg{session: newer, generation: app.generation})
	assert.Same(t, newer, app.session)

	late := startSession(t, app.manager)
	app.Update(searchStartedMsg{session: late, origin: origin})
	assert.True(t, late.Cancelled())
	assert.Same(t, newer, app.session)
}

func TestSupersededSearchStartIsDropped(t *testing.T) {
	app := newTestApp(t)
	app.startSearch(app.query)
	stale := app.generation
	app.startSearch(app.query)

	s := startSession(t, app.manager)
	app.Update(searchStartedMsg{session: s, generation: stale})
	assert.True(t, s.Cancelled())
	assert.Nil(t, app.session)
	assert.False(t, app.searching)
}

func TestResultsShownDoesNotStealModal(t *testing.T) {
	app := newTestApp(t)
	app.view = ViewThrottle
	app.Update(resultsShownMsg{sink: testSink(t), activate: true})
	assert.Equal(t, ViewThrottle, app.view)
}

func TestThrottlePrompt(t *testing.T) {
	tests := []struct {
		name     string
		key      tea.KeyMsg
		expected usage.Decision
	}{
		{"continue on c", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")}, usage.DecisionContinue},
		{"continue on enter", tea.KeyMsg{Type: tea.KeyEnter}, usage.DecisionContinue},
		{"abort on a", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")}, usage.DecisionAbort},
		{"abort on esc", tea.KeyMsg{Type: tea.KeyEsc}, usage.DecisionAbort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			app.queryInput.Blur()
			app.view = ViewResults

			reply := make(chan usage.Decision, 1)
			app.Update(throttlePromptMsg{count: 1200, reply: reply})
			require.Equal(t, ViewThrottle, app.view)
			assert.Contains(t, app.View(), "1200 usages found so far")

			app.Update(tt.key)
			assert.Equal(t, tt.expected, <-reply)
			assert.Equal(t, ViewResults, app.view)
			assert.Nil(t, app.throttle)
		})
	}
}

func TestThrottleIgnoresOtherKeys(t *testing.T) {
	app := newTestApp(t)
	reply := make(chan usage.Decision, 1)
	app.Update(throttlePromptMsg{count: 10, reply: reply})

	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("z")})
	assert.Equal(t, ViewThrottle, app.view)
	assert.Empty(t, reply)
}

func TestSecondPromptAbortsFirst(t *testing.T) {
	app := newTestApp(t)
	first := make(chan usage.Decision, 1)
	second := make(chan usage.Decision, 1)
	app.Update(throttlePromptMsg{count: 10, reply: first})
	app.Update(throttlePromptMsg{count: 20, reply: second})

	assert.Equal(t, usage.DecisionAbort, <-first)
	assert.Equal(t, 20, app.throttle.count)
}

func TestChooseAction(t *testing.T) {
	actions := []usage.Action{{Name: "Search all files"}, {Name: "Ignore case"}}

	t.Run("enter picks the selected action", func(t *testing.T) {
		app := newTestApp(t)
		app.queryInput.Blur()
		app.view = ViewResults
		reply := make(chan int, 1)
		app.Update(chooseActionMsg{message: "No usages of Parse found", actions: actions, reply: reply})

		require.Equal(t, ViewActions, app.view)
		assert.Len(t, app.actionList.Items(), 3, "actions plus OK")

		app.Update(tea.KeyMsg{Type: tea.KeyDown})
		app.Update(tea.KeyMsg{Type: tea.KeyEnter})
		assert.Equal(t, 1, <-reply)
		assert.Equal(t, ViewResults, app.view)
	})

	t.Run("OK answers -1", func(t *testing.T) {
		app := newTestApp(t)
		reply := make(chan int, 1)
		app.Update(chooseActionMsg{message: "No usages", actions: actions, reply: reply})
		app.actionList.Select(2)
		app.Update(tea.KeyMsg{Type: tea.KeyEnter})
		assert.Equal(t, -1, <-reply)
	})

	t.Run("esc answers -1", func(t *testing.T) {
		app := newTestApp(t)
		reply := make(chan int, 1)
		app.Update(chooseActionMsg{message: "No usages", actions: actions, reply: reply})
		app.Update(tea.KeyMsg{Type: tea.KeyEsc})
		assert.Equal(t, -1, <-reply)
		assert.Equal(t, ViewQuery, app.view)
	})
}

func TestQuitResolvesPendingPrompts(t *testing.T) {
	app := newTestApp(t)
	reply := make(chan usage.Decision, 1)
	app.Update(throttlePromptMsg{count: 10, reply: reply})

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, usage.DecisionAbort, <-reply)
	assert.Error(t, app.ctx.Err())
}

func TestNotification(t *testing.T) {
	app := newTestApp(t)

	app.Update(notificationMsg{note: usage.Notification{
		Kind:  usage.NotifyInfo,
		Lines: []string{"No usages of Parse found in ~/src"},
		Links: []usage.Link{usage.LinkFindOptions},
	}})
	assert.Equal(t, StatusInfo, app.statusKind)
	assert.Contains(t, app.status, "No usages of Parse found")
	assert.Contains(t, app.status, "ctrl+f: change search")

	app.Update(notificationMsg{note: usage.Notification{
		Kind:    usage.NotifyWarning,
		Lines:   []string{"Only the declaration of Parse was found", "(1 large file was ignored)"},
		Links:   []usage.Link{usage.LinkLargeFiles},
		Details: []string{"File 'big.go' (3Mb) is too large and cannot be scanned"},
	}})
	assert.Equal(t, StatusWarn, app.statusKind)
	assert.Contains(t, app.status, "(d: details)")
	assert.Len(t, app.details, 1)
}

func TestSearchLifecycle(t *testing.T) {
	app := newTestApp(t)
	sink := testSink(t, &usage.Usage{Path: "a.go", Line: 1})
	app.openSink(sink)

	app.searching = true
	app.session = nil
	app.Update(searchFinishedMsg{session: nil, result: usage.Result{Outcome: usage.OutcomeResults, Count: 1}})
	assert.False(t, app.searching)
	assert.Equal(t, StatusSuccess, app.statusKind)
	assert.Len(t, app.resultsList.Items(), 1)

	app.searching = true
	app.Update(searchFinishedMsg{session: nil, result: usage.Result{Outcome: usage.OutcomeCancelled}})
	assert.Equal(t, MsgCancelled, app.status)

	failure := errors.New("walk failed")
	app.Update(searchFinishedMsg{session: nil, result: usage.Result{Outcome: usage.OutcomeFailed, Err: failure}})
	assert.Equal(t, failure, app.err)
}

func TestProgressAndSpinner(t *testing.T) {
	app := newTestApp(t)
	_, cmd := app.Update(progressMsg{title: "Searching for usages of Parse", show: true})
	assert.NotNil(t, cmd)
	assert.True(t, app.busy())
	assert.Contains(t, app.View(), "Searching for usages of Parse")

	app.Update(progressMsg{show: false})
	assert.False(t, app.busy())
}

func TestHistoryMessages(t *testing.T) {
	app := newTestApp(t)
	entries := []*storage.SearchEntry{
		{ID: "1", Targets: []usage.Target{{Name: "Parse"}}, Count: 3},
		{ID: "2", Targets: []usage.Target{{Name: "Load"}}, Count: 1},
	}
	app.Update(historyLoadedMsg{entries: entries})
	assert.Len(t, app.historyList.Items(), 2)
	assert.Equal(t, "2 recent searches", app.status)

	app.Update(historyDeletedMsg{index: 0})
	require.Len(t, app.historyList.Items(), 1)
	assert.Equal(t, "2", app.historyList.Items()[0].(historyItem).entry.ID)

	app.Update(historyLoadedMsg{})
	assert.Equal(t, MsgNoHistory, app.status)
}

func TestLoadHistoryWithoutStore(t *testing.T) {
	app := newTestApp(t)
	msg := app.loadHistory()()
	errMsg, ok := msg.(errorMsg)
	require.True(t, ok)
	assert.Contains(t, errMsg.err.Error(), "history is not available")
}

func TestStartSearchWithoutFinder(t *testing.T) {
	app := newTestApp(t)
	msg := app.startSearch(app.query)()
	errMsg, ok := msg.(errorMsg)
	require.True(t, ok)
	assert.ErrorIs(t, errMsg.err, usage.ErrNoSource)
}

func TestOpenInEditorWithoutLauncher(t *testing.T) {
	app := newTestApp(t)
	msg := app.openInEditor(&usage.Usage{Path: "a.go", Line: 1})()
	assert.Equal(t, statusMsg{text: MsgNoEditor, kind: StatusWarn}, msg)
}

func TestViewRendersEveryView(t *testing.T) {
	for _, v := range []View{ViewQuery, ViewResults, ViewPreview, ViewThrottle, ViewActions, ViewHistory, ViewDetails} {
		t.Run(v.String(), func(t *testing.T) {
			app := newTestApp(t)
			app.view = v
			out := app.View()
			assert.NotEmpty(t, out)
		})
	}
}

func TestRelativePath(t *testing.T) {
	tests := []struct {
		path, base, expected string
	}{
		{"/src/app/main.go", "/src/app", "main.go"},
		{"/src/app/internal/x.go", "/src/app", "internal/x.go"},
		{"/other/main.go", "/src/app", "/other/main.go"},
		{"/src/app/main.go", "", "/src/app/main.go"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, relativePath(tt.path, tt.base))
	}
}

func TestUsageItem(t *testing.T) {
	item := usageItem{usage: &usage.Usage{Path: "/src/app/main.go", Line: 12, Column: 5, Text: "\tParse(x)  "}, base: "/src/app"}
	assert.Contains(t, item.Title(), "main.go")
	assert.Contains(t, item.Title(), ":12:5")
	assert.Equal(t, "Parse(x)", item.Description())
	assert.Equal(t, "main.go \tParse(x)  ", item.FilterValue())
}
