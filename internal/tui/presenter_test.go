package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/usages/internal/usage"
)

type msgRecorder struct {
	mu   sync.Mutex
	msgs []tea.Msg
	hook func(tea.Msg)
}

func (r *msgRecorder) send(msg tea.Msg) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
}

func (r *msgRecorder) all() []tea.Msg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tea.Msg(nil), r.msgs...)
}

func TestPresenterDetached(t *testing.T) {
	p := NewPresenter()
	sink := usage.NewSink("s", nil, nil)

	assert.ErrorIs(t, p.ShowResults(sink, true), usage.ErrPresenterUnavailable)
	assert.ErrorIs(t, p.NavigateTo(&usage.Usage{Path: "a.go", Line: 1}), usage.ErrPresenterUnavailable)
	assert.Equal(t, usage.DecisionAbort, p.PromptTooMany(context.Background(), 10))
	assert.Equal(t, -1, p.ChooseAction(context.Background(), "none", nil))

	// Fire-and-forget calls are dropped silently.
	p.OpenResults(sink)
	p.Notify(usage.Notification{Lines: []string{"x"}})
	p.ShowProgress("x")
	p.DismissProgress()
}

func TestPresenterDelivers(t *testing.T) {
	rec := &msgRecorder{}
	p := NewPresenter()
	p.attach(rec.send)

	sink := usage.NewSink("s", nil, nil)
	u := &usage.Usage{Path: "a.go", Line: 1}

	p.OpenResults(sink)
	require.NoError(t, p.ShowResults(sink, true))
	p.Notify(usage.Notification{Lines: []string{"done"}})
	p.ShowProgress("Searching")
	p.DismissProgress()
	require.NoError(t, p.NavigateTo(u))

	msgs := rec.all()
	require.Len(t, msgs, 6)
	assert.Equal(t, resultsOpenedMsg{sink: sink}, msgs[0])
	assert.Equal(t, resultsShownMsg{sink: sink, activate: true}, msgs[1])
	assert.Equal(t, notificationMsg{note: usage.Notification{Lines: []string{"done"}}}, msgs[2])
	assert.Equal(t, progressMsg{title: "Searching", show: true}, msgs[3])
	assert.Equal(t, progressMsg{}, msgs[4])
	assert.Equal(t, navigateMsg{usage: u}, msgs[5])

	p.Detach()
	assert.ErrorIs(t, p.NavigateTo(u), usage.ErrPresenterUnavailable)
}

func TestPresenterPromptReply(t *testing.T) {
	rec := &msgRecorder{hook: func(msg tea.Msg) {
		if m, ok := msg.(throttlePromptMsg); ok {
			go func() { m.reply <- usage.DecisionContinue }()
		}
		if m, ok := msg.(chooseActionMsg); ok {
			go func() { m.reply <- len(m.actions) - 1 }()
		}
	}}
	p := NewPresenter()
	p.attach(rec.send)

	assert.Equal(t, usage.DecisionContinue, p.PromptTooMany(context.Background(), 1000))
	actions := []usage.Action{{Name: "a"}, {Name: "b"}}
	assert.Equal(t, 1, p.ChooseAction(context.Background(), "pick", actions))
}

func TestPresenterPromptCancelled(t *testing.T) {
	rec := &msgRecorder{}
	p := NewPresenter()
	p.attach(rec.send)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Equal(t, usage.DecisionAbort, p.PromptTooMany(ctx, 1000))
	assert.Equal(t, -1, p.ChooseAction(ctx, "pick", []usage.Action{{Name: "a"}}))
	assert.Len(t, rec.all(), 2)
}

// A late reply after cancellation must not block the UI goroutine.
func TestPresenterLateReplyDoesNotBlock(t *testing.T) {
	var prompt throttlePromptMsg
	rec := &msgRecorder{hook: func(msg tea.Msg) {
		prompt = msg.(throttlePromptMsg)
	}}
	p := NewPresenter()
	p.attach(rec.send)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, usage.DecisionAbort, p.PromptTooMany(ctx, 5))

	app := newTestApp(t)
	app.Update(prompt)
	done := make(chan struct{})
	go func() {
		app.resolveThrottle(usage.DecisionContinue)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resolving a stale prompt blocked")
	}
}

func TestPresenterSearchRerun(t *testing.T) {
	rec := &msgRecorder{}
	p := NewPresenter()
	p.attach(rec.send)

	m := usage.NewManager(NewPresenter())
	origin := startSession(t, m)
	rerun := startSession(t, m)
	p.SearchRerun(origin, rerun)

	msgs := rec.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, searchStartedMsg{session: rerun, origin: origin}, msgs[0])
	assert.False(t, rerun.Cancelled())

	// Nobody can track a rerun once the program is gone.
	p.Detach()
	orphan := startSession(t, m)
	p.SearchRerun(origin, orphan)
	assert.True(t, orphan.Cancelled())
}
