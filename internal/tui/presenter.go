package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/usages/internal/usage"
)

// Messages the presenter delivers to the program. They are handled in
// App.Update, on the UI goroutine.
type (
	resultsOpenedMsg struct {
		sink *usage.Sink
	}

	resultsShownMsg struct {
		sink     *usage.Sink
		activate bool
	}

	notificationMsg struct {
		note usage.Notification
	}

	progressMsg struct {
		title string
		show  bool
	}

	throttlePromptMsg struct {
		ctx   context.Context
		count int
		reply chan<- usage.Decision
	}

	chooseActionMsg struct {
		ctx     context.Context
		message string
		actions []usage.Action
		reply   chan<- int
	}

	navigateMsg struct {
		usage *usage.Usage
	}
)

// Presenter implements usage.Presenter on top of a running tea.Program.
// Search goroutines never touch the model: every call becomes a message.
type Presenter struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

var _ usage.Presenter = (*Presenter)(nil)

func NewPresenter() *Presenter {
	return &Presenter{}
}

// Attach routes messages to p. Until then, and after Detach, the presenter
// reports itself unavailable.
func (p *Presenter) Attach(program *tea.Program) {
	p.attach(program.Send)
}

func (p *Presenter) attach(send func(tea.Msg)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.send = send
}

func (p *Presenter) Detach() {
	p.attach(nil)
}

func (p *Presenter) deliver(msg tea.Msg) bool {
	p.mu.RLock()
	send := p.send
	p.mu.RUnlock()
	if send == nil {
		return false
	}
	send(msg)
	return true
}

func (p *Presenter) OpenResults(sink *usage.Sink) {
	p.deliver(resultsOpenedMsg{sink: sink})
}

func (p *Presenter) ShowResults(sink *usage.Sink, activate bool) error {
	if !p.deliver(resultsShownMsg{sink: sink, activate: activate}) {
		return usage.ErrPresenterUnavailable
	}
	return nil
}

func (p *Presenter) Notify(n usage.Notification) {
	p.deliver(notificationMsg{note: n})
}

func (p *Presenter) ShowProgress(title string) {
	p.deliver(progressMsg{title: title, show: true})
}

func (p *Presenter) DismissProgress() {
	p.deliver(progressMsg{show: false})
}

// PromptTooMany asks the user and waits for the answer. Without a program,
// or once ctx is done, the search is aborted.
func (p *Presenter) PromptTooMany(ctx context.Context, count int) usage.Decision {
	reply := make(chan usage.Decision, 1)
	if !p.deliver(throttlePromptMsg{ctx: ctx, count: count, reply: reply}) {
		return usage.DecisionAbort
	}
	select {
	case d := <-reply:
		return d
	case <-ctx.Done():
		return usage.DecisionAbort
	}
}

func (p *Presenter) ChooseAction(ctx context.Context, message string, actions []usage.Action) int {
	reply := make(chan int, 1)
	if !p.deliver(chooseActionMsg{ctx: ctx, message: message, actions: actions, reply: reply}) {
		return -1
	}
	select {
	case i := <-reply:
		return i
	case <-ctx.Done():
		return -1
	}
}

func (p *Presenter) NavigateTo(u *usage.Usage) error {
	if !p.deliver(navigateMsg{usage: u}) {
		return usage.ErrPresenterUnavailable
	}
	return nil
}

// SearchRerun hands the program a search that a not-found action started in
// place of origin.
func (p *Presenter) SearchRerun(origin, s *usage.Session) {
	if !p.deliver(searchStartedMsg{session: s, origin: origin}) {
		s.Cancel()
	}
}
