package usage

import (
	"sync"
	"time"
)

// progressNotice shows a "still running" notice only if the search outlives
// the delay. Every schedule and stop bumps the generation, so a timer that
// lost the race against stop sees a stale generation and does nothing.
type progressNotice struct {
	presenter Presenter
	title     string
	delay     time.Duration

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
	shown bool
}

func newProgressNotice(p Presenter, title string, delay time.Duration) *progressNotice {
	return &progressNotice{presenter: p, title: title, delay: delay}
}

func (n *progressNotice) schedule() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gen++
	gen := n.gen
	n.timer = time.AfterFunc(n.delay, func() { n.fire(gen) })
}

func (n *progressNotice) fire(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.gen {
		return
	}
	n.shown = true
	n.presenter.ShowProgress(n.title)
}

// stop cancels a pending notice and dismisses a shown one. It reports
// whether the notice had been shown.
func (n *progressNotice) stop() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gen++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	shown := n.shown
	if shown {
		n.shown = false
		n.presenter.DismissProgress()
	}
	return shown
}
