package usage

import (
	"sync"
	"sync/atomic"
)

// Results is the capability a results view exposes to the search that
// feeds it.
type Results interface {
	Close()
	SearchCancelled() bool
	SetCancelled(cancelled bool)
}

// Sink is the append-only store behind a results view.
//
// Appends may come from any goroutine and only ever land in a queue; the
// presenter moves them into the visible list by calling Drain from its own
// goroutine, so visible state is never mutated concurrently with reads.
type Sink struct {
	id           string
	targets      []Target
	presentation *Presentation

	mu      sync.Mutex
	queued  []*Usage
	visible []*Usage
	closed  bool

	count      atomic.Int64
	inProgress atomic.Bool
	cancelled  *atomic.Bool
	onCancel   func()
}

var _ Results = (*Sink)(nil)

// NewSink creates a standalone sink that is not attached to a search.
func NewSink(id string, targets []Target, p *Presentation) *Sink {
	return newSink(id, targets, p, new(atomic.Bool), nil)
}

func newSink(id string, targets []Target, p *Presentation, cancelled *atomic.Bool, onCancel func()) *Sink {
	if p == nil {
		p = DefaultPresentation()
	}
	return &Sink{
		id:           id,
		targets:      targets,
		presentation: p,
		cancelled:    cancelled,
		onCancel:     onCancel,
	}
}

func (s *Sink) ID() string                  { return s.id }
func (s *Sink) Targets() []Target           { return s.targets }
func (s *Sink) Presentation() *Presentation { return s.presentation }

// Append queues u for the next Drain.
func (s *Sink) Append(u *Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.queued = append(s.queued, u)
	s.count.Add(1)
	return nil
}

// Drain moves queued usages into the visible list in queue order and
// returns the ones that became visible.
func (s *Sink) Drain() []*Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queued) == 0 {
		return nil
	}
	drained := s.queued
	s.queued = nil
	s.visible = append(s.visible, drained...)
	return drained
}

// Count is the number of accepted usages, queued or visible.
func (s *Sink) Count() int {
	return int(s.count.Load())
}

// Usages returns a copy of the visible usages.
func (s *Sink) Usages() []*Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Usage, len(s.visible))
	copy(out, s.visible)
	return out
}

// Snapshot returns visible followed by queued usages without draining.
func (s *Sink) Snapshot() []*Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Usage, 0, len(s.visible)+len(s.queued))
	out = append(out, s.visible...)
	return append(out, s.queued...)
}

func (s *Sink) SearchInProgress() bool {
	return s.inProgress.Load()
}

func (s *Sink) SetSearchInProgress(inProgress bool) {
	s.inProgress.Store(inProgress)
}

// Close marks the sink terminal and cancels the search feeding it.
func (s *Sink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.SetCancelled(true)
}

func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Sink) SearchCancelled() bool {
	return s.cancelled.Load()
}

// SetCancelled records whether the search was cancelled. On a sink fed by
// a session it is one-way: the session has already stopped.
func (s *Sink) SetCancelled(cancelled bool) {
	if !cancelled && s.onCancel != nil {
		return
	}
	s.cancelled.Store(cancelled)
	if cancelled && s.onCancel != nil {
		s.onCancel()
	}
}
