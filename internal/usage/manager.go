package usage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pders01/usages/internal/debuglog"
)

// Request describes one search.
type Request struct {
	Targets      []Target
	Factory      SourceFactory
	Presentation *Presentation
}

// Recorder persists finished searches.
type Recorder interface {
	RecordSearch(res Result, usages []*Usage) error
}

// Manager starts searches and tracks the ones still running.
type Manager struct {
	presenter Presenter
	recorder  Recorder
	isSelf    SelfFunc

	mu     sync.Mutex
	active map[string]*Session
	wg     sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithRecorder stores every finished search in r.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithSelfFunc replaces the self-usage classifier.
func WithSelfFunc(f SelfFunc) Option {
	return func(m *Manager) { m.isSelf = f }
}

func NewManager(presenter Presenter, opts ...Option) *Manager {
	m := &Manager{
		presenter: presenter,
		isSelf:    IsDeclaration,
		active:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Search starts a background search and returns immediately.
func (m *Manager) Search(ctx context.Context, req Request) (*Session, error) {
	if len(req.Targets) == 0 {
		return nil, ErrNoTargets
	}
	if req.Factory == nil {
		return nil, ErrNoSource
	}
	if m.presenter == nil {
		return nil, ErrPresenterUnavailable
	}

	s := newSession(ctx, uuid.NewString(), req, m.presenter, m.isSelf)
	s.onDone = m.sessionDone

	m.mu.Lock()
	m.active[s.id] = s
	m.mu.Unlock()

	s.log.Infof("search started")
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.run()
	}()
	return s, nil
}

func (m *Manager) sessionDone(s *Session, res Result) {
	m.mu.Lock()
	delete(m.active, s.id)
	m.mu.Unlock()

	if m.recorder == nil {
		return
	}
	var found []*Usage
	switch {
	case s.Sink() != nil:
		found = s.Sink().Snapshot()
	case res.Outcome == OutcomeSingle:
		if u := s.first.Load(); u != nil {
			found = []*Usage{u}
		}
	}
	if err := m.recorder.RecordSearch(res, found); err != nil {
		s.log.Warnf("failed to record search: %v", err)
	}
}

// ShowUsages presents precomputed usages as a finished results view.
func (m *Manager) ShowUsages(targets []Target, usages []*Usage, p *Presentation) (*Sink, error) {
	if m.presenter == nil {
		return nil, ErrPresenterUnavailable
	}
	sink := NewSink(uuid.NewString(), targets, p)
	for _, u := range usages {
		if err := sink.Append(u); err != nil {
			return nil, err
		}
	}
	sink.SetSearchInProgress(false)
	m.presenter.OpenResults(sink)
	if err := m.presenter.ShowResults(sink, true); err != nil {
		debuglog.Warnf("show %d usages of %s: %v", len(usages), TargetNames(targets), err)
		return sink, err
	}
	return sink, nil
}

// Active returns the running sessions ordered by start time.
func (m *Manager) Active() []*Session {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].started.Before(sessions[j].started)
	})
	return sessions
}

// CancelAll cancels every running session.
func (m *Manager) CancelAll() {
	for _, s := range m.Active() {
		s.Cancel()
	}
}

// Wait blocks until every started session has finished or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
