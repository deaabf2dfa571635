package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pders01/usages/internal/debuglog"
)

// ThrottleState guards the too-many-usages prompt.
type ThrottleState int32

const (
	ThrottleNotShown ThrottleState = iota
	ThrottleShown
	ThrottleResolved
)

// Session is one in-flight search. Count, sink, first-usage slot, throttle
// state and the cancel flag are the only values shared with the source's
// goroutines; all of them are atomic.
type Session struct {
	id           string
	targets      []Target
	factory      SourceFactory
	presentation *Presentation
	presenter    Presenter
	isSelf       SelfFunc
	log          *debuglog.FieldLogger
	notice       *progressNotice

	parent    context.Context
	ctx       context.Context
	cancelCtx context.CancelFunc
	cancelled atomic.Bool

	count    atomic.Int64
	sink     atomic.Pointer[Sink]
	first    atomic.Pointer[Usage]
	throttle atomic.Int32

	decided    chan struct{}
	decideOnce sync.Once

	started time.Time

	// written by the driving goroutine only
	failure    error
	largeFiles []SkippedFile

	finished atomic.Bool
	done     chan struct{}
	result   Result
	onDone   func(s *Session, res Result)
}

func newSession(ctx context.Context, id string, req Request, presenter Presenter, isSelf SelfFunc) *Session {
	p := req.Presentation
	if p == nil {
		p = DefaultPresentation()
	}
	if isSelf == nil {
		isSelf = IsDeclaration
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:           id,
		targets:      req.Targets,
		factory:      req.Factory,
		presentation: p,
		presenter:    presenter,
		isSelf:       isSelf,
		parent:       context.WithoutCancel(ctx),
		ctx:          sctx,
		cancelCtx:    cancel,
		started:      time.Now(),
		decided:      make(chan struct{}),
		done:         make(chan struct{}),
		log: debuglog.WithFields(map[string]any{
			"session": id,
			"targets": TargetNames(req.Targets),
		}),
	}
	s.notice = newProgressNotice(presenter, ProgressTitle(p), p.ProgressDelay)
	return s
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) Targets() []Target           { return s.targets }
func (s *Session) Presentation() *Presentation { return s.presentation }

// Count is the number of non-self usages accepted so far.
func (s *Session) Count() int { return int(s.count.Load()) }

// Sink returns the results sink, or nil while none has been materialised.
func (s *Session) Sink() *Sink { return s.sink.Load() }

func (s *Session) Throttle() ThrottleState { return ThrottleState(s.throttle.Load()) }

// Cancelled reports whether the search was asked to stop.
func (s *Session) Cancelled() bool { return s.cancelled.Load() }

// Done is closed once the session has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session finishes or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel stops the search cooperatively. It is idempotent and releases
// producers blocked on the throttle prompt.
func (s *Session) Cancel() {
	if !s.cancelled.Swap(true) {
		s.log.Debugf("search cancelled")
	}
	s.cancelCtx()
}

func (s *Session) stopped() bool {
	return s.cancelled.Load() || s.ctx.Err() != nil
}

// ResolveThrottle records the user's answer to the too-many prompt.
func (s *Session) ResolveThrottle(d Decision) {
	if d == DecisionAbort {
		s.Cancel()
	}
	s.throttle.Store(int32(ThrottleResolved))
	s.decideOnce.Do(func() { close(s.decided) })
}

// OnUsage is the source's per-usage callback. It is safe for concurrent
// use and returns false once the search should stop producing.
func (s *Session) OnUsage(u *Usage) bool {
	if s.stopped() {
		return false
	}
	if s.Throttle() == ThrottleShown {
		s.awaitThrottle()
		if s.stopped() {
			return false
		}
	}
	if s.isSelf(u, s.targets) {
		return true
	}

	n := s.count.Add(1)
	var sink *Sink
	if n == 1 && !s.presentation.ShowPanelIfOne {
		s.first.Store(u)
		// A concurrent second usage may have materialised the sink already;
		// whoever takes u out of the slot appends it.
		sink = s.sink.Load()
		if sink != nil && s.first.CompareAndSwap(u, nil) {
			s.append(sink, u)
		}
	} else {
		sink = s.materialize()
		s.append(sink, u)
	}

	if limit := s.presentation.ThrottleThreshold; limit > 0 && n > int64(limit) &&
		s.throttle.CompareAndSwap(int32(ThrottleNotShown), int32(ThrottleShown)) {
		go s.promptTooMany(int(n))
		s.awaitThrottle()
	}

	return !s.stopped()
}

func (s *Session) append(sink *Sink, u *Usage) {
	if err := sink.Append(u); err != nil {
		s.log.Debugf("usage %s dropped: %v", u, err)
	}
}

// materialize returns the session's sink, creating it on first use. Only
// the goroutine whose compare-and-swap wins replays the stashed first
// usage and announces the sink.
func (s *Session) materialize() *Sink {
	if sink := s.sink.Load(); sink != nil {
		return sink
	}
	candidate := newSink(s.id, s.targets, s.presentation, &s.cancelled, s.Cancel)
	candidate.SetSearchInProgress(true)
	if !s.sink.CompareAndSwap(nil, candidate) {
		return s.sink.Load()
	}
	if first := s.first.Swap(nil); first != nil {
		s.append(candidate, first)
	}
	s.log.Debugf("results sink created")
	s.presenter.OpenResults(candidate)
	if hook := s.presentation.OnResultsCreated; hook != nil {
		hook(candidate)
	}
	return candidate
}

func (s *Session) promptTooMany(count int) {
	s.log.Infof("too many usages: %d", count)
	d := s.presenter.PromptTooMany(s.ctx, count)
	s.log.Debugf("too-many prompt answered: %s", d)
	s.ResolveThrottle(d)
}

// awaitThrottle paces producers while the prompt is open. The wait is
// bounded; a producer that times out simply carries on.
func (s *Session) awaitThrottle() {
	wait := s.presentation.ThrottleWait
	if wait <= 0 {
		wait = DefaultThrottleWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-s.decided:
	case <-s.ctx.Done():
	case <-timer.C:
	}
}

// run drives the source and guarantees finish runs exactly once, even when
// the source fails or panics.
func (s *Session) run() {
	var src Source
	defer close(s.done)
	defer s.cancelCtx()
	defer func() {
		if r := recover(); r != nil {
			s.failure = &ProducerError{Err: fmt.Errorf("panic: %v", r)}
		}
		if reporter, ok := src.(LargeFileReporter); ok {
			s.largeFiles = reporter.LargeFiles()
		}
		s.finish()
	}()

	s.notice.schedule()

	var err error
	src, err = s.factory()
	if err != nil {
		s.failure = &ProducerError{Err: err}
		return
	}
	if src == nil {
		s.failure = &ProducerError{Err: ErrNoSource}
		return
	}
	if err := src.Generate(s.ctx, s.OnUsage); err != nil && !s.isCancellation(err) {
		s.failure = &ProducerError{Err: err}
	}
}

func (s *Session) isCancellation(err error) bool {
	return s.ctx.Err() != nil &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

func (s *Session) finish() {
	if !s.finished.CompareAndSwap(false, true) {
		return
	}
	s.notice.stop()

	sink := s.sink.Load()
	res := Result{
		SessionID:  s.id,
		Targets:    s.targets,
		Scope:      s.presentation.ScopeText,
		Count:      s.Count(),
		Err:        s.failure,
		LargeFiles: s.largeFiles,
		StartedAt:  s.started,
		Duration:   time.Since(s.started),
	}
	res.Outcome = Decide(State{
		Count:          res.Count,
		ShowPanelIfOne: s.presentation.ShowPanelIfOne,
		SinkExists:     sink != nil,
		Cancelled:      s.stopped(),
		Failed:         s.failure != nil,
	})

	switch res.Outcome {
	case OutcomeNotFound:
		s.notFound()
	case OutcomeSingle:
		s.single()
	case OutcomeResults:
		s.results(sink, res)
	case OutcomeFailed:
		s.log.Errorf("search failed: %v", s.failure)
		s.presenter.Notify(notification(NotifyError, s.largeFiles, nil, s.failure.Error()))
	case OutcomeCancelled:
		s.log.Debugf("search ended after cancellation")
	}

	s.log.With("count", res.Count).With("outcome", res.Outcome).Infof("search finished in %s", res.Duration)
	s.result = res
	if hook := s.presentation.OnFinished; hook != nil {
		hook(res)
	}
	if s.onDone != nil {
		s.onDone(s, res)
	}
}

func (s *Session) notFound() {
	if !s.presentation.ShowNotFoundMessage {
		return
	}
	msg := NotFoundMessage(s.presentation)
	actions := s.presentation.NotFoundActions
	if len(actions) == 0 {
		s.presenter.Notify(notification(NotifyInfo, s.largeFiles, []Link{LinkFindOptions}, msg))
		return
	}
	choice := s.presenter.ChooseAction(s.ctx, msg, actions)
	if choice < 0 || choice >= len(actions) {
		return
	}
	action := actions[choice]
	s.log.Infof("running not-found action %q", action.Name)
	if err := action.Run(context.WithValue(s.parent, originKey{}, s)); err != nil {
		s.log.Errorf("not-found action %q failed: %v", action.Name, err)
		s.presenter.Notify(notification(NotifyError, nil, nil, fmt.Sprintf("%s failed: %v", action.Name, err)))
	}
}

type originKey struct{}

// Origin returns the session whose not-found action was handed ctx, or nil.
func Origin(ctx context.Context) *Session {
	s, _ := ctx.Value(originKey{}).(*Session)
	return s
}

func (s *Session) single() {
	u := s.first.Load()
	if u.CanNavigate() {
		if err := s.presenter.NavigateTo(u); err != nil {
			s.log.Warnf("navigate to %s: %v", u, err)
		}
	}
	s.presenter.Notify(notification(NotifyInfo, s.largeFiles, []Link{LinkFindOptions}, "Only one usage found."))
}

func (s *Session) results(sink *Sink, res Result) {
	sink.SetSearchInProgress(false)
	if err := s.presenter.ShowResults(sink, res.Count > 0); err != nil {
		s.log.Warnf("results view unavailable: %v", err)
		s.presenter.Notify(notification(NotifyInfo, s.largeFiles, nil, res.Summary()))
		return
	}
	if len(s.largeFiles) > 0 {
		s.presenter.Notify(notification(NotifyInfo, s.largeFiles, nil))
	}
}
