package usage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type fakePresenter struct {
	mu            sync.Mutex
	opened        []*Sink
	shown         []*Sink
	activated     []bool
	notifications []Notification
	navigated     []*Usage
	progress      []string
	dismissed     int

	prompts  atomic.Int32
	decision Decision
	choice   int
	choices  []string
	showErr  error
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{choice: -1}
}

func (f *fakePresenter) OpenResults(sink *Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, sink)
}

func (f *fakePresenter) ShowResults(sink *Sink, activate bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.showErr != nil {
		return f.showErr
	}
	sink.Drain()
	f.shown = append(f.shown, sink)
	f.activated = append(f.activated, activate)
	return nil
}

func (f *fakePresenter) Notify(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
}

func (f *fakePresenter) ShowProgress(title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, title)
}

func (f *fakePresenter) DismissProgress() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed++
}

func (f *fakePresenter) PromptTooMany(ctx context.Context, count int) Decision {
	f.prompts.Add(1)
	return f.decision
}

func (f *fakePresenter) ChooseAction(ctx context.Context, message string, actions []Action) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.choices = append(f.choices, message)
	return f.choice
}

func (f *fakePresenter) NavigateTo(u *Usage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, u)
	return nil
}

type presented struct {
	opened        []*Sink
	shown         []*Sink
	activated     []bool
	notifications []Notification
	navigated     []*Usage
	progress      []string
	dismissed     int
	choices       []string
}

func (f *fakePresenter) snapshot() presented {
	f.mu.Lock()
	defer f.mu.Unlock()
	return presented{
		opened:        append([]*Sink(nil), f.opened...),
		shown:         append([]*Sink(nil), f.shown...),
		activated:     append([]bool(nil), f.activated...),
		notifications: append([]Notification(nil), f.notifications...),
		navigated:     append([]*Usage(nil), f.navigated...),
		progress:      append([]string(nil), f.progress...),
		dismissed:     f.dismissed,
		choices:       append([]string(nil), f.choices...),
	}
}

// sliceSource feeds usages from a fixed number of goroutines.
type sliceSource struct {
	usages  []*Usage
	workers int
	large   []SkippedFile
}

func (s *sliceSource) Generate(ctx context.Context, consume Consumer) error {
	workers := s.workers
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(s.usages); i += workers {
				if ctx.Err() != nil || !consume(s.usages[i]) {
					return
				}
			}
		}(w)
	}
	wg.Wait()
	return nil
}

func (s *sliceSource) LargeFiles() []SkippedFile { return s.large }

type funcSource func(ctx context.Context, consume Consumer) error

func (f funcSource) Generate(ctx context.Context, consume Consumer) error { return f(ctx, consume) }

func factoryOf(src Source) SourceFactory {
	return func() (Source, error) { return src, nil }
}

func makeUsages(n int) []*Usage {
	out := make([]*Usage, n)
	for i := range out {
		out[i] = &Usage{Path: fmt.Sprintf("file%d.go", i%7), Line: i + 1, Column: 3, Text: "Foo()"}
	}
	return out
}

var fooTarget = Target{Name: "Foo", Kind: "func", Path: "decl.go", Line: 3, Column: 6}

func testPresentation() *Presentation {
	p := DefaultPresentation()
	p.UsagesWord = "usages of Foo"
	p.ProgressDelay = time.Hour
	p.ThrottleWait = 5 * time.Second
	return p
}
