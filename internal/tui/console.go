package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pders01/usages/internal/usage"
)

// Console is a line-oriented usage.Presenter for pipes and dumb terminals.
// Prompts read answers from in; without in they take the default answer.
type Console struct {
	mu   sync.Mutex
	out  io.Writer
	in   *bufio.Reader
	base string

	// A single reader goroutine owns in; prompts receive its lines.
	startReader sync.Once
	lines       chan string

	// Open is called for the usage the search navigates to. Optional.
	Open func(u *usage.Usage) error
}

var _ usage.Presenter = (*Console)(nil)

// NewConsole writes to out and reads answers from in, which may be nil.
// Paths are printed relative to base when possible.
func NewConsole(out io.Writer, in io.Reader, base string) *Console {
	c := &Console{out: out, base: base}
	if in != nil {
		c.in = bufio.NewReader(in)
	}
	return c
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) OpenResults(sink *usage.Sink) {
	c.printf("%s\n", HeaderStyle.Render("› "+usage.TargetNames(sink.Targets())))
}

// ShowResults prints every usage not printed yet.
func (c *Console) ShowResults(sink *usage.Sink, activate bool) error {
	for _, u := range sink.Drain() {
		c.printf("%s:%d:%d: %s\n", relativePath(u.Path, c.base), u.Line, u.Column, strings.TrimSpace(u.Text))
	}
	return nil
}

func (c *Console) Notify(n usage.Notification) {
	kind := StatusInfo
	switch n.Kind {
	case usage.NotifyWarning:
		kind = StatusWarn
	case usage.NotifyError:
		kind = StatusError
	}
	c.printf("%s\n", statusStyle(kind).Render(n.Message()))
	for _, line := range n.Details {
		c.printf("  %s\n", line)
	}
}

func (c *Console) ShowProgress(title string) {
	c.printf("%s\n", StatusInfoStyle.Render(title+"…"))
}

func (c *Console) DismissProgress() {}

func (c *Console) PromptTooMany(ctx context.Context, count int) usage.Decision {
	if c.in == nil {
		return usage.DecisionContinue
	}
	c.printf("%s [Y/n] ", MsgTooMany(count))
	answer, ok := c.readLine(ctx)
	if !ok {
		return usage.DecisionAbort
	}
	switch strings.ToLower(answer) {
	case "", "y", "yes", "c":
		return usage.DecisionContinue
	default:
		return usage.DecisionAbort
	}
}

func (c *Console) ChooseAction(ctx context.Context, message string, actions []usage.Action) int {
	c.printf("%s\n", message)
	if c.in == nil || len(actions) == 0 {
		return -1
	}
	for i, a := range actions {
		c.printf("  %d) %s\n", i+1, a.Name)
	}
	c.printf("Choose [1-%d, enter for none]: ", len(actions))
	answer, ok := c.readLine(ctx)
	if !ok || answer == "" {
		return -1
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(actions) {
		return -1
	}
	return n - 1
}

func (c *Console) NavigateTo(u *usage.Usage) error {
	c.printf("%s: %s\n", relativePath(u.Path, c.base)+fmt.Sprintf(":%d:%d", u.Line, u.Column), strings.TrimSpace(u.Text))
	if c.Open != nil {
		return c.Open(u)
	}
	return nil
}

// readLine returns the next trimmed line from in. It gives up when ctx is
// done; a line that arrives later is kept for the next prompt.
func (c *Console) readLine(ctx context.Context) (string, bool) {
	c.startReader.Do(func() {
		c.lines = make(chan string)
		go c.readLoop()
	})
	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", false
		}
		return strings.TrimSpace(line), true
	case <-ctx.Done():
		return "", false
	}
}

func (c *Console) readLoop() {
	defer close(c.lines)
	for {
		line, err := c.in.ReadString('\n')
		if line != "" {
			c.lines <- line
		}
		if err != nil {
			return
		}
	}
}
