package usage

import "errors"

var (
	ErrNoTargets            = errors.New("no search targets")
	ErrNoSource             = errors.New("no usage source")
	ErrSinkClosed           = errors.New("results closed")
	ErrPresenterUnavailable = errors.New("results presenter unavailable")
)

// ProducerError wraps a failure of the usage source. Cancellation is never
// reported as a ProducerError.
type ProducerError struct {
	Err error
}

func (e *ProducerError) Error() string {
	return "usage source failed: " + e.Err.Error()
}

func (e *ProducerError) Unwrap() error {
	return e.Err
}
