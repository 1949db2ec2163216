package trial

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a contract violation raised by the trial context.
type ErrorKind int

const (
	// KindConfiguration marks an invalid call ordering or an invalid combination of
	// distributed, mixed-precision and aggregation settings. Fixed at construction time.
	KindConfiguration ErrorKind = iota + 1
	// KindInternal marks an accessor called before its prerequisite state exists,
	// e.g. the batch index before training started.
	KindInternal
	// KindInvalidUsage marks runtime misuse, e.g. repeated backward calls per batch
	// under mixed precision and distributed training.
	KindInvalidUsage
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindInternal:
		return "internal error"
	case KindInvalidUsage:
		return "invalid usage"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is returned for every contract violation. Use errors.Is with
// ErrConfiguration, ErrInternal or ErrInvalidUsage to classify it.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Sentinels for errors.Is.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrInternal      = &Error{Kind: KindInternal}
	ErrInvalidUsage  = &Error{Kind: KindInvalidUsage}
)

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

func newError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func configurationError(err error) error { return newError(KindConfiguration, err) }

func configurationErrorf(format string, args ...interface{}) error {
	return newError(KindConfiguration, errors.Errorf(format, args...))
}

func internalErrorf(format string, args ...interface{}) error {
	return newError(KindInternal, errors.Errorf(format, args...))
}

func invalidUsageErrorf(format string, args ...interface{}) error {
	return newError(KindInvalidUsage, errors.Errorf(format, args...))
}
