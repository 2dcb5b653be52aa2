package exchandler

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvariantError reports a structural impossibility found while rebuilding
// try regions. It means the input graph is inconsistent or the pass has a
// bug; the method cannot be decompiled with structured handlers.
type InvariantError struct {
	Method string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("exception handlers of %s: %s", e.Method, e.Reason)
}

func invariantf(method, format string, args ...any) error {
	return errors.WithStack(&InvariantError{
		Method: method,
		Reason: fmt.Sprintf(format, args...),
	})
}

// IsInvariantViolation reports whether err, or any error it wraps, is an
// InvariantError.
func IsInvariantViolation(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
