package pose

import "fmt"

// Error reports that no usable pose could be recovered from a landmark map.
// Callers skip whatever depended on the pose for the current frame.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pose: could not estimate projection: %s: %v", e.Reason, e.Err)
	}
	return "pose: could not estimate projection: " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

func failf(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}
