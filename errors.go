package recon

import "fmt"

// errorKind enumerates the error taxonomy defined by the reconstruction
// engine's error handling design.
type errorKind uint8

const (
	kindInvalidArgument errorKind = iota + 1
	kindNumericalError
	kindEmptyTrajectory
	kindMinimizationStalled
	kindCancelled
	kindLookupMiss
)

func (k errorKind) String() string {
	switch k {
	case kindInvalidArgument:
		return "InvalidArgument"
	case kindNumericalError:
		return "NumericalError"
	case kindEmptyTrajectory:
		return "EmptyTrajectory"
	case kindMinimizationStalled:
		return "MinimizationStalled"
	case kindCancelled:
		return "Cancelled"
	case kindLookupMiss:
		return "LookupMiss"
	default:
		return "Unknown"
	}
}

// reconError is the concrete error type returned by every public operation.
// It wraps a sentinel kind so callers can use errors.Is against the
// exported Err* sentinels below, and carries a human-readable message.
type reconError struct {
	kind errorKind
	msg  string
}

func (e *reconError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Is implements errors.Is matching against the package-level Err* sentinels.
func (e *reconError) Is(target error) bool {
	t, ok := target.(*reconError)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

func newError(k errorKind, format string, args ...interface{}) *reconError {
	return &reconError{kind: k, msg: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is(err, recon.ErrX) matching. Only the kind is
// compared, not the message, so these may be used directly as targets.
var (
	// ErrInvalidArgument signals a dimension mismatch or an out-of-range
	// index/argument given to a public operation.
	ErrInvalidArgument = &reconError{kind: kindInvalidArgument}
	// ErrNumericalError signals a NaN/Inf detected during integration, or
	// an interpolation request with no safe clamp available.
	ErrNumericalError = &reconError{kind: kindNumericalError}
	// ErrEmptyTrajectory signals a tracked trajectory with fewer than two
	// samples, insufficient for projection.
	ErrEmptyTrajectory = &reconError{kind: kindEmptyTrajectory}
	// ErrMinimizationStalled signals three consecutive fully-failing
	// minimizer iterations.
	ErrMinimizationStalled = &reconError{kind: kindMinimizationStalled}
	// ErrCancelled signals a cooperative cancellation observed at an
	// iteration boundary.
	ErrCancelled = &reconError{kind: kindCancelled}
	// ErrLookupMiss signals a pad-plane lookup outside the LUT bounds.
	// EventGenerator absorbs this internally; only direct PadPlane.PadAt
	// callers observe it.
	ErrLookupMiss = &reconError{kind: kindLookupMiss}
)
