package zkproof

import (
	"errors"
	"fmt"
)

// ErrUnavailable is the sentinel matched by errors.Is for every way the
// proof backend can fail without producing a usable result: timeout,
// missing binary, process crash, malformed output. It is never fatal to
// the caller; the orchestrator degrades to the manual decision.
var ErrUnavailable = errors.New("zkproof: backend unavailable")

// Unavailable carries the concrete cause of a backend failure for the
// decision's diagnostic field.
type Unavailable struct {
	Cause string // short machine-readable cause: "timeout", "missing_binary", ...
	Err   error  // underlying error, may be nil
}

func (u *Unavailable) Error() string {
	if u.Err != nil {
		return fmt.Sprintf("zkproof: backend unavailable (%s): %v", u.Cause, u.Err)
	}
	return fmt.Sprintf("zkproof: backend unavailable (%s)", u.Cause)
}

// Is makes errors.Is(err, ErrUnavailable) hold for all Unavailable values.
func (u *Unavailable) Is(target error) bool { return target == ErrUnavailable }

func (u *Unavailable) Unwrap() error { return u.Err }

func unavailable(cause string, err error) *Unavailable {
	return &Unavailable{Cause: cause, Err: err}
}
