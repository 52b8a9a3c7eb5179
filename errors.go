package vermaster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/vermaster/master"
	"github.com/unkn0wn-root/vermaster/vc"
)

var (
	ErrNilBacking = errors.New("vermaster: backing master is required")
	// ErrAmbiguous reports corrupt cache state: several cached documents of
	// one object claim the same bitemporal coordinate.
	ErrAmbiguous = errors.New("vermaster: ambiguous cache state")
)

type AmbiguousError struct {
	ObjectID          master.ObjectID
	VersionCorrection vc.VersionCorrection
	Matches           []master.UniqueID
}

func (e *AmbiguousError) Error() string {
	ids := make([]string, len(e.Matches))
	for i, u := range e.Matches {
		ids[i] = u.String()
	}
	return fmt.Sprintf("vermaster: %d cached documents of %s match %s: %s",
		len(e.Matches), e.ObjectID, e.VersionCorrection, strings.Join(ids, ", "))
}

func (e *AmbiguousError) Is(target error) bool { return target == ErrAmbiguous }

type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q failed: gen bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate %q: gen bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Key)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("vermaster: closed")

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
