package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable means the tier has no backend or the backend failed.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrBusy means the tier queue is full; the caller should retry later.
	ErrBusy = errors.New("tier busy, retry later")
	// ErrTimeout means the tier's hard wall-clock limit expired.
	ErrTimeout = errors.New("tier timed out")
)

// UnavailableError ties a backend failure to the tier that produced it.
type UnavailableError struct {
	Tier Tier
	err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s tier unavailable: %v", e.Tier, e.err)
}

func (e *UnavailableError) Unwrap() error {
	return e.err
}

// Is makes every UnavailableError match ErrModelUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrModelUnavailable
}

// NewUnavailableError wraps err as a model-unavailable failure on tier.
func NewUnavailableError(tier Tier, err error) error {
	if err == nil {
		err = ErrModelUnavailable
	}
	return &UnavailableError{Tier: tier, err: err}
}

// IsUnavailable reports whether err means the tier could not answer at all.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrModelUnavailable)
}

// IsTimeout reports whether err is a tier hard timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsBusy reports whether err is a full-queue rejection.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}
