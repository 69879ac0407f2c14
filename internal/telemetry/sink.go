package telemetry

import (
	"context"
	"errors"
)

// ErrSinkClosed is returned by writes after Close.
var ErrSinkClosed = errors.New("telemetry sink closed")

// #region sink

// Sink persists events. Implementations must be safe for concurrent use and
// must treat the log as append-only.
type Sink interface {
	Write(ctx context.Context, e Event) error
	Close() error
}

// #endregion sink

// #region multi

// MultiSink fans each event out to every sink. A failure in one sink does not
// stop the others; all errors are joined.
type MultiSink []Sink

// Write writes e to every sink.
func (m MultiSink) Write(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// #endregion multi

// #region discard

// Discard drops every event. Used when no sink is configured.
type Discard struct{}

func (Discard) Write(context.Context, Event) error { return nil }
func (Discard) Close() error                       { return nil }

// #endregion discard
