package types

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrStopped is returned by a scan that observed its stop flag.
// It is a terminal state, not a failure.
var ErrStopped = errors.New("scan stopped")

// StopFlag is a cooperative cancellation flag shared by every stage of a scan.
// A nil *StopFlag is never stopped.
type StopFlag struct {
	stopped atomic.Bool
}

// NewStopFlag returns a cleared flag.
func NewStopFlag() *StopFlag { return &StopFlag{} }

// Stop sets the flag. Safe to call more than once.
func (s *StopFlag) Stop() {
	if s != nil {
		s.stopped.Store(true)
	}
}

// Stopped reports whether Stop has been called.
func (s *StopFlag) Stopped() bool {
	return s != nil && s.stopped.Load()
}

// StopOnDone returns a flag that is set once ctx is done.
func StopOnDone(ctx context.Context) *StopFlag {
	s := NewStopFlag()
	context.AfterFunc(ctx, s.Stop)
	return s
}
