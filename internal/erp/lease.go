package erp

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned by TryAcquire while another operation holds the
// browser session.
var ErrBusy = errors.New("erp: browser session is busy")

// Lease serializes access to the single browser session. At most one
// holder exists at a time; the release func returned by Acquire must be
// called on every exit path, typically with defer.
type Lease struct {
	slot chan struct{}
}

func NewLease() *Lease {
	return &Lease{slot: make(chan struct{}, 1)}
}

// Acquire blocks until the session is free or ctx is done.
func (l *Lease) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case l.slot <- struct{}{}:
		return l.releaser(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire takes the session only if it is free right now.
func (l *Lease) TryAcquire() (release func(), err error) {
	select {
	case l.slot <- struct{}{}:
		return l.releaser(), nil
	default:
		return nil, ErrBusy
	}
}

// Busy reports whether the session is currently held.
func (l *Lease) Busy() bool {
	return len(l.slot) > 0
}

// releaser returns an idempotent release func so a double release cannot
// free someone else's hold.
func (l *Lease) releaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-l.slot })
	}
}
