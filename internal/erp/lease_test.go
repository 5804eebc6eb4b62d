package erp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseTryAcquire(t *testing.T) {
	l := NewLease()

	release, err := l.TryAcquire()
	require.NoError(t, err)
	assert.True(t, l.Busy())

	_, err = l.TryAcquire()
	assert.ErrorIs(t, err, ErrBusy)

	release()
	release() // second call is a no-op
	assert.False(t, l.Busy())

	again, err := l.TryAcquire()
	require.NoError(t, err)
	again()
}

func TestLeaseAcquireHonorsContext(t *testing.T) {
	l := NewLease()
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLeaseIsExclusive(t *testing.T) {
	l := NewLease()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			defer release()

			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.False(t, l.Busy())
}

func TestLeaseReleasedOnErrorPath(t *testing.T) {
	l := NewLease()
	failing := func() error {
		release, err := l.Acquire(context.Background())
		if err != nil {
			return err
		}
		defer release()
		return errors.New("selector not found")
	}

	assert.Error(t, failing())
	assert.False(t, l.Busy())
}
