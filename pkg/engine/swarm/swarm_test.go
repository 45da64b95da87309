package swarm

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

func TestAIMDHalvesOnContention(t *testing.T) {
	a := NewAIMD(8, 1, 64)
	a.lastChange = time.Now().Add(-time.Second)
	a.Feedback(10*time.Millisecond, true)
	assert.Equal(t, 4, a.Concurrency())
}

func TestAIMDRespectsFloor(t *testing.T) {
	a := NewAIMD(2, 2, 64)
	for i := 0; i < 5; i++ {
		a.lastChange = time.Now().Add(-time.Second)
		a.Feedback(10*time.Millisecond, true)
	}
	assert.Equal(t, 2, a.Concurrency())
}

func TestAIMDGrowsAdditively(t *testing.T) {
	a := NewAIMD(4, 1, 6)
	for i := 0; i < 5; i++ {
		a.lastChange = time.Now().Add(-time.Second)
		a.Feedback(5*time.Millisecond, false)
	}
	assert.Equal(t, 6, a.Concurrency(), "growth stops at the ceiling")
}

func TestAIMDDampensRapidAdjustments(t *testing.T) {
	a := NewAIMD(8, 1, 64)
	a.lastChange = time.Now().Add(-time.Second)
	a.Feedback(10*time.Millisecond, true)
	a.Feedback(10*time.Millisecond, true) // within the damping window
	assert.Equal(t, 4, a.Concurrency())
}

func TestPoolRunsEverythingAndJoinsErrors(t *testing.T) {
	p := NewPool(4)
	var ran atomic.Int32
	boom := errors.New("boom")

	for i := 0; i < 20; i++ {
		fail := i%5 == 0
		p.Go(context.Background(), func(ctx context.Context) error {
			ran.Add(1)
			if fail {
				return boom
			}
			return nil
		})
	}

	err := p.Wait()
	assert.Equal(t, int32(20), ran.Load(), "errors must not stop the rest of the batch")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestPoolHonorsConcurrencyLimit(t *testing.T) {
	p := NewPool(3)
	var mu sync.Mutex
	active, peak := 0, 0

	for i := 0; i < 30; i++ {
		p.Go(context.Background(), func(ctx context.Context) error {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, p.Wait())
	// The adaptive limit can grow while the batch drains, but never past
	// the configured ceiling.
	assert.LessOrEqual(t, peak, 3*16)
	assert.Greater(t, peak, 0)
}

func TestPoolContentionShrinksLimit(t *testing.T) {
	p := NewPool(8)
	p.ctrl.lastChange = time.Now().Add(-time.Second)
	conflict := errors.New("conflict")
	p.Contention = func(err error) bool { return errors.Is(err, conflict) }

	p.Go(context.Background(), func(ctx context.Context) error { return conflict })
	_ = p.Wait()

	assert.Less(t, p.Concurrency(), 8)
}
