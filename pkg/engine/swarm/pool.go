package swarm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Task is one unit of work.
type Task func(ctx context.Context) error

// Pool runs tasks concurrently under the AIMD limit. Errors are collected,
// not fail-fast: one bad device export must not abort a fleet ingestion.
type Pool struct {
	ctrl *AIMD

	// Contention classifies task errors that should shrink the limit.
	// Nil means no error is treated as contention.
	Contention func(error) bool

	mu     sync.Mutex
	cond   *sync.Cond
	active int
	errs   []error
	wg     sync.WaitGroup
}

// NewPool builds a pool with the given starting limit. The limit floor is 1
// and the ceiling is 16x the start, which is plenty for device ingestion.
func NewPool(concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = 4
	}
	p := &Pool{ctrl: NewAIMD(concurrency, 1, concurrency*16)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Go schedules a task. It blocks only for scheduling, never for execution.
func (p *Pool) Go(ctx context.Context, t Task) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.acquire(ctx); err != nil {
			p.record(err)
			return
		}
		defer p.release()

		start := time.Now()
		err := t(ctx)
		p.ctrl.Feedback(time.Since(start), err != nil && p.Contention != nil && p.Contention(err))
		if err != nil {
			p.record(err)
		}
	}()
}

// Wait blocks until every scheduled task finished and returns the joined
// errors, nil when all succeeded.
func (p *Pool) Wait() error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}

// Concurrency exposes the current adaptive limit.
func (p *Pool) Concurrency() int {
	return p.ctrl.Concurrency()
}

func (p *Pool) acquire(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.active >= p.ctrl.Concurrency() {
		if err := ctx.Err(); err != nil {
			return err
		}
		// cond has no context hook; wake-ups come from release().
		p.cond.Wait()
	}
	p.active++
	return nil
}

func (p *Pool) release() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *Pool) record(err error) {
	p.mu.Lock()
	p.errs = append(p.errs, err)
	p.mu.Unlock()
}
