package web

// limiter.go caps how many sed jobs run at once. A job may hold a
// subprocess per column and a streamed request body. Requests wait up to
// maxWait for a slot before failing with ErrTooManyJobs.
//
// WaitForDrain lets shutdown block until running jobs finish.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyJobs is returned when no job slot frees up within the wait
// timeout. Clients should retry after a short delay.
var ErrTooManyJobs = errors.New("too many concurrent jobs, please try again later")

// DefaultMaxConcurrentJobs is used when the configured limit is not positive.
const DefaultMaxConcurrentJobs = 5

// DefaultMaxWaitTime is used when the configured wait is not positive.
const DefaultMaxWaitTime = 30 * time.Second

// JobLimiter bounds concurrent sed jobs.
type JobLimiter struct {
	sem     *semaphore.Weighted
	max     int
	maxWait time.Duration

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewJobLimiter allows at most maxConcurrent jobs; callers wait up to
// maxWait for a slot.
func NewJobLimiter(maxConcurrent int, maxWait time.Duration) *JobLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentJobs
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &JobLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     maxConcurrent,
		maxWait: maxWait,
	}
}

// Acquire takes a job slot. It returns ErrTooManyJobs when the wait times
// out and ctx's error when ctx ends first. The caller must call Release
// after a successful Acquire.
func (l *JobLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.rejected.Add(1)
		return ErrTooManyJobs
	}
	l.active.Add(1)
	return nil
}

// TryAcquire takes a slot without waiting.
func (l *JobLimiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.active.Add(1)
	return true
}

// Release frees a slot and records the job outcome.
func (l *JobLimiter) Release(err error) {
	if err != nil {
		l.failed.Add(1)
	} else {
		l.completed.Add(1)
	}
	l.active.Add(-1)
	l.sem.Release(1)
}

// ActiveCount returns the number of running jobs.
func (l *JobLimiter) ActiveCount() int { return int(l.active.Load()) }

// MaxConcurrent returns the configured limit.
func (l *JobLimiter) MaxConcurrent() int { return l.max }

// WaitForDrain blocks until no job is running or ctx ends.
func (l *JobLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// JobLimiterStatus is a point-in-time snapshot for /api/status.
type JobLimiterStatus struct {
	Active        int   `json:"active"`
	Available     int   `json:"available"`
	MaxConcurrent int   `json:"max_concurrent"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Rejected      int64 `json:"rejected"`
}

// Status returns the current limiter state.
func (l *JobLimiter) Status() JobLimiterStatus {
	active := l.ActiveCount()
	return JobLimiterStatus{
		Active:        active,
		Available:     l.max - active,
		MaxConcurrent: l.max,
		Completed:     l.completed.Load(),
		Failed:        l.failed.Load(),
		Rejected:      l.rejected.Load(),
	}
}
