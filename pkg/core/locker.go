// Package core provides the main Organizer client and memory organization functionality.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// agentLocker serializes organization operations per agent.
//
// Each agent gets a weighted semaphore of capacity 1. Operations on
// different agents proceed concurrently; operations on the same agent
// queue up to the configured timeout and then fail with ErrBusy.
type agentLocker struct {
	mu      sync.Mutex
	locks   map[uint64]*semaphore.Weighted
	timeout time.Duration
}

// newAgentLocker creates a lock table with the given acquisition timeout.
// A zero timeout means acquisition never waits.
func newAgentLocker(timeout time.Duration) *agentLocker {
	return &agentLocker{
		locks:   make(map[uint64]*semaphore.Weighted),
		timeout: timeout,
	}
}

// lockFor returns the agent's semaphore, creating it on first use.
func (l *agentLocker) lockFor(agentID uint64) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[agentID]
	if !ok {
		lock = semaphore.NewWeighted(1)
		l.locks[agentID] = lock
	}
	return lock
}

// acquire takes the agent's lock, waiting up to the configured timeout.
//
// Returns ErrBusy when the lock is held past the timeout and ErrCancelled
// when the caller's context ends first. On success the returned release
// function must be called exactly once.
func (l *agentLocker) acquire(ctx context.Context, agentID uint64) (func(), error) {
	lock := l.lockFor(agentID)

	if l.timeout <= 0 {
		if !lock.TryAcquire(1) {
			return nil, fmt.Errorf("%w: agent %d", ErrBusy, agentID)
		}
		return func() { lock.Release(1) }, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := lock.Acquire(waitCtx, 1); err != nil {
		// Distinguish the caller giving up from the lock timing out.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: agent %d: %v", ErrCancelled, agentID, ctx.Err())
		}
		return nil, fmt.Errorf("%w: agent %d", ErrBusy, agentID)
	}
	return func() { lock.Release(1) }, nil
}
