// Package queue serializes operations against remote locations.
//
// The scheduler guarantees at most one in-flight operation per logical
// location key: further requests for the same key queue behind the
// current one in submission order instead of running concurrently, so
// two publishes to the same remote target can never race. Operations on
// different keys interleave freely.
//
// Transient provider failures are retried with capped exponential
// backoff; every other error kind surfaces immediately.
package queue

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/SamTV12345/stackedit/internal/provider"
)

// globalKey is the location key of the global serial queue.
const globalKey = "\x00global"

// Config holds scheduler configuration.
type Config struct {
	// MaxRetries is the number of automatic retries for transient
	// failures. Zero disables retrying.
	MaxRetries int

	// RetryBase is the backoff before the first retry; it doubles per
	// attempt up to RetryCap.
	RetryBase time.Duration
	RetryCap  time.Duration

	// Logger for scheduler activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries: 3,
		RetryBase:  500 * time.Millisecond,
		RetryCap:   10 * time.Second,
		Logger:     log.New(os.Stderr, "[queue] ", log.LstdFlags),
	}
}

// Scheduler maintains one execution slot per location key.
type Scheduler struct {
	config *Config

	mu    sync.Mutex
	tails map[string]chan struct{}

	publishMu      sync.Mutex
	publishPending bool
}

// New creates a scheduler.
func New(config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		config: config,
		tails:  make(map[string]chan struct{}),
	}
}

// Do runs fn under the execution slot for key. If an operation for the
// same key is in flight, Do waits for it (and for any previously queued
// operations, in FIFO order) before starting fn.
//
// A context cancelled while waiting aborts the queued operation before
// it starts; fn is never invoked in that case.
func (s *Scheduler) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	prev := s.tails[key]
	done := make(chan struct{})
	s.tails[key] = done
	s.mu.Unlock()

	release := func() {
		close(done)
		s.mu.Lock()
		if s.tails[key] == done {
			delete(s.tails, key)
		}
		s.mu.Unlock()
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// The slot was never acquired. Closing done now would let
			// operations queued behind this one start while the
			// predecessor is still in flight, so hand the slot through
			// once the predecessor resolves.
			go func() {
				<-prev
				release()
			}()
			return ctx.Err()
		}
	}

	defer release()
	return s.runWithRetry(ctx, fn)
}

// Enqueue runs fn on the global serial queue. All globally enqueued
// operations execute in submission order.
func (s *Scheduler) Enqueue(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.Do(ctx, globalKey, fn)
}

// EnqueuePublishRequest coalesces publish requests: if one is already
// pending or running, the new request is dropped and false is returned.
func (s *Scheduler) EnqueuePublishRequest(ctx context.Context, fn func(ctx context.Context) error) (bool, error) {
	s.publishMu.Lock()
	if s.publishPending {
		s.publishMu.Unlock()
		return false, nil
	}
	s.publishPending = true
	s.publishMu.Unlock()

	err := s.Enqueue(ctx, fn)

	s.publishMu.Lock()
	s.publishPending = false
	s.publishMu.Unlock()
	return true, err
}

// runWithRetry executes fn, retrying transient failures with capped
// exponential backoff.
func (s *Scheduler) runWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := s.config.RetryBase
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !provider.IsRetryable(err) || attempt >= s.config.MaxRetries {
			return err
		}

		s.config.Logger.Printf("transient failure (attempt %d/%d), retrying in %v: %v",
			attempt+1, s.config.MaxRetries, backoff, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > s.config.RetryCap {
			backoff = s.config.RetryCap
		}
	}
}
