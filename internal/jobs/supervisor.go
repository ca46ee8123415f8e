// Package jobs runs named background tasks that are restarted after a panic
// or an error until their context is cancelled.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrDuplicateJob = errors.New("job is already running")

type Task func(ctx context.Context) error

type Supervisor struct {
	ctx        context.Context
	logger     *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	mu      sync.Mutex
	running map[string]int
	wg      sync.WaitGroup
}

func NewSupervisor(ctx context.Context, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		ctx:        ctx,
		logger:     logger,
		minBackoff: 5 * time.Second,
		maxBackoff: time.Minute,
		running:    make(map[string]int),
	}
}

func (s *Supervisor) WithBackoff(minBackoff, maxBackoff time.Duration) *Supervisor {
	s.minBackoff = minBackoff
	s.maxBackoff = maxBackoff
	return s
}

// Go starts task under name. A task that returns nil is finished; a panic or
// an error restarts it after a backoff that doubles up to the maximum.
func (s *Supervisor) Go(name string, task Task) error {
	s.mu.Lock()
	if _, exists := s.running[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	s.running[name] = 0
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, name)
			s.mu.Unlock()
		}()
		s.supervise(name, task)
	}()
	return nil
}

func (s *Supervisor) supervise(name string, task Task) {
	backoff := s.minBackoff
	for {
		err := s.runOnce(name, task)
		if s.ctx.Err() != nil {
			s.logger.Info("job stopped", zap.String("job", name))
			return
		}
		if err == nil {
			s.logger.Info("job finished", zap.String("job", name))
			return
		}

		s.mu.Lock()
		s.running[name]++
		restarts := s.running[name]
		s.mu.Unlock()
		s.logger.Error("job failed, restarting",
			zap.String("job", name),
			zap.Int("restarts", restarts),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			s.logger.Info("job stopped", zap.String("job", name))
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}

func (s *Supervisor) runOnce(name string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked",
				zap.String("job", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(s.ctx)
}

// Running lists the names of live jobs.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.running))
	for name := range s.running {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Restarts reports how many times the named job has been restarted.
func (s *Supervisor) Restarts(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[name]
}

// Wait blocks until every job has returned. Jobs only return for good once the
// supervisor's context is cancelled or they finish cleanly.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Every returns a task that calls fn immediately and then on every tick.
func Every(interval time.Duration, fn func(ctx context.Context)) Task {
	return func(ctx context.Context) error {
		fn(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				fn(ctx)
			}
		}
	}
}
