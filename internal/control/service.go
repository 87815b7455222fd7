// Package control owns the engine lifecycle: one worker at a time, started
// with per-request credentials and stopped through a bounded cancellation.
package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"rsibot/internal/config"
	"rsibot/internal/engine"

	"go.uber.org/zap"
)

type RunState string

const (
	StateStopped  RunState = "STOPPED"
	StateRunning  RunState = "RUNNING"
	StateStopping RunState = "STOPPING"
)

var (
	ErrAlreadyRunning = errors.New("engine already running")
	ErrNotRunning     = errors.New("engine not running")
)

// Runner is what the service drives; satisfied by *engine.Engine.
type Runner interface {
	Run(ctx context.Context) error
	Status() map[string]engine.SymbolStatus
}

// Factory builds a runner for one start request. Construction failures
// (bad credentials shape, store errors) surface through Start.
type Factory func(creds config.Credentials) (Runner, error)

type Service struct {
	log        *zap.Logger
	newRunner  Factory
	mu         sync.Mutex
	runState   RunState
	cancel     context.CancelFunc
	done       chan struct{}
	lastRunner Runner
}

func NewService(newRunner Factory, log *zap.Logger) *Service {
	return &Service{
		log:       log,
		newRunner: newRunner,
		runState:  StateStopped,
	}
}

// Start rejects missing credentials before any worker is spawned and refuses
// to run two workers at once. The worker owns its own context; stopping goes
// through Stop, never through the caller's request context.
func (s *Service) Start(creds config.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runState != StateStopped {
		return ErrAlreadyRunning
	}
	runner, err := s.newRunner(creds)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.lastRunner = runner
	s.runState = StateRunning
	go func() {
		defer close(done)
		err := runner.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("engine terminated", zap.Error(err))
		}
		s.mu.Lock()
		s.runState = StateStopped
		s.mu.Unlock()
	}()
	return nil
}

// Stop cancels the worker and waits up to timeout for it to drain. A timeout
// still counts as an accepted stop; shutdown completes in the background.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.runState != StateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.runState = StateStopping
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(timeout):
		s.log.Warn("engine shutdown timed out; stop accepted", zap.Duration("timeout", timeout))
	}
	return nil
}

func (s *Service) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runState
}

// Status returns the last runner's per-symbol view; ok is false before the
// first start.
func (s *Service) Status() (map[string]engine.SymbolStatus, bool) {
	s.mu.Lock()
	runner := s.lastRunner
	s.mu.Unlock()
	if runner == nil {
		return nil, false
	}
	return runner.Status(), true
}
