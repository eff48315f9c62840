package services

import (
	"sync"

	"go.uber.org/zap"
)

// LifecycleCoordinator collects teardown steps while a session spins up and
// runs them exactly once, in reverse registration order, on shutdown. A step
// that panics is logged and skipped, the remaining steps still run.
type LifecycleCoordinator struct {
	logger *zap.Logger

	mu    sync.Mutex
	steps []teardownStep
	done  bool
	once  sync.Once
}

type teardownStep struct {
	name string
	fn   func()
}

func NewLifecycleCoordinator(logger *zap.Logger) *LifecycleCoordinator {
	return &LifecycleCoordinator{logger: logger}
}

// Register adds a named teardown step. Registering after Shutdown runs the
// step immediately, so a late-acquired resource is never leaked.
func (lc *LifecycleCoordinator) Register(name string, fn func()) {
	if fn == nil {
		return
	}

	lc.mu.Lock()
	if lc.done {
		lc.mu.Unlock()
		lc.runStep(teardownStep{name: name, fn: fn})
		return
	}
	lc.steps = append(lc.steps, teardownStep{name: name, fn: fn})
	lc.mu.Unlock()
}

// Shutdown executes all registered steps LIFO. Safe to call concurrently and
// repeatedly; only the first call does work.
func (lc *LifecycleCoordinator) Shutdown() {
	lc.once.Do(func() {
		lc.mu.Lock()
		lc.done = true
		steps := lc.steps
		lc.steps = nil
		lc.mu.Unlock()

		for i := len(steps) - 1; i >= 0; i-- {
			lc.runStep(steps[i])
		}
	})
}

func (lc *LifecycleCoordinator) runStep(step teardownStep) {
	defer func() {
		if r := recover(); r != nil {
			lc.logger.Error("teardown step panicked",
				zap.String("step", step.name),
				zap.Any("panic", r))
		}
	}()
	step.fn()
}

// Done reports whether Shutdown has been called.
func (lc *LifecycleCoordinator) Done() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.done
}
