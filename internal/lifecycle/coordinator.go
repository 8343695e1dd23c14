// Package lifecycle implements the graceful shutdown coordinator from
// spec §4.12: a broadcast signal, an ordered sequence of shutdown phases
// each running its handlers concurrently under a per-phase timeout, and
// a task counter used by long-running goroutines to report in-flight work.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Phase identifies one stage of the shutdown sequence. Phases run in the
// fixed order declared by Phases.
type Phase string

const (
	PhaseStopAccepting    Phase = "stop_accepting"
	PhaseDrainConnections Phase = "drain_connections"
	PhaseStopWorkers      Phase = "stop_workers"
	PhaseFlushCaches      Phase = "flush_caches"
	PhaseCloseDatabase    Phase = "close_database"
	PhaseCleanup          Phase = "cleanup"
)

// Phases is the shutdown sequence in execution order.
var Phases = []Phase{
	PhaseStopAccepting,
	PhaseDrainConnections,
	PhaseStopWorkers,
	PhaseFlushCaches,
	PhaseCloseDatabase,
	PhaseCleanup,
}

// Handler runs during a shutdown phase.
type Handler func(ctx context.Context) error

// Coordinator broadcasts a shutdown signal and drives the ordered phase
// sequence. Subsystems subscribe to ShutdownCh to learn that shutdown has
// begun, and register Handlers under the phase they need to act on.
type Coordinator struct {
	mu       sync.RWMutex
	handlers map[Phase][]Handler
	logger   *slog.Logger

	shuttingDown int32
	shutdownCh   chan struct{}
	once         sync.Once
}

// New constructs a Coordinator. logger defaults to slog.Default if nil.
func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		handlers:   make(map[Phase][]Handler),
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
}

// On registers a handler to run during phase.
func (c *Coordinator) On(phase Phase, h Handler) {
	if h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[phase] = append(c.handlers[phase], h)
}

// IsShuttingDown reports whether Shutdown has been called.
func (c *Coordinator) IsShuttingDown() bool {
	return atomic.LoadInt32(&c.shuttingDown) != 0
}

// ShutdownCh returns a channel that closes the moment Shutdown is called,
// before any phase handler runs. Subsystems select on it to exit their
// main loops.
func (c *Coordinator) ShutdownCh() <-chan struct{} {
	return c.shutdownCh
}

// Shutdown flips the shutdown flag, broadcasts on ShutdownCh, then runs
// every registered phase in order. Each phase's handlers run concurrently
// against a deadline of totalTimeout / len(Phases); a handler that times
// out or errors is logged and the phase is considered complete regardless,
// so the sequence always reaches Cleanup.
func (c *Coordinator) Shutdown(ctx context.Context, totalTimeout time.Duration) {
	c.once.Do(func() {
		atomic.StoreInt32(&c.shuttingDown, 1)
		close(c.shutdownCh)
	})

	perPhase := totalTimeout / time.Duration(len(Phases))

	for _, phase := range Phases {
		c.mu.RLock()
		handlers := append([]Handler(nil), c.handlers[phase]...)
		c.mu.RUnlock()

		if len(handlers) == 0 {
			continue
		}

		phaseCtx, cancel := context.WithTimeout(ctx, perPhase)
		c.runPhase(phaseCtx, phase, handlers)
		cancel()
	}
}

func (c *Coordinator) runPhase(ctx context.Context, phase Phase, handlers []Handler) {
	var wg sync.WaitGroup
	for i, h := range handlers {
		wg.Add(1)
		go func(i int, h Handler) {
			defer wg.Done()
			done := make(chan error, 1)
			go func() { done <- h(ctx) }()
			select {
			case err := <-done:
				if err != nil {
					c.logger.Error("shutdown handler failed", "phase", phase, "index", i, "error", err)
				}
			case <-ctx.Done():
				c.logger.Warn("shutdown handler timed out", "phase", phase, "index", i)
			}
		}(i, h)
	}
	wg.Wait()
}
