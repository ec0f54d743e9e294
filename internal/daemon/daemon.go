package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DaemonFunc represents the work a daemon does.
type DaemonFunc func(ctx context.Context, name string) error

// DaemonManager supervises multiple daemons.
type DaemonManager struct {
	daemons map[string]DaemonFunc
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDaemonManager creates a new manager.
func NewDaemonManager(logger *slog.Logger) *DaemonManager {
	return &DaemonManager{
		daemons: make(map[string]DaemonFunc),
		logger:  logger,
	}
}

// Add registers a daemon by name.
func (m *DaemonManager) Add(name string, fn DaemonFunc) {
	m.daemons[name] = fn
}

// Start runs all daemons and restarts them if they crash.
func (m *DaemonManager) Start(ctx context.Context) {
	for name, fn := range m.daemons {
		m.wg.Add(1)
		go m.runDaemon(ctx, name, fn)
	}
}

// Wait blocks until all daemons have stopped.
func (m *DaemonManager) Wait() {
	m.wg.Wait()
}

// runDaemon supervises a single daemon, restarting on error.
func (m *DaemonManager) runDaemon(ctx context.Context, name string, fn DaemonFunc) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Daemon received shutdown signal", "daemon", name)
			return
		default:
			err := fn(ctx, name)
			if err != nil {
				m.logger.Error("Daemon crashed, restarting in 2s", "daemon", name, "error", err)
				time.Sleep(2 * time.Second)
				continue
			}
			m.logger.Info("Daemon exited cleanly", "daemon", name)
			return
		}
	}
}
