package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tutti/logger"
)

// Monitor periodically logs the session status
type Monitor struct {
	session  *Session
	interval time.Duration
	logger   *slog.Logger
	wg       *sync.WaitGroup
}

// NewMonitor creates a new Monitor instance
func NewMonitor(s *Session, interval time.Duration, wg *sync.WaitGroup) *Monitor {
	return &Monitor{
		session:  s,
		interval: interval,
		logger:   logger.WithComponent("session-monitor"),
		wg:       wg,
	}
}

// Start begins status logging until ctx is done
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				st := m.session.Status()
				m.logger.Debug("Session status",
					slog.String("state", st.State.String()),
					slog.String("play_state", st.PlayState.String()),
					slog.Duration("position", st.Position),
					slog.Int("loading", st.Loading),
					slog.Int("queued", st.Pending))
			case <-ctx.Done():
				return
			}
		}
	}()
}
