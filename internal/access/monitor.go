package access

import (
	"context"
	"sync"
	"time"

	"tgcord/internal/constants"
	"tgcord/internal/models"
	"tgcord/internal/privacy"

	"github.com/sirupsen/logrus"
)

// Monitor re-validates ACCESS_OK chats on a low-frequency heartbeat and
// re-bootstraps the ones that lost access
type Monitor struct {
	bootstrap *Bootstrap
	interval  time.Duration
	logger    *logrus.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

func NewMonitor(bootstrap *Bootstrap, interval time.Duration, logger *logrus.Logger) *Monitor {
	if interval <= 0 {
		interval = constants.DefaultHeartbeatIntervalSec * time.Second
	}
	if logger == nil {
		logger = bootstrap.logger
	}
	return &Monitor{bootstrap: bootstrap, interval: interval, logger: logger}
}

// Start begins the heartbeat in the background
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.logger.Warn("Access monitor is already running")
		return
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(ctx, m.stopCh, m.done)
	m.logger.WithField("interval", m.interval.String()).Info("Access monitor started")
}

// Stop halts the heartbeat and waits for an in-flight check to finish
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.stopCh)
	done := m.done
	m.running = false
	m.mu.Unlock()

	<-done
	m.logger.Info("Access monitor stopped")
}

func (m *Monitor) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll runs one heartbeat over every known chat. ACCESS_OK chats are
// re-validated; chats without access get a fresh Ensure so a demotion or a
// failed startup bootstrap recovers on its own. Active join backoffs are
// left to expire.
func (m *Monitor) CheckAll(ctx context.Context) {
	for _, chatID := range m.bootstrap.Chats() {
		if ctx.Err() != nil {
			return
		}
		logger := m.logger.WithField("chat_id", privacy.MaskChatID(chatID))

		state, until := m.bootstrap.State(chatID)
		switch state {
		case models.AccessOK:
			if err := m.bootstrap.Validate(ctx, chatID); err != nil {
				logger.WithError(err).Warn("Access heartbeat failed")
			}
		case models.JoinBackoff:
			logger.WithField("until", until.Format(time.RFC3339)).Debug("Join backoff active, retrying later")
		default:
			if err := m.bootstrap.Ensure(ctx, chatID); err != nil {
				logger.WithError(err).Warn("Access recovery failed")
				continue
			}
			logger.Info("Access to source chat recovered")
		}
	}
}
