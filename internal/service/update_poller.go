package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tgcord/internal/constants"
	"tgcord/internal/metrics"
	"tgcord/internal/models"
	"tgcord/internal/retry"
	"tgcord/pkg/telegram"

	"github.com/sirupsen/logrus"
)

// UpdateSource is the part of the bot client the poller needs
type UpdateSource interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]telegram.Update, error)
	DeleteWebhook(ctx context.Context) error
}

// EventSink accepts converted message events
type EventSink interface {
	Dispatch(ev *models.MessageEvent) bool
}

// UpdatePoller long-polls the Bot API and feeds message updates to the sink
type UpdatePoller struct {
	bot        UpdateSource
	sink       EventSink
	timeoutSec int
	backoff    *retry.Backoff
	logger     *logrus.Logger

	offset  int64
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewUpdatePoller creates a new Bot API polling service
func NewUpdatePoller(bot UpdateSource, sink EventSink, timeoutSec int, retryConfig models.RetryConfig, logger *logrus.Logger) *UpdatePoller {
	if timeoutSec <= 0 {
		timeoutSec = constants.DefaultPollTimeoutSec
	}
	initial := retryConfig.InitialBackoffMs
	if initial <= 0 {
		initial = constants.DefaultRetryBackoffMs
	}
	maxDelay := retryConfig.MaxBackoffMs
	if maxDelay <= 0 {
		maxDelay = constants.DefaultMaxBackoffMs
	}
	maxDelay = max(maxDelay, initial)
	return &UpdatePoller{
		bot:        bot,
		sink:       sink,
		timeoutSec: timeoutSec,
		backoff: retry.NewBackoff(retry.BackoffConfig{
			InitialDelay: time.Duration(initial) * time.Millisecond,
			MaxDelay:     time.Duration(maxDelay) * time.Millisecond,
			Multiplier:   2,
			MaxAttempts:  1,
			Jitter:       true,
		}),
		logger: defaultLogger(logger),
	}
}

// Start checks the bot token, drops any webhook registration (the Bot API
// refuses getUpdates while one is set) and begins polling.
func (p *UpdatePoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("update poller is already running")
	}

	me, err := p.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach Telegram Bot API before starting poller: %w", err)
	}
	if err := p.bot.DeleteWebhook(ctx); err != nil {
		return fmt.Errorf("failed to clear webhook before polling: %w", err)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	p.wg.Add(1)
	go p.pollLoop()

	p.logger.WithFields(logrus.Fields{
		"bot":         me.Username,
		"timeout_sec": p.timeoutSec,
	}).Info("Update poller started successfully")
	return nil
}

// Stop gracefully stops the polling process
func (p *UpdatePoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.logger.Info("Stopping update poller...")
	p.cancel()
	p.wg.Wait()
	p.running = false
	p.logger.Info("Update poller stopped")
}

// IsRunning returns whether the poller is currently active
func (p *UpdatePoller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Offset is the next update id the poller will ask for.
func (p *UpdatePoller) Offset() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.offset
}

func (p *UpdatePoller) pollLoop() {
	defer p.wg.Done()

	attempt := 0
	for {
		if p.ctx.Err() != nil {
			return
		}

		err := p.PollOnce(p.ctx)
		if err == nil {
			attempt = 0
			continue
		}
		if p.ctx.Err() != nil {
			return
		}

		attempt++
		delay := p.backoff.GetNextDelay(attempt)
		p.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldAttempt: attempt,
			"retry_in":      delay.String(),
		}).Warn("Telegram polling failed, retrying with backoff")
		if err := retry.Sleep(p.ctx, delay); err != nil {
			return
		}
	}
}

// PollOnce fetches one batch of updates and dispatches their messages. The
// offset advances past every update handed off, including ones without a
// message. An update the sink refuses stays unacknowledged so the Bot API
// delivers it again.
func (p *UpdatePoller) PollOnce(ctx context.Context) error {
	p.mu.RLock()
	offset := p.offset
	p.mu.RUnlock()

	updates, err := p.bot.GetUpdates(ctx, offset, p.timeoutSec)
	if err != nil {
		return err
	}

	var refused error
	for i := range updates {
		u := &updates[i]
		if ev := u.Event(); ev != nil {
			entry := p.logger.WithFields(logrus.Fields{
				LogFieldUpdateID:  u.UpdateID,
				LogFieldMessageID: ev.MessageID,
				LogFieldIsEdit:    ev.IsEdit,
			})
			entry.Debug("Received message update")
			if !p.sink.Dispatch(ev) {
				metrics.IncrementCounter("refused_updates_total", nil, "Bot API updates the dispatcher refused")
				entry.Warn("Dispatcher refused message update, leaving it unacknowledged")
				refused = fmt.Errorf("update %d refused by dispatcher", u.UpdateID)
				break
			}
		}
		if u.UpdateID >= offset {
			offset = u.UpdateID + 1
		}
	}

	p.mu.Lock()
	p.offset = offset
	p.mu.Unlock()
	return refused
}
