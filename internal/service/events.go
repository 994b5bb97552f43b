package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tgcord/internal/constants"
	"tgcord/internal/models"
	"tgcord/internal/retry"
	"tgcord/pkg/discord"
	"tgcord/pkg/userclient"

	"github.com/sirupsen/logrus"
)

// EventSubscriber streams live edit and delete notifications
type EventSubscriber interface {
	Subscribe(ctx context.Context, handler func(userclient.Event)) error
}

// a stream that stayed up this long resets the reconnect backoff
const healthyStreamAfter = time.Minute

// LiveEvents applies the user session's edit and delete notifications as
// they happen. The reconciler remains the backstop for anything missed
// while the stream was down.
type LiveEvents struct {
	subscriber EventSubscriber
	composer   Composer
	mirror     *mirror
	chatID     int64
	backoff    *retry.Backoff
	logger     *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

func NewLiveEvents(subscriber EventSubscriber, store MappingStore, delivery discord.Client, composer Composer,
	sourceChatID int64, retryConfig models.RetryConfig, logger *logrus.Logger) *LiveEvents {
	logger = defaultLogger(logger)
	initial, maxDelay := retryConfig.InitialBackoffMs, retryConfig.MaxBackoffMs
	if initial <= 0 {
		initial = constants.DefaultRetryBackoffMs
	}
	if maxDelay < initial {
		maxDelay = max(initial, constants.DefaultMaxBackoffMs)
	}
	return &LiveEvents{
		subscriber: subscriber,
		composer:   composer,
		mirror:     &mirror{store: store, delivery: delivery, logger: logger},
		chatID:     sourceChatID,
		backoff: retry.NewBackoff(retry.BackoffConfig{
			InitialDelay: time.Duration(initial) * time.Millisecond,
			MaxDelay:     time.Duration(maxDelay) * time.Millisecond,
			Multiplier:   2,
			MaxAttempts:  1,
			Jitter:       true,
		}),
		logger: logger,
	}
}

// Start subscribes in the background and keeps reconnecting until Stop.
func (l *LiveEvents) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("live event handler is already running")
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.running = true

	l.wg.Add(1)
	go l.run()

	l.logger.Info("Live event handler started")
	return nil
}

func (l *LiveEvents) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return
	}

	l.cancel()
	l.wg.Wait()
	l.running = false
	l.logger.Info("Live event handler stopped")
}

func (l *LiveEvents) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

func (l *LiveEvents) run() {
	defer l.wg.Done()

	attempt := 0
	for {
		started := time.Now()
		err := l.subscriber.Subscribe(l.ctx, func(ev userclient.Event) {
			l.HandleEvent(l.ctx, ev)
		})
		if l.ctx.Err() != nil {
			return
		}

		if time.Since(started) >= healthyStreamAfter {
			attempt = 0
		}
		attempt++
		delay := l.backoff.GetNextDelay(attempt)

		entry := l.logger.WithFields(logrus.Fields{
			LogFieldAttempt: attempt,
			"retry_in":      delay.String(),
		})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("Live event stream closed, reconnecting")

		if err := retry.Sleep(l.ctx, delay); err != nil {
			return
		}
	}
}

// HandleEvent applies one live notification. Events for other chats and
// messages that were never relayed are ignored. A delete without a chat id
// is taken to belong to the source chat.
func (l *LiveEvents) HandleEvent(ctx context.Context, ev userclient.Event) {
	chatID := ev.ChatID
	if chatID == 0 {
		chatID = l.chatID
	}
	if l.chatID != 0 && chatID != l.chatID {
		return
	}

	switch ev.Type {
	case userclient.EventDeleted:
		for _, id := range ev.MessageIDs {
			l.handleDelete(ctx, chatID, id)
		}
	case userclient.EventEdited:
		if ev.Message != nil {
			l.handleEdit(ctx, chatID, ev.Message)
		}
	}
}

func (l *LiveEvents) handleDelete(ctx context.Context, chatID, messageID int64) {
	unlock := l.composer.Lock(models.MessageKey{ChatID: chatID, MessageID: messageID})
	defer unlock()

	logger := l.logger.WithFields(logrus.Fields{
		LogFieldMessageID: messageID,
		LogFieldEvent:     string(userclient.EventDeleted),
	})

	m, err := l.mirror.store.GetMapping(ctx, chatID, messageID)
	if err != nil {
		logger.WithError(err).Warn("Failed to look up mapping")
		return
	}
	if m == nil {
		logger.Debug("Ignoring delete: message was not relayed")
		return
	}
	if err := l.mirror.syncDelete(ctx, m); err != nil {
		logger.WithError(err).Warn("Failed to mirror source deletion")
	}
}

func (l *LiveEvents) handleEdit(ctx context.Context, chatID int64, msg *userclient.Message) {
	unlock := l.composer.Lock(models.MessageKey{ChatID: chatID, MessageID: msg.ID})
	defer unlock()

	logger := l.logger.WithFields(logrus.Fields{
		LogFieldMessageID: msg.ID,
		LogFieldEvent:     string(userclient.EventEdited),
	})

	m, err := l.mirror.store.GetMapping(ctx, chatID, msg.ID)
	if err != nil {
		logger.WithError(err).Warn("Failed to look up mapping")
		return
	}
	if m == nil || m.Deleted {
		logger.Debug("Ignoring edit: no live relayed copy")
		return
	}
	if _, err := l.mirror.syncEventEdit(ctx, m, composeSourceMessage(l.composer, msg), msg.Timestamp()); err != nil {
		logger.WithError(err).Warn("Failed to mirror source edit")
	}
}
