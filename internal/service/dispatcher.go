package service

import (
	"context"
	"sync/atomic"

	"tgcord/internal/models"

	"github.com/alitto/pond/v2"
	"github.com/sirupsen/logrus"
)

// EventHandler processes one inbound message event
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *models.MessageEvent) error
}

// Dispatcher fans inbound events out to a bounded worker pool so a slow
// download or encode never holds up ingestion.
type Dispatcher struct {
	ctx     context.Context
	handler EventHandler
	pool    pond.Pool
	stopped atomic.Bool
	logger  *logrus.Logger
}

func NewDispatcher(ctx context.Context, handler EventHandler, workers, queueSize int, logger *logrus.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	opts := []pond.Option{pond.WithContext(ctx)}
	if queueSize > 0 {
		opts = append(opts, pond.WithQueueSize(queueSize))
	}
	return &Dispatcher{
		ctx:     ctx,
		handler: handler,
		pool:    pond.NewPool(workers, opts...),
		logger:  defaultLogger(logger),
	}
}

// Dispatch queues ev. It returns false when the pool no longer accepts work.
func (d *Dispatcher) Dispatch(ev *models.MessageEvent) bool {
	if ev == nil {
		return true
	}
	if d.stopped.Load() || d.pool.Stopped() {
		d.logger.WithField(LogFieldMessageID, ev.MessageID).Warn("Dropping event: dispatcher stopped")
		return false
	}
	d.pool.SubmitErr(func() error {
		err := d.handler.HandleEvent(d.ctx, ev)
		if err != nil {
			d.logger.WithError(err).WithField(LogFieldMessageID, ev.MessageID).Warn("Failed to handle message event")
		}
		return err
	})
	return true
}

// Stop waits for queued events to finish.
func (d *Dispatcher) Stop() {
	if d.stopped.Swap(true) {
		return
	}
	d.logger.WithFields(logrus.Fields{
		"submitted": d.pool.SubmittedTasks(),
		"waiting":   d.pool.WaitingTasks(),
	}).Info("Stopping event dispatcher")
	d.pool.StopAndWait()
	d.logger.WithFields(logrus.Fields{
		"completed": d.pool.CompletedTasks(),
		"failed":    d.pool.FailedTasks(),
	}).Info("Event dispatcher stopped")
}
