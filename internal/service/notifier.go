package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garasku/garasku-api/internal/models"
	"github.com/garasku/garasku-api/pkg/config"
	"github.com/garasku/garasku-api/pkg/jobs"
)

// StatusNotifier pushes booking status updates to interested clients.
// Delivery is best effort and never required for correctness.
type StatusNotifier interface {
	NotifyStatusChange(bookingID string, from, to models.BookingStatus)
}

// StatusNotifierFunc adapts a function to the StatusNotifier interface.
type StatusNotifierFunc func(bookingID string, from, to models.BookingStatus)

// NotifyStatusChange implements StatusNotifier.
func (f StatusNotifierFunc) NotifyStatusChange(bookingID string, from, to models.BookingStatus) {
	f(bookingID, from, to)
}

type statusEvent struct {
	BookingID string               `json:"bookingId"`
	From      models.BookingStatus `json:"from"`
	To        models.BookingStatus `json:"to"`
	Label     string               `json:"label"`
	At        time.Time            `json:"at"`
}

// RedisNotifier publishes status events to a per-booking Redis channel.
// Publishing runs on a background queue so request handling never waits on
// the broker.
type RedisNotifier struct {
	client *redis.Client
	prefix string
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewRedisNotifier constructs the notifier and its dispatch queue.
func NewRedisNotifier(client *redis.Client, cfg config.NotificationsConfig, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = "bookings"
	}
	n := &RedisNotifier{
		client: client,
		prefix: prefix,
		logger: logger,
	}
	n.queue = jobs.NewQueue("notifications", n.publish, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return n
}

// Start begins background dispatch.
func (n *RedisNotifier) Start(ctx context.Context) {
	n.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (n *RedisNotifier) Stop() {
	n.queue.Stop()
}

// NotifyStatusChange enqueues a status event for the booking's channel.
func (n *RedisNotifier) NotifyStatusChange(bookingID string, from, to models.BookingStatus) {
	event := statusEvent{
		BookingID: bookingID,
		From:      from,
		To:        to,
		Label:     to.Label(),
		At:        time.Now().UTC(),
	}
	err := n.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "status_change",
		Payload: event,
	})
	if err != nil {
		n.logger.Warn("failed to enqueue status notification",
			zap.String("booking_id", bookingID),
			zap.Error(err),
		)
	}
}

func (n *RedisNotifier) publish(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(statusEvent)
	if !ok {
		return fmt.Errorf("unexpected notification payload type %T", job.Payload)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	channel := fmt.Sprintf("%s:%s", n.prefix, event.BookingID)
	if err := n.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	return nil
}
