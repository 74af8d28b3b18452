// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package facade

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/plug/pkg/errutil"
	"github.com/holomush/plug/pkg/future"
	"github.com/holomush/plug/pkg/sdk"
)

// Tracker error codes.
const (
	CodeInvalidEvent  = "INVALID_EVENT"
	CodeTrackerClosed = "TRACKER_CLOSED"
)

// Sink receives batches of tracked events.
type Sink interface {
	Deliver(ctx context.Context, batch []sdk.TrackedEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, batch []sdk.TrackedEvent) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, batch []sdk.TrackedEvent) error {
	return f(ctx, batch)
}

// LogSink writes every event to logger at debug level.
func LogSink(logger *slog.Logger) Sink {
	return SinkFunc(func(ctx context.Context, batch []sdk.TrackedEvent) error {
		for _, event := range batch {
			logger.DebugContext(ctx, "event tracked",
				"event_id", event.ID,
				"event_type", event.Type,
				"tab_id", event.TabID)
		}
		return nil
	})
}

// tracker buffers events and delivers them in batches from a single
// goroutine. Failed batches are retried with exponential backoff and
// dropped once retries are exhausted.
type tracker struct {
	tabID  string
	cfg    sdk.TrackerConfiguration
	sink   Sink
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	buffer  []sdk.TrackedEvent
	waiters []future.Resolver[struct{}]
	closed  bool
	stopped bool

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newTracker(tabID string, cfg sdk.TrackerConfiguration, sink Sink, logger *slog.Logger) *tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &tracker{
		tabID:  tabID,
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

var _ sdk.Tracker = (*tracker)(nil)

// Track implements sdk.Tracker.
func (t *tracker) Track(_ context.Context, eventType string, payload map[string]any) (sdk.TrackedEvent, error) {
	if eventType == "" {
		return sdk.TrackedEvent{}, oops.Code(CodeInvalidEvent).Errorf("event type must not be empty")
	}

	event := sdk.TrackedEvent{
		ID:        newID(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		TabID:     t.tabID,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return sdk.TrackedEvent{}, oops.Code(CodeTrackerClosed).With("event_type", eventType).Errorf("tracker is closed")
	}
	t.buffer = append(t.buffer, event)
	full := len(t.buffer) >= t.cfg.BatchSize
	t.mu.Unlock()

	if full {
		t.signal()
	}
	return event, nil
}

// Flushed implements sdk.Tracker.
func (t *tracker) Flushed() *future.Future[struct{}] {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return future.Ready(struct{}{})
	}
	f, resolve := future.New[struct{}]()
	t.waiters = append(t.waiters, resolve)
	t.signal()
	return f
}

// Close delivers buffered events and stops the tracker. When ctx expires
// first, in-flight retries are abandoned.
func (t *tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.stop)
	}
	t.mu.Unlock()

	select {
	case <-t.done:
		t.cancel()
		return nil
	case <-ctx.Done():
		t.cancel()
		<-t.done
		return oops.With("operation", "close tracker").Wrap(ctx.Err())
	}
}

func (t *tracker) signal() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

func (t *tracker) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.flush()
		case <-t.kick:
			t.flush()
		case <-t.stop:
			t.flush()

			t.mu.Lock()
			t.stopped = true
			waiters := t.waiters
			t.waiters = nil
			t.mu.Unlock()

			for _, resolve := range waiters {
				resolve(struct{}{}, nil)
			}
			return
		}
	}
}

// flush delivers everything buffered so far, then settles the waiters that
// were registered before the buffer was taken.
func (t *tracker) flush() {
	t.mu.Lock()
	batch := t.buffer
	t.buffer = nil
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()

	for len(batch) > 0 {
		n := min(t.cfg.BatchSize, len(batch))
		t.deliver(batch[:n])
		batch = batch[n:]
	}

	for _, resolve := range waiters {
		resolve(struct{}{}, nil)
	}
}

func (t *tracker) deliver(batch []sdk.TrackedEvent) {
	backoff := retry.WithMaxRetries(t.cfg.MaxRetries, retry.NewExponential(t.cfg.RetryBase))
	err := retry.Do(t.ctx, backoff, func(ctx context.Context) error {
		DeliveryAttempts.Inc()
		if err := t.sink.Deliver(ctx, batch); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		recordTrackedEvents(StatusDropped, len(batch))
		errutil.LogError(t.logger, "event delivery failed",
			oops.With("batch_size", len(batch)).Wrap(err))
		return
	}
	recordTrackedEvents(StatusDelivered, len(batch))
}
