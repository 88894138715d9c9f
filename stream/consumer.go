package stream

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/SK-Rookies-Final-Project/Backend/errors"
	"github.com/SK-Rookies-Final-Project/Backend/pkg/retry"
	"github.com/SK-Rookies-Final-Project/Backend/transform"
	"github.com/SK-Rookies-Final-Project/Backend/types"
)

// RecordSource is one open bus consumer. The category consumer owns it; only
// Close may be called from another goroutine.
type RecordSource interface {
	Fetch(ctx context.Context) ([]byte, error)
	Close() error
}

// SourceFactory opens a RecordSource on a topic authenticated as one user
type SourceFactory interface {
	OpenSource(username, password, topic string) (RecordSource, error)
}

// SourceFactoryFunc adapts a function to the SourceFactory interface
type SourceFactoryFunc func(username, password, topic string) (RecordSource, error)

// OpenSource calls f
func (f SourceFactoryFunc) OpenSource(username, password, topic string) (RecordSource, error) {
	return f(username, password, topic)
}

// dispatchFunc is how a consumer hands transformed frames back to the
// registry without holding bucket locks.
type dispatchFunc func(username string, category types.Category, msg string)

// Consumer lifecycle states
const (
	stateIdle int32 = iota
	stateStarting
	stateRunning
	stateStopping
	stateStopped
)

// CategoryConsumer bridges one (user, category) pair from the bus to its
// connection set. One poll goroutine per consumer; records are dispatched in
// arrival order.
type CategoryConsumer struct {
	username string
	category types.Category
	topic    string

	source   RecordSource
	dispatch dispatchFunc

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	pollTimeout time.Duration
	backoff     retry.Config
	logger      *slog.Logger
	metrics     *Metrics
}

func newCategoryConsumer(
	username string,
	category types.Category,
	topic string,
	source RecordSource,
	dispatch dispatchFunc,
	pollTimeout time.Duration,
	logger *slog.Logger,
	metrics *Metrics,
) *CategoryConsumer {
	return &CategoryConsumer{
		username:    username,
		category:    category,
		topic:       topic,
		source:      source,
		dispatch:    dispatch,
		done:        make(chan struct{}),
		pollTimeout: pollTimeout,
		backoff:     retry.DefaultConfig(),
		logger: logger.With(
			"component", "CategoryConsumer",
			"username", username,
			"category", category.String()),
		metrics: metrics,
	}
}

// start launches the poll loop. Idempotent at the state level: a consumer
// that already left Idle refuses a second start.
func (c *CategoryConsumer) start() error {
	if !c.state.CompareAndSwap(stateIdle, stateStarting) {
		return errors.ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state.Store(stateRunning)

	go c.run(ctx)

	c.logger.Info("consumer started", "topic", c.topic)
	return nil
}

// run is the poll loop: bounded fetch, transform, dispatch. Transient
// failures back off and the loop survives; a sustained failure shows up as
// zero dispatched messages, not a dead stream.
func (c *CategoryConsumer) run(ctx context.Context) {
	defer close(c.done)

	delay := c.backoff.InitialDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
		raw, err := c.source.Fetch(fetchCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if stderrors.Is(err, context.DeadlineExceeded) {
				// Idle topic; poll again immediately.
				continue
			}

			c.logger.Warn("poll failed, backing off",
				"error", err,
				"delay", delay,
				"transient", errors.IsTransient(err))
			if c.metrics != nil {
				c.metrics.consumerErrors.WithLabelValues(c.category.String()).Inc()
			}

			if !sleepCtx(ctx, delay) {
				return
			}
			delay = min(time.Duration(float64(delay)*c.backoff.Multiplier), c.backoff.MaxDelay)
			continue
		}
		delay = c.backoff.InitialDelay

		frame := transform.Transform(raw, c.category)
		c.dispatch(c.username, c.category, frame)
	}
}

// stop cancels the loop, closes the source, and joins with a bounded wait.
// An unresponsive worker is abandoned with a warning rather than blocking
// shutdown.
func (c *CategoryConsumer) stop(timeout time.Duration) {
	if !c.state.CompareAndSwap(stateRunning, stateStopping) &&
		!c.state.CompareAndSwap(stateStarting, stateStopping) {
		return
	}

	c.cancel()
	if err := c.source.Close(); err != nil {
		c.logger.Warn("source close failed", "error", err)
	}

	select {
	case <-c.done:
		c.logger.Info("consumer stopped")
	case <-time.After(timeout):
		c.logger.Warn("consumer worker did not exit in time, abandoning",
			"timeout", timeout)
	}
	c.state.Store(stateStopped)
}

// running reports whether the poll loop is live
func (c *CategoryConsumer) running() bool {
	s := c.state.Load()
	return s == stateStarting || s == stateRunning
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
