package stream

import (
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SK-Rookies-Final-Project/Backend/errors"
	"github.com/SK-Rookies-Final-Project/Backend/types"
)

// collectingDispatch records dispatched frames in arrival order
type collectingDispatch struct {
	mu     sync.Mutex
	frames []string
	notify chan struct{}
}

func newCollectingDispatch() *collectingDispatch {
	return &collectingDispatch{notify: make(chan struct{}, 64)}
}

func (d *collectingDispatch) dispatch(_ string, _ types.Category, msg string) {
	d.mu.Lock()
	d.frames = append(d.frames, msg)
	d.mu.Unlock()
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *collectingDispatch) waitFor(t *testing.T, n int, timeout time.Duration) []string {
	t.Helper()
	deadline := time.After(timeout)
	for {
		d.mu.Lock()
		if len(d.frames) >= n {
			frames := append([]string(nil), d.frames...)
			d.mu.Unlock()
			return frames
		}
		d.mu.Unlock()

		select {
		case <-d.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d dispatched frames", n)
		}
	}
}

func newTestConsumer(src RecordSource, sink *collectingDispatch) *CategoryConsumer {
	return newCategoryConsumer("alice", types.CategoryResourceDenied,
		"resource-level-false", src, sink.dispatch,
		50*time.Millisecond, slog.Default(), nil)
}

func TestConsumerDispatchesInArrivalOrder(t *testing.T) {
	src := newFakeSource()
	sink := newCollectingDispatch()
	consumer := newTestConsumer(src, sink)

	require.NoError(t, consumer.start())
	defer consumer.stop(time.Second)

	src.records <- []byte(`{"seq":1}`)
	src.records <- []byte(`{"seq":2}`)
	src.records <- []byte(`{"seq":3}`)

	frames := sink.waitFor(t, 3, 2*time.Second)
	assert.Equal(t, `{"seq":1}`, frames[0])
	assert.Equal(t, `{"seq":2}`, frames[1])
	assert.Equal(t, `{"seq":3}`, frames[2])
}

func TestConsumerSecondStartRefused(t *testing.T) {
	src := newFakeSource()
	consumer := newTestConsumer(src, newCollectingDispatch())

	require.NoError(t, consumer.start())
	defer consumer.stop(time.Second)

	assert.ErrorIs(t, consumer.start(), errors.ErrAlreadyStarted)
}

func TestConsumerSurvivesTransientErrors(t *testing.T) {
	src := newFakeSource()
	sink := newCollectingDispatch()
	consumer := newTestConsumer(src, sink)

	require.NoError(t, consumer.start())
	defer consumer.stop(time.Second)

	src.errs <- stderrors.New("broker hiccup")
	src.errs <- stderrors.New("another hiccup")
	src.records <- []byte(`{"recovered":true}`)

	frames := sink.waitFor(t, 1, 5*time.Second)
	assert.Equal(t, `{"recovered":true}`, frames[0])
	assert.True(t, consumer.running())
}

func TestConsumerStopJoinsWorker(t *testing.T) {
	src := newFakeSource()
	consumer := newTestConsumer(src, newCollectingDispatch())
	require.NoError(t, consumer.start())

	start := time.Now()
	consumer.stop(2 * time.Second)

	assert.False(t, consumer.running())
	assert.Less(t, time.Since(start), time.Second,
		"stop should join promptly, not ride out the full timeout")

	select {
	case <-src.closed:
	default:
		t.Fatal("stop must close the record source")
	}
}

func TestConsumerStopIsIdempotent(t *testing.T) {
	src := newFakeSource()
	consumer := newTestConsumer(src, newCollectingDispatch())
	require.NoError(t, consumer.start())

	consumer.stop(time.Second)
	consumer.stop(time.Second)
	assert.False(t, consumer.running())
}

func TestConsumerTransformsAlertCategories(t *testing.T) {
	src := newFakeSource()
	sink := newCollectingDispatch()
	consumer := newCategoryConsumer("alice", types.CategoryLoginFailure,
		"certified-2time", src, sink.dispatch,
		50*time.Millisecond, slog.Default(), nil)

	require.NoError(t, consumer.start())
	defer consumer.stop(time.Second)

	src.records <- []byte(`{"clientIp":"10.0.0.5"}`)

	frames := sink.waitFor(t, 1, 2*time.Second)
	assert.Contains(t, frames[0], `"alertType":"LOGIN_FAILURE"`)
	assert.Contains(t, frames[0], `"clientIp":"10.0.0.5"`)
}
