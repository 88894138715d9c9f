package stream

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/SK-Rookies-Final-Project/Backend/auth"
	"github.com/SK-Rookies-Final-Project/Backend/errors"
	"github.com/SK-Rookies-Final-Project/Backend/metric"
	"github.com/SK-Rookies-Final-Project/Backend/types"
)

// bucket holds all mutable state for one category: the connection sets and
// the consumer handles. One lock guards both maps so connection membership
// and consumer existence always change together. The bucket lock is only
// ever held for map updates; anything that can block (credential lookup,
// source open, consumer join) runs under the per-user pair lock instead, so
// Dispatch for one user never stalls behind another user's open or close.
type bucket struct {
	mu        sync.RWMutex
	conns     map[string]map[string]*Connection // username -> connID -> conn
	consumers map[string]*CategoryConsumer      // username -> consumer
	pairMu    map[string]*sync.Mutex            // username -> consumer start/stop lock
}

func newBucket() *bucket {
	return &bucket{
		conns:     make(map[string]map[string]*Connection),
		consumers: make(map[string]*CategoryConsumer),
		pairMu:    make(map[string]*sync.Mutex),
	}
}

// pairLock returns the start/stop lock for one (username, category) pair.
// Entries live for the user's lifetime in the category, which is bounded by
// the user population.
func (b *bucket) pairLock(username string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	mu := b.pairMu[username]
	if mu == nil {
		mu = &sync.Mutex{}
		b.pairMu[username] = mu
	}
	return mu
}

// RegistryConfig holds all construction parameters for a Registry
type RegistryConfig struct {
	Bindings    *BindingSet
	Credentials auth.CredentialStore
	Sources     SourceFactory

	Logger          *slog.Logger            // nil = slog.Default()
	MetricsRegistry *metric.MetricsRegistry // nil disables metrics

	PushTimeout   time.Duration // per-connection push deadline
	PollTimeout   time.Duration // per-iteration consumer fetch deadline
	StopTimeout   time.Duration // bounded join when stopping a consumer
	SweepInterval time.Duration // dead-connection sweep period
	BufferSize    int           // per-connection event buffer
}

// DefaultRegistryConfig returns sensible defaults for everything but the
// three required collaborators.
func DefaultRegistryConfig(bindings *BindingSet, creds auth.CredentialStore, sources SourceFactory) RegistryConfig {
	return RegistryConfig{
		Bindings:      bindings,
		Credentials:   creds,
		Sources:       sources,
		PushTimeout:   5 * time.Second,
		PollTimeout:   time.Second,
		StopTimeout:   5 * time.Second,
		SweepInterval: 10 * time.Minute,
		BufferSize:    64,
	}
}

// Registry is the session coordinator. It tracks connections per
// (category, username), starts a consumer on the first connection for a
// pair, stops it on the last close, and fans records out via Dispatch.
type Registry struct {
	buckets  map[types.Category]*bucket
	bindings *BindingSet
	creds    auth.CredentialStore
	sources  SourceFactory

	pushTimeout   time.Duration
	pollTimeout   time.Duration
	stopTimeout   time.Duration
	sweepInterval time.Duration
	bufferSize    int

	logger  *slog.Logger
	metrics *Metrics

	lifecycleMu sync.Mutex
	running     bool
	shutdown    chan struct{}
	wg          *sync.WaitGroup
}

// NewRegistry creates a session registry for the fixed category set
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Bindings == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "NewRegistry",
			"category bindings are required")
	}
	if cfg.Credentials == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "NewRegistry",
			"credential store is required")
	}
	if cfg.Sources == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "NewRegistry",
			"source factory is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newMetrics(cfg.MetricsRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "NewRegistry", "register metrics")
	}

	buckets := make(map[types.Category]*bucket, len(types.Categories()))
	for _, category := range types.Categories() {
		buckets[category] = newBucket()
	}

	defaults := DefaultRegistryConfig(cfg.Bindings, cfg.Credentials, cfg.Sources)
	return &Registry{
		buckets:       buckets,
		bindings:      cfg.Bindings,
		creds:         cfg.Credentials,
		sources:       cfg.Sources,
		pushTimeout:   durationOr(cfg.PushTimeout, defaults.PushTimeout),
		pollTimeout:   durationOr(cfg.PollTimeout, defaults.PollTimeout),
		stopTimeout:   durationOr(cfg.StopTimeout, defaults.StopTimeout),
		sweepInterval: durationOr(cfg.SweepInterval, defaults.SweepInterval),
		bufferSize:    intOr(cfg.BufferSize, defaults.BufferSize),
		logger:        logger.With("component", "Registry"),
		metrics:       metrics,
	}, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func intOr(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}

// Start launches the periodic liveness sweep. Safe to call once per Stop.
func (r *Registry) Start(_ context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if r.running {
		return nil
	}
	r.running = true
	r.shutdown = make(chan struct{})
	r.wg = &sync.WaitGroup{}

	r.wg.Add(1)
	go r.sweepLoop()
	return nil
}

// Stop halts the sweep, stops every consumer, and closes every connection
func (r *Registry) Stop(timeout time.Duration) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if r.running {
		r.running = false
		close(r.shutdown)

		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			r.logger.Warn("sweep goroutine did not exit in time")
		}
	}

	for category, b := range r.buckets {
		b.mu.Lock()
		consumers := make([]*CategoryConsumer, 0, len(b.consumers))
		conns := make([]*Connection, 0)
		for username, consumer := range b.consumers {
			consumers = append(consumers, consumer)
			delete(b.consumers, username)
		}
		for username, byID := range b.conns {
			for id, conn := range byID {
				conns = append(conns, conn)
				delete(byID, id)
			}
			delete(b.conns, username)
		}
		b.mu.Unlock()

		for _, consumer := range consumers {
			consumer.stop(r.stopTimeout)
		}
		for _, conn := range conns {
			conn.Close()
		}
		if r.metrics != nil {
			r.metrics.activeConnections.WithLabelValues(category.String()).Set(0)
			r.metrics.activeConsumers.WithLabelValues(category.String()).Set(0)
		}
	}

	return nil
}

// OpenStream registers a new connection for (username, category) and, if it
// is the first for that pair, starts its consumer with the user's cached
// credential. No cached credential means the connection stays open in a
// push-only degraded mode; that is not an error. The open may wait on its
// own credential lookup, never on another pair's.
func (r *Registry) OpenStream(ctx context.Context, username string, category types.Category) (*Connection, error) {
	b, ok := r.buckets[category]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrUnknownCategory, "Registry", "OpenStream",
			category.String())
	}

	conn := newConnection(username, category, r.bufferSize)

	b.mu.Lock()
	byID := b.conns[username]
	if byID == nil {
		byID = make(map[string]*Connection)
		b.conns[username] = byID
	}
	byID[conn.ID] = conn
	count := len(byID)
	_, haveConsumer := b.consumers[username]
	b.mu.Unlock()

	if !haveConsumer {
		r.ensureConsumer(ctx, b, username, category)
	}

	if r.metrics != nil {
		r.metrics.activeConnections.WithLabelValues(category.String()).Inc()
	}
	r.logger.Info("stream opened",
		"username", username,
		"category", category.String(),
		"connection_id", conn.ID,
		"connections_for_pair", count)
	return conn, nil
}

// ensureConsumer starts the pair's consumer if it is not already running.
// The pair lock serializes concurrent opens and closes for the same pair;
// the bucket lock is never held across the credential lookup or source open.
func (r *Registry) ensureConsumer(ctx context.Context, b *bucket, username string, category types.Category) {
	mu := b.pairLock(username)
	mu.Lock()
	defer mu.Unlock()

	b.mu.RLock()
	_, exists := b.consumers[username]
	members := len(b.conns[username])
	b.mu.RUnlock()
	if exists || members == 0 {
		return
	}

	consumer, err := r.buildConsumer(ctx, username, category)
	if err != nil {
		if stderrors.Is(err, errors.ErrNoCredential) {
			r.logger.Debug("no cached credential, stream is push-only",
				"username", username, "category", category.String())
		} else {
			r.logger.Warn("could not start consumer, stream is push-only",
				"username", username, "category", category.String(), "error", err)
		}
		return
	}

	b.mu.Lock()
	if len(b.conns[username]) == 0 {
		// The last connection closed while the consumer was being built.
		b.mu.Unlock()
		consumer.stop(r.stopTimeout)
		return
	}
	b.consumers[username] = consumer
	b.mu.Unlock()

	if r.metrics != nil {
		r.metrics.activeConsumers.WithLabelValues(category.String()).Inc()
	}
}

// buildConsumer opens the user's source and starts a consumer for the pair.
// A missing cached credential comes back as ErrNoCredential, the degraded
// push-only mode rather than a failure.
func (r *Registry) buildConsumer(ctx context.Context, username string, category types.Category) (*CategoryConsumer, error) {
	password, ok := r.creds.Password(ctx, username)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrNoCredential, "Registry", "buildConsumer", username)
	}

	topic := r.bindings.Topic(category)
	source, err := r.sources.OpenSource(username, password, topic)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "buildConsumer", "open bus source")
	}

	consumer := newCategoryConsumer(username, category, topic, source,
		r.Dispatch, r.pollTimeout, r.logger, r.metrics)
	if err := consumer.start(); err != nil {
		_ = source.Close()
		return nil, errors.Wrap(err, "Registry", "buildConsumer", "start consumer")
	}
	return consumer, nil
}

// CloseConnection removes one connection by ID. If its (username, category)
// set becomes empty the pair's consumer stops; if the user then has zero
// connections anywhere, their cached credential is purged.
func (r *Registry) CloseConnection(ctx context.Context, username, connID string) error {
	for category, b := range r.buckets {
		b.mu.Lock()
		byID := b.conns[username]
		conn, found := byID[connID]
		if !found {
			b.mu.Unlock()
			continue
		}

		delete(byID, connID)
		var consumer *CategoryConsumer
		if len(byID) == 0 {
			delete(b.conns, username)
			consumer = b.consumers[username]
			delete(b.consumers, username)
		}
		b.mu.Unlock()

		conn.Close()
		if r.metrics != nil {
			r.metrics.activeConnections.WithLabelValues(category.String()).Dec()
		}
		if consumer != nil {
			// The pair lock orders this stop against any in-flight
			// ensureConsumer for the same pair.
			mu := b.pairLock(username)
			mu.Lock()
			consumer.stop(r.stopTimeout)
			mu.Unlock()
			if r.metrics != nil {
				r.metrics.activeConsumers.WithLabelValues(category.String()).Dec()
			}
		}

		r.logger.Info("stream closed",
			"username", username,
			"category", category.String(),
			"connection_id", connID)
		r.maybePurgeCredential(ctx, username)
		return nil
	}

	return errors.WrapInvalid(errors.ErrUnknownConnection, "Registry", "CloseConnection", connID)
}

// CloseAllForUser removes every connection for the user across all
// categories, stops all their consumers, and purges their cached credential.
func (r *Registry) CloseAllForUser(ctx context.Context, username string) {
	for category, b := range r.buckets {
		b.mu.Lock()
		byID := b.conns[username]
		delete(b.conns, username)
		consumer := b.consumers[username]
		delete(b.consumers, username)
		b.mu.Unlock()

		for _, conn := range byID {
			conn.Close()
		}
		if r.metrics != nil && len(byID) > 0 {
			r.metrics.activeConnections.WithLabelValues(category.String()).Sub(float64(len(byID)))
		}
		if consumer != nil {
			mu := b.pairLock(username)
			mu.Lock()
			consumer.stop(r.stopTimeout)
			mu.Unlock()
			if r.metrics != nil {
				r.metrics.activeConsumers.WithLabelValues(category.String()).Dec()
			}
		}
	}

	if err := r.creds.Purge(ctx, username); err != nil {
		r.logger.Warn("credential purge failed", "username", username, "error", err)
	}
	r.logger.Info("all streams closed", "username", username)
}

// Dispatch pushes one transformed record to every current connection for the
// pair. A push failure removes only that connection; siblings are unaffected
// and the error never reaches the consumer loop.
func (r *Registry) Dispatch(username string, category types.Category, msg string) {
	b, ok := r.buckets[category]
	if !ok {
		return
	}

	b.mu.RLock()
	byID := b.conns[username]
	snapshot := make([]*Connection, 0, len(byID))
	for _, conn := range byID {
		snapshot = append(snapshot, conn)
	}
	b.mu.RUnlock()

	payload := []byte(msg)
	for _, conn := range snapshot {
		if err := conn.push(payload, r.pushTimeout); err != nil {
			if r.metrics != nil {
				r.metrics.pushFailures.WithLabelValues(category.String()).Inc()
			}
			r.logger.Warn("push failed, dropping connection",
				"username", username,
				"category", category.String(),
				"connection_id", conn.ID,
				"error", err)
			// Close now so no further pushes reach it; remove off the
			// dispatch goroutine because removal may stop this very
			// consumer, which must not join itself.
			conn.Close()
			go func(id string) {
				_ = r.CloseConnection(context.Background(), username, id)
			}(conn.ID)
			continue
		}
		if r.metrics != nil {
			r.metrics.dispatchedTotal.WithLabelValues(category.String()).Inc()
		}
	}
}

// Sweep removes connections whose channel died without a close signal. Runs
// periodically but is safe to call directly.
func (r *Registry) Sweep() {
	removed := 0
	for _, b := range r.buckets {
		b.mu.RLock()
		var dead []*Connection
		for _, byID := range b.conns {
			for _, conn := range byID {
				if conn.Closed() {
					dead = append(dead, conn)
				}
			}
		}
		b.mu.RUnlock()

		for _, conn := range dead {
			if err := r.CloseConnection(context.Background(), conn.Username, conn.ID); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		if r.metrics != nil {
			r.metrics.sweepRemoved.Add(float64(removed))
		}
		r.logger.Info("sweep removed dead connections", "count", removed)
	}
}

func (r *Registry) sweepLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.shutdown:
			return
		}
	}
}

// ConsumerRunning reports whether a consumer is live for the pair
func (r *Registry) ConsumerRunning(username string, category types.Category) bool {
	b, ok := r.buckets[category]
	if !ok {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	consumer, exists := b.consumers[username]
	return exists && consumer.running()
}

// ConnectionCount returns the number of open connections for the pair
func (r *Registry) ConnectionCount(username string, category types.Category) int {
	b, ok := r.buckets[category]
	if !ok {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns[username])
}

// maybePurgeCredential evicts the user's cached credential once they have no
// connections left in any category.
func (r *Registry) maybePurgeCredential(ctx context.Context, username string) {
	for _, b := range r.buckets {
		b.mu.RLock()
		n := len(b.conns[username])
		b.mu.RUnlock()
		if n > 0 {
			return
		}
	}
	if err := r.creds.Purge(ctx, username); err != nil {
		r.logger.Warn("credential purge failed", "username", username, "error", err)
	}
}
