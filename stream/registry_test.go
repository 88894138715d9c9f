package stream

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SK-Rookies-Final-Project/Backend/auth"
	"github.com/SK-Rookies-Final-Project/Backend/config"
	"github.com/SK-Rookies-Final-Project/Backend/errors"
	"github.com/SK-Rookies-Final-Project/Backend/types"
)

// fakeSource feeds canned records to a consumer
type fakeSource struct {
	records chan []byte
	errs    chan error
	closed  chan struct{}
	once    sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		records: make(chan []byte, 16),
		errs:    make(chan error, 16),
		closed:  make(chan struct{}),
	}
}

func (s *fakeSource) Fetch(ctx context.Context) ([]byte, error) {
	select {
	case rec := <-s.records:
		return rec, nil
	case err := <-s.errs:
		return nil, err
	case <-s.closed:
		return nil, stderrors.New("source closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// fakeFactory tracks every source it opens, keyed by username/topic
type fakeFactory struct {
	mu      sync.Mutex
	sources map[string]*fakeSource
	opens   int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{sources: make(map[string]*fakeSource)}
}

func (f *fakeFactory) OpenSource(username, _, topic string) (RecordSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	src := newFakeSource()
	f.sources[username+"/"+topic] = src
	return src, nil
}

func (f *fakeFactory) source(username, topic string) *fakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sources[username+"/"+topic]
}

func (f *fakeFactory) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func testBindings() *BindingSet {
	return NewBindingSet(config.Default().Kafka.Topics)
}

func newTestRegistry(t *testing.T) (*Registry, *auth.MemoryCredentialStore, *fakeFactory) {
	t.Helper()

	creds := auth.NewMemoryCredentialStore()
	factory := newFakeFactory()

	cfg := DefaultRegistryConfig(testBindings(), creds, factory)
	cfg.PushTimeout = 200 * time.Millisecond
	cfg.PollTimeout = 50 * time.Millisecond
	cfg.StopTimeout = time.Second
	cfg.BufferSize = 8

	r, err := NewRegistry(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Stop(2 * time.Second)
	})
	return r, creds, factory
}

func TestNewRegistryRequiresCollaborators(t *testing.T) {
	creds := auth.NewMemoryCredentialStore()
	factory := newFakeFactory()

	_, err := NewRegistry(RegistryConfig{Credentials: creds, Sources: factory})
	assert.Error(t, err)

	_, err = NewRegistry(RegistryConfig{Bindings: testBindings(), Sources: factory})
	assert.Error(t, err)

	_, err = NewRegistry(RegistryConfig{Bindings: testBindings(), Credentials: creds})
	assert.Error(t, err)
}

func TestConsumerExistsIffConnectionsExist(t *testing.T) {
	r, creds, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, creds.Store(ctx, "alice", "pw"))

	const n = 3
	conns := make([]*Connection, 0, n)
	for i := 0; i < n; i++ {
		conn, err := r.OpenStream(ctx, "alice", types.CategoryLoginFailure)
		require.NoError(t, err)
		conns = append(conns, conn)
		assert.True(t, r.ConsumerRunning("alice", types.CategoryLoginFailure),
			"consumer must run while connections exist (after open %d)", i+1)
	}

	for i, conn := range conns {
		require.NoError(t, r.CloseConnection(ctx, "alice", conn.ID))
		if i < n-1 {
			assert.True(t, r.ConsumerRunning("alice", types.CategoryLoginFailure),
				"consumer must survive close %d of %d", i+1, n)
		} else {
			assert.False(t, r.ConsumerRunning("alice", types.CategoryLoginFailure),
				"consumer must stop with the last connection")
		}
	}
	assert.Zero(t, r.ConnectionCount("alice", types.CategoryLoginFailure))
}

func TestConsumerStartIsIdempotent(t *testing.T) {
	r, creds, factory := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, creds.Store(ctx, "alice", "pw"))

	_, err := r.OpenStream(ctx, "alice", types.CategorySystemDenied)
	require.NoError(t, err)
	_, err = r.OpenStream(ctx, "alice", types.CategorySystemDenied)
	require.NoError(t, err)

	assert.Equal(t, 1, factory.openCount(),
		"two connections for one pair must share one consumer")
}

func TestDispatchFailureIsolation(t *testing.T) {
	r, creds, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, creds.Store(ctx, "alice", "pw"))

	broken, err := r.OpenStream(ctx, "alice", types.CategoryResourceDenied)
	require.NoError(t, err)
	healthy, err := r.OpenStream(ctx, "alice", types.CategoryResourceDenied)
	require.NoError(t, err)

	// Simulate a silently broken channel on one connection.
	broken.Close()

	r.Dispatch("alice", types.CategoryResourceDenied, `{"granted":false}`)

	select {
	case msg := <-healthy.Events():
		assert.JSONEq(t, `{"granted":false}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("healthy sibling connection never received the dispatch")
	}
}

func TestOpenStreamUnknownCategory(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	_, err := r.OpenStream(context.Background(), "alice", types.Category("bogus"))
	assert.Error(t, err)
}

func TestDegradedModeWithoutCredential(t *testing.T) {
	r, _, factory := newTestRegistry(t)
	ctx := context.Background()

	conn, err := r.OpenStream(ctx, "guest", types.CategoryLoginFailure)
	require.NoError(t, err, "missing credential must not fail the open")
	require.NotNil(t, conn)

	assert.False(t, r.ConsumerRunning("guest", types.CategoryLoginFailure))
	assert.Zero(t, factory.openCount())
	assert.Equal(t, 1, r.ConnectionCount("guest", types.CategoryLoginFailure))

	_, berr := r.buildConsumer(ctx, "guest", types.CategoryLoginFailure)
	assert.ErrorIs(t, berr, errors.ErrNoCredential)
}

func TestCloseAllForUserFullTeardown(t *testing.T) {
	r, creds, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, creds.Store(ctx, "alice", "pw"))

	categories := []types.Category{
		types.CategoryLoginFailure,
		types.CategorySuspiciousLocation,
		types.CategoryResourceDenied,
	}
	for _, category := range categories {
		_, err := r.OpenStream(ctx, "alice", category)
		require.NoError(t, err)
		require.True(t, r.ConsumerRunning("alice", category))
	}

	r.CloseAllForUser(ctx, "alice")

	for _, category := range types.Categories() {
		assert.False(t, r.ConsumerRunning("alice", category),
			"no consumer may survive a full teardown (%s)", category)
		assert.Zero(t, r.ConnectionCount("alice", category))
	}

	_, cached := creds.Password(ctx, "alice")
	assert.False(t, cached, "credential must be purged at zero connections")
}

func TestCredentialPurgedWhenLastConnectionCloses(t *testing.T) {
	r, creds, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, creds.Store(ctx, "alice", "pw"))

	conn, err := r.OpenStream(ctx, "alice", types.CategorySystemDenied)
	require.NoError(t, err)
	require.NoError(t, r.CloseConnection(ctx, "alice", conn.ID))

	_, cached := creds.Password(ctx, "alice")
	assert.False(t, cached)
}

func TestCloseConnectionUnknownID(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	err := r.CloseConnection(context.Background(), "alice", "no-such-id")
	assert.Error(t, err)
}

func TestSweepRemovesDeadConnections(t *testing.T) {
	r, creds, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, creds.Store(ctx, "alice", "pw"))

	conn, err := r.OpenStream(ctx, "alice", types.CategoryLoginFailure)
	require.NoError(t, err)

	// Channel dies without going through CloseConnection.
	conn.Close()
	require.Equal(t, 1, r.ConnectionCount("alice", types.CategoryLoginFailure))

	r.Sweep()

	assert.Zero(t, r.ConnectionCount("alice", types.CategoryLoginFailure))
	assert.False(t, r.ConsumerRunning("alice", types.CategoryLoginFailure))
}

func TestDispatchDeliversOnlyToOwnersConnections(t *testing.T) {
	r, creds, factory := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, creds.Store(ctx, "alice", "alice-pw"))
	require.NoError(t, creds.Store(ctx, "bob", "bob-pw"))

	aliceConn, err := r.OpenStream(ctx, "alice", types.CategoryResourceDenied)
	require.NoError(t, err)
	bobConn, err := r.OpenStream(ctx, "bob", types.CategoryResourceDenied)
	require.NoError(t, err)

	topic := testBindings().Topic(types.CategoryResourceDenied)
	src := factory.source("alice", topic)
	require.NotNil(t, src)

	record := `{"clientIp":"10.0.0.5","methodName":"kafka.Produce","granted":false}`
	src.records <- []byte(record)

	select {
	case msg := <-aliceConn.Events():
		assert.Contains(t, string(msg), `"clientIp":"10.0.0.5"`)
	case <-time.After(2 * time.Second):
		t.Fatal("alice never received the record from her consumer")
	}

	select {
	case msg := <-bobConn.Events():
		t.Fatalf("bob received alice's record: %s", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

// slowCredentialStore delays lookups for one user to mimic a remote store
type slowCredentialStore struct {
	inner    *auth.MemoryCredentialStore
	slowUser string
	delay    time.Duration
	lookups  chan struct{}
}

func (s *slowCredentialStore) Password(ctx context.Context, username string) (string, bool) {
	if username == s.slowUser {
		select {
		case s.lookups <- struct{}{}:
		default:
		}
		time.Sleep(s.delay)
	}
	return s.inner.Password(ctx, username)
}

func (s *slowCredentialStore) Store(ctx context.Context, username, password string) error {
	return s.inner.Store(ctx, username, password)
}

func (s *slowCredentialStore) Purge(ctx context.Context, username string) error {
	return s.inner.Purge(ctx, username)
}

func TestDispatchNotStalledBySlowCredentialLookup(t *testing.T) {
	creds := &slowCredentialStore{
		inner:    auth.NewMemoryCredentialStore(),
		slowUser: "alice",
		delay:    400 * time.Millisecond,
		lookups:  make(chan struct{}, 1),
	}
	factory := newFakeFactory()

	cfg := DefaultRegistryConfig(testBindings(), creds, factory)
	cfg.PushTimeout = 200 * time.Millisecond
	cfg.PollTimeout = 50 * time.Millisecond
	cfg.StopTimeout = time.Second
	cfg.BufferSize = 8

	r, err := NewRegistry(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Stop(2 * time.Second) })

	ctx := context.Background()
	require.NoError(t, creds.Store(ctx, "alice", "pw"))

	bobConn, err := r.OpenStream(ctx, "bob", types.CategoryLoginFailure)
	require.NoError(t, err)

	opened := make(chan struct{})
	go func() {
		defer close(opened)
		_, _ = r.OpenStream(ctx, "alice", types.CategoryLoginFailure)
	}()
	<-creds.lookups

	// Alice's credential lookup is in flight; bob's traffic in the same
	// category must not wait for it.
	start := time.Now()
	r.Dispatch("bob", types.CategoryLoginFailure, `{"n":1}`)
	elapsed := time.Since(start)
	assert.Less(t, elapsed, 100*time.Millisecond,
		"dispatch for one user must not wait on another user's stream open")

	select {
	case msg := <-bobConn.Events():
		assert.JSONEq(t, `{"n":1}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("bob never received the dispatch")
	}

	<-opened
	assert.True(t, r.ConsumerRunning("alice", types.CategoryLoginFailure),
		"alice's consumer must still come up once the lookup completes")
}

func TestRegistryStopClosesEverything(t *testing.T) {
	r, creds, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, creds.Store(ctx, "alice", "pw"))
	require.NoError(t, r.Start(ctx))

	conn, err := r.OpenStream(ctx, "alice", types.CategoryLoginFailure)
	require.NoError(t, err)

	require.NoError(t, r.Stop(2*time.Second))

	select {
	case <-conn.Done():
	default:
		t.Fatal("connection must be closed after registry stop")
	}
	assert.False(t, r.ConsumerRunning("alice", types.CategoryLoginFailure))
}

func TestConcurrentOpenAndClose(t *testing.T) {
	r, creds, _ := newTestRegistry(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			username := fmt.Sprintf("user%d", n%3)
			require.NoError(t, creds.Store(ctx, username, "pw"))
			conn, err := r.OpenStream(ctx, username, types.CategoryLoginFailure)
			if err != nil {
				return
			}
			r.Dispatch(username, types.CategoryLoginFailure, `{"n":1}`)
			_ = r.CloseConnection(ctx, username, conn.ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		username := fmt.Sprintf("user%d", i)
		assert.Zero(t, r.ConnectionCount(username, types.CategoryLoginFailure))
	}
}
