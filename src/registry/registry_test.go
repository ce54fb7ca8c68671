package registry_test

import (
	"sync"
	"testing"
	"time"

	"device-push/src/logger"
	"device-push/src/models"
	"device-push/src/registry"
	"device-push/src/storage"
	"device-push/src/subscriptions"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Session stub
// -----------------------------------------------------------------------------

type stubSession struct {
	userID int64
	id     string

	mu        sync.Mutex
	sent      []interface{}
	failSends bool
	closed    bool
	closeCode int

	assets map[int64]struct{}
}

func newStubSession(userID int64) *stubSession {
	return &stubSession{
		userID: userID,
		id:     uuid.NewString(),
		assets: make(map[int64]struct{}),
	}
}

func (s *stubSession) UserID() int64           { return s.userID }
func (s *stubSession) SessionID() string       { return s.id }
func (s *stubSession) ConnectedAt() time.Time  { return time.Time{} }
func (s *stubSession) LastActivity() time.Time { return time.Time{} }

func (s *stubSession) Send(envelope interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSends || s.closed {
		return false
	}
	s.sent = append(s.sent, envelope)
	return true
}

func (s *stubSession) Close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.closeCode = code
}

func (s *stubSession) CacheAssets(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.assets[id] = struct{}{}
	}
}

func (s *stubSession) UncacheAssets(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.assets, id)
	}
}

func (s *stubSession) AssetSnapshot() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.assets))
	for id := range s.assets {
		out = append(out, id)
	}
	return out
}

func (s *stubSession) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *stubSession) isClosed() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closeCode
}

// -----------------------------------------------------------------------------

func newTestRegistry() (*registry.Registry, *subscriptions.Index) {
	log := logger.NewTestLogger()
	index := subscriptions.NewIndex(log)
	return registry.NewRegistry(index, storage.NewNoopDB(), log), index
}

// -----------------------------------------------------------------------------

func TestConnectSendsConnectionEnvelope(t *testing.T) {
	reg, _ := newTestRegistry()
	sess := newStubSession(7)

	require.True(t, reg.Connect(sess))
	require.True(t, reg.IsConnected(7))

	require.Equal(t, 1, sess.sentCount())
	env, ok := sess.sent[0].(*models.MConnectionEnvelope)
	require.True(t, ok)
	assert.Equal(t, models.EnvelopeConnection, env.Type)
	assert.Equal(t, "connected", env.Status)
	assert.Equal(t, int64(7), env.UserID)
}

// -----------------------------------------------------------------------------

func TestConnectRejectedWhenInitialSendFails(t *testing.T) {
	reg, _ := newTestRegistry()
	sess := newStubSession(7)
	sess.failSends = true

	assert.False(t, reg.Connect(sess))
	assert.False(t, reg.IsConnected(7))
	assert.Equal(t, 0, reg.Count())
}

// -----------------------------------------------------------------------------

func TestReconnectSupersedesPriorConnection(t *testing.T) {
	reg, index := newTestRegistry()

	first := newStubSession(7)
	require.True(t, reg.Connect(first))
	index.SubscribeBatch(7, []int64{1, 2}, models.SubTypeAssetData, nil)

	second := newStubSession(7)
	require.True(t, reg.Connect(second))

	closed, code := first.isClosed()
	require.True(t, closed, "prior connection must be closed")
	assert.Equal(t, websocket.ClosePolicyViolation, code)

	// Prior subscriptions were purged before the new session took over
	assert.Empty(t, index.ListForUser(7))

	// Any message to the user now reaches only the new session
	before := first.sentCount()
	require.True(t, reg.Send(7, "hello"))
	assert.Equal(t, before, first.sentCount())
	assert.Equal(t, 2, second.sentCount()) // connection envelope + "hello"
}

// -----------------------------------------------------------------------------

// gatedSession parks its first Send until the gate opens, so a test can hold
// one Connect call between the registry swap and the welcome envelope.
type gatedSession struct {
	stubSession
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (s *gatedSession) Send(envelope interface{}) bool {
	s.once.Do(func() {
		close(s.entered)
		<-s.gate
	})
	return s.stubSession.Send(envelope)
}

func TestConcurrentConnectLeavesExactlyOneLiveSession(t *testing.T) {
	reg, _ := newTestRegistry()

	first := &gatedSession{
		stubSession: *newStubSession(7),
		gate:        make(chan struct{}),
		entered:     make(chan struct{}),
	}
	second := newStubSession(7)

	// Hold the first Connect mid-flight, inside its welcome send
	firstResult := make(chan bool)
	go func() { firstResult <- reg.Connect(first) }()
	<-first.entered

	// A second Connect for the same user completes fully in the meantime
	require.True(t, reg.Connect(second))

	closed, code := first.isClosed()
	require.True(t, closed, "superseded mid-connect session must be closed")
	assert.Equal(t, websocket.ClosePolicyViolation, code)

	close(first.gate)
	assert.False(t, <-firstResult, "superseded connect must not report success")

	// Exactly one registered connection, and it is the second one
	assert.Equal(t, 1, reg.Count())
	require.True(t, reg.Send(7, "hello"))
	assert.Equal(t, 2, second.sentCount()) // connection envelope + "hello"
}

// -----------------------------------------------------------------------------

func TestDisconnectIsIdempotentAndCleansUp(t *testing.T) {
	reg, index := newTestRegistry()

	// Unknown user is a no-op
	reg.Disconnect(99)

	sess := newStubSession(7)
	require.True(t, reg.Connect(sess))
	index.Subscribe(7, 42, models.SubTypeAll, nil)

	reg.Disconnect(7)
	assert.False(t, reg.IsConnected(7))
	assert.Empty(t, index.ListForUser(7))

	reg.Disconnect(7) // second call is a no-op
}

// -----------------------------------------------------------------------------

func TestSendFailureDisconnectsAsSideEffect(t *testing.T) {
	reg, index := newTestRegistry()

	sess := newStubSession(7)
	require.True(t, reg.Connect(sess))
	index.Subscribe(7, 42, models.SubTypeAssetData, nil)

	sess.mu.Lock()
	sess.failSends = true
	sess.mu.Unlock()

	assert.False(t, reg.Send(7, "payload"))
	assert.False(t, reg.IsConnected(7))
	assert.Empty(t, index.ListForUser(7))

	// Sending to an unknown user is a plain false, no panic
	assert.False(t, reg.Send(7, "payload"))
}

// -----------------------------------------------------------------------------

func TestBroadcastIsBestEffort(t *testing.T) {
	reg, _ := newTestRegistry()

	good1 := newStubSession(1)
	bad := newStubSession(2)
	good2 := newStubSession(3)
	require.True(t, reg.Connect(good1))
	require.True(t, reg.Connect(bad))
	require.True(t, reg.Connect(good2))

	bad.mu.Lock()
	bad.failSends = true
	bad.mu.Unlock()

	assert.Equal(t, 2, reg.Broadcast("notice"))
	assert.True(t, reg.IsConnected(1))
	assert.False(t, reg.IsConnected(2))
	assert.True(t, reg.IsConnected(3))
}

// -----------------------------------------------------------------------------

func TestDisconnectSessionIgnoresStaleSession(t *testing.T) {
	reg, index := newTestRegistry()

	first := newStubSession(7)
	require.True(t, reg.Connect(first))

	second := newStubSession(7)
	require.True(t, reg.Connect(second))
	index.Subscribe(7, 42, models.SubTypeAssetData, nil)

	// The superseded session's teardown must not evict its replacement
	assert.False(t, reg.DisconnectSession(first))
	assert.True(t, reg.IsConnected(7))
	assert.Len(t, index.ListForUser(7), 1)

	assert.True(t, reg.DisconnectSession(second))
	assert.False(t, reg.IsConnected(7))
	assert.Empty(t, index.ListForUser(7))
}

// -----------------------------------------------------------------------------

func TestSnapshotReportsLiveConnections(t *testing.T) {
	reg, _ := newTestRegistry()

	sess := newStubSession(7)
	sess.CacheAssets([]int64{1, 2})
	require.True(t, reg.Connect(sess))

	infos := reg.Snapshot()
	require.Len(t, infos, 1)
	assert.Equal(t, int64(7), infos[0].UserID)
	assert.ElementsMatch(t, []int64{1, 2}, infos[0].SubscribedAssets)
}
