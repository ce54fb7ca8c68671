package registry

import (
	"sync"
	"time"

	"device-push/src/interfaces"
	"device-push/src/logger"
	"device-push/src/models"
	"device-push/src/protocol"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Connection Registry
//
// Owns the live connection handles, keyed by user id, and is authoritative on
// "is this user online". One connection per user: a new connection supersedes
// the prior one ("last writer wins"). The lock guards only the map; sends and
// closes always happen outside it.
// -----------------------------------------------------------------------------

type Registry struct {
	Logger *logger.Logger

	purger  interfaces.ISubscriptionPurger
	journal interfaces.IDatabase

	mu       sync.RWMutex
	sessions map[int64]interfaces.ISession
}

// -----------------------------------------------------------------------------

// NewRegistry creates the process-wide connection registry. Construct once at
// startup and inject it as a dependency.
func NewRegistry(purger interfaces.ISubscriptionPurger, journal interfaces.IDatabase, log *logger.Logger) *Registry {
	return &Registry{
		Logger:   log,
		purger:   purger,
		journal:  journal,
		sessions: make(map[int64]interfaces.ISession),
	}
}

// -----------------------------------------------------------------------------

// Connect registers a new session for its user. The swap is atomic: the old
// session is evicted and the new one installed in the same critical section,
// so concurrent Connects for one user always leave exactly one registered
// winner. The evicted session is closed with a policy-violation code and its
// subscriptions purged outside the lock. On success the session receives a
// connection envelope and Connect returns true; if that initial send fails
// the entry is removed again (only if it still belongs to this session) and
// Connect returns false.
func (r *Registry) Connect(sess interfaces.ISession) bool {
	userID := sess.UserID()

	r.mu.Lock()
	old := r.sessions[userID]
	r.sessions[userID] = sess
	r.mu.Unlock()

	if old != nil {
		old.Close(websocket.ClosePolicyViolation, "superseded by a new connection")
		r.purger.UnsubscribeAll(userID)
		r.recordEvent(userID, old.SessionID(), models.EventSuperseded, "replaced by "+sess.SessionID())
		r.Logger.Info("User %d reconnected, superseding session %s", userID, old.SessionID())
	}

	if !sess.Send(protocol.NewConnectionEnvelope(userID)) {
		r.Logger.Warning("User %d connection rejected: initial envelope not accepted", userID)
		r.mu.Lock()
		if current, ok := r.sessions[userID]; ok && current.SessionID() == sess.SessionID() {
			delete(r.sessions, userID)
		}
		r.mu.Unlock()
		return false
	}

	r.recordEvent(userID, sess.SessionID(), models.EventConnected, "")
	return true
}

// -----------------------------------------------------------------------------

// Disconnect removes the user's entry and triggers subscription cleanup.
// Idempotent; unknown users are a no-op.
func (r *Registry) Disconnect(userID int64) {
	r.mu.Lock()
	sess := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	if sess == nil {
		return
	}

	sess.Close(websocket.CloseNormalClosure, "disconnected")
	r.purger.UnsubscribeAll(userID)
	r.recordEvent(userID, sess.SessionID(), models.EventDisconnected, "")
}

// -----------------------------------------------------------------------------

// DisconnectSession removes the entry only if it still belongs to the given
// session, and reports whether it did. The teardown path of a superseded
// connection uses this so it can never evict the connection that replaced it.
func (r *Registry) DisconnectSession(sess interfaces.ISession) bool {
	userID := sess.UserID()

	r.mu.Lock()
	current, ok := r.sessions[userID]
	if !ok || current.SessionID() != sess.SessionID() {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, userID)
	r.mu.Unlock()

	sess.Close(websocket.CloseNormalClosure, "disconnected")
	r.purger.UnsubscribeAll(userID)
	r.recordEvent(userID, sess.SessionID(), models.EventDisconnected, "")
	return true
}

// -----------------------------------------------------------------------------

// Send delivers one envelope to the user's live connection. Any write failure
// is treated as connection death: the user is disconnected as a side effect
// and Send returns false. Callers must not assume unchanged registry state
// after a failure.
func (r *Registry) Send(userID int64, envelope interface{}) bool {
	r.mu.RLock()
	sess, ok := r.sessions[userID]
	r.mu.RUnlock()

	if !ok {
		return false
	}

	if !sess.Send(envelope) {
		r.Logger.Warning("Send to user %d failed, dropping connection", userID)
		r.DisconnectSession(sess)
		return false
	}
	return true
}

// -----------------------------------------------------------------------------

// Broadcast delivers one envelope to every live connection, best effort, and
// returns the delivered count. A failed recipient is dropped without
// aborting the rest.
func (r *Registry) Broadcast(envelope interface{}) int {
	r.mu.RLock()
	snapshot := make([]interfaces.ISession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		snapshot = append(snapshot, sess)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sess := range snapshot {
		if sess.Send(envelope) {
			delivered++
			continue
		}
		r.Logger.Warning("Broadcast to user %d failed, dropping connection", sess.UserID())
		r.DisconnectSession(sess)
	}
	return delivered
}

// -----------------------------------------------------------------------------

// IsConnected is a pure lookup.
func (r *Registry) IsConnected(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

// -----------------------------------------------------------------------------

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// -----------------------------------------------------------------------------

// Snapshot returns ops-endpoint info for every live connection.
func (r *Registry) Snapshot() []models.MConnectionInfo {
	r.mu.RLock()
	snapshot := make([]interfaces.ISession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		snapshot = append(snapshot, sess)
	}
	r.mu.RUnlock()

	infos := make([]models.MConnectionInfo, 0, len(snapshot))
	for _, sess := range snapshot {
		infos = append(infos, models.MConnectionInfo{
			UserID:           sess.UserID(),
			SessionID:        sess.SessionID(),
			ConnectedAt:      sess.ConnectedAt().UTC().Format(time.RFC3339),
			LastActivity:     sess.LastActivity().UTC().Format(time.RFC3339),
			SubscribedAssets: sess.AssetSnapshot(),
		})
	}
	return infos
}

// -----------------------------------------------------------------------------

func (r *Registry) recordEvent(userID int64, sessionID, event, detail string) {
	if r.journal == nil {
		return
	}
	ev := models.MSessionEvent{
		UserID:    userID,
		SessionID: sessionID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.journal.RecordEvent(ev); err != nil {
		r.Logger.Warning("Failed to journal %s for user %d: %v", event, userID, err)
	}
}
