package interfaces

import "time"

// -----------------------------------------------------------------------------
// ISession is one live client connection as seen by the registry and router.
// The websocket client implements it; tests substitute stubs.
// -----------------------------------------------------------------------------

type ISession interface {

	// UserID returns the authenticated user owning this connection.
	UserID() int64

	// -----------------------------------------------------------------------------

	// SessionID returns the unique id of this connection instance.
	SessionID() string

	// -----------------------------------------------------------------------------

	// Send enqueues an envelope for delivery. It never blocks: a closed
	// session or a saturated outbound buffer returns false, and the caller
	// must treat false as connection death.
	Send(envelope interface{}) bool

	// -----------------------------------------------------------------------------

	// Close tears the transport down with the given websocket close code.
	// Idempotent.
	Close(code int, reason string)

	// -----------------------------------------------------------------------------

	ConnectedAt() time.Time
	LastActivity() time.Time

	// -----------------------------------------------------------------------------

	// CacheAssets / UncacheAssets maintain the connection-local mirror of
	// the subscribed asset set; AssetSnapshot returns a copy of it.
	CacheAssets(assetIDs []int64)
	UncacheAssets(assetIDs []int64)
	AssetSnapshot() []int64
}
