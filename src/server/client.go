package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"device-push/src/helpers"
	"device-push/src/interfaces"
	"device-push/src/logger"
	"device-push/src/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait = 2 * time.Second
)

// -----------------------------------------------------------------------------
// Client Structure
//
// One Client per accepted websocket connection. Each runs its state machine
// through OPEN to CLOSED: readPump processes inbound control frames strictly
// in arrival order, writePump drains the buffered outbound queue. No Client
// state survives into a fresh connect of the same user.
// -----------------------------------------------------------------------------

type Client struct {
	router *Router
	logger *logger.Logger
	conn   *websocket.Conn

	userID    int64
	sessionID string

	send chan interface{}

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string

	connectedAt  time.Time
	lastActivity atomic.Int64 // unix milliseconds

	assetsMu sync.RWMutex
	assets   map[int64]struct{} // connection-local mirror of subscribed assets

	pongWait       time.Duration
	maxMessageSize int64
}

// -----------------------------------------------------------------------------

func NewClient(conn *websocket.Conn, userID int64, wsCfg models.MWebSocketConfig, router *Router, log *logger.Logger) *Client {
	c := &Client{
		router:         router,
		logger:         log,
		conn:           conn,
		userID:         userID,
		sessionID:      uuid.NewString(),
		send:           make(chan interface{}, wsCfg.SendQueueSize),
		connectedAt:    time.Now().UTC(),
		assets:         make(map[int64]struct{}),
		pongWait:       time.Duration(wsCfg.PongWaitSeconds) * time.Second,
		maxMessageSize: wsCfg.MaxMessageSize,
	}
	c.touch()
	return c
}

// -----------------------------------------------------------------------------
// ISession implementation
// -----------------------------------------------------------------------------

func (c *Client) UserID() int64          { return c.userID }
func (c *Client) SessionID() string      { return c.sessionID }
func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

func (c *Client) LastActivity() time.Time {
	return time.UnixMilli(c.lastActivity.Load()).UTC()
}

// -----------------------------------------------------------------------------

// Send enqueues one envelope. A closed session or a saturated outbound
// buffer returns false immediately; it never blocks the caller. After a
// false return the registry treats this connection as dead.
func (c *Client) Send(envelope interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- envelope:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------

// Close marks the session closed and hands the close frame to writePump via
// channel close. Idempotent.
func (c *Client) Close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.send)
	c.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (c *Client) CacheAssets(assetIDs []int64) {
	c.assetsMu.Lock()
	for _, id := range assetIDs {
		c.assets[id] = struct{}{}
	}
	c.assetsMu.Unlock()
}

func (c *Client) UncacheAssets(assetIDs []int64) {
	c.assetsMu.Lock()
	for _, id := range assetIDs {
		delete(c.assets, id)
	}
	c.assetsMu.Unlock()
}

func (c *Client) AssetSnapshot() []int64 {
	c.assetsMu.RLock()
	defer c.assetsMu.RUnlock()

	out := make([]int64, 0, len(c.assets))
	for id := range c.assets {
		out = append(out, id)
	}
	return out
}

// -----------------------------------------------------------------------------

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixMilli())
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Acts as the watchdog for the connection: any read error is fatal to
// exactly this connection and triggers full teardown.
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		c.router.HandleDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.router.Errors.Handle("transport", helpers.NewTransportError(fmt.Sprintf("read failed for user %d", c.userID), err))
			}
			break
		}
		c.touch()
		c.router.HandleClientMessage(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	pingPeriod := (c.pongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Close() set the code before closing the channel
				code := c.closeCode
				if code == 0 {
					code = websocket.CloseNormalClosure
				}
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, c.closeReason))
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Info("Write error for user %d: %v", c.userID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Compile-time interface check
var _ interfaces.ISession = (*Client)(nil)
