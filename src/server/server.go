package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"device-push/src/interfaces"
	"device-push/src/logger"
	"device-push/src/models"
	"device-push/src/registry"
	"device-push/src/subscriptions"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// PushServer
//
// Owns the transport accept loop and the HTTP surface: /ws for clients, the
// producer ingest endpoints for the upstream pipeline, and the ops endpoints.
// -----------------------------------------------------------------------------

type PushServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine

	Auth     interfaces.IAuthenticator
	Journal  interfaces.IDatabase
	Registry *registry.Registry
	Index    *subscriptions.Index
	Router   *Router

	upgrader  websocket.Upgrader
	startedAt time.Time
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewPushServer(cfg *models.MConfig, log *logger.Logger, authn interfaces.IAuthenticator, journal interfaces.IDatabase) *PushServer {
	// Set Gin mode
	if strings.ToLower(cfg.LogLevel) != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	index := subscriptions.NewIndex(log)
	reg := registry.NewRegistry(index, journal, log)

	s := &PushServer{
		Config:   cfg,
		Logger:   log,
		engine:   gin.Default(),
		Auth:     authn,
		Journal:  journal,
		Registry: reg,
		Index:    index,
		Router:   NewRouter(reg, index, journal, log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		startedAt: time.Now().UTC(),
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *PushServer) setupRoutes() {
	// Ops endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/stats", s.getStats)
	s.engine.GET("/api/connections", s.getConnections)
	s.engine.GET("/api/sessions", s.getSessions)

	// Producer ingest endpoints (ingestion pipeline, alert engine,
	// prediction engine)
	s.engine.POST("/api/internal/asset-data", s.postAssetData)
	s.engine.POST("/api/internal/alerts", s.postAlert)
	s.engine.POST("/api/internal/predictions", s.postPrediction)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *PushServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting push server on %s", addr)
	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------

func (s *PushServer) Stop() error {
	s.Logger.Info("Push server stopping, %d connections live", s.Registry.Count())
	return nil
}

// -----------------------------------------------------------------------------

// Handler exposes the HTTP handler, used by tests to mount the server on
// httptest.
func (s *PushServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// WebSocket Accept Path
// -----------------------------------------------------------------------------

func (s *PushServer) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	// Verify the bearer token from the query string before any registry
	// state exists; failure closes the transport with a policy violation.
	token := c.Query("token")
	identity, err := s.Auth.Verify(token)
	if err != nil || identity == nil {
		s.Logger.Info("Rejected websocket connection: %v", err)
		s.closeWithPolicyViolation(conn, "authentication failed")
		return
	}

	client := NewClient(conn, identity.UserID, s.Config.WebSocket, s.Router, s.Logger)
	if !s.Router.HandleConnect(client) {
		conn.Close()
		return
	}

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------

func (s *PushServer) closeWithPolicyViolation(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	conn.Close()
}

// -----------------------------------------------------------------------------
// Ops Handlers
// -----------------------------------------------------------------------------

func (s *PushServer) getHealth(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":         "ok",
		"connections":    s.Registry.Count(),
		"subscriptions":  s.Index.Count(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

// -----------------------------------------------------------------------------

func (s *PushServer) getStats(c *gin.Context) {
	c.JSON(200, s.Router.Stats())
}

// -----------------------------------------------------------------------------

func (s *PushServer) getConnections(c *gin.Context) {
	c.JSON(200, gin.H{
		"connections": s.Registry.Snapshot(),
	})
}

// -----------------------------------------------------------------------------

func (s *PushServer) getSessions(c *gin.Context) {
	events, err := s.Journal.RecentEvents(100)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"events": events})
}

// -----------------------------------------------------------------------------
// Ingest Handlers
//
// Thin producer surface: no delivery confirmation, the response only reports
// how many recipients the event reached.
// -----------------------------------------------------------------------------

type assetDataRequest struct {
	AssetID int64                  `json:"asset_id"`
	Data    map[string]interface{} `json:"data"`
}

func (s *PushServer) postAssetData(c *gin.Context) {
	var req assetDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "invalid JSON body"})
		return
	}
	if req.AssetID <= 0 || req.Data == nil {
		c.JSON(400, gin.H{"error": "asset_id and data are required"})
		return
	}

	delivered := s.Router.PublishAssetData(req.AssetID, req.Data)
	c.JSON(202, gin.H{"success": true, "delivered": delivered})
}

// -----------------------------------------------------------------------------

type alertRequest struct {
	UserID int64                  `json:"user_id"`
	Alert  map[string]interface{} `json:"alert"`
}

func (s *PushServer) postAlert(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "invalid JSON body"})
		return
	}
	if req.UserID <= 0 || req.Alert == nil {
		c.JSON(400, gin.H{"error": "user_id and alert are required"})
		return
	}

	delivered := s.Router.PublishAlert(req.UserID, req.Alert)
	c.JSON(202, gin.H{"success": true, "delivered": delivered})
}

// -----------------------------------------------------------------------------

type predictionRequest struct {
	AssetID    int64                  `json:"asset_id"`
	Prediction map[string]interface{} `json:"prediction"`
}

func (s *PushServer) postPrediction(c *gin.Context) {
	var req predictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "invalid JSON body"})
		return
	}
	if req.AssetID <= 0 || req.Prediction == nil {
		c.JSON(400, gin.H{"error": "asset_id and prediction are required"})
		return
	}

	delivered := s.Router.PublishPrediction(req.AssetID, req.Prediction)
	c.JSON(202, gin.H{"success": true, "delivered": delivered})
}
