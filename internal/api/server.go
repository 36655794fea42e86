// Package api exposes the daemon's state over a read-only HTTP surface: JSON
// endpoints for the latest cycle plus a websocket stream of cycle reports.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"sysward/internal/diagnose"
	"sysward/internal/heal"
	"sysward/internal/telemetry"
	"sysward/internal/version"
)

// Source is the daemon state the handlers read from. The supervisor
// implements it; everything returned must be safe for concurrent use.
type Source interface {
	LastSnapshot() *telemetry.Snapshot
	LastDiagnostics() *diagnose.Diagnostics
	RecentActions() []heal.Action
	CycleCount() uint64
	StartedAt() time.Time
	ConfigView() map[string]interface{}
}

// Server is the HTTP front of the daemon.
type Server struct {
	addr    string
	source  Source
	hub     *Hub
	limiter *RateLimiter
	httpSrv *http.Server
}

// NewServer builds the server and its routes. The hub must be started
// separately with Hub.Run.
func NewServer(addr string, source Source, hub *Hub) *Server {
	s := &Server{
		addr:    addr,
		source:  source,
		hub:     hub,
		limiter: NewRateLimiter(rate.Limit(10), 20),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(SecurityHeaders())
	router.Use(s.limiter.Middleware())

	router.GET("/healthz", s.handleHealthz)
	router.GET("/api/status", s.handleStatus)
	router.GET("/api/diagnostics", s.handleDiagnostics)
	router.GET("/api/actions", s.handleActions)
	router.GET("/api/config", s.handleConfig)
	router.GET("/ws", hub.HandleWebSocket())

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown. Blocks; run it on its own goroutine.
func (s *Server) Start() error {
	log.Infof("status API listening on %s", s.addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
}

func (s *Server) handleStatus(c *gin.Context) {
	diags := s.source.LastDiagnostics()
	overall := diagnose.Nominal
	if diags != nil {
		overall = diags.Overall
	}
	c.JSON(http.StatusOK, gin.H{
		"version":           version.String(),
		"overall_status":    overall,
		"cycles_completed":  s.source.CycleCount(),
		"started_at":        s.source.StartedAt().UTC().Format(time.RFC3339),
		"websocket_clients": s.hub.ClientCount(),
		"snapshot":          s.source.LastSnapshot(),
	})
}

func (s *Server) handleDiagnostics(c *gin.Context) {
	diags := s.source.LastDiagnostics()
	if diags == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no cycle completed yet"})
		return
	}
	c.JSON(http.StatusOK, diags)
}

func (s *Server) handleActions(c *gin.Context) {
	actions := s.source.RecentActions()
	if actions == nil {
		actions = []heal.Action{}
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.ConfigView())
}
