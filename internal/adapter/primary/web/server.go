package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"micguard/internal/adapter/secondary/repository"
	"micguard/internal/domain"
	"micguard/internal/logging"
)

const (
	defaultEventLimit = 20
	maxEventLimit     = 500
)

// StatusSource exposes the live monitor snapshot.
type StatusSource interface {
	Snapshot() domain.Snapshot
}

// Applier performs an on-demand correction.
type Applier interface {
	ApplyNow(ctx context.Context, percent int) (domain.DeviceHandle, error)
}

// EventSource lists journaled cycles.
type EventSource interface {
	Recent(ctx context.Context, limit int) ([]repository.JournalEvent, error)
}

// Server is a primary adapter exposing the monitor's status over HTTP.
type Server struct {
	status  StatusSource
	applier Applier
	events  EventSource
	hub     *Hub
	log     *logging.Logger
	server  *http.Server
}

// NewServer creates the HTTP server bound to addr. events and applier may be nil.
func NewServer(addr string, status StatusSource, applier Applier, events EventSource, hub *Hub, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}
	if hub == nil {
		hub = NewHub()
	}
	srv := &Server{status: status, applier: applier, events: events, hub: hub, log: log}
	srv.server = &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// Routes builds the gin router.
func (s *Server) Routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.loggingMiddleware())

	router.GET("/health", s.health)
	api := router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/events", s.getEvents)
		api.POST("/apply", sameOriginOnly(), s.apply)
	}
	router.GET("/ws", s.wsConnect)
	return router
}

// Start blocks and serves HTTP traffic. A graceful shutdown returns nil.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, repository.NewStatusView(s.status.Snapshot()))
}

func (s *Server) getEvents(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	limit := defaultEventLimit
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := s.events.Recent(c.Request.Context(), limit)
	if err != nil {
		s.log.Errorf("list events: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}
	if events == nil {
		events = []repository.JournalEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(events), "events": events})
}

type applyPayload struct {
	Volume *int `json:"volume"`
}

func (s *Server) apply(c *gin.Context) {
	if s.applier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "apply disabled"})
		return
	}
	var req applyPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
			return
		}
	}
	percent := -1
	if req.Volume != nil {
		percent = *req.Volume
	}

	dev, err := s.applier.ApplyNow(c.Request.Context(), percent)
	switch {
	case errors.Is(err, domain.ErrInvalidVolume):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"device": dev.ID, "name": dev.DisplayName})
	}
}

// sameOrigin accepts requests without an Origin header (non-browser clients)
// and browser requests from a page served by this same host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// sameOriginOnly guards state-changing routes against pages on other origins.
// A body must be JSON, which a plain cross-site form cannot send.
func sameOriginOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sameOrigin(c.Request) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "cross-origin request rejected"})
			return
		}
		if c.Request.ContentLength != 0 && c.ContentType() != gin.MIMEJSON {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"error": "body must be application/json"})
			return
		}
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
