// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpapi exposes the gateway's northbound HTTP surface over
// gin-gonic/gin: POST /v1/generate, GET /v1/health, POST
// /v1/cache/invalidate, GET /v1/stats, GET /v1/cache/performance, POST
// /v1/cache/optimize, GET /v1/errors/summary, and a websocket push channel
// that streams provider health-change events to connected operators.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/girishdigge/dreamscapes-sub008/internal/cache"
	"github.com/girishdigge/dreamscapes-sub008/internal/dream"
	"github.com/girishdigge/dreamscapes-sub008/internal/health"
	"github.com/girishdigge/dreamscapes-sub008/internal/manager"
	"github.com/girishdigge/dreamscapes-sub008/internal/metrics"
	"github.com/girishdigge/dreamscapes-sub008/internal/obslog"
	"github.com/girishdigge/dreamscapes-sub008/internal/orchestrator"
)

// Server wires the orchestrator, provider manager, cache, health monitor,
// and metrics surface into a gin.Engine.
type Server struct {
	engine *gin.Engine
	hub    *Hub

	orch    *orchestrator.Orchestrator
	mgr     *manager.Manager
	cache   *cache.Cache
	monitor *health.Monitor
	metrics *metrics.Metrics
}

// New builds a Server with every route registered. Callers run it with
// engine.Run(addr) or http.Server.ListenAndServe via Handler(). m may be
// nil, in which case /v1/errors/summary reports an empty summary.
func New(orch *orchestrator.Orchestrator, mgr *manager.Manager, c *cache.Cache, monitor *health.Monitor, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:  engine,
		hub:     newHub(),
		orch:    orch,
		mgr:     mgr,
		cache:   c,
		monitor: monitor,
		metrics: m,
	}

	if monitor != nil {
		monitor.AddEventHandler(s.hub.broadcastEvent)
	}

	engine.Use(s.requestID)
	engine.POST("/v1/generate", s.handleGenerate)
	engine.GET("/v1/health", s.handleHealth)
	engine.GET("/v1/providers/circuit", s.handleProvidersCircuit)
	engine.POST("/v1/cache/invalidate", s.handleCacheInvalidate)
	engine.GET("/v1/cache/performance", s.handleCachePerformance)
	engine.POST("/v1/cache/optimize", s.handleCacheOptimize)
	engine.GET("/v1/stats", s.handleStats)
	engine.GET("/v1/errors/summary", s.handleErrorsSummary)
	engine.GET("/v1/health/stream", s.handleHealthStream)

	return s
}

// Handler returns the underlying http.Handler for use with a custom
// http.Server (TLS, timeouts, graceful shutdown).
func (s *Server) Handler() http.Handler {
	return s.engine
}

const requestIDHeader = "X-Request-Id"

// requestID mints a request ID via google/uuid when the caller did not
// supply one, and attaches it to both the response header and the gin
// context so every handler can thread it into its logger.
func (s *Server) requestID(c *gin.Context) {
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(obslog.FieldRequestID, id)
	c.Header(requestIDHeader, id)
	c.Next()
}

// generateRequest is the wire shape of POST /v1/generate.
type generateRequest struct {
	Text    string        `json:"text" binding:"required,min=10,max=2000"`
	Style   dream.Style   `json:"style,omitempty" binding:"omitempty,oneof=ethereal cyberpunk surreal fantasy nightmare"`
	Options dream.Options `json:"options,omitempty"`
}

// generateResponse is the wire shape of a successful POST /v1/generate.
type generateResponse struct {
	Artifact  *dream.Artifact `json:"artifact"`
	Source    dream.Source    `json:"source"`
	CacheHit  bool            `json:"cacheHit"`
	RequestID string          `json:"requestId"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	var body generateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "detail": err.Error()})
		return
	}

	requestID, _ := c.Get(obslog.FieldRequestID)
	logger := log.WithField(obslog.FieldRequestID, requestID)

	req := dream.Request{Text: body.Text, Style: body.Style, Options: body.Options}
	outcome, err := s.orch.Generate(c.Request.Context(), req)
	if err != nil {
		logger.WithError(err).Error("httpapi: generate failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "generation failed", "detail": err.Error()})
		return
	}

	// Copy before stamping the request ID: the artifact pointer may be
	// shared with the cache entry other requests are reading.
	artifact := outcome.Artifact
	if artifact != nil {
		stamped := *artifact
		stamped.Metadata.RequestID = requestID.(string)
		artifact = &stamped
	}

	c.JSON(http.StatusOK, generateResponse{
		Artifact:  artifact,
		Source:    outcome.Source,
		CacheHit:  outcome.CacheHit,
		RequestID: requestID.(string),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	providerName := c.Query("provider")
	reports, err := s.mgr.GetProviderHealth(providerName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": reports, "checkedAt": time.Now().UTC()})
}

// handleProvidersCircuit reports every provider's circuit snapshot, keyed by
// provider name.
func (s *Server) handleProvidersCircuit(c *gin.Context) {
	reports, err := s.mgr.GetProviderHealth("")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	circuits := make(map[string]any, len(reports))
	for _, r := range reports {
		circuits[r.Name] = r.Circuit
	}
	c.JSON(http.StatusOK, gin.H{"circuits": circuits})
}

type invalidateRequest struct {
	Strategy string `json:"strategy" binding:"required"`
	Value    string `json:"value"`
}

func (s *Server) handleCacheInvalidate(c *gin.Context) {
	var body invalidateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "detail": err.Error()})
		return
	}

	strategy, ok := invalidateStrategies[body.Strategy]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown invalidation strategy", "strategy": body.Strategy})
		return
	}

	removed := s.cache.Invalidate(strategy, body.Value)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// invalidateStrategies maps the wire-level strategy names to the cache's
// internal ones.
var invalidateStrategies = map[string]string{
	"failed_ai": cache.InvalidateByFailedAI,
	"age":       cache.InvalidateByAge,
	"source":    cache.InvalidateBySource,
	"all":       cache.InvalidateAll,
}

func (s *Server) handleStats(c *gin.Context) {
	stats := gin.H{
		"cache": s.cache.Stats(),
	}
	if s.monitor != nil {
		stats["health"] = s.monitor.Stats()
	}
	c.JSON(http.StatusOK, stats)
}

// handleCachePerformance reports the cache surface's aggregate counters
// (size, hit rate, evictions, source distribution) without the health
// block handleStats also folds in.
func (s *Server) handleCachePerformance(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.Stats())
}

// handleCacheOptimize sweeps expired entries out of the in-process tier on
// demand, in addition to the periodic background sweep.
func (s *Server) handleCacheOptimize(c *gin.Context) {
	removed := s.cache.Sweep()
	c.JSON(http.StatusOK, gin.H{"swept": removed})
}

const defaultErrorSummaryWindow = 5 * time.Minute

// handleErrorsSummary reports classified-error counts by kind and severity
// over a trailing window, defaulting to 5 minutes; callers may override it
// with ?windowSeconds=N.
func (s *Server) handleErrorsSummary(c *gin.Context) {
	window := defaultErrorSummaryWindow
	if raw := c.Query("windowSeconds"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "windowSeconds must be a positive integer"})
			return
		}
		window = time.Duration(secs) * time.Second
	}

	if s.metrics == nil {
		c.JSON(http.StatusOK, metrics.ErrorSummary{Window: window, ByKind: map[string]int{}, BySeverity: map[string]int{}})
		return
	}
	c.JSON(http.StatusOK, s.metrics.Summary(window))
}

func (s *Server) handleHealthStream(c *gin.Context) {
	s.hub.serveWS(c.Writer, c.Request, log.WithField(obslog.FieldRequestID, c.GetString(obslog.FieldRequestID)))
}
