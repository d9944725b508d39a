// Package api exposes the sync engine to a local UI over HTTP.
//
// Routes:
//
//	POST /v1/mutations            enqueue a write intent
//	GET  /v1/mutations            list pending records
//	POST /v1/sync                 run one drain pass
//	GET  /v1/status               engine status and pending count
//	PUT  /v1/connectivity         set connectivity explicitly
//	PUT  /v1/cache/:collection    replace a cached collection
//	GET  /v1/cache/:collection    read a cached collection
//	GET  /v1/status/ws            status WebSocket
//	GET  /healthz                 liveness
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/mutation"
	"github.com/roach88/fieldsync/internal/store"
)

// Engine is the part of engine.Engine the API drives.
type Engine interface {
	Enqueue(ctx context.Context, url string, method mutation.Method, body json.RawMessage, tempID *int64) (int64, error)
	ProcessQueue(ctx context.Context) error
	SetConnected(ctx context.Context, connected bool)
	Connected() bool
	Status() engine.Status
}

// Queue reads queue contents for display.
type Queue interface {
	ListMutations(ctx context.Context, status mutation.Status) ([]mutation.Record, error)
	CountMutations(ctx context.Context) (map[mutation.Status]int, error)
}

// Cache is the offline-data cache. Implemented by store.Store.
type Cache interface {
	BulkReplace(ctx context.Context, collection string, entries []store.CacheEntry) error
	ListCache(ctx context.Context, collection string) ([]store.CacheEntry, error)
}

// Config groups the router's dependencies. Cache, StatusFeed and Health
// are optional; their routes answer 501 (or are skipped) when nil.
type Config struct {
	Engine     Engine
	Queue      Queue
	Cache      Cache
	StatusFeed http.Handler
	Health     func(ctx context.Context) error
	Logger     *slog.Logger
}

type handlers struct {
	cfg Config
}

// NewRouter builds the gin engine serving every route.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(cfg.Logger))

	h := &handlers{cfg: cfg}
	v := newValidator()

	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	v1.POST("/mutations", func(c *gin.Context) { h.enqueue(c, v) })
	v1.GET("/mutations", h.listMutations)
	v1.POST("/sync", h.sync)
	v1.GET("/status", h.status)
	v1.PUT("/connectivity", func(c *gin.Context) { h.setConnectivity(c, v) })
	v1.PUT("/cache/:collection", func(c *gin.Context) { h.replaceCache(c, v) })
	v1.GET("/cache/:collection", h.listCache)
	if cfg.StatusFeed != nil {
		v1.GET("/status/ws", gin.WrapH(cfg.StatusFeed))
	}

	return r
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("api request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (h *handlers) health(c *gin.Context) {
	if h.cfg.Health != nil {
		if err := h.cfg.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "msg": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) enqueue(c *gin.Context, v *validatorv10.Validate) {
	var req EnqueueRequest
	if err := bindAndValidate(c, &req, v); err != nil {
		return
	}

	method, _ := mutation.ParseMethod(req.Method)
	id, err := h.cfg.Engine.Enqueue(c.Request.Context(), req.URL, method, req.Body, req.TempID)
	if err != nil {
		var ee *engine.EnqueueError
		if errors.As(err, &ee) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_mutation", "code": ee.Code, "msg": ee.Message})
			return
		}
		h.internalError(c, "enqueue_failed", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": h.cfg.Engine.Status()})
}

func (h *handlers) listMutations(c *gin.Context) {
	recs, err := h.cfg.Queue.ListMutations(c.Request.Context(), mutation.StatusPending)
	if err != nil {
		h.internalError(c, "list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mutations": recs})
}

func (h *handlers) sync(c *gin.Context) {
	if err := h.cfg.Engine.ProcessQueue(c.Request.Context()); err != nil {
		h.internalError(c, "sync_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": h.cfg.Engine.Status()})
}

func (h *handlers) status(c *gin.Context) {
	counts, err := h.cfg.Queue.CountMutations(c.Request.Context())
	if err != nil {
		h.internalError(c, "status_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    h.cfg.Engine.Status(),
		"connected": h.cfg.Engine.Connected(),
		"pending":   counts[mutation.StatusPending],
	})
}

func (h *handlers) setConnectivity(c *gin.Context, v *validatorv10.Validate) {
	var req ConnectivityRequest
	if err := bindAndValidate(c, &req, v); err != nil {
		return
	}
	h.cfg.Engine.SetConnected(c.Request.Context(), *req.Connected)
	c.JSON(http.StatusOK, gin.H{"status": h.cfg.Engine.Status()})
}

func (h *handlers) replaceCache(c *gin.Context, v *validatorv10.Validate) {
	if h.cfg.Cache == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "cache_unavailable"})
		return
	}

	items, err := bindAndValidateEach[CacheEntryRequest](c, v)
	if err != nil {
		return
	}

	entries := make([]store.CacheEntry, len(items))
	for i, it := range items {
		entries[i] = store.CacheEntry{Key: it.Key, Data: it.Data}
	}

	if err := h.cfg.Cache.BulkReplace(c.Request.Context(), c.Param("collection"), entries); err != nil {
		h.internalError(c, "cache_replace_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) listCache(c *gin.Context) {
	if h.cfg.Cache == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "cache_unavailable"})
		return
	}

	collection := c.Param("collection")
	entries, err := h.cfg.Cache.ListCache(c.Request.Context(), collection)
	if err != nil {
		h.internalError(c, "cache_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection": collection, "entries": entries})
}

func (h *handlers) internalError(c *gin.Context, code string, err error) {
	h.cfg.Logger.Error("api request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": code, "msg": err.Error()})
}
