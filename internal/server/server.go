// Package server exposes any core.DataSource over the radar HTTP contract,
// so the network client can be pointed at a local backend.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valter-silva-au/signal-radar/internal/core"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// EventRequestFailed is logged for every request that ends in a failure
// envelope.
const EventRequestFailed = "http.request_failed"

// Handlers serves the contract on top of a DataSource.
type Handlers struct {
	source core.DataSource
	log    core.EventLogger
}

// NewHandlers creates Handlers for source. log may be nil.
func NewHandlers(source core.DataSource, log core.EventLogger) *Handlers {
	return &Handlers{source: source, log: log}
}

// RegisterRoutes registers the /api endpoints on rg.
//
//	GET  /api/health
//	POST /api/resolve
//	POST /api/jobs
//	GET  /api/jobs/:id
//	GET  /api/entities/:id/updates?cursor=
//	POST /api/subscriptions
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	api := rg.Group("/api")
	api.GET("/health", h.Health)
	api.POST("/resolve", h.Resolve)
	api.POST("/jobs", h.CreateJob)
	api.GET("/jobs/:id", h.PollJob)
	api.GET("/entities/:id/updates", h.Updates)
	api.POST("/subscriptions", h.Subscribe)
}

// NewRouter builds a gin engine serving source.
func NewRouter(source core.DataSource, log core.EventLogger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	RegisterRoutes(&r.RouterGroup, NewHandlers(source, log))
	return r
}

func (h *Handlers) Health(c *gin.Context) {
	if err := h.source.Health(c.Request.Context()); err != nil {
		h.fail(c, "health", err, models.HealthResponse{Reason: string(core.ReasonOf(err))})
		return
	}
	c.JSON(http.StatusOK, models.HealthResponse{
		OK:             true,
		Source:         h.source.Name(),
		CursorOrdering: string(h.source.CursorOrdering()),
	})
}

func (h *Handlers) Resolve(c *gin.Context) {
	var req models.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "resolve_entity", err, models.ResolveResponse{Reason: string(core.ReasonInvalidInput)})
		return
	}
	identity, err := h.source.ResolveEntity(c.Request.Context(), req.URL)
	if err != nil {
		h.fail(c, "resolve_entity", err, models.ResolveResponse{Reason: string(core.ReasonOf(err))})
		return
	}
	c.JSON(http.StatusOK, models.ResolveResponse{OK: true, Identity: &identity})
}

func (h *Handlers) CreateJob(c *gin.Context) {
	var req models.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "create_job", err, models.CreateJobResponse{Reason: string(core.ReasonInvalidInput)})
		return
	}
	handle, err := h.source.CreateJob(c.Request.Context(), req.EntityID)
	if err != nil {
		h.fail(c, "create_job", err, models.CreateJobResponse{Reason: string(core.ReasonOf(err))})
		return
	}
	c.JSON(http.StatusAccepted, models.CreateJobResponse{OK: true, JobHandle: &handle})
}

func (h *Handlers) PollJob(c *gin.Context) {
	result, err := h.source.PollJob(c.Request.Context(), models.JobHandle{ID: c.Param("id")})
	if err != nil {
		h.fail(c, "poll_job", err, models.JobStatusResponse{Reason: string(core.ReasonOf(err))})
		return
	}
	c.JSON(http.StatusOK, models.JobStatusResponse{
		OK:       true,
		Status:   result.Status,
		Cursor:   result.Cursor,
		Snapshot: result.Snapshot,
	})
}

func (h *Handlers) Updates(c *gin.Context) {
	cursor := c.Query("cursor")
	if cursor == "" {
		h.badRequest(c, "poll_incremental", errors.New("cursor query parameter is required"),
			models.UpdatesResponse{Reason: string(core.ReasonInvalidInput)})
		return
	}
	result, err := h.source.PollIncremental(c.Request.Context(), c.Param("id"), cursor)
	if err != nil {
		h.fail(c, "poll_incremental", err, models.UpdatesResponse{Reason: string(core.ReasonOf(err))})
		return
	}
	delta := result.Delta
	c.JSON(http.StatusOK, models.UpdatesResponse{OK: true, Cursor: result.Cursor, Delta: &delta})
}

func (h *Handlers) Subscribe(c *gin.Context) {
	var req models.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "subscribe", err, models.SubscribeResponse{Reason: string(core.ReasonInvalidInput)})
		return
	}
	id, err := h.source.Subscribe(c.Request.Context(), req.EntityID, req.Contact)
	if err != nil {
		h.fail(c, "subscribe", err, models.SubscribeResponse{Reason: string(core.ReasonOf(err))})
		return
	}
	c.JSON(http.StatusCreated, models.SubscribeResponse{OK: true, SubscriptionID: id})
}

func (h *Handlers) badRequest(c *gin.Context, op string, err error, body any) {
	h.logFailure(c, op, core.ReasonInvalidInput, err)
	c.JSON(http.StatusBadRequest, body)
}

func (h *Handlers) fail(c *gin.Context, op string, err error, body any) {
	reason := core.ReasonOf(err)
	h.logFailure(c, op, reason, err)
	c.JSON(StatusFor(reason), body)
}

func (h *Handlers) logFailure(c *gin.Context, op string, reason core.Reason, err error) {
	if h.log == nil {
		return
	}
	_ = h.log.LogEvent(EventRequestFailed, map[string]any{
		"op":     op,
		"path":   c.FullPath(),
		"reason": string(reason),
		"error":  err.Error(),
	})
}

// StatusFor maps a failure reason onto the HTTP status that mirrors it. The
// body stays authoritative.
func StatusFor(reason core.Reason) int {
	switch reason {
	case core.ReasonNotFound:
		return http.StatusNotFound
	case core.ReasonInvalidInput:
		return http.StatusBadRequest
	case core.ReasonRateLimited:
		return http.StatusTooManyRequests
	case core.ReasonServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
