package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/signal-radar/internal/core"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// HTTPSource is the network DataSource speaking the radar HTTP contract.
// Responses are decoded strictly: an unknown field is a malformed payload.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client

	mu       sync.RWMutex
	ordering core.CursorOrdering
}

// HTTPOption customizes an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPSource) { h.httpClient = c }
}

// WithCursorOrdering sets the ordering used until Health reports one.
func WithCursorOrdering(o core.CursorOrdering) HTTPOption {
	return func(h *HTTPSource) { h.ordering = o }
}

// NewHTTPSource creates a client for the backend at baseURL. Per-call
// deadlines come from the caller's context.
func NewHTTPSource(baseURL string, opts ...HTTPOption) *HTTPSource {
	h := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		ordering: core.OrderLexical,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPSource) Name() string { return "http " + h.baseURL }

func (h *HTTPSource) CursorOrdering() core.CursorOrdering {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ordering
}

// Health probes GET /api/health and adopts the cursor ordering the backend
// declares.
func (h *HTTPSource) Health(ctx context.Context) error {
	var resp models.HealthResponse
	if err := h.do(ctx, "health", http.MethodGet, "/api/health", nil, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return core.NewSourceError("health", core.ParseReason(resp.Reason), nil)
	}
	switch core.CursorOrdering(resp.CursorOrdering) {
	case core.OrderNumeric, core.OrderLexical:
		h.mu.Lock()
		h.ordering = core.CursorOrdering(resp.CursorOrdering)
		h.mu.Unlock()
	}
	return nil
}

func (h *HTTPSource) ResolveEntity(ctx context.Context, identifier string) (models.Identity, error) {
	var resp models.ResolveResponse
	if err := h.do(ctx, "resolve_entity", http.MethodPost, "/api/resolve", models.ResolveRequest{URL: identifier}, &resp); err != nil {
		return models.Identity{}, err
	}
	if !resp.OK {
		return models.Identity{}, core.NewSourceError("resolve_entity", core.ParseReason(resp.Reason), nil)
	}
	if resp.Identity == nil {
		return models.Identity{}, fmt.Errorf("resolve_entity: %w: ok without identity", core.ErrMalformedPayload)
	}
	return *resp.Identity, nil
}

func (h *HTTPSource) CreateJob(ctx context.Context, entityID string) (models.JobHandle, error) {
	var resp models.CreateJobResponse
	if err := h.do(ctx, "create_job", http.MethodPost, "/api/jobs", models.CreateJobRequest{EntityID: entityID}, &resp); err != nil {
		return models.JobHandle{}, err
	}
	if !resp.OK {
		return models.JobHandle{}, core.NewSourceError("create_job", core.ParseReason(resp.Reason), nil)
	}
	if resp.JobHandle == nil || resp.JobHandle.ID == "" {
		return models.JobHandle{}, fmt.Errorf("create_job: %w: ok without job handle", core.ErrMalformedPayload)
	}
	return *resp.JobHandle, nil
}

func (h *HTTPSource) PollJob(ctx context.Context, handle models.JobHandle) (models.JobResult, error) {
	var resp models.JobStatusResponse
	path := "/api/jobs/" + url.PathEscape(handle.ID)
	if err := h.do(ctx, "poll_job", http.MethodGet, path, nil, &resp); err != nil {
		return models.JobResult{}, err
	}
	if !resp.OK {
		return models.JobResult{}, core.NewSourceError("poll_job", core.ParseReason(resp.Reason), nil)
	}
	return models.JobResult{Status: resp.Status, Cursor: resp.Cursor, Snapshot: resp.Snapshot}, nil
}

func (h *HTTPSource) PollIncremental(ctx context.Context, entityID, cursor string) (models.IncrementalResult, error) {
	var resp models.UpdatesResponse
	path := "/api/entities/" + url.PathEscape(entityID) + "/updates?cursor=" + url.QueryEscape(cursor)
	if err := h.do(ctx, "poll_incremental", http.MethodGet, path, nil, &resp); err != nil {
		return models.IncrementalResult{}, err
	}
	if !resp.OK {
		return models.IncrementalResult{}, core.NewSourceError("poll_incremental", core.ParseReason(resp.Reason), nil)
	}
	result := models.IncrementalResult{Cursor: resp.Cursor}
	if resp.Delta != nil {
		result.Delta = *resp.Delta
	}
	return result, nil
}

func (h *HTTPSource) Subscribe(ctx context.Context, entityID, contact string) (string, error) {
	var resp models.SubscribeResponse
	req := models.SubscribeRequest{EntityID: entityID, Contact: contact}
	if err := h.do(ctx, "subscribe", http.MethodPost, "/api/subscriptions", req, &resp); err != nil {
		return "", err
	}
	if !resp.OK {
		return "", core.NewSourceError("subscribe", core.ParseReason(resp.Reason), nil)
	}
	return resp.SubscriptionID, nil
}

// do sends one request and strictly decodes the response envelope into out.
// Bodies that do not decode are classified by status code when it signals a
// server-side failure, and as malformed payloads otherwise.
func (h *HTTPSource) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshalling request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", op, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return core.NewSourceError(op, core.ReasonRateLimited, fmt.Errorf("HTTP %d", resp.StatusCode))
		case resp.StatusCode >= 500:
			return core.NewSourceError(op, core.ReasonServerError, fmt.Errorf("HTTP %d", resp.StatusCode))
		default:
			return fmt.Errorf("%s: %w: %v", op, core.ErrMalformedPayload, err)
		}
	}
	return nil
}
