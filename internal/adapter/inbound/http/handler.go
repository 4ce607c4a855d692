// Package http provides the HTTP transport adapter for the content service.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/celestine-app/celestine/internal/domain/content"
	"github.com/celestine-app/celestine/internal/domain/ratelimit"
	"github.com/celestine-app/celestine/internal/service"
)

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// generateRequest is the /v1/content body, shared by the POST (generate)
// and DELETE (invalidate) routes.
type generateRequest struct {
	ContentType     string          `json:"contentType"`
	Topic           string          `json:"topic,omitempty"`
	Mode            string          `json:"mode,omitempty"`
	Timezone        string          `json:"timezone,omitempty"`
	ForceRegenerate bool            `json:"forceRegenerate,omitempty"`
	Profile         json.RawMessage `json:"profile,omitempty"`
	ChartData       json.RawMessage `json:"chartData,omitempty"`
	PartnerChart    json.RawMessage `json:"partnerChart,omitempty"`
}

type generateResponse struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
	Source      string `json:"source"`
	GeneratedAt string `json:"generatedAt"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// ContentHandler serves content generation requests.
type ContentHandler struct {
	svc     *service.GenerationService
	metrics *Metrics
	logger  *slog.Logger
}

// NewContentHandler creates a handler backed by the generation service.
func NewContentHandler(svc *service.GenerationService, metrics *Metrics, logger *slog.Logger) *ContentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentHandler{svc: svc, metrics: metrics, logger: logger}
}

func (h *ContentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleGenerate(w, r)
	case http.MethodDelete:
		h.handleInvalidate(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST and DELETE are supported")
	}
}

// decodeRequest parses the JSON body and resolves the caller's identity
// into a generation request. A false return means the response has been
// written.
func (h *ContentHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (*content.GenerationRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	var body generateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "request body too large (max 1MB)")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body: "+err.Error())
		return nil, false
	}

	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return nil, false
	}

	return &content.GenerationRequest{
		UserID:          identity.ID,
		Tier:            identity.Tier,
		Type:            content.Type(body.ContentType),
		Topic:           body.Topic,
		Mode:            content.SynastryMode(body.Mode),
		Timezone:        body.Timezone,
		ForceRegenerate: body.ForceRegenerate,
		Profile:         body.Profile,
		ChartData:       body.ChartData,
		PartnerChart:    body.PartnerChart,
	}, true
}

func (h *ContentHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	result, err := h.svc.GetOrGenerate(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, logger, req, err)
		return
	}

	if result.RateLimit != nil {
		setRateLimitHeaders(w, result.RateLimit)
	}
	if h.metrics != nil {
		h.metrics.ContentServed.WithLabelValues(string(req.Type), string(result.Source)).Inc()
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Content:     result.Payload,
		ContentType: string(req.Type),
		Source:      string(result.Source),
		GeneratedAt: result.GeneratedAt.UTC().Format(time.RFC3339),
	})
}

// handleInvalidate drops the cached entry addressed by the same body shape
// the POST route takes, so a deep dive can be regenerated on demand.
func (h *ContentHandler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	if err := h.svc.Invalidate(req); err != nil {
		var keyErr *content.KeyError
		if errors.As(err, &keyErr) {
			writeError(w, http.StatusBadRequest, "invalid_request", keyErr.Error())
			return
		}
		logger.Error("invalidate failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	logger.Info("cache entry invalidated", "user_id", req.UserID, "content_type", req.Type)
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps generation errors onto HTTP status codes.
func (h *ContentHandler) writeServiceError(w http.ResponseWriter, logger *slog.Logger, req *content.GenerationRequest, err error) {
	var (
		keyErr  *content.KeyError
		rateErr *content.RateLimitedError
		genErr  *content.GenerationError
	)
	switch {
	case errors.As(err, &keyErr):
		writeError(w, http.StatusBadRequest, "invalid_request", keyErr.Error())
	case errors.Is(err, content.ErrPremiumRequired):
		writeError(w, http.StatusForbidden, "premium_required",
			fmt.Sprintf("content type %q requires a premium subscription", req.Type))
	case errors.As(err, &rateErr):
		if h.metrics != nil {
			h.metrics.RateLimitRejections.WithLabelValues(string(ratelimit.ClassGeneration)).Inc()
		}
		w.Header().Set("X-RateLimit-Remaining", "0")
		writeRateLimited(w, rateErr.ResetAt, rateErr.RetryAfter)
	case errors.Is(err, content.ErrGenerationTimeout):
		h.recordFailure("timeout")
		logger.Warn("generation timed out", "user_id", req.UserID, "content_type", req.Type)
		writeError(w, http.StatusGatewayTimeout, "generation_timeout", "content generation timed out")
	case errors.As(err, &genErr):
		h.recordFailure("upstream")
		logger.Error("generation failed", "user_id", req.UserID, "content_type", req.Type, "error", genErr.Cause)
		writeError(w, http.StatusBadGateway, "generation_failed", "content generation failed")
	case errors.Is(err, context.Canceled):
		// Client went away. Nothing useful to write.
	default:
		h.recordFailure("internal")
		logger.Error("content request failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (h *ContentHandler) recordFailure(reason string) {
	if h.metrics != nil {
		h.metrics.GenerationFailures.WithLabelValues(reason).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// setRateLimitHeaders stamps the quota headers from a limiter result.
func setRateLimitHeaders(w http.ResponseWriter, res *ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", res.ResetAt.UTC().Format(time.RFC3339))
}

// writeRateLimited answers a quota rejection with a 429 and Retry-After.
func writeRateLimited(w http.ResponseWriter, resetAt time.Time, retryAfter time.Duration) {
	retry := int(retryAfter.Round(time.Second).Seconds())
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("X-RateLimit-Reset", resetAt.UTC().Format(time.RFC3339))
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Error:      "rate_limited",
		Message:    "generation quota exceeded, try again later",
		RetryAfter: retry,
	})
}
