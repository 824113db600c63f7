package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/chrono-sentinel/internal/datetime"
	"github.com/raaihank/chrono-sentinel/internal/websocket"
)

// DetectRequest is the body of the detect endpoints
type DetectRequest struct {
	Locale string `json:"locale"`
	Text   string `json:"text"`
}

// DetectResponse is the body returned by /v1/detect
type DetectResponse struct {
	RequestID  string           `json:"request_id"`
	Locale     string           `json:"locale"`
	Generation uint64           `json:"generation"`
	Matches    []datetime.Match `json:"matches"`
	Cached     bool             `json:"cached"`
}

// OffsetsResponse is the body returned by /v1/detect/offsets
type OffsetsResponse struct {
	Locale     string  `json:"locale"`
	Generation uint64  `json:"generation"`
	Offsets    []int32 `json:"offsets"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":              "chrono-sentinel",
		"version":           Version,
		"generation":        s.registry.Generation(),
		"locales":           s.registry.Locales(),
		"default_locale":    s.config.Server.DefaultLocale,
		"cache_enabled":     s.cache != nil,
		"websocket_enabled": s.wsHub != nil,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"status":            s.status(),
		"rate_limited_ips":  s.limiter.Clients(),
		"rate_limit_active": s.config.RateLimit.Enabled,
	}
	if s.wsHub != nil {
		stats["websocket"] = s.wsHub.GetStats()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDetectRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	requestID := getRequestID(r.Context())
	gen, matches, cached := s.detect(r.Context(), req.Locale, req.Text)
	duration := time.Since(start)

	s.logger.WithRequestID(requestID).LogDetection(req.Locale, len(req.Text), len(matches), cached, duration)
	s.broadcast(websocket.Event{
		Type:      websocket.EventTypeDetection,
		RequestID: requestID,
		Data: websocket.DetectionEvent{
			RequestID:    requestID,
			Locale:       req.Locale,
			Generation:   gen,
			TextLength:   len(req.Text),
			Matches:      matches,
			TotalMatches: len(matches),
			Cached:       cached,
			ProcessingMS: float64(duration.Nanoseconds()) / 1e6,
		},
	})

	writeJSON(w, http.StatusOK, DetectResponse{
		RequestID:  requestID,
		Locale:     req.Locale,
		Generation: gen,
		Matches:    matches,
		Cached:     cached,
	})
}

func (s *Server) handleDetectOffsets(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDetectRequest(w, r)
	if !ok {
		return
	}

	gen, matches, _ := s.detect(r.Context(), req.Locale, req.Text)
	writeJSON(w, http.StatusOK, OffsetsResponse{
		Locale:     req.Locale,
		Generation: gen,
		Offsets:    datetime.Offsets(matches),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	gen := s.ResetRules(r.Context(), "api", nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "reloaded",
		"generation": gen,
	})
}

// detect serves text from the result cache when possible
func (s *Server) detect(ctx context.Context, locale, text string) (uint64, []datetime.Match, bool) {
	gen := s.registry.Generation()
	if s.cache != nil && text != "" {
		if matches, ok := s.cache.Get(ctx, gen, locale, text); ok {
			return gen, matches, true
		}
	}

	matches := s.registry.Detect(ctx, locale, text)
	s.detections.Add(1)

	if s.cache != nil && text != "" {
		if err := s.cache.Store(ctx, gen, locale, text, matches); err != nil {
			s.logger.Warn("Failed to cache detection result", zap.Error(err))
		}
	}
	return gen, matches, false
}

func (s *Server) decodeDetectRequest(w http.ResponseWriter, r *http.Request) (DetectRequest, bool) {
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return req, false
	}

	if req.Locale == "" {
		req.Locale = s.config.Server.DefaultLocale
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
