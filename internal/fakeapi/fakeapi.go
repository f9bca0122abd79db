// Package fakeapi serves a deliberately unreliable streaming endpoint for manual
// and automated testing of the retry engine.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Config controls how the fake API misbehaves.
type Config struct {
	// RPS and Burst configure the token bucket; rejected requests get a 429.
	// RPS <= 0 disables rate limiting.
	RPS   float64
	Burst int
	// UnavailableEvery makes every Nth request fail with a 503. Zero disables.
	UnavailableEvery int
	// FailFirst makes the first N requests fail with a 503.
	FailFirst int
	// MidStreamFailEvery makes every Nth request fail with an error event after
	// half of the reply has been streamed. Zero disables.
	MidStreamFailEvery int
	// DailyQuota marks 429 responses as per-day quota exhaustion.
	DailyQuota bool
	// RetryDelay is advertised in RetryInfo and Retry-After on 429s.
	RetryDelay time.Duration
	// ChunkDelay is the pause between streamed words.
	ChunkDelay time.Duration
}

// Server is the fake streaming API.
type Server struct {
	cfg      Config
	limiter  *rate.Limiter
	logger   *slog.Logger
	requests atomic.Int64
}

// New builds a Server. A nil logger uses slog.Default().
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Server{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Handler returns the HTTP routes of the fake API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/stream", s.stream)
	return mux
}

// Requests returns the number of stream requests served so far.
func (s *Server) Requests() int64 { return s.requests.Load() }

type streamRequest struct {
	Prompt string `json:"prompt"`
}

// Chunk is the payload of one streamed event.
type Chunk struct {
	Text string `json:"text"`
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	n := s.requests.Add(1)
	id := uuid.NewString()
	w.Header().Set("X-Request-Id", id)
	logger := s.logger.With("request_id", id, "request", n)

	prompt := r.URL.Query().Get("prompt")
	if r.Method == http.MethodPost {
		var req streamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body: "+err.Error(), nil)
			return
		}
		prompt = req.Prompt
	}

	if n <= int64(s.cfg.FailFirst) {
		logger.Info("injecting 503", "reason", "fail_first")
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "The model is overloaded. Please try again later.", nil)
		return
	}
	if every := int64(s.cfg.UnavailableEvery); every > 0 && n%every == 0 {
		logger.Info("injecting 503", "reason", "unavailable_every")
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "The model is overloaded. Please try again later.", nil)
		return
	}

	if !s.limiter.Allow() {
		logger.Info("rate limited", "daily", s.cfg.DailyQuota)
		s.writeRateLimited(w)
		return
	}

	words := strings.Fields(reply(prompt))
	failAt := -1
	if every := int64(s.cfg.MidStreamFailEvery); every > 0 && n%every == 0 {
		failAt = len(words) / 2
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for i, word := range words {
		if i == failAt {
			logger.Info("injecting mid-stream failure", "after_words", i)
			writeEvent(w, "error", errorEnvelope(http.StatusInternalServerError, "INTERNAL", "stream interrupted", nil))
			flush(flusher)
			return
		}
		data, _ := json.Marshal(Chunk{Text: word + " "})
		writeEvent(w, "", data)
		flush(flusher)

		if s.cfg.ChunkDelay > 0 {
			select {
			case <-time.After(s.cfg.ChunkDelay):
			case <-r.Context().Done():
				return
			}
		}
	}
	writeEvent(w, "", []byte("[DONE]"))
	flush(flusher)
}

func (s *Server) writeRateLimited(w http.ResponseWriter) {
	subject, metric := "GenerateRequestsPerMinutePerProjectPerModel", "generate_requests_per_minute"
	if s.cfg.DailyQuota {
		subject, metric = "GenerateRequestsPerDayPerProjectPerModel", "generate_requests_per_model_per_day"
	}
	secs := s.cfg.RetryDelay.Seconds()
	details := []map[string]any{
		{
			"@type": "type.googleapis.com/google.rpc.QuotaFailure",
			"violations": []map[string]string{{
				"subject":     subject,
				"quotaMetric": "generativelanguage.googleapis.com/" + metric,
			}},
		},
		{
			"@type":      "type.googleapis.com/google.rpc.RetryInfo",
			"retryDelay": strconv.FormatFloat(secs, 'f', -1, 64) + "s",
		},
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(secs+0.999)))
	writeError(w, http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", "You exceeded your current quota.", details)
}

func reply(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = "nothing"
	}
	return fmt.Sprintf("You said: %s. This reply is streamed one word at a time by a flaky server.", prompt)
}

func errorEnvelope(code int, status, message string, details []map[string]any) []byte {
	body := map[string]any{
		"error": map[string]any{
			"code":    code,
			"status":  status,
			"message": message,
			"details": details,
		},
	}
	data, _ := json.Marshal(body)
	return data
}

func writeError(w http.ResponseWriter, code int, status, message string, details []map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(errorEnvelope(code, status, message, details))
}

func writeEvent(w http.ResponseWriter, typ string, data []byte) {
	if typ != "" {
		fmt.Fprintf(w, "event: %s\n", typ)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func flush(f http.Flusher) {
	if f != nil {
		f.Flush()
	}
}
