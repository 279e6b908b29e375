package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angeloszaimis/replica-failover/internal/client"
	"github.com/angeloszaimis/replica-failover/internal/fault"
)

const (
	// DefaultMaxBodyBytes caps request bodies kept in memory for replay.
	DefaultMaxBodyBytes = 1 << 20

	// StatusClientClosedRequest is logged when the caller goes away before
	// a replica answers.
	StatusClientClosedRequest = 499

	ReplicaHeader          = "X-Replica"
	FallbackLocationHeader = "X-Fallback-Location"
)

// Forwarder runs one logical request against the replicas.
type Forwarder interface {
	Do(ctx context.Context, req client.Request) (*http.Response, error)
}

type GatewayHandler struct {
	logger       *slog.Logger
	forwarder    Forwarder
	fallbackPath string
	maxBodyBytes int64
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

type errorBody struct {
	Error    string `json:"error"`
	Fallback string `json:"fallback,omitempty"`
}

// hopHeaders are not copied between the caller and the replica.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func NewGatewayHandler(logger *slog.Logger, forwarder Forwarder, fallbackPath string) *GatewayHandler {
	return &GatewayHandler{
		logger:       logger.With(slog.String("component", "gateway")),
		forwarder:    forwarder,
		fallbackPath: fallbackPath,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)
	start := time.Now()

	h.logger.Info("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("user_agent", r.UserAgent()))

	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	h.serve(wrapped, r)

	h.logger.Info("Request completed",
		slog.String("from", clientIP),
		slog.String("path", r.URL.Path),
		slog.Int("status", wrapped.statusCode),
		slog.Duration("duration", time.Since(start)))
}

func (h *GatewayHandler) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read request body"})
		return
	}
	if len(body) == 0 {
		body = nil
	}

	header := r.Header.Clone()
	removeHopHeaders(header)

	resp, err := h.forwarder.Do(r.Context(), client.Request{
		Method: r.Method,
		Path:   r.URL.RequestURI(),
		Header: header,
		Body:   body,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer resp.Body.Close()

	dst := w.Header()
	for key, values := range resp.Header {
		dst[key] = append([]string(nil), values...)
	}
	removeHopHeaders(dst)
	if resp.Request != nil && resp.Request.URL != nil {
		dst.Set(ReplicaHeader, resp.Request.URL.Host)
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn("Failed to copy replica response", slog.Any("err", err))
	}
}

// fail maps a forwarding error to the caller's response. Exhaustion sends
// page loads to the fallback page; API calls get a 503 naming it.
func (h *GatewayHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case client.IsExhausted(err):
		if isNavigation(r) && r.URL.Path != h.fallbackPath && r.URL.Path != "/" {
			h.logger.Warn("Replicas exhausted, redirecting to fallback",
				slog.String("path", r.URL.Path),
				slog.String("fallback", h.fallbackPath))
			http.Redirect(w, r, h.fallbackPath, http.StatusFound)
			return
		}

		resp := errorBody{Error: "service unavailable"}
		if page := refererPath(r); page != "" && page != "/" && page != h.fallbackPath {
			resp.Fallback = h.fallbackPath
			w.Header().Set(FallbackLocationHeader, h.fallbackPath)
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)

	case fault.KindOf(err) == fault.KindCanceled:
		h.logger.Debug("Caller went away", slog.String("path", r.URL.Path))
		w.WriteHeader(StatusClientClosedRequest)

	default:
		h.logger.Error("Forwarding failed", slog.String("path", r.URL.Path), slog.Any("err", err))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "bad gateway"})
	}
}

func isNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func refererPath(r *http.Request) string {
	ref := r.Referer()
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func removeHopHeaders(h http.Header) {
	for _, key := range hopHeaders {
		h.Del(key)
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
