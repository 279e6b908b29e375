// Replica is a fake application server for exercising the gateway. It serves
// a health check, an echo endpoint and a cookie-based login, and can be told
// to fail so failover can be observed.
//
// Usage:
//
//	go run ./scripts/replica --port 5000 --name http1
//	curl -X POST localhost:5000/admin/down
//	curl -X POST localhost:5000/admin/up
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/angeloszaimis/replica-failover/pkg/logger"
)

const sessionCookie = "session"

type replicaServer struct {
	name   string
	down   atomic.Bool
	logger *slog.Logger
}

type loginRequest struct {
	User string `json:"user"`
}

func main() {
	port := pflag.Int("port", 5000, "port to listen on")
	name := pflag.String("name", "", "name reported in responses (defaults to the port)")
	level := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	if *name == "" {
		*name = fmt.Sprintf("replica-%d", *port)
	}

	log := logger.New(os.Stdout, *level, false, "dev").With(slog.String("replica", *name))
	srv := &replicaServer{name: *name, logger: log}

	addr := fmt.Sprintf(":%d", *port)
	log.Info("Starting replica", slog.String("address", addr))
	if err := http.ListenAndServe(addr, srv.routes()); err != nil {
		log.Error("Replica stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func (s *replicaServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("/api/echo", s.available(s.echo))
	mux.HandleFunc("POST /api/login", s.available(s.login))
	mux.HandleFunc("GET /api/me", s.available(s.me))
	mux.HandleFunc("POST /admin/down", s.toggle(true))
	mux.HandleFunc("POST /admin/up", s.toggle(false))

	return s.cors(mux)
}

// cors lets a page on another origin call the replica with credentials.
func (s *replicaServer) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *replicaServer) available(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.down.Load() {
			http.Error(w, "replica is down", http.StatusServiceUnavailable)
			return
		}
		next(w, r)
	}
}

func (s *replicaServer) health(w http.ResponseWriter, r *http.Request) {
	if s.down.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *replicaServer) echo(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.logger.Info("Request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", r.Header.Get("X-Request-ID")))

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         uuid.NewString(),
		"replica":    s.name,
		"method":     r.Method,
		"query":      r.URL.RawQuery,
		"request_id": r.Header.Get("X-Request-ID"),
		"body":       string(body),
	})
}

func (s *replicaServer) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == "" {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	// The session only encodes the user so every replica accepts it.
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(req.User)),
		Path:     "/",
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{"user": req.User, "replica": s.name})
}

func (s *replicaServer) me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil || len(user) == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"user": string(user), "replica": s.name})
}

func (s *replicaServer) toggle(down bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.down.Store(down)
		s.logger.Warn("Availability changed", slog.Bool("down", down))
		writeJSON(w, http.StatusOK, map[string]bool{"down": down})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
