package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"carmarket/api/internal/auth"
	"carmarket/api/internal/listing"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	// exact holds the routes matched on "METHOD /path" before any session
	// lookup.
	exact map[string]http.HandlerFunc
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	s := &HTTPServer{service: service, corsOrigin: corsOrigin}
	s.exact = map[string]http.HandlerFunc{
		"GET /metrics":                          s.handleMetrics,
		"GET /api/health":                       s.handleHealth,
		"HEAD /api/health":                      s.handleHealth,
		"GET /api/ready":                        s.handleReady,
		"HEAD /api/ready":                       s.handleReady,
		"POST /api/auth/signup":                 s.handleAuthSignUp,
		"POST /api/auth/signin":                 s.handleAuthSignIn,
		"POST /api/auth/verify-email":           s.handleAuthVerifyEmail,
		"POST /api/auth/reset-password/request": s.handleAuthRequestReset,
		"POST /api/auth/reset-password":         s.handleAuthResetPassword,
		"GET /api/session":                      s.handleSession,
		"POST /api/session/refresh":             s.handleSessionRefresh,
		"POST /api/session/logout":              s.handleSessionLogout,
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// forbid writes a 403 and logs who was turned away.
func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, session Session, action string) {
	log.Printf("forbidden: user=%s role=%s action=%s path=%s", session.UserID, session.Role, action, r.URL.Path)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if h, ok := s.exact[r.Method+" "+r.URL.Path]; ok {
		h(w, r)
		return
	}

	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api"))
	if !strings.HasPrefix(r.URL.Path, "/api/") || len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if s.routeStorefront(w, r, parts) {
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if parts[0] == "admin" {
		s.routeAdmin(w, r, session, parts[1:])
		return
	}
	if s.routeSeller(w, r, session, parts) {
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.service.MetricsRegistry().Handler().ServeHTTP(w, r)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleReady reports 503 until the database answers a ping.
func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	database := map[string]any{"status": "ok"}
	code, status := http.StatusOK, "ready"
	if err := s.service.Ping(ctx); err != nil {
		database = map[string]any{"status": "error", "error": err.Error()}
		code, status = http.StatusServiceUnavailable, "not_ready"
	}
	writeJSON(w, code, map[string]any{
		"ok":     code == http.StatusOK,
		"status": status,
		"checks": map[string]any{"database": database},
	})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	switch {
	case err == nil:
		return session, true
	case errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	default:
		log.Printf("session: lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
	}
	return Session{}, false
}

// optionalSession resolves the caller when a valid bearer token is present.
func (s *HTTPServer) optionalSession(r *http.Request) Session {
	token := bearerToken(r)
	if token == "" {
		return Session{}
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		return Session{}
	}
	return session
}

type accessLogLine struct {
	RequestID  string `json:"request_id"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Status     int    `json:"status"`
	DurationMS int64  `json:"duration_ms"`
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(recorder.Header(), s.corsOrigin)
		recorder.Header().Set("X-Request-ID", requestID)

		started := time.Now()
		next.ServeHTTP(recorder, r)
		elapsed := time.Since(started)

		s.service.MetricsRegistry().ObserveRequest(r.Method, r.URL.Path, recorder.status, elapsed)
		line, _ := json.Marshal(accessLogLine{
			RequestID:  requestID,
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     recorder.status,
			DurationMS: elapsed.Milliseconds(),
		})
		log.Print(string(line))
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	body := map[string]any{"code": code, "error": message}
	if details != nil {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

// decodeBody reads an optional JSON body. Numbers stay json.Number so prices
// keep their digits.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// readBody decodes into target and answers 400 itself when that fails.
func readBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(strings.TrimSpace(r.Header.Get("Authorization")), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, listing.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil
	case errors.Is(err, listing.ErrUnknownStatus):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	log.Printf("http: unhandled error: %v", err)
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
