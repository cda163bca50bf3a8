package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dixieflatline76/Placement/util/log"
)

// Role is the authorization level of a request.
type Role int

const (
	RoleAnonymous Role = iota
	RoleAdmin
)

func (r Role) String() string {
	if r == RoleAdmin {
		return "admin"
	}
	return "anonymous"
}

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-Id"

// HeaderAPIKey authenticates admin callers. The apiKey query parameter is accepted too.
const HeaderAPIKey = "X-Api-Key"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	roleKey
)

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RoleFrom returns the role of the request carried by ctx.
func RoleFrom(ctx context.Context) Role {
	r, _ := ctx.Value(roleKey).(Role)
	return r
}

// withRequestID assigns every request an id, reusing one sent by the caller.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(p []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(p)
	rec.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		// Websocket upgrades need the raw writer.
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			log.Debugf("[%s] %s %s upgraded", RequestID(r.Context()), r.Method, r.URL.Path)
			return
		}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		log.Printf("[%s] %s %s %d %dB %s", RequestID(r.Context()), r.Method, r.URL.Path,
			rec.status, rec.bytes, time.Since(start).Round(time.Millisecond))
	})
}

// withAuth resolves the caller role from the API key.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := RoleAnonymous
		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			key = r.URL.Query().Get("apiKey")
		}
		if (key != "" && s.apiKeys[key]) || s.cfg.AllowAnonymousAdmin {
			role = RoleAdmin
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey, role)))
	})
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if RoleFrom(r.Context()) != RoleAdmin {
			s.writeError(w, r, statusError(http.StatusUnauthorized, "Unauthorized"))
			return
		}
		next(w, r)
	}
}

// limitAnonymous rate limits anonymous callers. Admins are not limited.
func (s *Server) limitAnonymous(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.anonLimiter != nil && RoleFrom(r.Context()) != RoleAdmin && !s.anonLimiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.writeError(w, r, statusError(http.StatusTooManyRequests, "Too many requests"))
			return
		}
		next(w, r)
	}
}
