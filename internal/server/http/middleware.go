package http

import (
	"context"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekorn/cloakmsg/internal/limiter"
	"github.com/ekorn/cloakmsg/internal/model"
)

type ctxKey int

const userKey ctxKey = iota

// userFrom returns the authenticated user placed in the context by the
// authenticate middleware.
func userFrom(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok
}

// clientIP strips the port from RemoteAddr. No proxy header handling;
// the server is expected to terminate connections directly or behind a
// proxy that rewrites RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withLogging logs one line per request. Client addresses appear only
// as salted hashes.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip_hash", hex.EncodeToString(limiter.HashIP(s.ipSalt, clientIP(r)))),
		)
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("panic in handler",
					zap.String("path", r.URL.Path),
					zap.Any("panic", p),
				)
				writeDetail(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authenticate validates the bearer token and resolves its subject to
// a live user record, so a deleted account dies with its token.
func (s *Server) authenticate(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) {
			s.unauthorized(w)
			return
		}

		subject, err := s.tokens.Validate(strings.TrimPrefix(header, prefix))
		if err != nil {
			s.unauthorized(w)
			return
		}

		u, err := s.directory.GetByUsername(r.Context(), subject)
		if err != nil {
			s.unauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

func (s *Server) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
}
