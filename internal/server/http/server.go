// Package http exposes the application services over a JSON REST API.
package http

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ekorn/cloakmsg/internal/service"
)

// TokenValidator checks a session token and returns its subject.
type TokenValidator interface {
	Validate(tokenString string) (string, error)
}

// AvatarStore persists uploaded profile pictures.
type AvatarStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Server wires handlers, middleware and CORS into one http.Handler.
type Server struct {
	auth      service.AuthGateway
	directory service.Directory
	messages  service.MessageService
	tokens    TokenValidator
	avatars   AvatarStore
	logger    *zap.Logger
	ipSalt    string

	allowedOrigins []string
}

// New constructs the HTTP server with required dependencies.
func New(
	auth service.AuthGateway,
	directory service.Directory,
	messages service.MessageService,
	tokens TokenValidator,
	avatars AvatarStore,
	logger *zap.Logger,
	ipSalt string,
	allowedOrigins []string,
) *Server {
	return &Server{
		auth:           auth,
		directory:      directory,
		messages:       messages,
		tokens:         tokens,
		avatars:        avatars,
		logger:         logger,
		ipSalt:         ipSalt,
		allowedOrigins: allowedOrigins,
	}
}

// Handler builds the route table. Everything under /api/ except the
// auth endpoints requires a bearer token.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /avatars/{key}", s.handleAvatar)
	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/token", s.handleLogin)

	mux.Handle("GET /api/contacts/{$}", s.authenticate(s.handleContacts))
	mux.Handle("POST /api/contacts/add", s.authenticate(s.handleAddContact))
	mux.Handle("POST /api/settings/regenerate-code", s.authenticate(s.handleRegenerateCode))
	mux.Handle("POST /api/settings/profile-picture", s.authenticate(s.handleProfilePicture))
	mux.Handle("GET /api/messages/users", s.authenticate(s.handleUsers))
	mux.Handle("GET /api/messages/users/{username}/key", s.authenticate(s.handleUserKey))
	mux.Handle("POST /api/messages/messages", s.authenticate(s.handleSendMessage))
	mux.Handle("GET /api/messages/conversation/{peer}", s.authenticate(s.handleConversation))

	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	var h http.Handler = mux
	h = c.Handler(h)
	h = s.withRecovery(h)
	h = s.withLogging(h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
