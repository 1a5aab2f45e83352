package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/ekorn/cloakmsg/internal/errs"
	"github.com/ekorn/cloakmsg/internal/model"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type userResponse struct {
	ID                 uuid.UUID `json:"id"`
	Username           string    `json:"username"`
	PublicKey          string    `json:"public_key"`
	ContactID          string    `json:"contact_id"`
	ProfilePicturePath string    `json:"profile_picture_path,omitempty"`
}

type signupResponse struct {
	userResponse
	RecoveryCode string `json:"recovery_code"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type messageResponse struct {
	ID               uuid.UUID `json:"id"`
	SenderID         uuid.UUID `json:"sender_id"`
	RecipientID      uuid.UUID `json:"recipient_id"`
	EncryptedContent string    `json:"encrypted_content"`
	CreatedAt        time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:                 u.ID,
		Username:           u.Username,
		PublicKey:          u.PublicKey,
		ContactID:          u.ContactID,
		ProfilePicturePath: u.ProfilePicturePath,
	}
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:               m.ID,
		SenderID:         m.SenderID,
		RecipientID:      m.RecipientID,
		EncryptedContent: m.EncryptedContent,
		CreatedAt:        m.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeError maps service errors onto status codes and the fixed
// client-facing strings. notFoundDetail lets each handler phrase its
// own 404; everything unmapped collapses to a plain 500 so internals
// never leak.
func (s *Server) writeError(w http.ResponseWriter, err error, notFoundDetail string) {
	switch {
	case errors.Is(err, errs.ErrUsernameTaken):
		writeDetail(w, http.StatusBadRequest, "Username already registered")
	case errors.Is(err, errs.ErrUnauthorized):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or recovery code")
	case errors.Is(err, errs.ErrRateLimited):
		writeDetail(w, http.StatusTooManyRequests, "Too many failed login attempts. Please try again later.")
	case errors.Is(err, errs.ErrSelfContact):
		writeDetail(w, http.StatusBadRequest, "You cannot add yourself as a contact.")
	case errors.Is(err, errs.ErrNotFound):
		if notFoundDetail == "" {
			notFoundDetail = "Not found"
		}
		writeDetail(w, http.StatusNotFound, notFoundDetail)
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}
