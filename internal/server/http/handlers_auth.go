package http

import (
	"encoding/json"
	"net/http"
)

type signupRequest struct {
	Username  string `json:"username"`
	PublicKey string `json:"public_key"`
}

type loginRequest struct {
	Username     string `json:"username"`
	RecoveryCode string `json:"recovery_code"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.PublicKey == "" {
		writeDetail(w, http.StatusBadRequest, "username and public_key are required")
		return
	}

	u, code, err := s.auth.Signup(r.Context(), req.Username, req.PublicKey)
	if err != nil {
		s.writeError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, signupResponse{
		userResponse: toUserResponse(u),
		RecoveryCode: code,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess, err := s.auth.Login(r.Context(), req.Username, req.RecoveryCode, clientIP(r))
	if err != nil {
		s.writeError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: sess.AccessToken,
		TokenType:   sess.TokenType,
	})
}
