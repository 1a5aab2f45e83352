package http

import (
	"encoding/json"
	"net/http"
)

type sendMessageRequest struct {
	RecipientUsername string `json:"recipient_username"`
	EncryptedContent  string `json:"encrypted_content"`
}

type publicKeyResponse struct {
	PublicKey string `json:"public_key"`
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.directory.Users(r.Context())
	if err != nil {
		s.writeError(w, err, "")
		return
	}

	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUserKey(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	pk, err := s.messages.PublicKey(r.Context(), username)
	if err != nil {
		s.writeError(w, err, "User not found")
		return
	}

	writeJSON(w, http.StatusOK, publicKeyResponse{PublicKey: pk})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	u, ok := userFrom(r.Context())
	if !ok {
		s.unauthorized(w)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RecipientUsername == "" || req.EncryptedContent == "" {
		writeDetail(w, http.StatusBadRequest, "recipient_username and encrypted_content are required")
		return
	}

	m, err := s.messages.Send(r.Context(), u, req.RecipientUsername, req.EncryptedContent)
	if err != nil {
		s.writeError(w, err, "Recipient not found")
		return
	}

	writeJSON(w, http.StatusOK, toMessageResponse(m))
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	u, ok := userFrom(r.Context())
	if !ok {
		s.unauthorized(w)
		return
	}

	peer := r.PathValue("peer")
	history, err := s.messages.Conversation(r.Context(), u, peer)
	if err != nil {
		s.writeError(w, err, "User not found")
		return
	}

	out := make([]messageResponse, 0, len(history))
	for i := range history {
		out = append(out, toMessageResponse(&history[i]))
	}
	writeJSON(w, http.StatusOK, out)
}
