package http

import (
	"encoding/json"
	"net/http"
)

type addContactRequest struct {
	ContactID string `json:"contact_id"`
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	u, ok := userFrom(r.Context())
	if !ok {
		s.unauthorized(w)
		return
	}

	contacts, err := s.directory.Contacts(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, err, "")
		return
	}

	out := make([]userResponse, 0, len(contacts))
	for i := range contacts {
		out = append(out, toUserResponse(&contacts[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	u, ok := userFrom(r.Context())
	if !ok {
		s.unauthorized(w)
		return
	}

	var req addContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ContactID == "" {
		writeDetail(w, http.StatusBadRequest, "contact_id is required")
		return
	}

	target, err := s.auth.AddContact(r.Context(), u, req.ContactID)
	if err != nil {
		s.writeError(w, err, "User with the provided contact ID not found.")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(target))
}
