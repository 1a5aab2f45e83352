package http

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var errUnsupportedImage = errors.New("unsupported image type")

// maxAvatarBytes caps profile picture uploads at 5 MB.
const maxAvatarBytes = 5 << 20

var avatarContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type recoveryCodeResponse struct {
	RecoveryCode string `json:"recovery_code"`
}

func (s *Server) handleRegenerateCode(w http.ResponseWriter, r *http.Request) {
	u, ok := userFrom(r.Context())
	if !ok {
		s.unauthorized(w)
		return
	}

	code, err := s.auth.Rotate(r.Context(), u)
	if err != nil {
		s.writeError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, recoveryCodeResponse{RecoveryCode: code})
}

func (s *Server) handleProfilePicture(w http.ResponseWriter, r *http.Request) {
	u, ok := userFrom(r.Context())
	if !ok {
		s.unauthorized(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Profile picture must be 5 MB or smaller")
			return
		}
		writeDetail(w, http.StatusBadRequest, "Invalid multipart request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	ext, err := avatarExtension(header)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Profile picture must be a JPEG, PNG or WebP image")
		return
	}

	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.writeError(w, err, "")
		return
	}
	key := hex.EncodeToString(buf[:]) + ext

	contentType := header.Header.Get("Content-Type")
	if err := s.avatars.Upload(r.Context(), key, file, header.Size, contentType); err != nil {
		s.writeError(w, err, "")
		return
	}

	path := "/avatars/" + key
	if err := s.directory.SetProfilePicturePath(r.Context(), u.ID, path); err != nil {
		s.writeError(w, err, "")
		return
	}

	// The replaced picture is unreachable now; removal is best effort.
	if old, ok := strings.CutPrefix(u.ProfilePicturePath, "/avatars/"); ok && old != "" {
		if err := s.avatars.Delete(r.Context(), old); err != nil {
			s.logger.Warn("delete replaced avatar", zap.String("key", old), zap.Error(err))
		}
	}

	u.ProfilePicturePath = path
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	rc, err := s.avatars.Download(r.Context(), key)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Not found")
		return
	}
	defer rc.Close()

	for contentType, ext := range avatarContentTypes {
		if strings.HasSuffix(key, ext) {
			w.Header().Set("Content-Type", contentType)
			break
		}
	}
	_, _ = io.Copy(w, rc)
}

// avatarExtension validates the declared content type against the
// filename extension and returns the canonical extension to store.
func avatarExtension(header *multipart.FileHeader) (string, error) {
	contentType := header.Header.Get("Content-Type")
	ext, ok := avatarContentTypes[contentType]
	if !ok {
		return "", errUnsupportedImage
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return ext, nil
	default:
		return "", errUnsupportedImage
	}
}
