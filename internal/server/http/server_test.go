package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/ekorn/cloakmsg/internal/errs"
	"github.com/ekorn/cloakmsg/internal/model"
)

/************ stubs ************/

type stubAuth struct {
	signup     func(ctx context.Context, username, publicKey string) (*model.User, string, error)
	login      func(ctx context.Context, username, code, ip string) (model.Session, error)
	rotate     func(ctx context.Context, user *model.User) (string, error)
	addContact func(ctx context.Context, owner *model.User, contactID string) (*model.User, error)
}

func (s *stubAuth) Signup(ctx context.Context, username, publicKey string) (*model.User, string, error) {
	return s.signup(ctx, username, publicKey)
}

func (s *stubAuth) Login(ctx context.Context, username, code, ip string) (model.Session, error) {
	return s.login(ctx, username, code, ip)
}

func (s *stubAuth) Rotate(ctx context.Context, user *model.User) (string, error) {
	return s.rotate(ctx, user)
}

func (s *stubAuth) AddContact(ctx context.Context, owner *model.User, contactID string) (*model.User, error) {
	return s.addContact(ctx, owner, contactID)
}

type stubDirectory struct {
	byUsername map[string]*model.User
	contacts   []model.User
	users      []model.User

	picturePaths map[uuid.UUID]string
}

func (s *stubDirectory) CreateUser(context.Context, string, string) (*model.User, string, error) {
	return nil, "", errors.New("not implemented")
}

func (s *stubDirectory) RotateCredential(context.Context, uuid.UUID) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubDirectory) AddContact(context.Context, *model.User, string) (*model.User, error) {
	return nil, errors.New("not implemented")
}

func (s *stubDirectory) Contacts(context.Context, uuid.UUID) ([]model.User, error) {
	return s.contacts, nil
}

func (s *stubDirectory) Users(context.Context) ([]model.User, error) {
	return s.users, nil
}

func (s *stubDirectory) GetByUsername(_ context.Context, username string) (*model.User, error) {
	u, ok := s.byUsername[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return u, nil
}

func (s *stubDirectory) SetProfilePicturePath(_ context.Context, id uuid.UUID, path string) error {
	if s.picturePaths == nil {
		s.picturePaths = map[uuid.UUID]string{}
	}
	s.picturePaths[id] = path
	return nil
}

type stubMessages struct {
	send         func(ctx context.Context, sender *model.User, recipient, content string) (*model.Message, error)
	conversation func(ctx context.Context, user *model.User, peer string) ([]model.Message, error)
	publicKey    func(ctx context.Context, username string) (string, error)
}

func (s *stubMessages) Send(ctx context.Context, sender *model.User, recipient, content string) (*model.Message, error) {
	return s.send(ctx, sender, recipient, content)
}

func (s *stubMessages) Conversation(ctx context.Context, user *model.User, peer string) ([]model.Message, error) {
	return s.conversation(ctx, user, peer)
}

func (s *stubMessages) PublicKey(ctx context.Context, username string) (string, error) {
	return s.publicKey(ctx, username)
}

type stubValidator struct {
	subject string
	err     error
}

func (s *stubValidator) Validate(string) (string, error) { return s.subject, s.err }

type stubAvatars struct {
	key         string
	size        int64
	contentType string
	err         error

	downloadRC  io.ReadCloser
	downloadErr error

	deletedKey string
	deleteErr  error
}

func (s *stubAvatars) Upload(_ context.Context, key string, _ io.Reader, size int64, contentType string) error {
	s.key = key
	s.size = size
	s.contentType = contentType
	return s.err
}

func (s *stubAvatars) Download(_ context.Context, _ string) (io.ReadCloser, error) {
	return s.downloadRC, s.downloadErr
}

func (s *stubAvatars) Delete(_ context.Context, key string) error {
	s.deletedKey = key
	return s.deleteErr
}

type testServer struct {
	auth      *stubAuth
	directory *stubDirectory
	messages  *stubMessages
	validator *stubValidator
	avatars   *stubAvatars
	handler   http.Handler
}

func alice() *model.User {
	return &model.User{
		ID:        uuid.Must(uuid.FromString("11111111-1111-1111-1111-111111111111")),
		Username:  "alice",
		PublicKey: "pk-alice",
		ContactID: "ALICE00000000000",
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		auth:      &stubAuth{},
		directory: &stubDirectory{byUsername: map[string]*model.User{"alice": alice()}},
		messages:  &stubMessages{},
		validator: &stubValidator{subject: "alice"},
		avatars:   &stubAvatars{},
	}
	srv := New(ts.auth, ts.directory, ts.messages, ts.validator, ts.avatars,
		zap.NewNop(), "test-salt", []string{"*"})
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer some-token")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Detail
}

/************ tests ************/

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestSignup(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.signup = func(_ context.Context, username, publicKey string) (*model.User, string, error) {
		u := alice()
		u.Username = username
		u.PublicKey = publicKey
		return u, strings.Repeat("C", 64), nil
	}

	body := bytes.NewBufferString(`{"username":"alice","public_key":"pk"}`)
	w := ts.do(t, http.MethodPost, "/api/auth/signup", body, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	var resp signupResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Username != "alice" || len(resp.RecoveryCode) != 64 {
		t.Fatalf("bad response %+v", resp)
	}
}

func TestSignup_DuplicateUsername(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.signup = func(context.Context, string, string) (*model.User, string, error) {
		return nil, "", errs.ErrUsernameTaken
	}

	body := bytes.NewBufferString(`{"username":"alice","public_key":"pk"}`)
	w := ts.do(t, http.MethodPost, "/api/auth/signup", body, false)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if got := decodeDetail(t, w); got != "Username already registered" {
		t.Fatalf("detail=%q", got)
	}
}

func TestSignup_MissingFields(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/auth/signup", bytes.NewBufferString(`{"username":"alice"}`), false)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.login = func(_ context.Context, username, code, ip string) (model.Session, error) {
		if ip == "" {
			t.Fatalf("ip not plumbed through")
		}
		return model.Session{AccessToken: "jwt", TokenType: "bearer", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	body := bytes.NewBufferString(`{"username":"alice","recovery_code":"code"}`)
	w := ts.do(t, http.MethodPost, "/api/auth/token", body, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AccessToken != "jwt" || resp.TokenType != "bearer" {
		t.Fatalf("bad response %+v", resp)
	}
}

func TestLogin_Unauthorized(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.login = func(context.Context, string, string, string) (model.Session, error) {
		return model.Session{}, errs.ErrUnauthorized
	}

	body := bytes.NewBufferString(`{"username":"alice","recovery_code":"bad"}`)
	w := ts.do(t, http.MethodPost, "/api/auth/token", body, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Fatalf("WWW-Authenticate=%q", got)
	}
	if got := decodeDetail(t, w); got != "Incorrect username or recovery code" {
		t.Fatalf("detail=%q", got)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.login = func(context.Context, string, string, string) (model.Session, error) {
		return model.Session{}, errs.ErrRateLimited
	}

	body := bytes.NewBufferString(`{"username":"alice","recovery_code":"bad"}`)
	w := ts.do(t, http.MethodPost, "/api/auth/token", body, false)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestAuthenticate_Middleware(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(t, http.MethodGet, "/api/contacts/", nil, false)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status=%d", w.Code)
		}
		if got := decodeDetail(t, w); got != "Could not validate credentials" {
			t.Fatalf("detail=%q", got)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		ts := newTestServer(t)
		ts.validator.err = errs.ErrInvalidToken
		w := ts.do(t, http.MethodGet, "/api/contacts/", nil, true)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status=%d", w.Code)
		}
	})

	t.Run("subject no longer exists", func(t *testing.T) {
		ts := newTestServer(t)
		ts.validator.subject = "ghost"
		w := ts.do(t, http.MethodGet, "/api/contacts/", nil, true)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status=%d", w.Code)
		}
	})
}

func TestContacts_List(t *testing.T) {
	ts := newTestServer(t)
	ts.directory.contacts = []model.User{{Username: "bob", ContactID: "BOB0000000000000"}}

	w := ts.do(t, http.MethodGet, "/api/contacts/", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	var resp []userResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0].Username != "bob" {
		t.Fatalf("bad response %+v", resp)
	}
}

func TestAddContact(t *testing.T) {
	t.Run("self", func(t *testing.T) {
		ts := newTestServer(t)
		ts.auth.addContact = func(context.Context, *model.User, string) (*model.User, error) {
			return nil, errs.ErrSelfContact
		}
		body := bytes.NewBufferString(`{"contact_id":"ALICE00000000000"}`)
		w := ts.do(t, http.MethodPost, "/api/contacts/add", body, true)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status=%d", w.Code)
		}
		if got := decodeDetail(t, w); got != "You cannot add yourself as a contact." {
			t.Fatalf("detail=%q", got)
		}
	})

	t.Run("unknown contact id", func(t *testing.T) {
		ts := newTestServer(t)
		ts.auth.addContact = func(context.Context, *model.User, string) (*model.User, error) {
			return nil, errs.ErrNotFound
		}
		body := bytes.NewBufferString(`{"contact_id":"NOPE000000000000"}`)
		w := ts.do(t, http.MethodPost, "/api/contacts/add", body, true)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status=%d", w.Code)
		}
		if got := decodeDetail(t, w); got != "User with the provided contact ID not found." {
			t.Fatalf("detail=%q", got)
		}
	})

	t.Run("success", func(t *testing.T) {
		ts := newTestServer(t)
		ts.auth.addContact = func(_ context.Context, _ *model.User, contactID string) (*model.User, error) {
			return &model.User{Username: "bob", ContactID: contactID}, nil
		}
		body := bytes.NewBufferString(`{"contact_id":"BOB0000000000000"}`)
		w := ts.do(t, http.MethodPost, "/api/contacts/add", body, true)
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
		}
	})
}

func TestRegenerateCode(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.rotate = func(context.Context, *model.User) (string, error) {
		return strings.Repeat("N", 64), nil
	}

	w := ts.do(t, http.MethodPost, "/api/settings/regenerate-code", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	var resp recoveryCodeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.RecoveryCode) != 64 {
		t.Fatalf("code len=%d", len(resp.RecoveryCode))
	}
}

func multipartBody(t *testing.T, filename, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	hdr["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestProfilePicture(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ts := newTestServer(t)
		body, contentType := multipartBody(t, "me.png", "image/png", []byte("png-bytes"))

		req := httptest.NewRequest(http.MethodPost, "/api/settings/profile-picture", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
		}
		if !strings.HasSuffix(ts.avatars.key, ".png") {
			t.Fatalf("object key %q", ts.avatars.key)
		}
		if ts.avatars.contentType != "image/png" {
			t.Fatalf("content type %q", ts.avatars.contentType)
		}

		var resp userResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !strings.HasPrefix(resp.ProfilePicturePath, "/avatars/") {
			t.Fatalf("path %q", resp.ProfilePicturePath)
		}
		aliceID := alice().ID
		if ts.directory.picturePaths[aliceID] != resp.ProfilePicturePath {
			t.Fatalf("path not persisted")
		}
	})

	t.Run("replacement deletes the old object", func(t *testing.T) {
		ts := newTestServer(t)
		ts.directory.byUsername["alice"].ProfilePicturePath = "/avatars/old.png"
		body, contentType := multipartBody(t, "new.png", "image/png", []byte("png-bytes"))

		req := httptest.NewRequest(http.MethodPost, "/api/settings/profile-picture", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
		}
		if ts.avatars.deletedKey != "old.png" {
			t.Fatalf("replaced object not deleted, got %q", ts.avatars.deletedKey)
		}

		var resp userResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.ProfilePicturePath == "/avatars/old.png" {
			t.Fatalf("path not replaced")
		}
	})

	t.Run("first upload deletes nothing", func(t *testing.T) {
		ts := newTestServer(t)
		body, contentType := multipartBody(t, "me.png", "image/png", []byte("png-bytes"))

		req := httptest.NewRequest(http.MethodPost, "/api/settings/profile-picture", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
		}
		if ts.avatars.deletedKey != "" {
			t.Fatalf("unexpected delete of %q", ts.avatars.deletedKey)
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		ts := newTestServer(t)
		body, contentType := multipartBody(t, "evil.svg", "image/svg+xml", []byte("<svg/>"))

		req := httptest.NewRequest(http.MethodPost, "/api/settings/profile-picture", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status=%d", w.Code)
		}
	})

	t.Run("oversized", func(t *testing.T) {
		ts := newTestServer(t)
		body, contentType := multipartBody(t, "big.png", "image/png", bytes.Repeat([]byte("x"), maxAvatarBytes+1))

		req := httptest.NewRequest(http.MethodPost, "/api/settings/profile-picture", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		if w.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("status=%d", w.Code)
		}
	})
}

func TestAvatarServing(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ts := newTestServer(t)
		ts.avatars.downloadRC = io.NopCloser(bytes.NewReader([]byte("png-bytes")))

		w := ts.do(t, http.MethodGet, "/avatars/abcd1234.png", nil, false)
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
		}
		if got := w.Header().Get("Content-Type"); got != "image/png" {
			t.Fatalf("content type %q", got)
		}
		if w.Body.String() != "png-bytes" {
			t.Fatalf("body %q", w.Body.String())
		}
	})

	t.Run("missing object", func(t *testing.T) {
		ts := newTestServer(t)
		ts.avatars.downloadErr = errors.New("no such key")

		w := ts.do(t, http.MethodGet, "/avatars/ghost.png", nil, false)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status=%d", w.Code)
		}
	})
}

func TestUserKey(t *testing.T) {
	ts := newTestServer(t)
	ts.messages.publicKey = func(_ context.Context, username string) (string, error) {
		if username != "bob" {
			return "", errs.ErrNotFound
		}
		return "pk-bob", nil
	}

	w := ts.do(t, http.MethodGet, "/api/messages/users/bob/key", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp publicKeyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.PublicKey != "pk-bob" {
		t.Fatalf("pk=%q", resp.PublicKey)
	}

	w = ts.do(t, http.MethodGet, "/api/messages/users/ghost/key", nil, true)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestSendMessage(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ts := newTestServer(t)
		ts.messages.send = func(_ context.Context, sender *model.User, recipient, content string) (*model.Message, error) {
			return &model.Message{
				ID:               uuid.Must(uuid.NewV4()),
				SenderID:         sender.ID,
				EncryptedContent: content,
				CreatedAt:        time.Now(),
			}, nil
		}
		body := bytes.NewBufferString(`{"recipient_username":"bob","encrypted_content":"blob"}`)
		w := ts.do(t, http.MethodPost, "/api/messages/messages", body, true)
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("unknown recipient", func(t *testing.T) {
		ts := newTestServer(t)
		ts.messages.send = func(context.Context, *model.User, string, string) (*model.Message, error) {
			return nil, errs.ErrNotFound
		}
		body := bytes.NewBufferString(`{"recipient_username":"ghost","encrypted_content":"blob"}`)
		w := ts.do(t, http.MethodPost, "/api/messages/messages", body, true)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status=%d", w.Code)
		}
	})

	t.Run("empty content", func(t *testing.T) {
		ts := newTestServer(t)
		body := bytes.NewBufferString(`{"recipient_username":"bob","encrypted_content":""}`)
		w := ts.do(t, http.MethodPost, "/api/messages/messages", body, true)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status=%d", w.Code)
		}
	})
}

func TestConversation(t *testing.T) {
	ts := newTestServer(t)
	ts.messages.conversation = func(_ context.Context, user *model.User, peer string) ([]model.Message, error) {
		if peer != "bob" {
			return nil, errs.ErrNotFound
		}
		return []model.Message{{EncryptedContent: "one"}, {EncryptedContent: "two"}}, nil
	}

	w := ts.do(t, http.MethodGet, "/api/messages/conversation/bob", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp []messageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("len=%d", len(resp))
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.login = func(context.Context, string, string, string) (model.Session, error) {
		return model.Session{}, errors.New("pq: connection refused at 10.1.2.3")
	}

	body := bytes.NewBufferString(`{"username":"alice","recovery_code":"code"}`)
	w := ts.do(t, http.MethodPost, "/api/auth/token", body, false)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.1.2.3") {
		t.Fatalf("internal detail leaked: %s", w.Body.String())
	}
}
