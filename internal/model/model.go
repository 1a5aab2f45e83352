// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// User is a registered identity. The server never holds the recovery
// code in plaintext, only its hash, and the public key is an opaque
// client-supplied blob.
type User struct {
	ID                 uuid.UUID // PK
	Username           string    // unique, immutable after creation
	CredentialHash     string    // tagged hash of the current recovery code
	PublicKey          string    // client-supplied, never validated server-side
	ContactID          string    // unique 16-char [A-Z0-9] discovery handle
	ProfilePicturePath string    // empty when no picture uploaded
	CreatedAt          time.Time
}

// Message is a single relayed ciphertext blob. Content is encrypted on
// the client; the server stores and forwards it unread.
type Message struct {
	ID               uuid.UUID
	SenderID         uuid.UUID // FK -> users.id
	RecipientID      uuid.UUID // FK -> users.id
	EncryptedContent string    // opaque ciphertext
	CreatedAt        time.Time
}

// Session is an issued bearer token with its expiry (for diagnostics).
type Session struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}
