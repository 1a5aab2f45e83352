// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/ekorn/cloakmsg/internal/model"
)

// UserRepository provides CRUD access for user identities. The unique
// constraints on username and contact_id are the authoritative guard
// under concurrent signups; service-level pre-checks are optimizations.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// GetByContactID loads a user by contact id.
	GetByContactID(ctx context.Context, contactID string) (*model.User, error)
	// UpdateCredentialHash overwrites the stored credential hash; the
	// previous code is permanently invalid afterwards.
	UpdateCredentialHash(ctx context.Context, id uuid.UUID, hash string) error
	// UpdateProfilePicturePath sets the stored profile picture path.
	UpdateProfilePicturePath(ctx context.Context, id uuid.UUID, path string) error
	// List returns all users ordered by username.
	List(ctx context.Context) ([]model.User, error)
}

// ContactRepository stores directed contact edges: A holding B as a
// contact does not imply B holds A, and listing is one-directional.
type ContactRepository interface {
	// Add records an edge; duplicate adds are idempotent.
	Add(ctx context.Context, ownerID, contactUserID uuid.UUID) error
	// ListByOwner returns the users owner holds as contacts.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.User, error)
}

// MessageRepository stores relayed ciphertext blobs.
type MessageRepository interface {
	// Create persists a message and fills in its creation time.
	Create(ctx context.Context, m *model.Message) error
	// Conversation returns messages between two users, both directions,
	// oldest first.
	Conversation(ctx context.Context, userID, peerID uuid.UUID) ([]model.Message, error)
}
