// Package service contains application services for identity, auth and messaging.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sethvargo/go-retry"

	pkgcrypto "github.com/ekorn/cloakmsg/internal/crypto"
	"github.com/ekorn/cloakmsg/internal/errs"
	"github.com/ekorn/cloakmsg/internal/model"
	"github.com/ekorn/cloakmsg/internal/repository"
)

// contactIDAttempts caps the collision retry loop in CreateUser so a
// broken random source cannot spin forever.
const contactIDAttempts = 5

// Directory owns the user record lifecycle and the contact graph.
type Directory interface {
	// CreateUser persists a new identity and returns the plaintext
	// recovery code exactly once.
	CreateUser(ctx context.Context, username, publicKey string) (*model.User, string, error)
	// RotateCredential replaces the stored hash with one for a fresh
	// code; the old code is immediately and permanently invalid.
	RotateCredential(ctx context.Context, userID uuid.UUID) (string, error)
	// AddContact resolves the target by contact id and records the edge.
	AddContact(ctx context.Context, owner *model.User, targetContactID string) (*model.User, error)
	// Contacts lists the users owner holds as contacts.
	Contacts(ctx context.Context, ownerID uuid.UUID) ([]model.User, error)
	// Users lists all registered users.
	Users(ctx context.Context) ([]model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// SetProfilePicturePath stores the uploaded picture path on the user.
	SetProfilePicturePath(ctx context.Context, userID uuid.UUID, path string) error
}

// DirectoryImpl implements Directory over the user and contact repositories.
type DirectoryImpl struct {
	users    repository.UserRepository
	contacts repository.ContactRepository
}

// NewDirectory constructs Directory with required dependencies.
func NewDirectory(users repository.UserRepository, contacts repository.ContactRepository) *DirectoryImpl {
	return &DirectoryImpl{users: users, contacts: contacts}
}

// CreateUser generates credentials, allocates a unique contact id and
// persists the record. The contact id space is large but the column is
// a lookup key, so the insert retries on collision against the unique
// constraint, capped at contactIDAttempts.
func (d *DirectoryImpl) CreateUser(ctx context.Context, username, publicKey string) (*model.User, string, error) {
	if username == "" {
		return nil, "", errors.New("validation: empty username")
	}

	code, err := pkgcrypto.GenerateRecoveryCode()
	if err != nil {
		return nil, "", err
	}
	hash, err := pkgcrypto.HashCredential(code)
	if err != nil {
		return nil, "", err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, "", err
	}

	u := &model.User{
		ID:             id,
		Username:       username,
		CredentialHash: hash,
		PublicKey:      publicKey,
	}

	backoff := retry.WithMaxRetries(contactIDAttempts-1, retry.NewConstant(time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		contactID, err := pkgcrypto.GenerateContactID()
		if err != nil {
			return err
		}
		u.ContactID = contactID
		if err := d.users.Create(ctx, u); err != nil {
			if errors.Is(err, errs.ErrContactIDTaken) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrContactIDTaken) {
			return nil, "", fmt.Errorf("%w after %d attempts", errs.ErrContactIDSpace, contactIDAttempts)
		}
		return nil, "", err
	}

	return u, code, nil
}

// RotateCredential overwrites the stored hash with one for a fresh code
// and returns the plaintext once. No history is kept, no grace period.
func (d *DirectoryImpl) RotateCredential(ctx context.Context, userID uuid.UUID) (string, error) {
	code, err := pkgcrypto.GenerateRecoveryCode()
	if err != nil {
		return "", err
	}
	hash, err := pkgcrypto.HashCredential(code)
	if err != nil {
		return "", err
	}
	if err := d.users.UpdateCredentialHash(ctx, userID, hash); err != nil {
		return "", err
	}
	return code, nil
}

// AddContact resolves the target by contact id and records the directed
// edge. owner==target returns the target without writing an edge; the
// gateway rejects self-adds before the directory sees them. Duplicate
// adds are absorbed by the repository.
func (d *DirectoryImpl) AddContact(ctx context.Context, owner *model.User, targetContactID string) (*model.User, error) {
	target, err := d.users.GetByContactID(ctx, targetContactID)
	if err != nil {
		return nil, err
	}
	if target.ID == owner.ID {
		return target, nil
	}
	if err := d.contacts.Add(ctx, owner.ID, target.ID); err != nil {
		return nil, err
	}
	return target, nil
}

// Contacts lists the users owner holds as contacts.
func (d *DirectoryImpl) Contacts(ctx context.Context, ownerID uuid.UUID) ([]model.User, error) {
	return d.contacts.ListByOwner(ctx, ownerID)
}

// Users lists all registered users.
func (d *DirectoryImpl) Users(ctx context.Context) ([]model.User, error) {
	return d.users.List(ctx)
}

// GetByUsername loads a user by username.
func (d *DirectoryImpl) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return d.users.GetByUsername(ctx, username)
}

// SetProfilePicturePath stores the uploaded picture path on the user.
func (d *DirectoryImpl) SetProfilePicturePath(ctx context.Context, userID uuid.UUID, path string) error {
	return d.users.UpdateProfilePicturePath(ctx, userID, path)
}
