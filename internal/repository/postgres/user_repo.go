package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/ekorn/cloakmsg/internal/errs"
	"github.com/ekorn/cloakmsg/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row. Unique violations are mapped by
// constraint so callers can tell a username conflict from a contact id
// collision.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, credential_hash, public_key, contact_id)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Username, u.CredentialHash, u.PublicKey, u.ContactID)
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == "users_contact_id_key" {
			return errs.ErrContactIDTaken
		}
		return errs.ErrUsernameTaken
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `
SELECT id, username, credential_hash, public_key, contact_id, COALESCE(profile_picture_path, ''), created_at
FROM users WHERE id=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByUsername selects a user by username (case-sensitive).
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `
SELECT id, username, credential_hash, public_key, contact_id, COALESCE(profile_picture_path, ''), created_at
FROM users WHERE username=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, username))
}

// GetByContactID selects a user by contact id.
func (r *UserRepo) GetByContactID(ctx context.Context, contactID string) (*model.User, error) {
	const q = `
SELECT id, username, credential_hash, public_key, contact_id, COALESCE(profile_picture_path, ''), created_at
FROM users WHERE contact_id=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, contactID))
}

// UpdateCredentialHash overwrites the stored hash for a user.
func (r *UserRepo) UpdateCredentialHash(ctx context.Context, id uuid.UUID, hash string) error {
	const q = `UPDATE users SET credential_hash=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpdateProfilePicturePath sets the stored profile picture path.
func (r *UserRepo) UpdateProfilePicturePath(ctx context.Context, id uuid.UUID, path string) error {
	const q = `UPDATE users SET profile_picture_path=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, path)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// List returns all users ordered by username.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	const q = `
SELECT id, username, credential_hash, public_key, contact_id, COALESCE(profile_picture_path, ''), created_at
FROM users ORDER BY username`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.CredentialHash, &u.PublicKey, &u.ContactID, &u.ProfilePicturePath, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UserRepo) scanOne(row interface{ Scan(dest ...any) error }) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.CredentialHash, &u.PublicKey, &u.ContactID, &u.ProfilePicturePath, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
