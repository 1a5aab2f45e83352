package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/ekorn/cloakmsg/internal/model"
)

// ContactRepo implements ContactRepository using PostgreSQL. Edges are
// directed; there is no symmetric constraint.
type ContactRepo struct{ db *DB }

// NewContactRepo constructs a contact repository.
func NewContactRepo(db *DB) *ContactRepo { return &ContactRepo{db: db} }

// Add records an edge. The composite primary key plus ON CONFLICT makes
// duplicate adds a no-op, so exactly one edge exists per pair.
func (r *ContactRepo) Add(ctx context.Context, ownerID, contactUserID uuid.UUID) error {
	const q = `
INSERT INTO contacts (owner_id, contact_user_id)
VALUES ($1, $2)
ON CONFLICT (owner_id, contact_user_id) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, ownerID, contactUserID)
	return err
}

// ListByOwner returns the users owner holds as contacts.
func (r *ContactRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.User, error) {
	const q = `
SELECT u.id, u.username, u.credential_hash, u.public_key, u.contact_id, COALESCE(u.profile_picture_path, ''), u.created_at
FROM contacts c
JOIN users u ON u.id = c.contact_user_id
WHERE c.owner_id = $1
ORDER BY u.username`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
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
