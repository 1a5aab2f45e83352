package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/ekorn/cloakmsg/internal/model"
)

// MessageRepo implements MessageRepository using PostgreSQL.
type MessageRepo struct{ db *DB }

// NewMessageRepo constructs a message repository.
func NewMessageRepo(db *DB) *MessageRepo { return &MessageRepo{db: db} }

// Create persists a message; created_at is assigned by the database and
// written back into m.
func (r *MessageRepo) Create(ctx context.Context, m *model.Message) error {
	const q = `
INSERT INTO messages (id, sender_id, recipient_id, encrypted_content)
VALUES ($1, $2, $3, $4)
RETURNING created_at`
	return r.db.Pool.QueryRow(ctx, q, m.ID, m.SenderID, m.RecipientID, m.EncryptedContent).Scan(&m.CreatedAt)
}

// Conversation returns all messages exchanged between two users, both
// directions, oldest first.
func (r *MessageRepo) Conversation(ctx context.Context, userID, peerID uuid.UUID) ([]model.Message, error) {
	const q = `
SELECT id, sender_id, recipient_id, encrypted_content, created_at
FROM messages
WHERE (sender_id=$1 AND recipient_id=$2) OR (sender_id=$2 AND recipient_id=$1)
ORDER BY created_at`
	rows, err := r.db.Pool.Query(ctx, q, userID, peerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.EncryptedContent, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
