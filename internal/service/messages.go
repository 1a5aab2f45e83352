package service

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"github.com/ekorn/cloakmsg/internal/model"
	"github.com/ekorn/cloakmsg/internal/repository"
)

// MessageService relays opaque ciphertext blobs between users. Content
// is encrypted client-side; this layer never inspects it.
type MessageService interface {
	// Send stores a message for the recipient.
	Send(ctx context.Context, sender *model.User, recipientUsername, encryptedContent string) (*model.Message, error)
	// Conversation returns the full history between the user and a peer.
	Conversation(ctx context.Context, user *model.User, peerUsername string) ([]model.Message, error)
	// PublicKey returns a user's long-term public key blob.
	PublicKey(ctx context.Context, username string) (string, error)
}

// Messages implements MessageService.
type Messages struct {
	users    repository.UserRepository
	messages repository.MessageRepository
}

// NewMessages constructs MessageService with required dependencies.
func NewMessages(users repository.UserRepository, messages repository.MessageRepository) *Messages {
	return &Messages{users: users, messages: messages}
}

// Send validates and stores one ciphertext blob.
func (s *Messages) Send(ctx context.Context, sender *model.User, recipientUsername, encryptedContent string) (*model.Message, error) {
	if encryptedContent == "" {
		return nil, errors.New("validation: empty message content")
	}
	recipient, err := s.users.GetByUsername(ctx, recipientUsername)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	m := &model.Message{
		ID:               id,
		SenderID:         sender.ID,
		RecipientID:      recipient.ID,
		EncryptedContent: encryptedContent,
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Conversation returns the history between user and peer, both
// directions, oldest first.
func (s *Messages) Conversation(ctx context.Context, user *model.User, peerUsername string) ([]model.Message, error) {
	peer, err := s.users.GetByUsername(ctx, peerUsername)
	if err != nil {
		return nil, err
	}
	return s.messages.Conversation(ctx, user.ID, peer.ID)
}

// PublicKey returns a user's public key blob.
func (s *Messages) PublicKey(ctx context.Context, username string) (string, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	return u.PublicKey, nil
}
