package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	pkgcrypto "github.com/ekorn/cloakmsg/internal/crypto"
	"github.com/ekorn/cloakmsg/internal/errs"
	"github.com/ekorn/cloakmsg/internal/limiter"
	"github.com/ekorn/cloakmsg/internal/model"
	"github.com/ekorn/cloakmsg/internal/repository"
)

// TokenIssuer issues signed session tokens for a subject.
type TokenIssuer interface {
	Issue(subject string) (string, time.Time, error)
}

// AuthGateway orchestrates signup and login atop the directory,
// credential codec, limiter and token manager. It is the only layer
// with user-facing error semantics.
type AuthGateway interface {
	// Signup registers a new identity and returns it with the one-time
	// plaintext recovery code.
	Signup(ctx context.Context, username, publicKey string) (*model.User, string, error)
	// Login verifies a recovery code and issues a session token.
	Login(ctx context.Context, username, code, ip string) (model.Session, error)
	// Rotate replaces the caller's recovery code.
	Rotate(ctx context.Context, user *model.User) (string, error)
	// AddContact applies the self-add policy, then records the edge.
	AddContact(ctx context.Context, owner *model.User, contactID string) (*model.User, error)
}

// Auth implements AuthGateway.
type Auth struct {
	directory Directory
	users     repository.UserRepository
	tokens    TokenIssuer
	lim       limiter.Limiter
	ipSalt    string
	logger    *zap.Logger

	// dummyHash is verified against on unknown-username logins so the
	// missing-user and wrong-code paths pay the same bcrypt cost.
	dummyHash string
}

// NewAuth constructs AuthGateway with required dependencies.
func NewAuth(directory Directory, users repository.UserRepository, tokens TokenIssuer, lim limiter.Limiter, ipSalt string, logger *zap.Logger) (*Auth, error) {
	dummyCode, err := pkgcrypto.GenerateRecoveryCode()
	if err != nil {
		return nil, err
	}
	dummyHash, err := pkgcrypto.HashCredential(dummyCode)
	if err != nil {
		return nil, err
	}
	return &Auth{
		directory: directory,
		users:     users,
		tokens:    tokens,
		lim:       lim,
		ipSalt:    ipSalt,
		logger:    logger,
		dummyHash: dummyHash,
	}, nil
}

// Signup registers a new identity. The public key is stored as-is; the
// server never validates its format.
func (a *Auth) Signup(ctx context.Context, username, publicKey string) (*model.User, string, error) {
	if username == "" || publicKey == "" {
		return nil, "", fmt.Errorf("validation: empty username/public key")
	}
	return a.directory.CreateUser(ctx, username, publicKey)
}

// Login authenticates with rate limiting by (username, salted ip hash).
// Unknown username and wrong code both surface as ErrUnauthorized, with
// nothing in the response or timing telling them apart.
func (a *Auth) Login(ctx context.Context, username, code, ip string) (model.Session, error) {
	ipHash := limiter.HashIP(a.ipSalt, ip)

	allowed, _, err := a.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return model.Session{}, err
	}
	if !allowed {
		return model.Session{}, errs.ErrRateLimited
	}

	u, lookupErr := a.users.GetByUsername(ctx, username)
	if lookupErr != nil && !errors.Is(lookupErr, errs.ErrNotFound) {
		return model.Session{}, lookupErr
	}
	// An unknown username still pays the bcrypt cost against dummyHash,
	// so the two rejection paths are timing-indistinguishable.
	stored := a.dummyHash
	if lookupErr == nil {
		stored = u.CredentialHash
	}

	ok, err := pkgcrypto.VerifyCredential(code, stored)
	if err != nil {
		// Data-integrity fault in the stored hash: an operator problem,
		// never reported to the client as bad credentials.
		a.logger.Error("credential verification failed",
			zap.String("username", username),
			zap.Error(err),
		)
		return model.Session{}, fmt.Errorf("verify credential: %w", err)
	}

	if lookupErr != nil || !ok {
		if blocked, _, ferr := a.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return model.Session{}, errs.ErrRateLimited
		}
		return model.Session{}, errs.ErrUnauthorized
	}

	_ = a.lim.Success(ctx, username, ipHash)

	access, exp, err := a.tokens.Issue(u.Username)
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{AccessToken: access, TokenType: "bearer", ExpiresAt: exp}, nil
}

// Rotate replaces the caller's recovery code and returns the new
// plaintext exactly once.
func (a *Auth) Rotate(ctx context.Context, user *model.User) (string, error) {
	return a.directory.RotateCredential(ctx, user.ID)
}

// AddContact rejects self-adds before the directory is consulted; this
// is the single authoritative boundary for that policy.
func (a *Auth) AddContact(ctx context.Context, owner *model.User, contactID string) (*model.User, error) {
	if contactID == owner.ContactID {
		return nil, errs.ErrSelfContact
	}
	return a.directory.AddContact(ctx, owner, contactID)
}
