// Package token issues and validates asymmetrically signed session tokens.
package token

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ekorn/cloakmsg/internal/errs"
)

// Manager signs tokens with an RSA private key and validates them with
// the matching public key, so verification can later move to a service
// that never holds the signing secret.
type Manager struct {
	method  jwt.SigningMethod
	private *rsa.PrivateKey
	public  *rsa.PublicKey
	ttl     time.Duration
}

// New resolves the signing algorithm and parses both PEM key files.
// Any error here is a startup failure; there is no degraded mode
// without working keys.
func New(algorithm, privateKeyPath, publicKeyPath string, ttl time.Duration) (*Manager, error) {
	method := jwt.GetSigningMethod(algorithm)
	if _, ok := method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	privPEM, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	private, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pubPEM, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	public, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return &Manager{method: method, private: private, public: public, ttl: ttl}, nil
}

// Issue creates a signed token for subject, expiring after the
// configured TTL.
func (m *Manager) Issue(subject string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(m.ttl)
	tok := jwt.NewWithClaims(m.method, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := tok.SignedString(m.private)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Validate checks signature and expiry and extracts the subject. Bad
// signature, wrong algorithm, expired or garbled token, and a missing
// subject all collapse to ErrInvalidToken.
func (m *Manager) Validate(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		// Only the configured algorithm is acceptable; a sibling RSA
		// method signed with the same key does not validate.
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return m.public, nil
	})
	if err != nil || !tok.Valid || claims.Subject == "" {
		return "", errs.ErrInvalidToken
	}
	return claims.Subject, nil
}
