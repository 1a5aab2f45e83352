// Package crypto implements recovery code and contact id generation
// plus server-side credential hashing and verification.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/ekorn/cloakmsg/internal/errs"
)

const (
	// RecoveryCodeLength is the length of the single secret a user holds.
	RecoveryCodeLength = 64
	// ContactIDLength is the length of the opaque discovery handle.
	ContactIDLength = 16

	recoveryAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	contactAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// hashTag marks hashes produced by HashCredential. Rows written by
	// the earlier scheme carry PHC "$argon2id$..." strings instead and
	// still verify; see VerifyCredential.
	hashTag = "sha256-bcrypt$"

	legacyArgon2Prefix = "$argon2id$"
)

// GenerateRecoveryCode returns a fresh 64-character code over
// [A-Za-z0-9]. The caller delivers it to the user exactly once; it is
// never persisted in plaintext.
func GenerateRecoveryCode() (string, error) {
	return randomString(recoveryAlphabet, RecoveryCodeLength)
}

// GenerateContactID returns a fresh 16-character id over [A-Z0-9].
// Uniqueness is not guaranteed here; callers must retry on collision
// against the directory.
func GenerateContactID() (string, error) {
	return randomString(contactAlphabet, ContactIDLength)
}

// randomString draws length characters uniformly from alphabet using
// rejection sampling, so no symbol is favored by modulo bias.
func randomString(alphabet string, length int) (string, error) {
	limit := 256 - 256%len(alphabet)
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				return string(out), nil
			}
		}
	}
}

// HashCredential produces the stored representation of a recovery code.
// bcrypt silently truncates input beyond 72 bytes, so the code is first
// reduced to a fixed-size SHA-256 digest (base64, to keep it NUL-free)
// and the digest is what bcrypt slow-hashes. Full entropy of the
// 64-character code survives regardless of bcrypt's input cap.
func HashCredential(code string) (string, error) {
	h, err := bcrypt.GenerateFromPassword(prehash(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return hashTag + string(h), nil
}

func prehash(code string) []byte {
	sum := sha256.Sum256([]byte(code))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

// VerifyCredential checks a plaintext code against a stored hash. The
// comparison is constant-time inside the respective scheme. A stored
// hash no scheme recognizes yields ErrMalformedHash, never false-okay
// and never a plain mismatch.
func VerifyCredential(code, stored string) (bool, error) {
	switch {
	case strings.HasPrefix(stored, hashTag):
		err := bcrypt.CompareHashAndPassword([]byte(strings.TrimPrefix(stored, hashTag)), prehash(code))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %v", errs.ErrMalformedHash, err)
		}
	case strings.HasPrefix(stored, legacyArgon2Prefix):
		return verifyArgon2id(code, stored)
	default:
		return false, errs.ErrMalformedHash
	}
}

// verifyArgon2id checks a PHC-formatted hash written by the previous
// hashing scheme: $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>.
func verifyArgon2id(code, stored string) (bool, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errs.ErrMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, errs.ErrMalformedHash
	}
	var (
		mem, iters uint32
		par        uint8
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return false, errs.ErrMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errs.ErrMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, errs.ErrMalformedHash
	}
	got := argon2.IDKey([]byte(code), salt, iters, mem, par, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
