// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUsernameTaken indicates a signup conflict on the username.
	ErrUsernameTaken = errors.New("username taken")

	// ErrContactIDTaken indicates an insert collided on the contact id
	// unique constraint. Callers retry with a fresh id.
	ErrContactIDTaken = errors.New("contact id taken")

	// ErrContactIDSpace indicates the contact id retry cap was exhausted.
	ErrContactIDSpace = errors.New("contact id generation exhausted")

	// ErrUnauthorized covers both unknown username and wrong recovery
	// code; the two are never distinguished to callers.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrSelfContact indicates an attempt to add one's own contact id.
	ErrSelfContact = errors.New("self contact")

	// ErrMalformedHash indicates a stored credential hash that no known
	// scheme can verify. An internal fault, never "invalid credentials".
	ErrMalformedHash = errors.New("malformed credential hash")

	// ErrInvalidToken covers every session token failure mode: bad
	// signature, wrong algorithm, expiry, or a garbled token.
	ErrInvalidToken = errors.New("invalid token")
)
