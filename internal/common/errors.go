// Package common defines shared sentinel errors and secure random
// identifiers used across SecureBox components. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Request validation errors (no side effects performed).
	ErrValidation = errors.New("validation error")

	// Upload saga errors.
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrStorageFailed    = errors.New("storage failed")

	// Download protocol errors. ErrNotFound deliberately covers both
	// "never existed" and "already consumed" so responses do not leak
	// which one it was.
	ErrNotFound          = errors.New("not found")
	ErrExpired           = errors.New("expired")
	ErrAlreadyDownloaded = errors.New("already downloaded")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrDecryptionFailed  = errors.New("decryption failed")

	// ErrConflict signals a lost race on the one-time-use update.
	ErrConflict = errors.New("conflict")

	// ErrServiceUnavailable signals a downstream timeout or outage.
	// Safe for the client to retry.
	ErrServiceUnavailable = errors.New("service unavailable")
)
