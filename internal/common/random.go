package common

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// GenerateRandByteArray returns n cryptographically secure random bytes.
func GenerateRandByteArray(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; a failure here
		// means the process cannot do anything security-relevant.
		panic(err)
	}
	return b
}

// NewFileID returns a 128-bit random file identifier, hex-encoded (32 chars).
func NewFileID() string {
	return hex.EncodeToString(GenerateRandByteArray(16))
}

// NewDownloadToken returns a 256-bit random URL-safe token (43 chars).
func NewDownloadToken() string {
	return base64.RawURLEncoding.EncodeToString(GenerateRandByteArray(32))
}

// NewObjectSuffix returns a short random suffix for blob object names,
// so a retried upload never overwrites an earlier object.
func NewObjectSuffix() string {
	return hex.EncodeToString(GenerateRandByteArray(8))
}
