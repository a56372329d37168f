// Package cryptox implements the payload encryption boundary: AES-256-GCM
// content encryption with an optional password-derived key (argon2id).
//
// The key material blob produced here is opaque to the rest of the system;
// only this package ever looks inside it.
package cryptox

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/dmitrijs2005/securebox/internal/common"
)

const (
	keySize   = 32
	saltSize  = 16
	nonceSize = 12
)

// keyMaterial is the serialized form stored alongside a file record.
//
// Without a password the random content key travels inside the blob.
// With a password only the salt and a key verifier are stored, so the
// ciphertext cannot be opened without re-deriving the key.
type keyMaterial struct {
	Nonce    []byte `json:"nonce"`
	Key      []byte `json:"key,omitempty"`
	Salt     []byte `json:"salt,omitempty"`
	Verifier []byte `json:"verifier"`
}

// DeriveKey derives a 32-byte content key from a password and salt (argon2id).
func DeriveKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, keySize)
}

// MakeVerifier returns a fingerprint of the key used to distinguish a wrong
// password from corrupted ciphertext during decryption.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// AESGCM encrypts and decrypts file payloads. The zero value is ready to use.
type AESGCM struct{}

func NewAESGCM() *AESGCM {
	return &AESGCM{}
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt encrypts plaintext for the given file. When password is empty a
// random content key is generated and carried in the key material; otherwise
// the key is derived from the password and never stored.
//
// The file ID is bound to the ciphertext as additional authenticated data.
func (p *AESGCM) Encrypt(ctx context.Context, fileID string, plaintext []byte, password string) (ciphertext, material []byte, err error) {
	m := keyMaterial{Nonce: common.GenerateRandByteArray(nonceSize)}

	var key []byte
	if password == "" {
		key = common.GenerateRandByteArray(keySize)
		m.Key = key
	} else {
		m.Salt = common.GenerateRandByteArray(saltSize)
		key = DeriveKey([]byte(password), m.Salt)
	}
	m.Verifier = MakeVerifier(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrEncryptionFailed, err)
	}

	ciphertext = aead.Seal(nil, m.Nonce, plaintext, []byte(fileID))

	material, err = json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrEncryptionFailed, err)
	}
	return ciphertext, material, nil
}

// Decrypt reverses Encrypt. A wrong password is reported as ErrUnauthorized
// before the ciphertext is touched; any AEAD failure afterwards means the
// stored data is corrupted and is reported as ErrDecryptionFailed.
func (p *AESGCM) Decrypt(ctx context.Context, fileID string, ciphertext, material []byte, password string) ([]byte, error) {
	var m keyMaterial
	if err := json.Unmarshal(material, &m); err != nil {
		return nil, fmt.Errorf("%w: bad key material", common.ErrDecryptionFailed)
	}

	var key []byte
	switch {
	case len(m.Salt) > 0:
		if password == "" {
			return nil, fmt.Errorf("%w: password required", common.ErrUnauthorized)
		}
		key = DeriveKey([]byte(password), m.Salt)
		if subtle.ConstantTimeCompare(MakeVerifier(key), m.Verifier) != 1 {
			return nil, fmt.Errorf("%w: invalid password", common.ErrUnauthorized)
		}
	case len(m.Key) == keySize:
		key = m.Key
	default:
		return nil, fmt.Errorf("%w: bad key material", common.ErrDecryptionFailed)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}

	plaintext, err := aead.Open(nil, m.Nonce, ciphertext, []byte(fileID))
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext rejected", common.ErrDecryptionFailed)
	}
	return plaintext, nil
}
