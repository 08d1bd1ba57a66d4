package adaptive

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of master keys and derived subkeys.
	KeySize = 32

	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	// MinSaltLength is the minimum Argon2id salt length.
	MinSaltLength = 16

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// Subkey purposes.
const (
	PurposeBuckets = "usagestats/buckets"
	PurposeVault   = "usagestats/vault"
)

var (
	ErrKeyTooShort       = errors.New("adaptive: key must be 32 bytes")
	ErrPassphraseTooWeak = errors.New("adaptive: passphrase too short")
	ErrSaltRequired      = errors.New("adaptive: passphrase requires a salt of at least 16 bytes")
)

// KeyConfig describes where the master key comes from. Key wins over
// Passphrase. An empty config disables encryption.
type KeyConfig struct {
	// Key is a hex-encoded 32-byte key.
	Key string

	// Passphrase is stretched with Argon2id using Salt.
	Passphrase string

	// Salt is hex-encoded. It must be stable across runs or previously
	// written data cannot be decrypted.
	Salt string
}

// Enabled reports whether a key source is configured.
func (c KeyConfig) Enabled() bool {
	return c.Key != "" || c.Passphrase != ""
}

// Validate checks the key material without deriving anything.
func (c KeyConfig) Validate() error {
	if c.Key != "" {
		_, err := ParseHexKey(c.Key)
		return err
	}
	if c.Passphrase == "" {
		return nil
	}
	if len(c.Passphrase) < MinPassphraseLength {
		return ErrPassphraseTooWeak
	}
	salt, err := hex.DecodeString(c.Salt)
	if err != nil {
		return fmt.Errorf("adaptive: decode salt: %w", err)
	}
	if len(salt) < MinSaltLength {
		return ErrSaltRequired
	}
	return nil
}

// ParseHexKey decodes a hex-encoded 32-byte key.
func ParseHexKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("adaptive: decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrKeyTooShort
	}
	return key, nil
}

// MasterKey resolves the configured master key. It returns nil, nil when
// encryption is disabled.
func MasterKey(c KeyConfig) ([]byte, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Key != "" {
		return ParseHexKey(c.Key)
	}
	salt, _ := hex.DecodeString(c.Salt)
	return argon2.IDKey([]byte(c.Passphrase), salt, argon2Time, argon2Memory, argon2Threads, KeySize), nil
}

// DeriveSubkey derives a purpose-specific key from master with HKDF-SHA256.
func DeriveSubkey(master []byte, purpose string) ([]byte, error) {
	if len(master) < KeySize {
		return nil, ErrKeyTooShort
	}
	r := hkdf.New(sha256.New, master, nil, []byte(purpose))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("adaptive: derive subkey: %w", err)
	}
	return key, nil
}

// ForPurpose derives the subkey for purpose and returns a cipher over it. A
// nil master yields a nil cipher.
func ForPurpose(master []byte, purpose string, t CipherType) (Cipher, error) {
	if master == nil {
		return nil, nil
	}
	key, err := DeriveSubkey(master, purpose)
	if err != nil {
		return nil, err
	}
	return NewWithType(key, t)
}
