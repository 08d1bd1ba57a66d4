// Package adaptive provides the AEAD ciphers used for at-rest encryption of
// bucket files and archived backups.
//
// Supported algorithms:
//
//   - AES-256-GCM: preferred on platforms with hardware AES
//   - ChaCha20-Poly1305: fallback elsewhere
//
// Keys come either from a raw hex key or from a passphrase stretched with
// Argon2id. Purpose-specific subkeys are derived from the master key with
// HKDF-SHA256, so bucket files and the vault never share a key.
//
// Usage:
//
//	master, err := adaptive.MasterKey(adaptive.KeyConfig{Key: hexKey})
//	c, err := adaptive.ForPurpose(master, adaptive.PurposeBuckets, "")
//	sealed, err := c.Encrypt(plaintext, aad)
package adaptive
