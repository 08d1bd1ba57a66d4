package config

import "strings"

// Sanitize returns a copy of the config with key material masked, for
// display and logging.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Storage.EncryptionKey = maskSecret(out.Storage.EncryptionKey)
	out.Storage.EncryptionPassphrase = maskSecret(out.Storage.EncryptionPassphrase)
	out.Storage.EncryptionSalt = maskSecret(out.Storage.EncryptionSalt)
	return &out
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
