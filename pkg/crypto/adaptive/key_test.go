package adaptive

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestKeyConfig_Validate(t *testing.T) {
	goodKey := hex.EncodeToString(key32)
	goodSalt := strings.Repeat("ab", MinSaltLength)

	tests := []struct {
		name    string
		cfg     KeyConfig
		wantErr error
	}{
		{"disabled", KeyConfig{}, nil},
		{"hex key", KeyConfig{Key: goodKey}, nil},
		{"short key", KeyConfig{Key: "abcd"}, ErrKeyTooShort},
		{"passphrase", KeyConfig{Passphrase: "correct horse", Salt: goodSalt}, nil},
		{"weak passphrase", KeyConfig{Passphrase: "short", Salt: goodSalt}, ErrPassphraseTooWeak},
		{"missing salt", KeyConfig{Passphrase: "correct horse"}, ErrSaltRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := (KeyConfig{Key: "zz"}).Validate(); err == nil {
		t.Fatal("Validate(non-hex key) should fail")
	}
}

func TestMasterKey(t *testing.T) {
	key, err := MasterKey(KeyConfig{})
	if key != nil || err != nil {
		t.Fatalf("MasterKey(disabled) = %x, %v, want nil, nil", key, err)
	}

	key, err = MasterKey(KeyConfig{Key: hex.EncodeToString(key32), Passphrase: "ignored passphrase"})
	if err != nil || !bytes.Equal(key, key32) {
		t.Fatalf("MasterKey(hex) = %x, %v", key, err)
	}

	cfg := KeyConfig{Passphrase: "correct horse", Salt: strings.Repeat("01", MinSaltLength)}
	a, err := MasterKey(cfg)
	if err != nil {
		t.Fatalf("MasterKey(passphrase): %v", err)
	}
	b, _ := MasterKey(cfg)
	if len(a) != KeySize || !bytes.Equal(a, b) {
		t.Fatal("passphrase derivation should be deterministic for a fixed salt")
	}
	cfg.Salt = strings.Repeat("02", MinSaltLength)
	if c, _ := MasterKey(cfg); bytes.Equal(a, c) {
		t.Fatal("different salts should derive different keys")
	}
}

func TestForPurpose(t *testing.T) {
	if c, err := ForPurpose(nil, PurposeBuckets, ""); c != nil || err != nil {
		t.Fatalf("ForPurpose(nil) = %v, %v, want nil, nil", c, err)
	}

	buckets, err := ForPurpose(key32, PurposeBuckets, CipherChaCha20)
	if err != nil {
		t.Fatalf("ForPurpose: %v", err)
	}
	vault, err := ForPurpose(key32, PurposeVault, CipherChaCha20)
	if err != nil {
		t.Fatalf("ForPurpose: %v", err)
	}

	sealed, _ := buckets.Encrypt([]byte("payload"), nil)
	if _, err := vault.Decrypt(sealed, nil); err == nil {
		t.Fatal("subkeys for different purposes must differ")
	}

	k1, _ := DeriveSubkey(key32, PurposeBuckets)
	k2, _ := DeriveSubkey(key32, PurposeBuckets)
	if !bytes.Equal(k1, k2) {
		t.Fatal("DeriveSubkey should be deterministic")
	}
	if _, err := DeriveSubkey(key32[:16], PurposeBuckets); !errors.Is(err, ErrKeyTooShort) {
		t.Fatalf("DeriveSubkey(short) err = %v, want ErrKeyTooShort", err)
	}
}
