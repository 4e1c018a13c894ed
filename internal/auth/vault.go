package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyFileName = "secret.key"

// LoadOrCreateKey returns the 32-byte master key stored in dataDir, creating
// it with 0600 permissions on first use.
func LoadOrCreateKey(dataDir string) ([]byte, error) {
	p := filepath.Join(dataDir, keyFileName)
	b, err := os.ReadFile(p)
	if err == nil {
		if len(b) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("key file %s has unexpected length %d", p, len(b))
		}
		return b, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read key: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	key, err := randomBytes(chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(p, key, 0o600); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}
	return key, nil
}

// DeriveKey expands the master key into an independent subkey for purpose.
func DeriveKey(master []byte, purpose string, size int) ([]byte, error) {
	out := make([]byte, size)
	r := hkdf.New(sha256.New, master, nil, []byte("minidrive/"+purpose))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return out, nil
}

// Vault seals bearer tokens before they touch disk.
type Vault struct {
	key []byte
}

func NewVault(master []byte) (*Vault, error) {
	key, err := DeriveKey(master, "token-vault", chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return &Vault{key: key}, nil
}

func (v *Vault) Seal(plain string) (string, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	nonce, err := randomBytes(aead.NonceSize())
	if err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (v *Vault) Open(sealed string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed token: %w", err)
	}
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("sealed token too short")
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed token: %w", err)
	}
	return string(plain), nil
}
