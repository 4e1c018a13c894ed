package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestVaultSealAndOpen(t *testing.T) {
	key, err := LoadOrCreateKey(t.TempDir())
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	v, err := NewVault(key)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	sealed, err := v.Seal("bearer-token-123")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed == "bearer-token-123" {
		t.Fatalf("token stored in clear")
	}
	plain, err := v.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if plain != "bearer-token-123" {
		t.Fatalf("open = %q", plain)
	}

	other, _ := NewVault(make([]byte, 32))
	if _, err := other.Open(sealed); err == nil {
		t.Fatalf("expected open with a different key to fail")
	}
}

func TestLoadOrCreateKeyIsStable(t *testing.T) {
	dir := t.TempDir()
	first, err := LoadOrCreateKey(dir)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	second, err := LoadOrCreateKey(dir)
	if err != nil {
		t.Fatalf("reload key: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("key changed between loads")
	}
	info, err := os.Stat(filepath.Join(dir, keyFileName))
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		t.Fatalf("key file too permissive: %v", info.Mode().Perm())
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("backend-secret-we-never-see"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, ok := TokenExpiry(signed)
	if !ok {
		t.Fatalf("expected jwt expiry to be readable")
	}
	if !got.Equal(exp) {
		t.Fatalf("expiry = %v, want %v", got, exp)
	}
	if _, ok := TokenExpiry("opaque-session-token"); ok {
		t.Fatalf("opaque token should not report an expiry")
	}
}

func TestSessionExpiryCapsAtToken(t *testing.T) {
	now := time.Now()
	exp := now.Add(10 * time.Minute).Truncate(time.Second)
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	if got := SessionExpiry(signed, now, 12*time.Hour); !got.Equal(exp) {
		t.Fatalf("expected cap at token expiry, got %v", got)
	}
	if got := SessionExpiry("opaque", now, time.Hour); !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected ttl expiry, got %v", got)
	}
}

func TestPrincipalIsAdmin(t *testing.T) {
	if !(Principal{Role: RoleAdmin}).IsAdmin() {
		t.Fatalf("admin principal should be admin")
	}
	if (Principal{Role: RoleAdmin, Anonymous: true}).IsAdmin() {
		t.Fatalf("anonymous principal is never admin")
	}
	if NormalizeRole(" Admin ") != RoleAdmin || NormalizeRole("owner") != RoleUser {
		t.Fatalf("unexpected role normalization")
	}
}
