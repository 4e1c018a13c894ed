package db

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"
)

type reverseSealer struct{}

func (reverseSealer) Seal(plain string) (string, error) { return "sealed:" + reverse(plain), nil }

func (reverseSealer) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, "sealed:") {
		return "", errors.New("not sealed")
	}
	return reverse(strings.TrimPrefix(sealed, "sealed:")), nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), reverseSealer{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionLifecycle(t *testing.T) {
	store := openTestStore(t)
	anon := Session{Token: "anon", CSRFToken: "csrf-1", ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.CreateSession(anon); err != nil {
		t.Fatalf("create session: %v", err)
	}
	got, err := store.GetSession("anon")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Authenticated() {
		t.Fatalf("anonymous session reported authenticated")
	}

	authed := Session{Token: "authed", CSRFToken: "csrf-2", APIToken: "api-token", UserJSON: `{"id":"u1"}`, ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.RotateSession("anon", authed); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := store.GetSession("anon"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("old session should be gone, got %v", err)
	}
	got, err = store.GetSession("authed")
	if err != nil {
		t.Fatalf("get rotated session: %v", err)
	}
	if got.APIToken != "api-token" || got.UserJSON != `{"id":"u1"}` {
		t.Fatalf("unexpected session: %+v", got)
	}

	var raw string
	if err := store.DB().QueryRow(`SELECT api_token FROM sessions WHERE token = ?`, "authed").Scan(&raw); err != nil {
		t.Fatalf("read raw token: %v", err)
	}
	if raw == "api-token" {
		t.Fatalf("api token stored unsealed")
	}

	if err := store.DeleteSession("authed"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.GetSession("authed"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected deleted session to be missing, got %v", err)
	}
}

func TestExpiredSessionIsRemoved(t *testing.T) {
	store := openTestStore(t)
	if err := store.CreateSession(Session{Token: "old", CSRFToken: "c", ExpiresAt: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := store.GetSession("old"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected expired session to be rejected, got %v", err)
	}
}

func TestSecretsAndSettings(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetSetting("token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.SetSecret("token", "abc"); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	raw, _ := store.GetSetting("token")
	if raw == "abc" {
		t.Fatalf("secret stored in clear")
	}
	v, err := store.GetSecret("token")
	if err != nil || v != "abc" {
		t.Fatalf("get secret = %q, %v", v, err)
	}
	if err := store.SetSetting("user", "{}"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if err := store.DeleteSettings("token", "user"); err != nil {
		t.Fatalf("delete settings: %v", err)
	}
	for _, k := range []string{"token", "user"} {
		if _, err := store.GetSetting(k); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s should be deleted, got %v", k, err)
		}
	}
}

func TestAuditNewestFirst(t *testing.T) {
	store := openTestStore(t)
	_ = store.RecordAudit("alice@x.com", "upload", "report.pdf", "")
	_ = store.RecordAudit("alice@x.com", "delete", "report.pdf", "")
	logs, err := store.ListAudit(10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(logs) != 2 || logs[0].Action != "delete" || logs[1].Action != "upload" {
		t.Fatalf("unexpected audit order: %+v", logs)
	}
}
