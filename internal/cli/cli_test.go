package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewsawatzky/minidrive/internal/api"
	"github.com/matthewsawatzky/minidrive/internal/config"
	"github.com/matthewsawatzky/minidrive/internal/theme"
)

type backend struct {
	mu        sync.Mutex
	users     map[string]api.User
	hits      map[string]int
	deleted   []string
	shares    []api.ShareRequest
	uploads   map[string]string
	expireAll bool
}

func newBackend(t *testing.T) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{
		users: map[string]api.User{
			"tok-alice": {ID: "u1", Name: "Alice", Email: "alice@example.com", Role: "user"},
			"tok-root":  {ID: "u0", Name: "Root", Email: "root@example.com", Role: "admin"},
		},
		hits:    map[string]int{},
		uploads: map[string]string{},
	}
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authed := func(name string, fn func(w http.ResponseWriter, r *http.Request, u api.User)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			b.mu.Lock()
			b.hits[name]++
			u, ok := b.users[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
			expired := b.expireAll
			b.mu.Unlock()
			if !ok || expired {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token expired"})
				return
			}
			fn(w, r, u)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds api.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		for tok, u := range b.users {
			if u.Email == creds.Email && creds.Password == "pw" {
				writeJSON(w, http.StatusOK, map[string]any{"token": tok, "user": u})
				return
			}
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
	})
	mux.HandleFunc("GET /api/auth/me", authed("me", func(w http.ResponseWriter, r *http.Request, u api.User) {
		u.Name += " (fresh)"
		writeJSON(w, http.StatusOK, u)
	}))
	mux.HandleFunc("GET /api/files/myfiles", authed("myfiles", func(w http.ResponseWriter, r *http.Request, u api.User) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"_id": "f1", "name": "report.pdf", "url": "/uploads/report.pdf", "createdAt": "2026-01-02T10:00:00Z"},
		})
	}))
	mux.HandleFunc("POST /api/files/upload", authed("upload", func(w http.ResponseWriter, r *http.Request, u api.User) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "no file"})
			return
		}
		body, _ := io.ReadAll(f)
		b.mu.Lock()
		b.uploads[hdr.Filename] = string(body)
		b.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]string{"message": "ok"})
	}))
	mux.HandleFunc("DELETE /api/files/{id}", authed("delete", func(w http.ResponseWriter, r *http.Request, u api.User) {
		b.mu.Lock()
		b.deleted = append(b.deleted, r.PathValue("id"))
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
	}))
	mux.HandleFunc("POST /api/files/share", authed("share", func(w http.ResponseWriter, r *http.Request, u api.User) {
		var req api.ShareRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.shares = append(b.shares, req)
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "shared"})
	}))
	mux.HandleFunc("GET /api/files/shared-with-me", authed("shared-with-me", func(w http.ResponseWriter, r *http.Request, u api.User) {
		writeJSON(w, http.StatusOK, []map[string]any{{
			"_id":       "s1",
			"file":      map[string]any{"_id": "f9", "name": "notes.txt", "url": "https://cdn.example.com/notes.txt"},
			"owner":     map[string]any{"name": "Bob", "email": "bob@example.com"},
			"canView":   true,
			"canDelete": true,
		}})
	}))
	mux.HandleFunc("GET /api/files/shared-by-me", authed("shared-by-me", func(w http.ResponseWriter, r *http.Request, u api.User) {
		writeJSON(w, http.StatusOK, []any{})
	}))
	mux.HandleFunc("GET /api/admin/all-data", authed("admin", func(w http.ResponseWriter, r *http.Request, u api.User) {
		if u.Role != "admin" {
			writeJSON(w, http.StatusForbidden, map[string]string{"message": "Admins only"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"users": []map[string]any{{"_id": "u0"}, {"_id": "u1"}},
			"files": []map[string]any{
				{"_id": "f1", "name": "report.pdf", "owner": map[string]any{"name": "Alice", "email": "alice@example.com"}},
				{"_id": "f2", "name": "cat.png", "owner": map[string]any{"name": "Bob", "email": "bob@example.com"}, "shareCount": 3},
			},
		})
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *backend) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[name]
}

type harness struct {
	t       *testing.T
	dir     string
	cfgPath string
	api     string
}

func newHarness(t *testing.T) (*harness, *backend) {
	t.Helper()
	b, srv := newBackend(t)
	dir := t.TempDir()
	return &harness{t: t, dir: dir, cfgPath: filepath.Join(dir, "config.json"), api: srv.URL}, b
}

// run executes one CLI invocation with stdin as its input.
func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCmd(VersionInfo{Version: "test", Commit: "abc123", Date: "today"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", h.cfgPath, "--data-dir", filepath.Join(h.dir, "data"), "--api", h.api}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) login(email string) {
	h.t.Helper()
	out, err := h.run("pw\n", "login", "--email", email)
	require.NoError(h.t, err)
	require.Contains(h.t, out, "Welcome back")
}

func TestLoginListWhoamiLogout(t *testing.T) {
	h, _ := newHarness(t)

	out, err := h.run("pw\n", "login", "--email", "alice@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome back, Alice!")

	out, err = h.run("", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "f1")
	assert.Contains(t, out, "report.pdf")

	out, err = h.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "user")

	out, err = h.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	_, err = h.run("", "ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestLoginFailureShowsServerMessage(t *testing.T) {
	h, _ := newHarness(t)
	_, err := h.run("wrong\n", "login", "--email", "alice@example.com")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())

	out, err := h.run("", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "login.failed")
}

func TestWhoamiRefreshUpdatesCachedUser(t *testing.T) {
	h, b := newHarness(t)
	h.login("alice@example.com")

	out, err := h.run("", "whoami", "--refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice (fresh)")
	assert.Equal(t, 1, b.count("me"))

	out, err = h.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice (fresh)")
	assert.Equal(t, 1, b.count("me"))
}

func TestAdminCommandsRefuseNonAdminLocally(t *testing.T) {
	h, b := newHarness(t)
	h.login("alice@example.com")

	for _, args := range [][]string{{"admin", "ls"}, {"admin", "stats"}, {"admin", "rm", "f1", "--yes"}} {
		_, err := h.run("", args...)
		require.ErrorIs(t, err, errAdminRequired, "%v", args)
	}
	assert.Zero(t, b.count("admin"))
	assert.Zero(t, b.count("delete"))
}

func TestAdminListFiltersAndStats(t *testing.T) {
	h, b := newHarness(t)
	h.login("root@example.com")

	out, err := h.run("", "admin", "ls", "--search", "BOB")
	require.NoError(t, err)
	assert.Contains(t, out, "cat.png")
	assert.NotContains(t, out, "report.pdf")

	out, err = h.run("", "admin", "ls", "--search", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "No files found")

	out, err = h.run("", "admin", "stats")
	require.NoError(t, err)
	assert.Regexp(t, `Users:\s+2`, out)
	assert.Regexp(t, `Files:\s+2`, out)
	assert.Regexp(t, `Shares:\s+3`, out)

	out, err = h.run("", "admin", "rm", "f2", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "File removed by admin")
	b.mu.Lock()
	assert.Equal(t, []string{"f2"}, b.deleted)
	b.mu.Unlock()
}

func TestRemoveAsksForConfirmation(t *testing.T) {
	h, b := newHarness(t)
	h.login("alice@example.com")

	out, err := h.run("n\n", "rm", "f1")
	require.NoError(t, err)
	assert.Contains(t, out, "Are you sure you want to delete this file?")
	assert.Contains(t, out, "Cancelled.")
	assert.Zero(t, b.count("delete"))

	out, err = h.run("", "rm", "f1")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled.")
	assert.Zero(t, b.count("delete"))

	out, err = h.run("yes\n", "rm", "f1")
	require.NoError(t, err)
	assert.Contains(t, out, "File deleted")
	assert.Equal(t, 1, b.count("delete"))

	out, err = h.run("", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "file.delete")
	assert.Contains(t, out, "alice@example.com")
}

func TestShareAlwaysGrantsView(t *testing.T) {
	h, b := newHarness(t)
	h.login("alice@example.com")

	out, err := h.run("", "share", "f1", "  bob@example.com ", "--edit")
	require.NoError(t, err)
	assert.Contains(t, out, "Shared with bob@example.com (view, edit)")

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.shares, 1)
	assert.Equal(t, api.ShareRequest{FileID: "f1", ReceiverEmail: "bob@example.com", CanView: true, CanEdit: true}, b.shares[0])
}

func TestShareRejectsBadEmail(t *testing.T) {
	h, b := newHarness(t)
	h.login("alice@example.com")

	_, err := h.run("", "share", "f1", "not-an-email")
	require.Error(t, err)
	assert.Zero(t, b.count("share"))
}

func TestSharedListsBadgesAndLinks(t *testing.T) {
	h, _ := newHarness(t)
	h.login("alice@example.com")

	out, err := h.run("", "shared")
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "Bob <bob@example.com>")
	assert.Contains(t, out, "view,delete")

	out, err = h.run("", "shared-by-me")
	require.NoError(t, err)
	assert.Contains(t, out, "You haven't shared any files yet.")

	out, err = h.run("", "link", "f1")
	require.NoError(t, err)
	assert.Equal(t, h.api+"/uploads/report.pdf\n", out)

	out, err = h.run("", "link", "f9")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/notes.txt\n", out)

	_, err = h.run("", "link", "missing")
	require.Error(t, err)
}

func TestUploadSendsFileUnderItsBaseName(t *testing.T) {
	h, b := newHarness(t)
	h.login("alice@example.com")

	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	out, err := h.run("", "upload", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Uploading hello.txt (text/plain")
	assert.Contains(t, out, "File uploaded")

	b.mu.Lock()
	assert.Equal(t, "hello world", b.uploads["hello.txt"])
	b.mu.Unlock()
}

func TestUnauthorizedEndsSavedSession(t *testing.T) {
	h, b := newHarness(t)
	h.login("alice@example.com")

	b.mu.Lock()
	b.expireAll = true
	b.mu.Unlock()

	_, err := h.run("", "ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")

	_, err = h.run("", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestThemeSetPersistsOverrides(t *testing.T) {
	h, _ := newHarness(t)

	out, err := h.run("", "theme", "set", "dark", "--accent", "#ff0066")
	require.NoError(t, err)
	assert.Contains(t, out, "Theme set to dark")

	cfg, err := config.LoadOrDefault(h.cfgPath, "")
	require.NoError(t, err)
	assert.Equal(t, "dark", cfg.Theme)
	assert.Equal(t, theme.Overrides{Accent: "#ff0066"}, cfg.ThemeOverrides)

	_, err = h.run("", "theme", "set", "neon")
	require.Error(t, err)

	out, err = h.run("", "theme", "list")
	require.NoError(t, err)
	for _, name := range theme.Names() {
		assert.Contains(t, out, name)
	}
}

func TestVersionCommand(t *testing.T) {
	h, _ := newHarness(t)
	out, err := h.run("", "version")
	require.NoError(t, err)
	assert.Equal(t, "minidrive test\ncommit: abc123\nbuilt: today\n", out)
}

func TestParseYesNo(t *testing.T) {
	cases := []struct {
		in        string
		value, ok bool
	}{
		{"y", true, true},
		{" YES ", true, true},
		{"n", false, true},
		{"no", false, true},
		{"", false, false},
		{"maybe", false, false},
	}
	for _, tc := range cases {
		v, ok := parseYesNo(tc.in)
		assert.Equal(t, tc.value, v, tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}
}

func TestResolveFileURL(t *testing.T) {
	assert.Equal(t, "http://api.test/uploads/a.png", resolveFileURL("http://api.test", "/uploads/a.png"))
	assert.Equal(t, "http://api.test/v1/uploads/a.png", resolveFileURL("http://api.test/v1/", "uploads/a.png"))
	assert.Equal(t, "https://cdn.test/a.png", resolveFileURL("http://api.test", "https://cdn.test/a.png"))
	assert.Equal(t, "", resolveFileURL("http://api.test", "  "))
}

func TestServeRejectsBadFlagsBeforeListening(t *testing.T) {
	h, _ := newHarness(t)
	_, err := h.run("", "serve", "--max-upload-mb", "1125899906842624")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max upload size")

	_, err = h.run("", "serve", "--log-level", "verbose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestServeOptionsFromConfig(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.MaxUploadSizeMB = 3
	cfg.ThemeOverrides = theme.Overrides{Font: "serif"}
	opts := serveOptions(cfg, VersionInfo{Version: "1.2.3"})
	assert.Equal(t, int64(3<<20), opts.MaxUploadBytes)
	assert.Equal(t, "serif", opts.ThemeOverrides.Font)
	assert.Equal(t, "1.2.3", opts.Version)
	assert.Positive(t, opts.RequestTimeout)
	assert.Positive(t, opts.SessionTTL)
}

func TestLANURLPrefersNonLoopback(t *testing.T) {
	assert.Equal(t, "http://192.168.1.5:5173/", lanURL([]string{"http://127.0.0.1:5173/", "http://localhost:5173/", "http://192.168.1.5:5173/"}))
	assert.Equal(t, "http://127.0.0.1:5173/", lanURL([]string{"http://127.0.0.1:5173/"}))
	assert.Equal(t, "", lanURL(nil))
}
