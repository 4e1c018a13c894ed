package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func TestLoginDecodesTokenAndUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "alice@x.com", creds.Email)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = io.WriteString(w, `{"token":"tok-1","user":{"_id":"u1","name":"Alice","email":"alice@x.com","role":"admin"}}`)
	})
	c := newTestClient(t, mux, Options{})

	res, err := c.Login(context.Background(), Credentials{Email: "alice@x.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.Token)
	assert.Equal(t, User{ID: "u1", Name: "Alice", Email: "alice@x.com", Role: "admin"}, res.User)
}

func TestErrorsCarryServerMessageOrFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"Invalid credentials"}`)
	})
	mux.HandleFunc("DELETE /api/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `<html>boom</html>`)
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Token expired"}`)
	})
	c := newTestClient(t, mux, Options{})
	ctx := context.Background()

	_, err := c.Login(ctx, Credentials{Email: "a@x.com", Password: "bad"})
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())
	assert.Equal(t, "Invalid credentials", Message(err, OpLogin))

	err = c.WithToken("t").DeleteFile(ctx, "f1")
	require.Error(t, err)
	assert.Equal(t, "Delete failed", err.Error())
	assert.False(t, IsUnauthorized(err))

	_, err = c.WithToken("t").Me(ctx)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "Token expired", err.Error())
}

func TestListEndpointsSendBearerAndTolerateNull(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/files/myfiles", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `null`)
	})
	mux.HandleFunc("GET /api/files/shared-with-me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"_id":"s1","file":{"_id":"f1","name":"a.txt","url":"http://cdn/a.txt"},"owner":{"_id":"u2","name":"Bob"},"canView":true,"canEdit":true,"canDelete":false}]`)
	})
	mux.HandleFunc("GET /api/files/shared-by-me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	c := newTestClient(t, mux, Options{}).WithToken("tok")
	ctx := context.Background()

	files, err := c.MyFiles(ctx)
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)

	shares, err := c.SharedWithMe(ctx)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, "s1", shares[0].ID)
	assert.Equal(t, "f1", shares[0].File.ID)
	assert.Equal(t, "Bob", shares[0].Owner.Name)
	assert.True(t, shares[0].CanEdit)
	assert.False(t, shares[0].CanDelete)

	byMe, err := c.SharedByMe(ctx)
	require.NoError(t, err)
	assert.Empty(t, byMe)
}

func TestUploadSendsSingleMultipartFileField(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/files/upload", func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		b, _ := io.ReadAll(f)
		assert.Equal(t, "report.pdf", hdr.Filename)
		assert.Equal(t, "hello", string(b))
		assert.Equal(t, "application/pdf", hdr.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
	})
	c := newTestClient(t, mux, Options{}).WithToken("tok")

	require.NoError(t, c.Upload(context.Background(), "/tmp/dir/report.pdf", strings.NewReader("hello")))
	assert.Equal(t, 1, calls)
}

func TestEditUsesPut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/files/edit/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "f9", r.PathValue("id"))
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
	})
	c := newTestClient(t, mux, Options{}).WithToken("tok")
	require.NoError(t, c.EditFile(context.Background(), "f9", "notes.txt", strings.NewReader("v2")))
}

func TestShareAlwaysGrantsView(t *testing.T) {
	var got ShareRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/files/share", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	})
	c := newTestClient(t, mux, Options{}).WithToken("tok")

	err := c.Share(context.Background(), ShareRequest{FileID: "f1", ReceiverEmail: " bob@y.com "})
	require.NoError(t, err)
	assert.Equal(t, ShareRequest{FileID: "f1", ReceiverEmail: "bob@y.com", CanView: true}, got)
}

func TestRevokeAndRegisterPaths(t *testing.T) {
	hits := map[string]int{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits[r.Method+" "+r.URL.Path]++
	})
	c := newTestClient(t, mux, Options{RegisterPath: "/api/auth/signup"})
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, Registration{Name: "A", Email: "a@x.com", Password: "p", Role: "user"}))
	require.NoError(t, c.WithToken("t").RevokeShare(ctx, "s7"))
	assert.Equal(t, 1, hits["POST /api/auth/signup"])
	assert.Equal(t, 1, hits["DELETE /api/files/share/s7"])
}

func TestAdminOverviewSources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/admin/all-data", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"meta":{"totalUsers":5,"totalFiles":2},"users":[],"files":[
			{"_id":"f1","name":"report.pdf","owner":{"name":"Alice","email":"alice@x.com"},"shareCount":2},
			{"_id":"f2","name":"photo.png","owner":{"name":"Bob","email":"bob@y.com"},"shareCount":1}]}`)
	})
	mux.HandleFunc("GET /api/files/admin/all", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"_id":"f1","name":"report.pdf","shareCount":3}]`)
	})
	ctx := context.Background()

	c := newTestClient(t, mux, Options{AdminSource: AdminSourceAllData}).WithToken("t")
	ov, err := c.AdminOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, AdminMeta{TotalUsers: 5, TotalFiles: 2, TotalShares: 3}, ov.Meta)
	require.Len(t, ov.Files, 2)
	assert.Equal(t, "bob@y.com", ov.Files[1].Owner.Email)

	c = newTestClient(t, mux, Options{AdminSource: AdminSourceFilesAdmin}).WithToken("t")
	ov, err = c.AdminOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, AdminMeta{TotalUsers: 0, TotalFiles: 1, TotalShares: 3}, ov.Meta)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(Options{BaseURL: "localhost:5000"})
	assert.Error(t, err)
	_, err = New(Options{BaseURL: "http://localhost:5000", AdminSource: "nope"})
	assert.Error(t, err)
}

func TestNetworkFailureUsesFallback(t *testing.T) {
	c, err := New(Options{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	_, err = c.WithToken("t").MyFiles(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Failed to load files", err.Error())
	assert.Equal(t, "Failed to load files", Message(err, OpMyFiles))
}
