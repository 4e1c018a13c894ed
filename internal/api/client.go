package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	AdminSourceAllData    = "all-data"
	AdminSourceAllFiles   = "all-files"
	AdminSourceFilesAdmin = "files-admin"
)

var adminPaths = map[string]string{
	AdminSourceAllData:    "/api/admin/all-data",
	AdminSourceAllFiles:   "/api/admin/all-files",
	AdminSourceFilesAdmin: "/api/files/admin/all",
}

// maxErrorBody bounds how much of a failed response is read for a message.
const maxErrorBody = 64 << 10

type Options struct {
	BaseURL      string
	RegisterPath string
	AdminSource  string
	Timeout      time.Duration
	HTTPClient   *http.Client
	UserAgent    string
}

// Client calls the MiniDrive backend. It is safe for concurrent use; bind a
// bearer token with WithToken.
type Client struct {
	base         string
	registerPath string
	adminPath    string
	userAgent    string
	http         *http.Client
	token        string
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid api base url %q", opts.BaseURL)
	}
	registerPath := opts.RegisterPath
	if registerPath == "" {
		registerPath = "/api/auth/register"
	}
	source := opts.AdminSource
	if source == "" {
		source = AdminSourceAllData
	}
	adminPath, ok := adminPaths[source]
	if !ok {
		return nil, fmt.Errorf("unknown admin source %q", source)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "minidrive"
	}
	return &Client{
		base:         base,
		registerPath: registerPath,
		adminPath:    adminPath,
		userAgent:    ua,
		http:         hc,
	}, nil
}

// WithToken returns a copy of c that authenticates as token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	var out LoginResult
	if err := c.doJSON(ctx, OpLogin, http.MethodPost, "/api/auth/login", creds, &out); err != nil {
		return LoginResult{}, err
	}
	if out.Token == "" {
		return LoginResult{}, &Error{Op: OpLogin, Status: http.StatusOK, Message: "login response did not include a token"}
	}
	return out, nil
}

func (c *Client) Register(ctx context.Context, reg Registration) error {
	return c.doJSON(ctx, OpRegister, http.MethodPost, c.registerPath, reg, nil)
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var out User
	if err := c.doJSON(ctx, OpMe, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return User{}, err
	}
	return out, nil
}

func (c *Client) MyFiles(ctx context.Context) ([]FileRecord, error) {
	out := []FileRecord{}
	if err := c.doJSON(ctx, OpMyFiles, http.MethodGet, "/api/files/myfiles", nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// Upload sends content as a new file in the multipart field "file".
func (c *Client) Upload(ctx context.Context, name string, content io.Reader) error {
	return c.doMultipart(ctx, OpUpload, http.MethodPost, "/api/files/upload", name, content)
}

// EditFile replaces the content of file id.
func (c *Client) EditFile(ctx context.Context, id, name string, content io.Reader) error {
	return c.doMultipart(ctx, OpEdit, http.MethodPut, "/api/files/edit/"+url.PathEscape(id), name, content)
}

// DeleteFile deletes file id. Owners, receivers holding canDelete, and
// admins all use this same endpoint; the backend decides.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.doJSON(ctx, OpDelete, http.MethodDelete, "/api/files/"+url.PathEscape(id), nil, nil)
}

// Share grants req.ReceiverEmail access to req.FileID. View access is
// always granted.
func (c *Client) Share(ctx context.Context, req ShareRequest) error {
	req.CanView = true
	req.ReceiverEmail = strings.TrimSpace(req.ReceiverEmail)
	return c.doJSON(ctx, OpShare, http.MethodPost, "/api/files/share", req, nil)
}

func (c *Client) SharedWithMe(ctx context.Context) ([]ShareRecord, error) {
	out := []ShareRecord{}
	if err := c.doJSON(ctx, OpSharedWithMe, http.MethodGet, "/api/files/shared-with-me", nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) SharedByMe(ctx context.Context) ([]ShareRecord, error) {
	out := []ShareRecord{}
	if err := c.doJSON(ctx, OpSharedByMe, http.MethodGet, "/api/files/shared-by-me", nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) RevokeShare(ctx context.Context, id string) error {
	return c.doJSON(ctx, OpRevoke, http.MethodDelete, "/api/files/share/"+url.PathEscape(id), nil, nil)
}

// AdminOverview fetches the system-wide listing from the configured source.
// List-only sources get their totals derived from the list.
func (c *Client) AdminOverview(ctx context.Context) (AdminOverview, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, OpAdmin, http.MethodGet, c.adminPath, nil, &raw); err != nil {
		return AdminOverview{}, err
	}
	return decodeAdminOverview(raw)
}

func decodeAdminOverview(raw json.RawMessage) (AdminOverview, error) {
	var out AdminOverview
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &out.Files); err != nil {
			return AdminOverview{}, &Error{Op: OpAdmin, Message: "unexpected admin response", Err: err}
		}
	default:
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return AdminOverview{}, &Error{Op: OpAdmin, Message: "unexpected admin response", Err: err}
		}
	}
	out.Files = nonNil(out.Files)
	out.Users = nonNil(out.Users)
	if out.Meta.TotalFiles == 0 {
		out.Meta.TotalFiles = len(out.Files)
	}
	if out.Meta.TotalUsers == 0 {
		out.Meta.TotalUsers = len(out.Users)
	}
	if out.Meta.TotalShares == 0 {
		for _, f := range out.Files {
			out.Meta.TotalShares += f.ShareCount
		}
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, op Op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, op, out)
}

func (c *Client) doMultipart(ctx context.Context, op Op, method, path, name string, content io.Reader) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreatePart(filePartHeader(name))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, content); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := c.newRequest(ctx, method, path, pr)
	if err != nil {
		_ = pr.Close()
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	err = c.send(req, op, nil)
	_ = pr.Close()
	return err
}

func filePartHeader(name string) textproto.MIMEHeader {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": base,
	}))
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(base)))
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	return h
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, op Op, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Op: op, Status: resp.StatusCode, Message: serverMessage(b)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
