package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/matthewsawatzky/minidrive/internal/api"
	"github.com/matthewsawatzky/minidrive/internal/auth"
	"github.com/matthewsawatzky/minidrive/internal/catalog"
	"github.com/matthewsawatzky/minidrive/internal/db"
	"github.com/matthewsawatzky/minidrive/internal/session"
	"github.com/matthewsawatzky/minidrive/internal/theme"
	"github.com/matthewsawatzky/minidrive/internal/util"
	"github.com/matthewsawatzky/minidrive/internal/webui"
)

const (
	sessionCookieName = "minidrive_session"
	anonTTL           = 24 * time.Hour
	defaultTTL        = 12 * time.Hour
	stagedMaxAge      = time.Hour
	janitorInterval   = 10 * time.Minute
)

type ctxKey string

const (
	ctxSessionKey   ctxKey = "session"
	ctxUserKey      ctxKey = "user"
	ctxPrincipalKey ctxKey = "principal"
)

// Deps are the collaborators NewApp wires together. Run builds them from
// Options; tests build them directly.
type Deps struct {
	Store     *db.Store
	Client    *api.Client
	Logger    *slog.Logger
	MasterKey []byte
}

type App struct {
	opts      Options
	store     *db.Store
	client    *api.Client
	logger    *slog.Logger
	templates *template.Template
	static    http.Handler
	flashes   *flashes
	staging   *staging
	inflight  *inflight
	validate  *validator.Validate
	theme     theme.Theme
}

func Run(ctx context.Context, opts Options) error {
	handlerLevel := new(slog.LevelVar)
	handlerLevel.Set(parseLogLevel(opts.LogLevel))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: handlerLevel}))

	key, err := auth.LoadOrCreateKey(opts.DataDir)
	if err != nil {
		return err
	}
	vault, err := auth.NewVault(key)
	if err != nil {
		return err
	}
	store, err := db.Open(opts.DataDir, vault)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := api.New(api.Options{
		BaseURL:      opts.APIBaseURL,
		RegisterPath: opts.RegisterPath,
		AdminSource:  opts.AdminSource,
		Timeout:      opts.RequestTimeout,
		UserAgent:    "minidrive-web/" + opts.Version,
	})
	if err != nil {
		return err
	}

	app, err := NewApp(opts, Deps{Store: store, Client: client, Logger: logger, MasterKey: key})
	if err != nil {
		return err
	}
	if n, err := app.staging.sweep(0); err != nil {
		logger.Warn("staging sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("removed leftover staged uploads", "count", n)
	}
	if err := store.PurgeExpiredSessions(); err != nil {
		logger.Warn("session purge failed", "error", err)
	}
	go app.janitor(ctx)

	addr := net.JoinHostPort(opts.Bind, strconv.Itoa(opts.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	logger.Info("minidrive frontend listening", "addr", addr, "api", opts.APIBaseURL, "base_path", opts.BasePath)

	errCh := make(chan error, 1)
	go func() {
		if opts.HTTPS {
			errCh <- httpServer.ListenAndServeTLS(opts.CertFile, opts.KeyFile)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func NewApp(opts Options, deps Deps) (*App, error) {
	if deps.Store == nil || deps.Client == nil {
		return nil, errors.New("server: store and client are required")
	}
	opts.BasePath = normalizeBase(opts.BasePath)
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultTTL
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 512 << 20
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	master := deps.MasterKey
	if len(master) == 0 {
		return nil, errors.New("server: master key is required")
	}
	hashKey, err := auth.DeriveKey(master, "flash-hash", 32)
	if err != nil {
		return nil, err
	}
	blockKey, err := auth.DeriveKey(master, "flash-block", 32)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(webui.FS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	staticFS, err := fs.Sub(webui.FS, "static")
	if err != nil {
		return nil, fmt.Errorf("open static fs: %w", err)
	}
	stage, err := newStaging(filepath.Join(opts.DataDir, "staging"))
	if err != nil {
		return nil, err
	}
	th, err := theme.Resolve(opts.Theme, opts.ThemeOverrides)
	if err != nil {
		logger.Warn("unknown theme, using default", "theme", opts.Theme)
		th, _ = theme.Resolve(theme.Default, opts.ThemeOverrides)
	}

	return &App{
		opts:      opts,
		store:     deps.Store,
		client:    deps.Client,
		logger:    logger,
		templates: tmpl,
		static:    http.FileServer(http.FS(staticFS)),
		flashes:   newFlashes(hashKey, blockKey, cookiePath(opts.BasePath), opts.HTTPS),
		staging:   stage,
		inflight:  newInflight(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		theme:     th,
	}, nil
}

// Handler returns the frontend with its middleware chain.
func (a *App) Handler() http.Handler {
	r := mux.NewRouter()
	sub := r
	if a.opts.BasePath != "/" {
		sub = r.PathPrefix(a.opts.BasePath).Subrouter()
	}
	sub.PathPrefix("/static/").Handler(http.StripPrefix(a.route("/static/"), a.static))
	sub.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)

	sub.HandleFunc("/", a.handleIndex).Methods(http.MethodGet)
	sub.HandleFunc("/login", a.handleLoginPage).Methods(http.MethodGet)
	sub.HandleFunc("/login", a.handleLogin).Methods(http.MethodPost)
	sub.HandleFunc("/signup", a.handleSignupPage).Methods(http.MethodGet)
	sub.HandleFunc("/signup", a.handleSignup).Methods(http.MethodPost)
	sub.HandleFunc("/logout", a.handleLogout).Methods(http.MethodPost)

	sub.HandleFunc("/dashboard", a.handleDashboard).Methods(http.MethodGet)
	sub.HandleFunc("/files/upload", a.handleStageUpload).Methods(http.MethodPost)
	sub.HandleFunc("/files/staged/confirm", a.handleConfirmUpload).Methods(http.MethodPost)
	sub.HandleFunc("/files/staged/cancel", a.handleCancelUpload).Methods(http.MethodPost)
	sub.HandleFunc("/files/staged/preview", a.handleStagedPreview).Methods(http.MethodGet)
	sub.HandleFunc("/files/{id}/delete", a.handleDeleteFile).Methods(http.MethodPost)
	sub.HandleFunc("/files/{id}/share", a.handleShareFile).Methods(http.MethodPost)

	sub.HandleFunc("/shared", a.handleSharedWithMe).Methods(http.MethodGet)
	sub.HandleFunc("/shared/{fileID}/edit", a.handleSharedEdit).Methods(http.MethodPost)
	sub.HandleFunc("/shared/{fileID}/delete", a.handleSharedDelete).Methods(http.MethodPost)
	sub.HandleFunc("/shared-by-me", a.handleSharedByMe).Methods(http.MethodGet)
	sub.HandleFunc("/shares/{id}/revoke", a.handleRevoke).Methods(http.MethodPost)

	sub.HandleFunc("/admin", a.handleAdminPage).Methods(http.MethodGet)
	sub.HandleFunc("/admin/files/{id}/delete", a.handleAdminDelete).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	return a.recoverer(a.requestLogger(a.securityHeaders(a.sessionMiddleware(r))))
}

func (a *App) janitor(ctx context.Context) {
	t := time.NewTicker(janitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := a.store.PurgeExpiredSessions(); err != nil {
				a.logger.Warn("session purge failed", "error", err)
			}
			if _, err := a.staging.sweep(stagedMaxAge); err != nil {
				a.logger.Warn("staging sweep failed", "error", err)
			}
		}
	}
}

func normalizeBase(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

func cookiePath(base string) string {
	if base == "" {
		return "/"
	}
	return base
}

func (a *App) route(p string) string {
	if a.opts.BasePath == "/" || a.opts.BasePath == "" {
		return p
	}
	if p == "/" {
		return a.opts.BasePath + "/"
	}
	return a.opts.BasePath + p
}

// templateBasePath is the prefix templates put in front of absolute links.
func (a *App) templateBasePath() string {
	if a.opts.BasePath == "/" {
		return ""
	}
	return a.opts.BasePath
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"humanTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return humanize.Time(t)
		},
		"isImage": catalog.IsImageName,
		"badges":  catalog.PermissionBadges,
		"fileName": func(s api.ShareRecord) string {
			if n := catalog.FileName(s); n != "" {
				return n
			}
			return "(deleted file)"
		},
		"ownerLabel": func(o *api.OwnerRef) string {
			if o == nil {
				return "Unknown"
			}
			if o.Name != "" {
				return o.Name
			}
			return o.Email
		},
	}
}

func (a *App) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		// File URLs point at the backend's storage, so images come from any host.
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src * data: blob:; style-src 'self' 'unsafe-inline'; script-src 'self'; form-action 'self'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

func (a *App) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.Error("panic recovered", "panic", rec, "path", r.URL.Path)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *App) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (a *App) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, a.route("/static/")) || r.URL.Path == a.route("/healthz") {
			next.ServeHTTP(w, r)
			return
		}
		cookie, _ := r.Cookie(sessionCookieName)
		token := ""
		if cookie != nil {
			token = cookie.Value
		}
		sess, err := a.store.GetSession(token)
		var user api.User
		if err == nil && sess.Authenticated() {
			if user, err = session.DecodeUser(sess.UserJSON); err != nil {
				a.logger.Warn("dropping session with unreadable user", "error", err)
				_ = a.store.DeleteSession(sess.Token)
			}
		}
		if err != nil {
			sess, err = a.newAnonymousSession(r)
			if err != nil {
				http.Error(w, "session failure", http.StatusInternalServerError)
				return
			}
			if err := a.store.CreateSession(sess); err != nil {
				a.logger.Error("create session failed", "error", err)
				http.Error(w, "session failure", http.StatusInternalServerError)
				return
			}
		} else {
			if sess.Authenticated() {
				sess.ExpiresAt = auth.SessionExpiry(sess.APIToken, time.Now(), a.opts.SessionTTL)
			} else {
				sess.ExpiresAt = time.Now().Add(anonTTL)
			}
			_ = a.store.TouchSession(sess.Token, sess.ExpiresAt)
		}
		a.setSessionCookie(w, sess)

		principal := auth.Principal{Anonymous: true}
		ctx := r.Context()
		if sess.Authenticated() {
			principal = session.PrincipalOf(user)
			ctx = context.WithValue(ctx, ctxUserKey, user)
		}
		ctx = context.WithValue(ctx, ctxSessionKey, sess)
		ctx = context.WithValue(ctx, ctxPrincipalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *App) newAnonymousSession(r *http.Request) (db.Session, error) {
	token, csrf, err := util.NewSessionTokens()
	if err != nil {
		return db.Session{}, err
	}
	return db.Session{
		Token:     token,
		CSRFToken: csrf,
		IP:        remoteIP(r),
		UserAgent: r.UserAgent(),
		ExpiresAt: time.Now().Add(anonTTL),
	}, nil
}

func remoteIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (a *App) setSessionCookie(w http.ResponseWriter, sess db.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     cookiePath(a.opts.BasePath),
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   a.opts.HTTPS,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *App) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     cookiePath(a.opts.BasePath),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.opts.HTTPS,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *App) currentSession(r *http.Request) db.Session {
	s, _ := r.Context().Value(ctxSessionKey).(db.Session)
	return s
}

func (a *App) currentPrincipal(r *http.Request) auth.Principal {
	p, ok := r.Context().Value(ctxPrincipalKey).(auth.Principal)
	if !ok {
		return auth.Principal{Anonymous: true}
	}
	return p
}

func (a *App) currentUser(r *http.Request) *api.User {
	u, ok := r.Context().Value(ctxUserKey).(api.User)
	if !ok {
		return nil
	}
	return &u
}

// actor names the signed-in user in the activity log.
func (a *App) actor(r *http.Request) string {
	if u := a.currentUser(r); u != nil {
		return u.Email
	}
	return ""
}

func (a *App) audit(r *http.Request, action, target, metadata string) {
	if err := a.store.RecordAudit(a.actor(r), action, target, metadata); err != nil {
		a.logger.Warn("record activity failed", "action", action, "error", err)
	}
}

// requireSession redirects to the login page unless the browser is signed
// in, and returns a client bound to the session's bearer token.
func (a *App) requireSession(w http.ResponseWriter, r *http.Request) (*api.Client, bool) {
	sess := a.currentSession(r)
	if !sess.Authenticated() || a.currentUser(r) == nil {
		http.Redirect(w, r, a.route("/login"), http.StatusSeeOther)
		return nil, false
	}
	client := a.client.WithToken(sess.APIToken)
	if a.opts.RevalidateSession && r.Method == http.MethodGet {
		u, err := client.Me(r.Context())
		if err != nil {
			if api.IsUnauthorized(err) {
				a.expireSession(w, r)
				return nil, false
			}
			a.logger.Warn("session revalidation failed", "op", api.OpMe, "error", err)
		} else if userJSON, err := session.EncodeUser(u); err == nil {
			_ = a.store.UpdateSessionUser(sess.Token, userJSON)
			p := session.PrincipalOf(u)
			ctx := context.WithValue(r.Context(), ctxUserKey, u)
			ctx = context.WithValue(ctx, ctxPrincipalKey, p)
			*r = *r.WithContext(ctx)
		}
	}
	return client, true
}

// requireAdmin is requireSession plus a role check. Non-admins go back to
// the index. The backend still enforces the role on every admin call.
func (a *App) requireAdmin(w http.ResponseWriter, r *http.Request) (*api.Client, bool) {
	client, ok := a.requireSession(w, r)
	if !ok {
		return nil, false
	}
	if !a.currentPrincipal(r).IsAdmin() {
		http.Redirect(w, r, a.route("/"), http.StatusSeeOther)
		return nil, false
	}
	return client, true
}

// expireSession drops a session the backend no longer accepts.
func (a *App) expireSession(w http.ResponseWriter, r *http.Request) {
	sess := a.currentSession(r)
	_ = a.store.DeleteSession(sess.Token)
	a.clearSessionCookie(w)
	a.flashes.add(w, r, FlashWarning, "Your session has expired. Please log in again.")
	http.Redirect(w, r, a.route("/login"), http.StatusSeeOther)
}

// apiFailure handles a failed backend call: a 401 ends the session, anything
// else becomes an error notification. It reports whether it already
// redirected.
func (a *App) apiFailure(w http.ResponseWriter, r *http.Request, err error, op api.Op, fallback string) bool {
	a.logger.Warn("api request failed", "op", op, "status", statusOf(err), "error", err)
	if api.IsUnauthorized(err) {
		a.expireSession(w, r)
		return true
	}
	a.flashes.add(w, r, FlashError, api.MessageOr(err, fallback))
	return false
}

func statusOf(err error) int {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// verifyCSRF accepts the token from the X-CSRF-Token header, the _csrf query
// parameter or, for urlencoded forms, the _csrf form field. Multipart bodies
// are never parsed here so uploads can stream.
func (a *App) verifyCSRF(w http.ResponseWriter, r *http.Request) bool {
	sess := a.currentSession(r)
	provided := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if provided == "" {
		provided = strings.TrimSpace(r.URL.Query().Get("_csrf"))
	}
	if provided == "" && !isMultipart(r) {
		_ = r.ParseForm()
		provided = strings.TrimSpace(r.PostFormValue("_csrf"))
	}
	if provided == "" || sess.CSRFToken == "" || provided != sess.CSRFToken {
		a.logger.Warn("csrf validation failed", "path", r.URL.Path)
		http.Error(w, "csrf validation failed", http.StatusForbidden)
		return false
	}
	return true
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mt, "multipart/")
}

func (a *App) baseView(w http.ResponseWriter, r *http.Request, title, active string) view {
	sess := a.currentSession(r)
	return view{
		Title:     title,
		Active:    active,
		BasePath:  a.templateBasePath(),
		CSRFToken: sess.CSRFToken,
		ThemeCSS:  template.CSS(a.theme.CSS()),
		Version:   a.opts.Version,
		User:      a.currentUser(r),
		IsAdmin:   a.currentPrincipal(r).IsAdmin(),
		Notices:   a.flashes.pop(w, r),
	}
}

func (a *App) render(w http.ResponseWriter, status int, name string, data view) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := a.templates.ExecuteTemplate(w, name, data); err != nil {
		a.logger.Error("render failed", "template", name, "error", err)
	}
}

// confirmed reports whether a destructive form carried confirm=yes. When it
// did not, a confirmation page asking message is rendered instead.
func (a *App) confirmed(w http.ResponseWriter, r *http.Request, message, back string, fields map[string]string) bool {
	if r.PostFormValue("confirm") == "yes" {
		return true
	}
	data := a.baseView(w, r, "Confirm", "")
	data.Confirm = &confirmView{
		Message: message,
		Action:  r.URL.Path,
		Back:    back,
		Fields:  fields,
	}
	a.render(w, http.StatusOK, "confirm.html", data)
	return false
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": a.opts.Version, "instance": instanceID})
}

var instanceID = uuid.NewString()

func (a *App) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
