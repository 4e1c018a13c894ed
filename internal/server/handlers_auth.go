package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/matthewsawatzky/minidrive/internal/api"
	"github.com/matthewsawatzky/minidrive/internal/auth"
	"github.com/matthewsawatzky/minidrive/internal/db"
	"github.com/matthewsawatzky/minidrive/internal/session"
	"github.com/matthewsawatzky/minidrive/internal/util"
)

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type signupForm struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	Role     string `validate:"oneof=user admin"`
}

func (a *App) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if a.currentSession(r).Authenticated() {
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	a.render(w, http.StatusOK, "login.html", a.baseView(w, r, "Login", "login"))
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.verifyCSRF(w, r) {
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	if err := a.validate.Struct(form); err != nil {
		a.renderAuthError(w, r, "login.html", "Login", http.StatusBadRequest, "Enter a valid email and your password.", map[string]string{"email": form.Email})
		return
	}

	res, err := a.client.Login(r.Context(), api.Credentials{Email: form.Email, Password: form.Password})
	if err != nil {
		a.logger.Info("login failed", "op", api.OpLogin, "status", statusOf(err), "error", err)
		_ = a.store.RecordAudit(form.Email, "login.failed", form.Email, "")
		a.renderAuthError(w, r, "login.html", "Login", http.StatusUnauthorized, api.Message(err, api.OpLogin), map[string]string{"email": form.Email})
		return
	}

	userJSON, err := session.EncodeUser(res.User)
	if err != nil {
		http.Error(w, "session failure", http.StatusInternalServerError)
		return
	}
	token, csrf, err := util.NewSessionTokens()
	if err != nil {
		http.Error(w, "session failure", http.StatusInternalServerError)
		return
	}
	old := a.currentSession(r)
	next := db.Session{
		Token:     token,
		CSRFToken: csrf,
		APIToken:  res.Token,
		UserJSON:  userJSON,
		IP:        remoteIP(r),
		UserAgent: r.UserAgent(),
		ExpiresAt: auth.SessionExpiry(res.Token, time.Now(), a.opts.SessionTTL),
	}
	if err := a.store.RotateSession(old.Token, next); err != nil {
		a.logger.Error("rotate session failed", "error", err)
		http.Error(w, "session failure", http.StatusInternalServerError)
		return
	}
	a.staging.release(old.Token, "")
	a.setSessionCookie(w, next)
	_ = a.store.RecordAudit(res.User.Email, "login", res.User.Email, "")
	a.flashes.add(w, r, FlashSuccess, "Welcome back!")
	http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
}

func (a *App) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	if a.currentSession(r).Authenticated() {
		http.Redirect(w, r, a.route("/dashboard"), http.StatusSeeOther)
		return
	}
	data := a.baseView(w, r, "Sign up", "signup")
	data.Form = map[string]string{"role": auth.RoleUser}
	a.render(w, http.StatusOK, "signup.html", data)
}

func (a *App) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !a.verifyCSRF(w, r) {
		return
	}
	form := signupForm{
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Role:     strings.TrimSpace(r.PostFormValue("role")),
	}
	if form.Role == "" {
		form.Role = auth.RoleUser
	}
	echo := map[string]string{"name": form.Name, "email": form.Email, "role": form.Role}
	if err := a.validate.Struct(form); err != nil {
		a.renderAuthError(w, r, "signup.html", "Sign up", http.StatusBadRequest, "Name, a valid email and a password are required.", echo)
		return
	}

	err := a.client.Register(r.Context(), api.Registration{
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
		Role:     form.Role,
	})
	if err != nil {
		a.logger.Info("signup failed", "op", api.OpRegister, "status", statusOf(err), "error", err)
		a.renderAuthError(w, r, "signup.html", "Sign up", http.StatusBadRequest, api.Message(err, api.OpRegister), echo)
		return
	}
	_ = a.store.RecordAudit(form.Email, "signup", form.Email, form.Role)
	a.flashes.add(w, r, FlashSuccess, "Account created! Please login.")
	http.Redirect(w, r, a.route("/login"), http.StatusSeeOther)
}

func (a *App) renderAuthError(w http.ResponseWriter, r *http.Request, tmpl, title string, status int, message string, form map[string]string) {
	data := a.baseView(w, r, title, strings.TrimSuffix(tmpl, ".html"))
	data.Error = message
	data.Form = form
	a.render(w, status, tmpl, data)
}

// handleLogout forgets the session locally. The backend has no logout call;
// the bearer token simply stops being sent.
func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !a.verifyCSRF(w, r) {
		return
	}
	sess := a.currentSession(r)
	if sess.Authenticated() {
		a.audit(r, "logout", a.actor(r), "")
	}
	a.staging.release(sess.Token, "")
	_ = a.store.DeleteSession(sess.Token)
	a.clearSessionCookie(w)
	http.Redirect(w, r, a.route("/login"), http.StatusSeeOther)
}
