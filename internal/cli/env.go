package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/matthewsawatzky/minidrive/internal/api"
	"github.com/matthewsawatzky/minidrive/internal/auth"
	"github.com/matthewsawatzky/minidrive/internal/config"
	"github.com/matthewsawatzky/minidrive/internal/db"
	"github.com/matthewsawatzky/minidrive/internal/session"
)

var errAdminRequired = errors.New("admin access required")

// env is what a terminal command needs: the effective config, the local
// store holding the session slot and activity log, and a backend client.
type env struct {
	cfg      config.Config
	store    *db.Store
	sessions *session.Store
	client   *api.Client
	out      io.Writer
}

func openEnv(cmd *cobra.Command, state *rootState) (*env, error) {
	_, cfg, err := loadConfig(state)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	key, err := auth.LoadOrCreateKey(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	vault, err := auth.NewVault(key)
	if err != nil {
		return nil, err
	}
	store, err := db.Open(cfg.DataDir, vault)
	if err != nil {
		return nil, err
	}
	timeout, _ := cfg.Durations()
	client, err := api.New(api.Options{
		BaseURL:      cfg.APIBaseURL,
		RegisterPath: cfg.RegisterPath,
		AdminSource:  cfg.AdminSource,
		Timeout:      timeout,
		UserAgent:    "minidrive-cli/" + state.version.Version,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &env{
		cfg:      cfg,
		store:    store,
		sessions: session.New(store),
		client:   client,
		out:      cmd.OutOrStdout(),
	}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

// withEnv opens the environment for the duration of fn.
func withEnv(state *rootState, fn func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd, state)
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(cmd, e, args)
	}
}

// authed returns a client carrying the saved bearer token.
func (e *env) authed() (*api.Client, session.Session, error) {
	sess, err := e.sessions.Load()
	switch {
	case errors.Is(err, session.ErrExpired):
		return nil, session.Session{}, errors.New("your session has expired, run `minidrive login`")
	case errors.Is(err, session.ErrNoSession):
		return nil, session.Session{}, errors.New("not logged in, run `minidrive login`")
	case err != nil:
		return nil, session.Session{}, err
	}
	return e.client.WithToken(sess.Token), sess, nil
}

// admin is authed plus the local role check. The backend still decides.
func (e *env) admin() (*api.Client, session.Session, error) {
	client, sess, err := e.authed()
	if err != nil {
		return nil, sess, err
	}
	if !sess.Principal().IsAdmin() {
		return nil, sess, errAdminRequired
	}
	return client, sess, nil
}

// fail turns a backend error into the message shown to the user. A 401 ends
// the saved session.
func (e *env) fail(err error, op api.Op, fallback string) error {
	if api.IsUnauthorized(err) {
		_ = e.sessions.Clear()
		return errors.New("your session has expired, run `minidrive login`")
	}
	if fallback == "" {
		fallback = api.Fallback(op)
	}
	return errors.New(api.MessageOr(err, fallback))
}

func (e *env) audit(sess session.Session, action, target, metadata string) {
	actor := sess.User.Email
	if actor == "" {
		actor = "anonymous"
	}
	_ = e.store.RecordAudit(actor, action, target, metadata)
}

func (e *env) table() *tabwriter.Writer {
	return tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func ownerLabel(o *api.OwnerRef) string {
	if o == nil {
		return "-"
	}
	switch {
	case o.Name != "" && o.Email != "":
		return fmt.Sprintf("%s <%s>", o.Name, o.Email)
	case o.Name != "":
		return o.Name
	}
	return orDash(o.Email)
}

func tabwriterFor(cmd *cobra.Command) *tabwriter.Writer {
	return tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
}
