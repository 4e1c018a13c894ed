package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/matthewsawatzky/minidrive/internal/api"
	"github.com/matthewsawatzky/minidrive/internal/auth"
	"github.com/matthewsawatzky/minidrive/internal/session"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type loginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type signupInput struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	Role     string `validate:"oneof=user admin"`
}

func buildAccountCommands(state *rootState) []*cobra.Command {
	var loginEmail string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		Args:  cobra.NoArgs,
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			p := newPrompter(cmd)
			in := loginInput{Email: strings.TrimSpace(loginEmail)}
			if in.Email == "" {
				in.Email = p.ask("Email")
			}
			password, err := p.password("Password")
			if err != nil {
				return err
			}
			in.Password = password
			if err := validate.Struct(in); err != nil {
				return errors.New("enter a valid email and your password")
			}

			res, err := e.client.Login(ctxOf(cmd), api.Credentials{Email: in.Email, Password: in.Password})
			if err != nil {
				_ = e.store.RecordAudit(in.Email, "login.failed", in.Email, "")
				return errors.New(api.Message(err, api.OpLogin))
			}
			sess := session.Session{Token: res.Token, User: res.User}
			if err := e.sessions.Save(sess); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			e.audit(sess, "login", res.User.Email, "cli")
			fmt.Fprintf(e.out, "Welcome back, %s!\n", displayName(res.User))
			return nil
		}),
	}
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email (prompted when empty)")

	var su signupInput
	signupCmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			p := newPrompter(cmd)
			in := signupInput{
				Name:  strings.TrimSpace(su.Name),
				Email: strings.TrimSpace(su.Email),
				Role:  strings.ToLower(strings.TrimSpace(su.Role)),
			}
			if in.Name == "" {
				in.Name = p.ask("Name")
			}
			if in.Email == "" {
				in.Email = p.ask("Email")
			}
			if in.Role == "" {
				in.Role = auth.RoleUser
			}
			password, err := p.passwordTwice("Password")
			if err != nil {
				return err
			}
			in.Password = password
			if err := validate.Struct(in); err != nil {
				return errors.New("name, a valid email and a password are required; role is user or admin")
			}
			err = e.client.Register(ctxOf(cmd), api.Registration{
				Name:     in.Name,
				Email:    in.Email,
				Password: in.Password,
				Role:     in.Role,
			})
			if err != nil {
				return errors.New(api.Message(err, api.OpRegister))
			}
			_ = e.store.RecordAudit(in.Email, "signup", in.Email, in.Role)
			fmt.Fprintln(e.out, "Account created! Please login.")
			return nil
		}),
	}
	signupCmd.Flags().StringVar(&su.Name, "name", "", "display name")
	signupCmd.Flags().StringVar(&su.Email, "email", "", "account email")
	signupCmd.Flags().StringVar(&su.Role, "role", auth.RoleUser, "role: user|admin")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			sess, err := e.sessions.Load()
			if err != nil && !errors.Is(err, session.ErrNoSession) {
				return err
			}
			if err := e.sessions.Clear(); err != nil {
				return err
			}
			if sess.Token != "" {
				e.audit(sess, "logout", sess.User.Email, "cli")
			}
			fmt.Fprintln(e.out, "Logged out.")
			return nil
		}),
	}

	var refresh bool
	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: withEnv(state, func(cmd *cobra.Command, e *env, args []string) error {
			client, sess, err := e.authed()
			if err != nil {
				return err
			}
			user := sess.User
			if refresh {
				fresh, err := client.Me(ctxOf(cmd))
				if err != nil {
					return e.fail(err, api.OpMe, "")
				}
				if err := e.sessions.UpdateUser(fresh); err != nil {
					return err
				}
				user = fresh
			}
			w := e.table()
			fmt.Fprintf(w, "Name:\t%s\n", orDash(user.Name))
			fmt.Fprintf(w, "Email:\t%s\n", orDash(user.Email))
			fmt.Fprintf(w, "Role:\t%s\n", auth.NormalizeRole(user.Role))
			fmt.Fprintf(w, "Backend:\t%s\n", e.cfg.APIBaseURL)
			if exp, ok := auth.TokenExpiry(sess.Token); ok {
				fmt.Fprintf(w, "Expires:\t%s (%s)\n", humanize.Time(exp), exp.Local().Format(time.RFC1123))
			}
			return w.Flush()
		}),
	}
	whoamiCmd.Flags().BoolVar(&refresh, "refresh", false, "reload the profile from the backend")

	return []*cobra.Command{loginCmd, signupCmd, logoutCmd, whoamiCmd}
}

func displayName(u api.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
