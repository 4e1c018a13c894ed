// Package session persists the signed-in identity between CLI invocations.
//
// The slot has exactly two keys, "token" and "user". The token is sealed
// before it is written; the user is stored as JSON. Both are written and
// cleared together.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matthewsawatzky/minidrive/internal/api"
	"github.com/matthewsawatzky/minidrive/internal/auth"
	"github.com/matthewsawatzky/minidrive/internal/db"
)

const (
	KeyToken = "token"
	KeyUser  = "user"
)

var (
	ErrNoSession = errors.New("not logged in")
	// ErrExpired wraps ErrNoSession so callers that only care about "logged
	// in or not" can check one sentinel.
	ErrExpired = fmt.Errorf("session expired: %w", ErrNoSession)
)

type Session struct {
	Token string
	User  api.User
}

func (s Session) Principal() auth.Principal {
	return PrincipalOf(s.User)
}

// PrincipalOf converts a backend user into the frontend's read-only view.
func PrincipalOf(u api.User) auth.Principal {
	return auth.Principal{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   auth.NormalizeRole(u.Role),
	}
}

type Store struct {
	db  *db.Store
	now func() time.Time
}

func New(store *db.Store) *Store {
	return &Store{db: store, now: time.Now}
}

func (s *Store) Save(sess Session) error {
	if strings.TrimSpace(sess.Token) == "" {
		return errors.New("session token is empty")
	}
	userJSON, err := EncodeUser(sess.User)
	if err != nil {
		return err
	}
	if err := s.db.SetSecret(KeyToken, sess.Token); err != nil {
		return err
	}
	if err := s.db.SetSetting(KeyUser, userJSON); err != nil {
		_ = s.db.DeleteSettings(KeyToken)
		return err
	}
	return nil
}

// Load returns the saved session. A missing key yields ErrNoSession; a JWT
// whose exp has passed clears the slot and yields ErrExpired.
func (s *Store) Load() (Session, error) {
	token, err := s.db.GetSecret(KeyToken)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}
	userJSON, err := s.db.GetSetting(KeyUser)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}
	user, err := DecodeUser(userJSON)
	if err != nil {
		_ = s.Clear()
		return Session{}, ErrNoSession
	}
	if exp, ok := auth.TokenExpiry(token); ok && !s.now().Before(exp) {
		_ = s.Clear()
		return Session{}, ErrExpired
	}
	return Session{Token: token, User: user}, nil
}

// UpdateUser replaces the cached user, keeping the token.
func (s *Store) UpdateUser(u api.User) error {
	userJSON, err := EncodeUser(u)
	if err != nil {
		return err
	}
	return s.db.SetSetting(KeyUser, userJSON)
}

// Clear deletes both keys.
func (s *Store) Clear() error {
	return s.db.DeleteSettings(KeyToken, KeyUser)
}

func EncodeUser(u api.User) (string, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("encode user: %w", err)
	}
	return string(b), nil
}

func DecodeUser(s string) (api.User, error) {
	var u api.User
	if err := json.Unmarshal([]byte(s), &u); err != nil {
		return api.User{}, fmt.Errorf("decode user: %w", err)
	}
	return u, nil
}
