package db

import (
	"database/sql"
	"fmt"
	"time"
)

const sessionColumns = `token, csrf_token, api_token, user_json, ip, user_agent, expires_at, created_at, last_seen_at`

func (s *Store) CreateSession(sess Session) error {
	apiToken, err := s.seal(sess.APIToken)
	if err != nil {
		return fmt.Errorf("seal api token: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO sessions(`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		sess.Token, sess.CSRFToken, apiToken, sess.UserJSON, sess.IP, sess.UserAgent, sess.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(token string) (Session, error) {
	var sess Session
	var created, lastSeen sqlNullTime
	var expires sqlNullTime
	err := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token).
		Scan(&sess.Token, &sess.CSRFToken, &sess.APIToken, &sess.UserJSON, &sess.IP, &sess.UserAgent, &expires, &created, &lastSeen)
	if err != nil {
		return Session{}, err
	}
	sess.ExpiresAt, sess.CreatedAt, sess.LastSeenAt = expires.Time, created.Time, lastSeen.Time
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteSession(token)
		return Session{}, sql.ErrNoRows
	}
	if sess.APIToken, err = s.open(sess.APIToken); err != nil {
		// A token we can no longer decrypt is as good as no session.
		_ = s.DeleteSession(token)
		return Session{}, sql.ErrNoRows
	}
	return sess, nil
}

func (s *Store) TouchSession(token string, expiresAt time.Time) error {
	_, err := s.db.Exec(`UPDATE sessions SET expires_at = ?, last_seen_at = CURRENT_TIMESTAMP WHERE token = ?`, expiresAt.UTC(), token)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// UpdateSessionUser replaces the cached user after a revalidation call.
func (s *Store) UpdateSessionUser(token, userJSON string) error {
	_, err := s.db.Exec(`UPDATE sessions SET user_json = ? WHERE token = ?`, userJSON, token)
	if err != nil {
		return fmt.Errorf("update session user: %w", err)
	}
	return nil
}

// RotateSession swaps the anonymous pre-login session for an authenticated one.
func (s *Store) RotateSession(oldToken string, newSession Session) error {
	apiToken, err := s.seal(newSession.APIToken)
	if err != nil {
		return fmt.Errorf("seal api token: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM sessions WHERE token = ?`, oldToken); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO sessions(`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		newSession.Token, newSession.CSRFToken, apiToken, newSession.UserJSON, newSession.IP, newSession.UserAgent, newSession.ExpiresAt.UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) PurgeExpiredSessions() error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	return nil
}
