package auth

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Principal is the caller as the frontend sees it: a read copy of the user
// returned by the backend at login. It decides which controls render and
// nothing else; the backend enforces every permission.
type Principal struct {
	UserID    string
	Name      string
	Email     string
	Role      string
	Anonymous bool
}

func (p Principal) IsAdmin() bool {
	return !p.Anonymous && p.Role == RoleAdmin
}

// NormalizeRole maps anything other than admin to the regular user role.
func NormalizeRole(role string) string {
	if strings.EqualFold(strings.TrimSpace(role), RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("random bytes: %w", err)
	}
	return b, nil
}
