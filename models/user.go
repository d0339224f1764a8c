package models

import (
	"errors"
	"time"
)

// User is the account a session belongs to, as returned by
// GET /api/user/current.
type User struct {
	ID               UserID            `json:"id"`
	Email            string            `json:"email"`
	FirstName        string            `json:"first_name,omitempty"`
	LastName         string            `json:"last_name,omitempty"`
	CommonName       string            `json:"common_name,omitempty"`
	IsActive         bool              `json:"is_active"`
	IsSuperuser      bool              `json:"is_superuser"`
	Locale           *string           `json:"locale,omitempty"`
	DateJoined       *time.Time        `json:"date_joined,omitempty"`
	LastLogin        *time.Time        `json:"last_login,omitempty"`
	GroupMemberships []GroupMembership `json:"user_group_memberships,omitempty"`
}

// GroupMembership links a user to a permission group.
type GroupMembership struct {
	ID int64 `json:"id"`
}

// CheckRequired reports a decoded user missing its identity.
func (u *User) CheckRequired() error {
	if u.ID == 0 || u.Email == "" {
		return errors.New("user requires id and email")
	}
	return nil
}

// Session is an authenticated session. A non-empty Token means the client is
// authenticated.
type Session struct {
	Token     string     `json:"id"`
	User      *User      `json:"user,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the session has passed its expiry time.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}
