// Package identity owns who is signed in for each browser session and keeps
// the backend's session cookie in step with it.
package identity

import (
	"context"
	"strings"
)

// Identity is the signed-in account as the identity provider reports it.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Photo string `json:"photo"`
}

// Account is an Identity plus the provider credential needed to modify it.
type Account struct {
	Identity
	Token string
}

// ProfileUpdate changes the provider-held profile. Empty fields are kept.
type ProfileUpdate struct {
	Name  string `json:"name"`
	Photo string `json:"photo"`
}

func (u ProfileUpdate) apply(id Identity) Identity {
	if s := strings.TrimSpace(u.Name); s != "" {
		id.Name = s
	}
	if s := strings.TrimSpace(u.Photo); s != "" {
		id.Photo = s
	}
	return id
}

// Provider is the external identity service. Failures are *contest.AuthError.
type Provider interface {
	Register(ctx context.Context, email, password string) (Account, error)
	SignIn(ctx context.Context, email, password string) (Account, error)
	SignInWithProvider(ctx context.Context, providerToken string) (Account, error)
	UpdateProfile(ctx context.Context, token string, upd ProfileUpdate) (Account, error)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
