package role

import (
	"context"
	"log"
	"strings"

	"golang.org/x/sync/singleflight"
)

// Source looks up the stored role string for an email.
type Source interface {
	Role(ctx context.Context, email string) (string, error)
}

// Entry is one cached resolution, scoped to a session.
type Entry struct {
	Email string
	Role  Role
}

type Cache interface {
	Get(ctx context.Context, sessionID string) (Entry, bool)
	Put(ctx context.Context, sessionID string, e Entry)
	Drop(ctx context.Context, sessionID string)
	DropEmail(ctx context.Context, email string)
}

// Resolver caches the backend role for the lifetime of a session.
// Concurrent resolutions for the same session share one backend call.
type Resolver struct {
	cache Cache
	group singleflight.Group
}

func NewResolver(cache Cache) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Resolver{cache: cache}
}

// Resolve returns the role of email. A failed or unreadable lookup yields
// User and is not cached, so the next request asks again.
func (r *Resolver) Resolve(ctx context.Context, sessionID, email string, src Source) Role {
	email = strings.TrimSpace(email)
	if email == "" {
		return User
	}
	if e, ok := r.cache.Get(ctx, sessionID); ok && strings.EqualFold(e.Email, email) {
		return e.Role
	}

	ch := r.group.DoChan(sessionID+"|"+strings.ToLower(email), func() (any, error) {
		raw, err := src.Role(ctx, email)
		if err != nil {
			return User, err
		}
		parsed, err := Parse(raw)
		if err != nil {
			return User, err
		}
		r.cache.Put(ctx, sessionID, Entry{Email: email, Role: parsed})
		return parsed, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			log.Printf("[role] resolve %s: %v (defaulting to user)", email, res.Err)
			return User
		}
		return res.Val.(Role)
	case <-ctx.Done():
		return User
	}
}

// Invalidate forgets the session's cached role; called on identity change.
func (r *Resolver) Invalidate(ctx context.Context, sessionID string) {
	r.cache.Drop(ctx, sessionID)
}

// Forget drops every session's cached role for email.
func (r *Resolver) Forget(ctx context.Context, email string) {
	r.cache.DropEmail(ctx, email)
}
