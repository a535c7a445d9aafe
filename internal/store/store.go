// Package store keeps the service's own state in Postgres: the action log
// and a mirror of each signed-in identity's profile and theme.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"skillspire/internal/contest"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

type LogEntry struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
}

type Profile struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Photo     string    `json:"photo"`
	Theme     string    `json:"theme"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Close() { s.db.Close() }

// ----------- logs -----------

func insertLog(actor, action, details string) sq.InsertBuilder {
	return psql.Insert("logs").
		Columns("actor", "action", "details").
		Values(strings.ToLower(actor), action, details)
}

func (s *Store) LogAction(ctx context.Context, actor, action, details string) error {
	err := s.exec(ctx, insertLog(actor, action, details))
	if err != nil {
		return fmt.Errorf("log %s: %w", action, err)
	}
	return nil
}

func selectLogs(actor string, limit int) sq.SelectBuilder {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	q := psql.Select("id", "created_at", "actor", "action", "details").
		From("logs").
		OrderBy("id DESC").
		Limit(uint64(limit))
	if actor != "" {
		q = q.Where(sq.Eq{"actor": strings.ToLower(actor)})
	}
	return q
}

// RecentLogs returns the newest entries first, optionally for one actor.
func (s *Store) RecentLogs(ctx context.Context, actor string, limit int) ([]LogEntry, error) {
	rows, err := s.query(ctx, selectLogs(actor, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LogEntry{}
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Actor, &e.Action, &e.Details); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ----------- profiles -----------

func upsertProfile(p Profile) sq.InsertBuilder {
	return psql.Insert("profiles").
		Columns("email", "name", "photo").
		Values(strings.ToLower(p.Email), p.Name, p.Photo).
		Suffix("ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, photo = EXCLUDED.photo, updated_at = now()")
}

// SaveProfile mirrors an identity; the stored theme is left alone.
func (s *Store) SaveProfile(ctx context.Context, p Profile) error {
	if p.Email == "" {
		return &contest.ValidationError{Field: "email", Reason: "required"}
	}
	return s.exec(ctx, upsertProfile(p))
}

func selectProfile(email string) sq.SelectBuilder {
	return psql.Select("email", "name", "photo", "theme", "updated_at").
		From("profiles").
		Where(sq.Eq{"email": strings.ToLower(email)})
}

func (s *Store) Profile(ctx context.Context, email string) (*Profile, error) {
	var p Profile
	err := s.row(ctx, selectProfile(email)).Scan(&p.Email, &p.Name, &p.Photo, &p.Theme, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &contest.NotFoundError{Resource: "profile", ID: email}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func upsertTheme(email, theme string) sq.InsertBuilder {
	return psql.Insert("profiles").
		Columns("email", "theme").
		Values(strings.ToLower(email), theme).
		Suffix("ON CONFLICT (email) DO UPDATE SET theme = EXCLUDED.theme, updated_at = now()")
}

func ValidTheme(theme string) bool {
	return theme == ThemeLight || theme == ThemeDark
}

func (s *Store) SetTheme(ctx context.Context, email, theme string) error {
	if !ValidTheme(theme) {
		return &contest.ValidationError{Field: "theme", Reason: "must be light or dark"}
	}
	return s.exec(ctx, upsertTheme(email, theme))
}

// Theme returns the stored theme, light when none was saved.
func (s *Store) Theme(ctx context.Context, email string) (string, error) {
	p, err := s.Profile(ctx, email)
	if contest.IsNotFound(err) {
		return ThemeLight, nil
	}
	if err != nil {
		return "", err
	}
	return p.Theme, nil
}
