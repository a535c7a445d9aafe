// Package listing filters, sorts and pages contest collections already
// fetched from the backend. Every function is pure: inputs are never
// modified.
package listing

import (
	"math"
	"sort"
	"strings"

	"skillspire/internal/contest"
)

const DefaultPerPage = 9

// Query selects contests by category tab and free-text search.
type Query struct {
	Category string `form:"category"`
	Search   string `form:"search"`
}

// Matches reports whether c passes q. An empty or "all" category matches
// everything; search is a case-insensitive substring of name or type.
func (q Query) Matches(c contest.Contest) bool {
	cat := strings.TrimSpace(q.Category)
	if cat != "" && !strings.EqualFold(cat, "all") && !strings.EqualFold(cat, string(c.Type)) {
		return false
	}
	s := strings.ToLower(strings.TrimSpace(q.Search))
	if s == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.Name), s) || strings.Contains(strings.ToLower(string(c.Type)), s)
}

func Filter(cs []contest.Contest, q Query) []contest.Contest {
	out := make([]contest.Contest, 0, len(cs))
	for _, c := range cs {
		if q.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}

// Public reports whether a visitor may see c: it has been confirmed by an
// admin.
func Public(c contest.Contest) bool {
	return c.Status == contest.StatusConfirmed || c.Status == contest.StatusEnded
}

// Visible drops contests a public visitor must not see.
func Visible(cs []contest.Contest) []contest.Contest {
	out := make([]contest.Contest, 0, len(cs))
	for _, c := range cs {
		if Public(c) {
			out = append(out, c)
		}
	}
	return out
}

type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Paginate returns the 1-based page of items. Out-of-range pages are
// clamped; an empty input still has one (empty) page.
func Paginate[T any](items []T, page, perPage int) Page[T] {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	pages := (len(items) + perPage - 1) / perPage
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * perPage
	end := min(start+perPage, len(items))
	return Page[T]{
		Items:      append([]T{}, items[start:end]...),
		Page:       page,
		PerPage:    perPage,
		Total:      len(items),
		TotalPages: pages,
	}
}

func sorted(cs []contest.Contest, less func(a, b contest.Contest) bool) []contest.Contest {
	out := append([]contest.Contest(nil), cs...)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// ByNearestDeadline orders the soonest deadline first.
func ByNearestDeadline(cs []contest.Contest) []contest.Contest {
	return sorted(cs, func(a, b contest.Contest) bool { return a.Deadline.Before(b.Deadline) })
}

// ByNewestDeadline orders the latest deadline first.
func ByNewestDeadline(cs []contest.Contest) []contest.Contest {
	return sorted(cs, func(a, b contest.Contest) bool { return a.Deadline.After(b.Deadline) })
}

// Popular returns at most n contests with the most participants.
func Popular(cs []contest.Contest, n int) []contest.Contest {
	out := sorted(cs, func(a, b contest.Contest) bool { return a.Participants > b.Participants })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Categories lists the tab set: "All" followed by the known categories
// present in cs, in canonical order.
func Categories(cs []contest.Contest) []string {
	seen := make(map[contest.Category]bool)
	for _, c := range cs {
		seen[c.Type] = true
	}
	out := []string{"All"}
	for _, cat := range contest.Categories {
		if seen[cat] {
			out = append(out, string(cat))
		}
	}
	return out
}

// Only keeps the contests whose id is in ids, preserving cs order.
func Only(cs []contest.Contest, ids []string) []contest.Contest {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]contest.Contest, 0, len(ids))
	for _, c := range cs {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

type Stats struct {
	Participated int `json:"participated"`
	Won          int `json:"won"`
	WinRate      int `json:"winRate"`
}

// WinRate is wins over registrations as a rounded percentage.
func WinRate(u contest.User) Stats {
	s := Stats{Participated: len(u.ParticipatedContests), Won: len(u.WonContests)}
	if s.Participated > 0 {
		s.WinRate = int(math.Round(float64(s.Won) / float64(s.Participated) * 100))
	}
	return s
}
