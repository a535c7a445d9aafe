package coordinator

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"

	"skillspire/internal/contest"
)

type WinnerBackend interface {
	Submissions(ctx context.Context, contestID string) ([]contest.Submission, error)
	DeclareWinner(ctx context.Context, submissionID string) error
}

// WinnerBoard is a creator's view of one contest's submissions. Declaring a
// winner locks the board before the backend call so a second click cannot
// race the first.
type WinnerBoard struct {
	contestID string
	actor     string
	backend   WinnerBackend
	audit     Auditor

	mu      sync.Mutex
	loaded  bool
	subs    []contest.Submission
	pending string
}

func NewWinnerBoard(contestID, actor string, b WinnerBackend, a Auditor) *WinnerBoard {
	return &WinnerBoard{contestID: contestID, actor: actor, backend: b, audit: a}
}

func (w *WinnerBoard) ContestID() string { return w.contestID }

// Load replaces the board with the backend's submissions for the contest.
func (w *WinnerBoard) Load(ctx context.Context) error {
	subs, err := w.backend.Submissions(ctx, w.contestID)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.subs = subs
	w.loaded = true
	pinWinner(w.subs)
	w.mu.Unlock()
	return nil
}

func (w *WinnerBoard) Loaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loaded
}

// Submissions returns a copy of the board, winner first.
func (w *WinnerBoard) Submissions() []contest.Submission {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]contest.Submission, len(w.subs))
	copy(out, w.subs)
	return out
}

func (w *WinnerBoard) HasWinner() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hasWinnerLocked()
}

func (w *WinnerBoard) hasWinnerLocked() bool {
	for _, s := range w.subs {
		if s.IsWinner {
			return true
		}
	}
	return false
}

// CanDeclare reports whether submissionID may be declared winner right now.
func (w *WinnerBoard) CanDeclare(submissionID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending == "" && !w.hasWinnerLocked() && w.indexLocked(submissionID) >= 0
}

func (w *WinnerBoard) indexLocked(id string) int {
	for i, s := range w.subs {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Declare marks submissionID as the contest winner. On success exactly that
// submission flips and moves to the front; on failure the lock is released
// and the board is reloaded from the backend.
func (w *WinnerBoard) Declare(ctx context.Context, submissionID string) ([]contest.Submission, error) {
	w.mu.Lock()
	switch {
	case w.hasWinnerLocked():
		w.mu.Unlock()
		return nil, &contest.ConflictError{Reason: "winner already declared"}
	case w.pending != "":
		w.mu.Unlock()
		return nil, &contest.ConflictError{Reason: "winner declaration in progress"}
	case w.indexLocked(submissionID) < 0:
		w.mu.Unlock()
		return nil, &contest.NotFoundError{Resource: "submission", ID: submissionID}
	}
	w.pending = submissionID
	w.mu.Unlock()

	err := w.backend.DeclareWinner(ctx, submissionID)
	audit(ctx, w.audit, w.actor, "winner_declare", w.contestID+" "+submissionID, err)

	w.mu.Lock()
	w.pending = ""
	if err == nil {
		if i := w.indexLocked(submissionID); i >= 0 {
			w.subs[i].IsWinner = true
		}
		pinWinner(w.subs)
	}
	w.mu.Unlock()

	if err != nil {
		if lerr := w.Load(context.WithoutCancel(ctx)); lerr != nil {
			log.Printf("[winner] reload %s: %v", w.contestID, lerr)
		}
		return nil, err
	}
	return w.Submissions(), nil
}

func pinWinner(subs []contest.Submission) {
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].IsWinner && !subs[j].IsWinner
	})
}

// Boards keeps one WinnerBoard per session and contest.
type Boards struct {
	mu sync.Mutex
	m  map[string]*WinnerBoard
}

func NewBoards() *Boards {
	return &Boards{m: make(map[string]*WinnerBoard)}
}

// Get returns the session's board for contestID, creating it with mk.
func (b *Boards) Get(sessionID, contestID string, mk func() *WinnerBoard) *WinnerBoard {
	key := sessionID + "/" + contestID
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.m[key]; ok {
		return w
	}
	w := mk()
	b.m[key] = w
	return w
}

// DropSession forgets every board owned by sessionID.
func (b *Boards) DropSession(sessionID string) {
	prefix := sessionID + "/"
	b.mu.Lock()
	for k := range b.m {
		if strings.HasPrefix(k, prefix) {
			delete(b.m, k)
		}
	}
	b.mu.Unlock()
}

func (b *Boards) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.m)
}
