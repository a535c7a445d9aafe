package lifecycle

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"skillspire/internal/contest"
)

// Source is the slice of the backend the controller reads.
type Source interface {
	Contest(ctx context.Context, id string) (*contest.Contest, error)
	Me(ctx context.Context) (*contest.User, error)
	Submissions(ctx context.Context, contestID string) ([]contest.Submission, error)
}

type Phase string

const (
	PhaseLoading       Phase = "loading"
	PhaseNotFound      Phase = "not_found"
	PhaseNotRegistered Phase = "not_registered"
	PhaseRegistered    Phase = "registered"
	PhaseSubmitted     Phase = "submitted"
	PhaseClosed        Phase = "closed"
)

type Actions struct {
	CanRegister   bool `json:"canRegister"`
	CanSubmit     bool `json:"canSubmit"`
	CanViewWinner bool `json:"canViewWinner"`
}

// Derive computes the permitted actions from the viewer-facing flags.
func Derive(c *contest.Contest, registered, submitted, deadlinePassed bool) Actions {
	if c == nil {
		return Actions{}
	}
	return Actions{
		CanRegister:   c.Status == contest.StatusConfirmed && !deadlinePassed && !registered,
		CanSubmit:     registered && !deadlinePassed && !submitted,
		CanViewWinner: c.Winner != nil,
	}
}

// Snapshot is an immutable copy of the controller's derived state.
type Snapshot struct {
	ContestID      string           `json:"contestId"`
	Contest        *contest.Contest `json:"contest,omitempty"`
	Phase          Phase            `json:"phase"`
	IsRegistered   bool             `json:"isRegistered"`
	HasSubmitted   bool             `json:"hasSubmitted"`
	DeadlinePassed bool             `json:"deadlinePassed"`
	TimeRemaining  string           `json:"timeRemaining"`
	Remaining      Remaining        `json:"remaining"`
	Actions        Actions          `json:"actions"`
}

// Controller tracks one contest as seen by one viewer. An empty viewer is
// an anonymous visitor: never registered, never submitted.
type Controller struct {
	contestID string
	viewer    string
	src       Source
	clock     Clock

	mu         sync.Mutex
	loaded     bool
	notFound   bool
	contest    *contest.Contest
	registered bool
	submitted  bool
	passed     bool
}

func New(contestID, viewer string, src Source, clock Clock) *Controller {
	if clock == nil {
		clock = SystemClock
	}
	return &Controller{contestID: contestID, viewer: viewer, src: src, clock: clock}
}

func (c *Controller) ContestID() string { return c.contestID }
func (c *Controller) Viewer() string    { return c.viewer }

// Load fetches the contest and the viewer's registration and submission
// status concurrently. A failed contest fetch leaves the controller in the
// terminal NotFound phase; failed status lookups fall back to the
// restrictive answer.
func (c *Controller) Load(ctx context.Context) error {
	ct, registered, submitted, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	if err != nil {
		c.notFound = true
		c.contest = nil
		return err
	}
	c.notFound = false
	c.contest = ct
	c.registered = registered
	c.submitted = submitted
	c.latchLocked()
	return nil
}

// Reconcile re-reads authoritative state after a failed optimistic action.
// A transient contest fetch failure keeps the current contest instead of
// dropping the view into NotFound.
func (c *Controller) Reconcile(ctx context.Context) error {
	ct, registered, submitted, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if contest.IsNotFound(err) {
			c.notFound = true
			c.contest = nil
		}
		c.registered, c.submitted = false, false
		return err
	}
	c.loaded, c.notFound = true, false
	c.contest = ct
	c.registered = registered
	c.submitted = submitted
	c.latchLocked()
	return nil
}

func (c *Controller) fetch(ctx context.Context) (*contest.Contest, bool, bool, error) {
	var (
		ct         *contest.Contest
		registered bool
		submitted  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		got, err := c.src.Contest(gctx, c.contestID)
		if err != nil {
			return err
		}
		if got == nil {
			return &contest.NotFoundError{Resource: "contest", ID: c.contestID}
		}
		ct = got
		return nil
	})
	if c.viewer != "" {
		g.Go(func() error {
			me, err := c.src.Me(gctx)
			if err != nil {
				if errors.Is(err, contest.ErrUnauthorized) {
					return err
				}
				log.Printf("[lifecycle] registration lookup for %s: %v", c.contestID, err)
				return nil
			}
			registered = contest.SameEmail(me.Email, c.viewer) && me.Participates(c.contestID)
			return nil
		})
		g.Go(func() error {
			subs, err := c.src.Submissions(gctx, c.contestID)
			if err != nil {
				if errors.Is(err, contest.ErrUnauthorized) {
					return err
				}
				log.Printf("[lifecycle] submission lookup for %s: %v", c.contestID, err)
				return nil
			}
			for _, s := range subs {
				if contest.SameEmail(s.UserEmail, c.viewer) {
					submitted = true
					break
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, false, err
	}
	return ct, registered, submitted, nil
}

// latchLocked makes DeadlinePassed sticky: once observed it never reverts.
func (c *Controller) latchLocked() {
	if c.passed || c.contest == nil {
		return
	}
	if c.contest.Status == contest.StatusEnded || !c.clock.Now().Before(c.contest.Deadline) {
		c.passed = true
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latchLocked()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{ContestID: c.contestID}
	switch {
	case !c.loaded:
		s.Phase = PhaseLoading
		return s
	case c.notFound || c.contest == nil:
		s.Phase = PhaseNotFound
		return s
	}

	ct := *c.contest
	if c.contest.Winner != nil {
		w := *c.contest.Winner
		ct.Winner = &w
	}
	s.Contest = &ct
	s.IsRegistered = c.registered
	s.HasSubmitted = c.submitted
	s.DeadlinePassed = c.passed
	if c.passed {
		s.Remaining = Remaining{Passed: true}
	} else {
		s.Remaining = RemainingUntil(ct.Deadline, c.clock.Now())
	}
	s.TimeRemaining = s.Remaining.String()
	s.Actions = Derive(&ct, c.registered, c.submitted, c.passed)
	s.Phase = phaseOf(c.registered, c.submitted, c.passed, ct.Winner != nil)
	return s
}

func phaseOf(registered, submitted, passed, hasWinner bool) Phase {
	switch {
	case passed:
		return PhaseClosed
	case submitted && hasWinner:
		return PhaseClosed
	case submitted:
		return PhaseSubmitted
	case registered:
		return PhaseRegistered
	}
	return PhaseNotRegistered
}

// MarkRegistered applies a confirmed registration locally.
func (c *Controller) MarkRegistered() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registered || c.contest == nil {
		return
	}
	c.registered = true
	c.contest.Participants++
}

// MarkSubmitted applies a confirmed submission locally.
func (c *Controller) MarkSubmitted() {
	c.mu.Lock()
	c.submitted = true
	c.mu.Unlock()
}

// SetWinner records a declared winner; it is set at most once.
func (c *Controller) SetWinner(w contest.Winner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.contest == nil || c.contest.Winner != nil {
		return
	}
	c.contest.Winner = &w
}

// Countdown starts a ticker toward the contest deadline that latches
// DeadlinePassed when it expires. The caller owns the returned ticker and
// must Stop it on teardown.
func (c *Controller) Countdown(ctx context.Context, every time.Duration) (*Ticker, error) {
	c.mu.Lock()
	if !c.loaded || c.contest == nil {
		c.mu.Unlock()
		return nil, &contest.NotFoundError{Resource: "contest", ID: c.contestID}
	}
	deadline := c.contest.Deadline
	if c.passed {
		deadline = time.Time{}
	}
	c.mu.Unlock()

	return StartCountdown(ctx, c.clock, deadline, every, func() {
		c.mu.Lock()
		c.passed = true
		c.mu.Unlock()
	}), nil
}
