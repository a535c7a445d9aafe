package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"skillspire/internal/contest"
)

// SessionIdentity is the body of POST /jwt.
type SessionIdentity struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Photo string `json:"photo"`
}

type Payment struct {
	ContestID     string          `json:"contestId"`
	UserEmail     string          `json:"userEmail"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId"`
	PaidAt        time.Time       `json:"paidAt"`
}

type NewSubmission struct {
	ContestID string `json:"contestId"`
	UserEmail string `json:"userEmail"`
	UserName  string `json:"userName,omitempty"`
	UserPhoto string `json:"userPhoto,omitempty"`
	Content   string `json:"content"`
}

type ProfilePatch struct {
	Name  string `json:"name"`
	Photo string `json:"photo"`
	Bio   string `json:"bio"`
}

type ListOptions struct {
	Search  string
	Creator string
}

func (o ListOptions) values() url.Values {
	q := url.Values{}
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	if o.Creator != "" {
		q.Set("creatorEmail", o.Creator)
	}
	return q
}

// ----------- contests -----------

func (c *Client) Contests(ctx context.Context, opts ListOptions) ([]contest.Contest, error) {
	var out []contest.Contest
	err := c.do(ctx, http.MethodGet, "/contests", opts.values(), nil, &out)
	return out, err
}

func (c *Client) Contest(ctx context.Context, id string) (*contest.Contest, error) {
	var out contest.Contest
	if err := c.do(ctx, http.MethodGet, "/contests/"+esc(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, contestID string) error {
	return c.do(ctx, http.MethodPost, "/contests/"+esc(contestID)+"/register", nil, nil, nil)
}

func (c *Client) CreateContest(ctx context.Context, in *contest.Contest) (*contest.Contest, error) {
	var out contest.Contest
	if err := c.do(ctx, http.MethodPost, "/contests", nil, in, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out = *in
	}
	return &out, nil
}

func (c *Client) UpdateContest(ctx context.Context, id string, in *contest.Contest) error {
	return c.do(ctx, http.MethodPut, "/contests/"+esc(id), nil, in, nil)
}

func (c *Client) DeleteContest(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/contests/"+esc(id), nil, nil, nil)
}

func (c *Client) SetContestStatus(ctx context.Context, id string, status contest.Status) error {
	body := map[string]contest.Status{"status": status}
	return c.do(ctx, http.MethodPatch, "/contests/status/"+esc(id), nil, body, nil)
}

func (c *Client) Leaderboard(ctx context.Context) ([]contest.Leader, error) {
	var out []contest.Leader
	err := c.do(ctx, http.MethodGet, "/leaderboard", nil, nil, &out)
	return out, err
}

// Winners lists the most recently declared winners.
func (c *Client) Winners(ctx context.Context) ([]contest.RecentWinner, error) {
	var out []contest.RecentWinner
	err := c.do(ctx, http.MethodGet, "/winners", nil, nil, &out)
	return out, err
}

// ----------- payments / submissions -----------

func (c *Client) RecordPayment(ctx context.Context, p Payment) error {
	return c.do(ctx, http.MethodPost, "/payments", nil, p, nil)
}

func (c *Client) CreateSubmission(ctx context.Context, in NewSubmission) (*contest.Submission, error) {
	var out contest.Submission
	if err := c.do(ctx, http.MethodPost, "/submissions", nil, in, &out); err != nil {
		return nil, err
	}
	if out.ContestID == "" {
		out.ContestID, out.UserEmail, out.Content = in.ContestID, in.UserEmail, in.Content
	}
	return &out, nil
}

func (c *Client) Submissions(ctx context.Context, contestID string) ([]contest.Submission, error) {
	var out []contest.Submission
	err := c.do(ctx, http.MethodGet, "/submissions", url.Values{"contestId": {contestID}}, nil, &out)
	return out, err
}

func (c *Client) DeclareWinner(ctx context.Context, submissionID string) error {
	return c.do(ctx, http.MethodPatch, "/submissions/"+esc(submissionID)+"/winner", nil, nil, nil)
}

// ----------- users / session -----------

func (c *Client) SyncSession(ctx context.Context, id SessionIdentity) error {
	return c.do(ctx, http.MethodPost, "/jwt", nil, id, nil)
}

func (c *Client) Me(ctx context.Context) (*contest.User, error) {
	var out contest.User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Role(ctx context.Context, email string) (string, error) {
	var out struct {
		Role string `json:"role"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/role/"+esc(email), nil, nil, &out); err != nil {
		return "", err
	}
	return out.Role, nil
}

func (c *Client) SetRole(ctx context.Context, email, role string) error {
	body := map[string]string{"role": role}
	return c.do(ctx, http.MethodPatch, "/users/role/"+esc(email), nil, body, nil)
}

func (c *Client) Users(ctx context.Context) ([]contest.User, error) {
	var out []contest.User
	err := c.do(ctx, http.MethodGet, "/users", nil, nil, &out)
	return out, err
}

func (c *Client) CreateUser(ctx context.Context, u contest.User) error {
	return c.do(ctx, http.MethodPost, "/users", nil, u, nil)
}

func (c *Client) UpdateProfile(ctx context.Context, email string, p ProfilePatch) error {
	return c.do(ctx, http.MethodPatch, "/users/profile/"+esc(email), nil, p, nil)
}
