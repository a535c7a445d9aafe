package coordinator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"skillspire/internal/contest"
	"skillspire/internal/imagehost"
)

var errNoImageHost = errors.New("no image host configured")

type AuthoringBackend interface {
	Contest(ctx context.Context, id string) (*contest.Contest, error)
	CreateContest(ctx context.Context, in *contest.Contest) (*contest.Contest, error)
	UpdateContest(ctx context.Context, id string, in *contest.Contest) error
	DeleteContest(ctx context.Context, id string) error
}

type ImageUploader interface {
	Upload(ctx context.Context, img imagehost.Image) (string, error)
}

// Draft is the creator-editable part of a contest.
type Draft struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	TaskInstruction string          `json:"taskInstruction"`
	Type            string          `json:"type"`
	RegistrationFee decimal.Decimal `json:"price"`
	Prize           decimal.Decimal `json:"prize"`
	Deadline        time.Time       `json:"deadline"`
	Image           string          `json:"image"`
}

func (d Draft) validate(now time.Time) (contest.Category, error) {
	if strings.TrimSpace(d.Name) == "" {
		return "", &contest.ValidationError{Field: "name", Reason: "required"}
	}
	cat, ok := contest.ParseCategory(d.Type)
	if !ok {
		return "", &contest.ValidationError{Field: "type", Reason: "unknown category " + d.Type}
	}
	if d.RegistrationFee.IsNegative() {
		return "", &contest.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if d.Prize.IsNegative() {
		return "", &contest.ValidationError{Field: "prize", Reason: "must not be negative"}
	}
	if !d.Deadline.After(now) {
		return "", &contest.ValidationError{Field: "deadline", Reason: "must be in the future"}
	}
	return cat, nil
}

// Authoring is the creator's contest management flow. New contests start
// pending; only pending contests may be edited or deleted.
type Authoring struct {
	Backend AuthoringBackend
	Images  ImageUploader
	Audit   Auditor
	Now     func() time.Time
}

func (a *Authoring) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Create validates the draft, uploads the image and then writes the contest.
// A failed upload aborts before anything reaches the backend.
func (a *Authoring) Create(ctx context.Context, creator contest.User, d Draft, img *imagehost.Image) (*contest.Contest, error) {
	now := a.now()
	cat, err := d.validate(now)
	if err != nil {
		return nil, err
	}
	image, err := a.image(ctx, d.Image, img)
	if err != nil {
		return nil, err
	}
	if image == "" {
		return nil, &contest.ValidationError{Field: "image", Reason: "required"}
	}

	in := &contest.Contest{
		Name:            strings.TrimSpace(d.Name),
		Description:     d.Description,
		TaskInstruction: d.TaskInstruction,
		Image:           image,
		Type:            cat,
		RegistrationFee: d.RegistrationFee,
		Prize:           d.Prize,
		Deadline:        d.Deadline,
		Status:          contest.StatusPending,
		CreatorEmail:    creator.Email,
		CreatedAt:       now,
	}
	out, err := a.Backend.CreateContest(ctx, in)
	audit(ctx, a.Audit, creator.Email, "contest_create", in.Name, err)
	return out, err
}

// Edit replaces the editable fields of a pending contest owned by actor.
func (a *Authoring) Edit(ctx context.Context, actor, id string, d Draft, img *imagehost.Image) (*contest.Contest, error) {
	cur, err := a.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if d.Image == "" {
		d.Image = cur.Image
	}
	cat, err := d.validate(a.now())
	if err != nil {
		return nil, err
	}
	image, err := a.image(ctx, d.Image, img)
	if err != nil {
		return nil, err
	}

	next := *cur
	next.Name = strings.TrimSpace(d.Name)
	next.Description = d.Description
	next.TaskInstruction = d.TaskInstruction
	next.Type = cat
	next.RegistrationFee = d.RegistrationFee
	next.Prize = d.Prize
	next.Deadline = d.Deadline
	next.Image = image

	err = a.Backend.UpdateContest(ctx, id, &next)
	audit(ctx, a.Audit, actor, "contest_edit", id, err)
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// Delete removes a pending contest owned by actor.
func (a *Authoring) Delete(ctx context.Context, actor, id string) error {
	if _, err := a.owned(ctx, actor, id); err != nil {
		return err
	}
	err := a.Backend.DeleteContest(ctx, id)
	audit(ctx, a.Audit, actor, "contest_delete", id, err)
	return err
}

func (a *Authoring) owned(ctx context.Context, actor, id string) (*contest.Contest, error) {
	cur, err := a.Backend.Contest(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.CreatorEmail == "" || !contest.SameEmail(cur.CreatorEmail, actor) {
		return nil, &contest.NotFoundError{Resource: "contest", ID: id}
	}
	if cur.Status != contest.StatusPending {
		return nil, &contest.ConflictError{Reason: "contest is " + string(cur.Status) + " and can no longer be changed"}
	}
	return cur, nil
}

func (a *Authoring) image(ctx context.Context, current string, img *imagehost.Image) (string, error) {
	if img == nil || img.Body == nil {
		return current, nil
	}
	if a.Images == nil {
		return "", &contest.TransientError{Op: "image upload", Err: errNoImageHost}
	}
	return a.Images.Upload(ctx, *img)
}
