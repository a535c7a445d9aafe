package coordinator

import (
	"context"

	"skillspire/internal/contest"
	"skillspire/internal/role"
)

type ModerationBackend interface {
	Contest(ctx context.Context, id string) (*contest.Contest, error)
	SetContestStatus(ctx context.Context, id string, status contest.Status) error
	DeleteContest(ctx context.Context, id string) error
	SetRole(ctx context.Context, email, role string) error
}

// RoleForgetter drops cached roles for an email.
type RoleForgetter interface {
	Forget(ctx context.Context, email string)
}

// Moderation holds the admin actions.
type Moderation struct {
	Backend ModerationBackend
	Roles   RoleForgetter
	Audit   Auditor
}

// SetStatus moves a pending contest to confirmed or rejected.
func (m *Moderation) SetStatus(ctx context.Context, actor, id string, next contest.Status) error {
	if next != contest.StatusConfirmed && next != contest.StatusRejected {
		return &contest.ValidationError{Field: "status", Reason: "must be confirmed or rejected"}
	}
	cur, err := m.Backend.Contest(ctx, id)
	if err != nil {
		return err
	}
	if !cur.Status.CanModerate(next) {
		return &contest.ConflictError{Reason: "contest is already " + string(cur.Status)}
	}
	err = m.Backend.SetContestStatus(ctx, id, next)
	audit(ctx, m.Audit, actor, "contest_"+string(next), id, err)
	return err
}

func (m *Moderation) Delete(ctx context.Context, actor, id string) error {
	err := m.Backend.DeleteContest(ctx, id)
	audit(ctx, m.Audit, actor, "contest_delete", id, err)
	return err
}

// ChangeRole sets another user's role. Admins cannot change their own.
func (m *Moderation) ChangeRole(ctx context.Context, actor, email string, r role.Role) error {
	if !r.Valid() {
		return &contest.ValidationError{Field: "role", Reason: "unknown role"}
	}
	if contest.SameEmail(actor, email) {
		return &contest.ConflictError{Reason: "cannot change your own role"}
	}
	err := m.Backend.SetRole(ctx, email, r.String())
	audit(ctx, m.Audit, actor, "role_change", email+" -> "+r.String(), err)
	if err != nil {
		return err
	}
	if m.Roles != nil {
		m.Roles.Forget(ctx, email)
	}
	return nil
}
