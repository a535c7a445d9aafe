package coordinator

import (
	"context"
	"strings"

	"skillspire/internal/backend"
	"skillspire/internal/contest"
	"skillspire/internal/lifecycle"
)

type SubmissionBackend interface {
	CreateSubmission(ctx context.Context, in backend.NewSubmission) (*contest.Submission, error)
}

// Form is the submission input. It stays open with its content intact
// until a submit succeeds.
type Form struct {
	Open    bool   `json:"open"`
	Content string `json:"content"`
}

type Submission struct {
	Backend SubmissionBackend
	Audit   Auditor
}

// Submit posts the form content for the controller's viewer. author fills
// the display fields of the stored submission.
func (s *Submission) Submit(ctx context.Context, ctrl *lifecycle.Controller, author contest.User, form *Form) (Outcome, error) {
	content := strings.TrimSpace(form.Content)
	if content == "" {
		return Outcome{}, &contest.ValidationError{Field: "content", Reason: "required"}
	}
	snap := ctrl.Snapshot()
	if snap.Contest == nil {
		return Outcome{}, &contest.NotFoundError{Resource: "contest", ID: ctrl.ContestID()}
	}
	if !snap.Actions.CanSubmit {
		return Outcome{}, &contest.ConflictError{Reason: submitBlocked(snap)}
	}

	email := ctrl.Viewer()
	_, err := s.Backend.CreateSubmission(ctx, backend.NewSubmission{
		ContestID: ctrl.ContestID(),
		UserEmail: email,
		UserName:  author.Name,
		UserPhoto: author.Photo,
		Content:   content,
	})
	audit(ctx, s.Audit, email, "submission_create", ctrl.ContestID(), err)
	if err != nil {
		form.Open = true
		reconcile(ctx, ctrl)
		return Outcome{}, err
	}

	ctrl.MarkSubmitted()
	form.Open = false
	form.Content = ""
	after := ctrl.Snapshot()
	return Outcome{State: &after}, nil
}

func submitBlocked(s lifecycle.Snapshot) string {
	switch {
	case s.DeadlinePassed:
		return "contest has ended"
	case s.HasSubmitted:
		return "already submitted"
	}
	return "not registered for this contest"
}
