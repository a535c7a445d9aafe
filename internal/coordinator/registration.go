package coordinator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"skillspire/internal/backend"
	"skillspire/internal/contest"
	"skillspire/internal/lifecycle"
)

// paymentSpace scopes payment transaction ids.
var paymentSpace = uuid.MustParse("5d0e7a53-3f7c-4b8e-9a41-0c6f1e2b9d77")

// TransactionID is the payment id for email entering contestID. It is the
// same on every attempt, so the backend stores one payment per entry.
func TransactionID(contestID, email string) string {
	return uuid.NewSHA1(paymentSpace, []byte(contestID+"|"+strings.ToLower(strings.TrimSpace(email)))).String()
}

// PaymentBackend records a simulated payment and the registration it buys.
// RecordPayment answers ConflictError for a transaction id it already has.
type PaymentBackend interface {
	RecordPayment(ctx context.Context, p backend.Payment) error
	Register(ctx context.Context, contestID string) error
}

// PaymentConfirmation is the viewer's explicit go-ahead for the fee shown.
type PaymentConfirmation struct {
	Confirmed bool            `json:"confirmed"`
	Amount    decimal.Decimal `json:"amount"`
}

type Registration struct {
	Backend PaymentBackend
	Audit   Auditor
	Now     func() time.Time
}

// Pay runs the payment flow for the controller's viewer. Nothing changes
// locally unless both backend writes succeed; on failure the controller is
// resynced from the backend and the error is returned. A retry after a
// failed registration reuses the recorded payment.
func (r *Registration) Pay(ctx context.Context, ctrl *lifecycle.Controller, conf PaymentConfirmation) (Outcome, error) {
	snap := ctrl.Snapshot()
	if snap.Contest == nil {
		return Outcome{}, &contest.NotFoundError{Resource: "contest", ID: ctrl.ContestID()}
	}
	if !snap.Actions.CanRegister {
		return Outcome{}, &contest.ConflictError{Reason: registerBlocked(snap)}
	}
	if !conf.Confirmed {
		return Outcome{}, &contest.ValidationError{Field: "confirmed", Reason: "payment must be confirmed"}
	}
	if !conf.Amount.Equal(snap.Contest.RegistrationFee) {
		return Outcome{}, &contest.ValidationError{Field: "amount", Reason: "must equal the registration fee " + snap.Contest.RegistrationFee.StringFixed(2)}
	}

	email := ctrl.Viewer()
	p := backend.Payment{
		ContestID:     ctrl.ContestID(),
		UserEmail:     email,
		Amount:        snap.Contest.RegistrationFee,
		TransactionID: TransactionID(ctrl.ContestID(), email),
		PaidAt:        r.now(),
	}
	err := r.Backend.RecordPayment(ctx, p)
	if contest.IsConflict(err) {
		err = nil
	}
	if err == nil {
		err = r.Backend.Register(ctx, p.ContestID)
	}
	audit(ctx, r.Audit, email, "contest_pay", p.ContestID+" "+p.TransactionID, err)
	if err != nil {
		reconcile(ctx, ctrl)
		return Outcome{}, err
	}

	ctrl.MarkRegistered()
	after := ctrl.Snapshot()
	return Outcome{Redirect: "/contests/" + p.ContestID, State: &after}, nil
}

func (r *Registration) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func registerBlocked(s lifecycle.Snapshot) string {
	switch {
	case s.IsRegistered:
		return "already registered"
	case s.DeadlinePassed:
		return "contest has ended"
	}
	return "contest is not open for registration"
}
