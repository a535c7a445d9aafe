// Package coordinator holds the user-facing multi-step workflows that write
// to the backend: paying for a contest, submitting work, declaring a
// winner, authoring and moderating contests.
package coordinator

import (
	"context"
	"fmt"
	"log"

	"skillspire/internal/lifecycle"
)

// Auditor appends an entry to the action log.
type Auditor interface {
	LogAction(ctx context.Context, actor, action, details string) error
}

// Outcome is what a successful workflow hands back to the caller.
type Outcome struct {
	Redirect string              `json:"redirect,omitempty"`
	State    *lifecycle.Snapshot `json:"state,omitempty"`
}

// audit writes a log entry and swallows the error; a failed audit write
// never changes the outcome of the action it describes.
func audit(ctx context.Context, a Auditor, actor, action, details string, err error) {
	if a == nil {
		return
	}
	if err != nil {
		action += "_failed"
		details = fmt.Sprintf("%s: %v", details, err)
	}
	if werr := a.LogAction(context.WithoutCancel(ctx), actor, action, details); werr != nil {
		log.Printf("[audit] %s by %s: %v", action, actor, werr)
	}
}

// reconcile resyncs a controller after a failed write. The write's error is
// what the caller sees; a failed resync is only logged.
func reconcile(ctx context.Context, ctrl *lifecycle.Controller) {
	if err := ctrl.Reconcile(ctx); err != nil {
		log.Printf("[coordinator] reconcile %s: %v", ctrl.ContestID(), err)
	}
}
