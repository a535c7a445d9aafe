package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"skillspire/internal/backend"
	"skillspire/internal/contest"
	"skillspire/internal/imagehost"
	"skillspire/internal/lifecycle"
	"skillspire/internal/role"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return now }
func (fixedClock) NewTicker(time.Duration) (<-chan time.Time, func()) {
	return make(chan time.Time), func() {}
}

var errDown = &contest.TransientError{Op: "backend", Err: errors.New("connection refused")}

type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	contest  contest.Contest
	me       contest.User
	subs     []contest.Submission
	payments []backend.Payment
	failOn   map[string]error
	// gate, when set, blocks DeclareWinner until closed.
	gate chan struct{}
}

func newFake() *fakeBackend {
	return &fakeBackend{
		contest: contest.Contest{
			ID: "c1", Name: "Logo Jam", Type: contest.Design, Status: contest.StatusConfirmed,
			RegistrationFee: decimal.RequireFromString("10.00"), Deadline: now.Add(48 * time.Hour),
			Participants: 2, CreatorEmail: "cara@x.io",
		},
		me:     contest.User{Email: "ann@x.io", Name: "Ann"},
		failOn: map[string]error{},
	}
}

func (f *fakeBackend) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.failOn[name]
}

func (f *fakeBackend) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeBackend) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c != "Contest" && c != "Me" && c != "Submissions" {
			n++
		}
	}
	return n
}

func (f *fakeBackend) Contest(ctx context.Context, id string) (*contest.Contest, error) {
	if err := f.call("Contest"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.contest
	return &c, nil
}

func (f *fakeBackend) Me(ctx context.Context) (*contest.User, error) {
	if err := f.call("Me"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.me
	return &u, nil
}

func (f *fakeBackend) Submissions(ctx context.Context, contestID string) ([]contest.Submission, error) {
	if err := f.call("Submissions"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]contest.Submission(nil), f.subs...), nil
}

func (f *fakeBackend) RecordPayment(ctx context.Context, p backend.Payment) error {
	if err := f.call("RecordPayment"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.payments {
		if q.TransactionID == p.TransactionID {
			return &contest.ConflictError{Reason: "duplicate transaction"}
		}
	}
	f.payments = append(f.payments, p)
	return nil
}

func (f *fakeBackend) Register(ctx context.Context, contestID string) error {
	if err := f.call("Register"); err != nil {
		return err
	}
	f.mu.Lock()
	if f.me.Participates(contestID) {
		f.mu.Unlock()
		return &contest.ConflictError{Reason: "already registered"}
	}
	f.me.ParticipatedContests = append(f.me.ParticipatedContests, contestID)
	f.contest.Participants++
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) CreateSubmission(ctx context.Context, in backend.NewSubmission) (*contest.Submission, error) {
	if err := f.call("CreateSubmission"); err != nil {
		return nil, err
	}
	s := contest.Submission{ID: "s-new", ContestID: in.ContestID, UserEmail: in.UserEmail, Content: in.Content}
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return &s, nil
}

func (f *fakeBackend) DeclareWinner(ctx context.Context, submissionID string) error {
	if f.gate != nil {
		<-f.gate
	}
	return f.call("DeclareWinner")
}

func (f *fakeBackend) CreateContest(ctx context.Context, in *contest.Contest) (*contest.Contest, error) {
	if err := f.call("CreateContest"); err != nil {
		return nil, err
	}
	out := *in
	out.ID = "c-new"
	return &out, nil
}

func (f *fakeBackend) UpdateContest(ctx context.Context, id string, in *contest.Contest) error {
	return f.call("UpdateContest")
}

func (f *fakeBackend) DeleteContest(ctx context.Context, id string) error {
	return f.call("DeleteContest")
}

func (f *fakeBackend) SetContestStatus(ctx context.Context, id string, status contest.Status) error {
	return f.call("SetContestStatus")
}

func (f *fakeBackend) SetRole(ctx context.Context, email, role string) error {
	return f.call("SetRole")
}

type memAudit struct {
	mu      sync.Mutex
	actions []string
}

func (m *memAudit) LogAction(ctx context.Context, actor, action, details string) error {
	m.mu.Lock()
	m.actions = append(m.actions, action)
	m.mu.Unlock()
	return nil
}

func (m *memAudit) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.actions) == 0 {
		return ""
	}
	return m.actions[len(m.actions)-1]
}

func controller(t *testing.T, f *fakeBackend) *lifecycle.Controller {
	t.Helper()
	ctrl := lifecycle.New("c1", "ann@x.io", f, fixedClock{})
	if err := ctrl.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return ctrl
}

func fee(s string) PaymentConfirmation {
	return PaymentConfirmation{Confirmed: true, Amount: decimal.RequireFromString(s)}
}

func TestPaySuccess(t *testing.T) {
	f := newFake()
	a := &memAudit{}
	ctrl := controller(t, f)
	reg := &Registration{Backend: f, Audit: a, Now: func() time.Time { return now }}

	out, err := reg.Pay(context.Background(), ctrl, fee("10"))
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if out.Redirect != "/contests/c1" {
		t.Fatalf("redirect = %q", out.Redirect)
	}
	if !out.State.IsRegistered || out.State.Contest.Participants != 3 || !out.State.Actions.CanSubmit {
		t.Fatalf("state = %+v", out.State)
	}
	if len(f.payments) != 1 || f.payments[0].TransactionID == "" || !f.payments[0].PaidAt.Equal(now) {
		t.Fatalf("payments = %+v", f.payments)
	}
	if f.called("Register") != 1 || a.last() != "contest_pay" {
		t.Fatalf("calls = %v audit = %q", f.calls, a.last())
	}
}

func TestPayPreconditionsSkipNetwork(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeBackend)
		conf  PaymentConfirmation
		check func(error) bool
	}{
		{"already registered", func(f *fakeBackend) { f.me.ParticipatedContests = []string{"c1"} }, fee("10"), contest.IsConflict},
		{"deadline passed", func(f *fakeBackend) { f.contest.Deadline = now.Add(-time.Minute) }, fee("10"), contest.IsConflict},
		{"pending", func(f *fakeBackend) { f.contest.Status = contest.StatusPending }, fee("10"), contest.IsConflict},
		{"not confirmed", func(*fakeBackend) {}, PaymentConfirmation{Amount: decimal.NewFromInt(10)}, contest.IsValidation},
		{"wrong amount", func(*fakeBackend) {}, fee("9.99"), contest.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFake()
			tt.setup(f)
			ctrl := controller(t, f)
			_, err := (&Registration{Backend: f}).Pay(context.Background(), ctrl, tt.conf)
			if !tt.check(err) {
				t.Fatalf("err = %v", err)
			}
			if f.writes() != 0 {
				t.Fatalf("network writes: %v", f.calls)
			}
		})
	}
}

// A failed payment leaves the view untouched and retryable.
func TestPayFailureChangesNothing(t *testing.T) {
	f := newFake()
	f.failOn["RecordPayment"] = errDown
	a := &memAudit{}
	ctrl := controller(t, f)
	before := ctrl.Snapshot()

	_, err := (&Registration{Backend: f, Audit: a}).Pay(context.Background(), ctrl, fee("10.00"))
	if !contest.IsRetryable(err) {
		t.Fatalf("err = %v", err)
	}
	after := ctrl.Snapshot()
	if after.IsRegistered || after.Contest.Participants != before.Contest.Participants || !after.Actions.CanRegister {
		t.Fatalf("state changed: %+v", after)
	}
	if f.called("Register") != 0 {
		t.Fatal("registered after failed payment")
	}
	if a.last() != "contest_pay_failed" {
		t.Fatalf("audit = %q", a.last())
	}

	delete(f.failOn, "RecordPayment")
	if _, err := (&Registration{Backend: f}).Pay(context.Background(), ctrl, fee("10")); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestPayConflictReconciles(t *testing.T) {
	f := newFake()
	ctrl := controller(t, f)
	// registered elsewhere after the view loaded
	f.me.ParticipatedContests = []string{"c1"}

	_, err := (&Registration{Backend: f}).Pay(context.Background(), ctrl, fee("10"))
	if !contest.IsConflict(err) {
		t.Fatalf("err = %v", err)
	}
	if s := ctrl.Snapshot(); !s.IsRegistered || s.Actions.CanRegister {
		t.Fatalf("not resynced: %+v", s)
	}
}

// Retrying after a failed registration must not pay twice.
func TestPayRetryRecordsOnePayment(t *testing.T) {
	f := newFake()
	f.failOn["Register"] = errDown
	ctrl := controller(t, f)
	reg := &Registration{Backend: f}

	if _, err := reg.Pay(context.Background(), ctrl, fee("10")); !contest.IsRetryable(err) {
		t.Fatalf("first attempt: %v", err)
	}
	delete(f.failOn, "Register")
	if _, err := reg.Pay(context.Background(), ctrl, fee("10")); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n := len(f.payments); n != 1 {
		t.Fatalf("payments recorded = %d", n)
	}
	if f.called("RecordPayment") != 2 || f.called("Register") != 2 {
		t.Fatalf("calls = %v", f.calls)
	}
	if got := f.payments[0].TransactionID; got != TransactionID("c1", "ANN@x.io") {
		t.Fatalf("transaction id = %q", got)
	}
	if TransactionID("c1", "ann@x.io") == TransactionID("c2", "ann@x.io") {
		t.Fatal("transaction ids collide across contests")
	}
}

func registered(f *fakeBackend) *fakeBackend {
	f.me.ParticipatedContests = []string{"c1"}
	return f
}

func TestSubmitSuccess(t *testing.T) {
	f := registered(newFake())
	ctrl := controller(t, f)
	form := &Form{Open: true, Content: "  https://github.com/ann/entry  "}

	out, err := (&Submission{Backend: f}).Submit(context.Background(), ctrl, f.me, form)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if form.Open || form.Content != "" {
		t.Fatalf("form = %+v", form)
	}
	if !out.State.HasSubmitted || out.State.Actions.CanSubmit || out.State.Phase != lifecycle.PhaseSubmitted {
		t.Fatalf("state = %+v", out.State)
	}
	if got := f.subs[0].Content; got != "https://github.com/ann/entry" {
		t.Fatalf("content = %q", got)
	}
}

func TestSubmitBlankIsRejectedLocally(t *testing.T) {
	f := registered(newFake())
	ctrl := controller(t, f)
	_, err := (&Submission{Backend: f}).Submit(context.Background(), ctrl, f.me, &Form{Open: true, Content: " \n\t"})
	if !contest.IsValidation(err) || f.writes() != 0 {
		t.Fatalf("err = %v calls = %v", err, f.calls)
	}
}

func TestSubmitRequiresRegistration(t *testing.T) {
	f := newFake()
	ctrl := controller(t, f)
	_, err := (&Submission{Backend: f}).Submit(context.Background(), ctrl, f.me, &Form{Open: true, Content: "x"})
	if !contest.IsConflict(err) || f.writes() != 0 {
		t.Fatalf("err = %v calls = %v", err, f.calls)
	}
}

// Scenario D: the submit fails and the typed content survives.
func TestSubmitFailureKeepsForm(t *testing.T) {
	f := registered(newFake())
	f.failOn["CreateSubmission"] = errDown
	ctrl := controller(t, f)
	form := &Form{Open: true, Content: "https://x.io/entry"}

	_, err := (&Submission{Backend: f}).Submit(context.Background(), ctrl, f.me, form)
	if !contest.IsRetryable(err) {
		t.Fatalf("err = %v", err)
	}
	if !form.Open || form.Content != "https://x.io/entry" {
		t.Fatalf("form = %+v", form)
	}
	if s := ctrl.Snapshot(); s.HasSubmitted || !s.Actions.CanSubmit {
		t.Fatalf("state = %+v", s)
	}
}

func board(f *fakeBackend) *WinnerBoard {
	f.subs = []contest.Submission{
		{ID: "s1", ContestID: "c1", UserEmail: "a@x.io"},
		{ID: "s2", ContestID: "c1", UserEmail: "b@x.io"},
		{ID: "s3", ContestID: "c1", UserEmail: "c@x.io"},
	}
	return NewWinnerBoard("c1", "cara@x.io", f, nil)
}

// Scenario B: one winner, pinned first, every other control disabled.
func TestDeclareWinner(t *testing.T) {
	f := newFake()
	w := board(f)
	if err := w.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !w.CanDeclare("s2") || w.HasWinner() {
		t.Fatal("board not open")
	}

	subs, err := w.Declare(context.Background(), "s2")
	if err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if subs[0].ID != "s2" || !subs[0].IsWinner {
		t.Fatalf("winner not pinned: %+v", subs)
	}
	for _, s := range subs[1:] {
		if s.IsWinner {
			t.Fatalf("%s also winner", s.ID)
		}
	}
	for _, id := range []string{"s1", "s2", "s3"} {
		if w.CanDeclare(id) {
			t.Fatalf("CanDeclare(%s) after winner", id)
		}
	}
	if _, err := w.Declare(context.Background(), "s1"); !contest.IsConflict(err) {
		t.Fatalf("second declare err = %v", err)
	}
	if n := f.called("DeclareWinner"); n != 1 {
		t.Fatalf("backend declares = %d", n)
	}
}

func TestDeclareDoubleClickLocks(t *testing.T) {
	f := newFake()
	f.gate = make(chan struct{})
	w := board(f)
	if err := w.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := w.Declare(context.Background(), "s1")
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for w.CanDeclare("s3") {
		if time.Now().After(deadline) {
			t.Fatal("lock never taken")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := w.Declare(context.Background(), "s3"); !contest.IsConflict(err) {
		t.Fatalf("concurrent declare err = %v", err)
	}

	close(f.gate)
	if err := <-done; err != nil {
		t.Fatalf("first declare: %v", err)
	}
	if n := f.called("DeclareWinner"); n != 1 {
		t.Fatalf("backend declares = %d", n)
	}
}

func TestDeclareFailureReleasesAndReloads(t *testing.T) {
	f := newFake()
	f.failOn["DeclareWinner"] = errDown
	w := board(f)
	if err := w.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	loads := f.called("Submissions")

	if _, err := w.Declare(context.Background(), "s1"); !contest.IsRetryable(err) {
		t.Fatalf("err = %v", err)
	}
	if w.HasWinner() || !w.CanDeclare("s1") {
		t.Fatal("lock not released")
	}
	if f.called("Submissions") != loads+1 {
		t.Fatal("board not reloaded")
	}
}

func TestDeclareUnknownSubmission(t *testing.T) {
	w := board(newFake())
	if err := w.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Declare(context.Background(), "nope"); !contest.IsNotFound(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestBoardsPerSession(t *testing.T) {
	b := NewBoards()
	f := newFake()
	mk := func() *WinnerBoard { return NewWinnerBoard("c1", "cara@x.io", f, nil) }
	w1 := b.Get("s1", "c1", mk)
	if b.Get("s1", "c1", mk) != w1 {
		t.Fatal("board not reused")
	}
	if b.Get("s2", "c1", mk) == w1 {
		t.Fatal("board shared across sessions")
	}
	b.DropSession("s1")
	if b.Len() != 1 {
		t.Fatalf("len = %d", b.Len())
	}
}

type fakeUploader struct {
	url string
	err error
	n   int
}

func (u *fakeUploader) Upload(ctx context.Context, img imagehost.Image) (string, error) {
	u.n++
	return u.url, u.err
}

func draft() Draft {
	return Draft{
		Name: "Poster Battle", Type: "design", Description: "d",
		RegistrationFee: decimal.NewFromInt(5), Prize: decimal.NewFromInt(100),
		Deadline: now.Add(72 * time.Hour),
	}
}

func TestCreateContest(t *testing.T) {
	f := newFake()
	up := &fakeUploader{url: "https://i.ibb.co/p.png"}
	a := &Authoring{Backend: f, Images: up, Now: func() time.Time { return now }}

	c, err := a.Create(context.Background(), contest.User{Email: "cara@x.io"}, draft(), &imagehost.Image{Name: "p.png", Body: strings.NewReader("png")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Status != contest.StatusPending || c.Type != contest.Design || c.Image != up.url || c.CreatorEmail != "cara@x.io" {
		t.Fatalf("contest = %+v", c)
	}
}

func TestCreateImageFailureAbortsBeforeWrite(t *testing.T) {
	f := newFake()
	a := &Authoring{Backend: f, Images: &fakeUploader{err: errDown}, Now: func() time.Time { return now }}
	_, err := a.Create(context.Background(), contest.User{Email: "cara@x.io"}, draft(), &imagehost.Image{Name: "p.png", Body: strings.NewReader("png")})
	if !contest.IsRetryable(err) || f.writes() != 0 {
		t.Fatalf("err = %v calls = %v", err, f.calls)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		field string
		edit  func(*Draft)
	}{
		{"name", func(d *Draft) { d.Name = " " }},
		{"type", func(d *Draft) { d.Type = "Cooking" }},
		{"price", func(d *Draft) { d.RegistrationFee = decimal.NewFromInt(-1) }},
		{"prize", func(d *Draft) { d.Prize = decimal.NewFromInt(-1) }},
		{"deadline", func(d *Draft) { d.Deadline = now }},
		{"image", func(d *Draft) {}},
	}
	for _, tt := range tests {
		f := newFake()
		up := &fakeUploader{url: "u"}
		a := &Authoring{Backend: f, Images: up, Now: func() time.Time { return now }}
		d := draft()
		tt.edit(&d)
		_, err := a.Create(context.Background(), contest.User{Email: "cara@x.io"}, d, nil)
		var ve *contest.ValidationError
		if !errors.As(err, &ve) || ve.Field != tt.field {
			t.Errorf("%s: err = %v", tt.field, err)
		}
		if up.n != 0 || f.writes() != 0 {
			t.Errorf("%s: touched network", tt.field)
		}
	}
}

func TestEditAndDeleteOnlyWhilePending(t *testing.T) {
	f := newFake()
	a := &Authoring{Backend: f, Now: func() time.Time { return now }}
	ctx := context.Background()

	if _, err := a.Edit(ctx, "cara@x.io", "c1", draft(), nil); !contest.IsConflict(err) {
		t.Fatalf("edit confirmed: %v", err)
	}
	if err := a.Delete(ctx, "cara@x.io", "c1"); !contest.IsConflict(err) {
		t.Fatalf("delete confirmed: %v", err)
	}

	f.contest.Status = contest.StatusPending
	f.contest.Image = "old.png"
	c, err := a.Edit(ctx, "cara@x.io", "c1", draft(), nil)
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if c.Name != "Poster Battle" || c.Image != "old.png" || c.Participants != 2 {
		t.Fatalf("edited = %+v", c)
	}
	if err := a.Delete(ctx, "bob@x.io", "c1"); !contest.IsNotFound(err) {
		t.Fatalf("foreign delete: %v", err)
	}
	if err := a.Delete(ctx, "CARA@x.io", "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestEditAndDeleteNeedKnownCreator(t *testing.T) {
	f := newFake()
	f.contest.Status = contest.StatusPending
	f.contest.CreatorEmail = ""
	a := &Authoring{Backend: f, Now: func() time.Time { return now }}
	ctx := context.Background()

	if err := a.Delete(ctx, "mallory@x.io", "c1"); !contest.IsNotFound(err) {
		t.Fatalf("delete of creatorless contest: %v", err)
	}
	if _, err := a.Edit(ctx, "mallory@x.io", "c1", draft(), nil); !contest.IsNotFound(err) {
		t.Fatalf("edit of creatorless contest: %v", err)
	}
	if n := f.writes(); n != 0 {
		t.Fatalf("writes = %d", n)
	}
}

type forgetter struct{ emails []string }

func (f *forgetter) Forget(ctx context.Context, email string) { f.emails = append(f.emails, email) }

func TestModeration(t *testing.T) {
	f := newFake()
	f.contest.Status = contest.StatusPending
	m := &Moderation{Backend: f}
	ctx := context.Background()

	if err := m.SetStatus(ctx, "root@x.io", "c1", contest.StatusEnded); !contest.IsValidation(err) {
		t.Fatalf("ended: %v", err)
	}
	if err := m.SetStatus(ctx, "root@x.io", "c1", contest.StatusConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.contest.Status = contest.StatusConfirmed
	if err := m.SetStatus(ctx, "root@x.io", "c1", contest.StatusRejected); !contest.IsConflict(err) {
		t.Fatalf("re-moderate: %v", err)
	}
	if n := f.called("SetContestStatus"); n != 1 {
		t.Fatalf("status writes = %d", n)
	}
}

func TestChangeRole(t *testing.T) {
	f := newFake()
	fg := &forgetter{}
	m := &Moderation{Backend: f, Roles: fg}
	ctx := context.Background()

	if err := m.ChangeRole(ctx, "root@x.io", "Root@x.io", role.User); !contest.IsConflict(err) {
		t.Fatalf("self change: %v", err)
	}
	if err := m.ChangeRole(ctx, "root@x.io", "ann@x.io", role.Role(7)); !contest.IsValidation(err) {
		t.Fatalf("bad role: %v", err)
	}
	if err := m.ChangeRole(ctx, "root@x.io", "ann@x.io", role.Creator); err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if len(fg.emails) != 1 || fg.emails[0] != "ann@x.io" {
		t.Fatalf("forgot = %v", fg.emails)
	}
}
