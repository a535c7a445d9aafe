package identity

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"skillspire/internal/backend"
	"skillspire/internal/contest"
	"skillspire/internal/imagehost"
	"skillspire/internal/store"
)

// ProfileMirror keeps a local copy of the identity and its theme.
type ProfileMirror interface {
	SaveProfile(ctx context.Context, p store.Profile) error
	Theme(ctx context.Context, email string) (string, error)
	SetTheme(ctx context.Context, email, theme string) error
}

type ImageUploader interface {
	Upload(ctx context.Context, img imagehost.Image) (string, error)
}

// Deps are shared by every session of a registry.
type Deps struct {
	Provider Provider
	Backend  *backend.Client
	Mirror   ProfileMirror
	Images   ImageUploader
	// OnChange runs after every identity change of a session.
	OnChange func(ctx context.Context, sessionID string)
}

// Session is one browser's identity plus its backend credentials.
type Session struct {
	id   string
	deps *Deps

	mu       sync.RWMutex
	client   *backend.Client
	account  *Account
	loading  bool
	lastSeen time.Time
}

func newSession(id string, deps *Deps, now time.Time) *Session {
	return &Session{id: id, deps: deps, client: deps.Backend.Fork(), lastSeen: now}
}

func (s *Session) ID() string { return s.id }

// Client is the backend client carrying this session's cookies.
func (s *Session) Client() *backend.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// CurrentUser is nil while signed out.
func (s *Session) CurrentUser() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.account == nil {
		return nil
	}
	id := s.account.Identity
	return &id
}

// Loading reports whether an identity operation is in flight.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

func (s *Session) Register(ctx context.Context, email, password string) (Identity, error) {
	return s.authenticate(ctx, func() (Account, error) {
		return s.deps.Provider.Register(ctx, email, password)
	})
}

func (s *Session) SignIn(ctx context.Context, email, password string) (Identity, error) {
	return s.authenticate(ctx, func() (Account, error) {
		return s.deps.Provider.SignIn(ctx, email, password)
	})
}

func (s *Session) SignInWithProvider(ctx context.Context, providerToken string) (Identity, error) {
	return s.authenticate(ctx, func() (Account, error) {
		return s.deps.Provider.SignInWithProvider(ctx, providerToken)
	})
}

func (s *Session) authenticate(ctx context.Context, fn func() (Account, error)) (Identity, error) {
	s.setLoading(true)
	defer s.setLoading(false)

	a, err := fn()
	if err != nil {
		return Identity{}, err
	}
	s.mu.Lock()
	s.account = &a
	s.mu.Unlock()
	s.changed(ctx, a.Identity)
	return a.Identity, nil
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Restore re-attaches a known identity, e.g. from a signed session cookie
// after a restart, and refreshes the backend session for it. The provider
// credential is not recoverable, so profile updates need a fresh sign-in.
func (s *Session) Restore(ctx context.Context, id Identity) {
	id.Email = normalizeEmail(id.Email)
	if id.Email == "" {
		return
	}
	s.mu.Lock()
	if s.account != nil && s.account.Email == id.Email {
		s.mu.Unlock()
		return
	}
	s.account = &Account{Identity: id, Token: id.Email}
	s.mu.Unlock()
	s.changed(ctx, id)
}

// SignOut forgets the identity and drops the backend cookies.
func (s *Session) SignOut(ctx context.Context) {
	s.mu.Lock()
	was := s.account != nil
	s.account = nil
	s.client = s.deps.Backend.Fork()
	s.mu.Unlock()
	if was && s.deps.OnChange != nil {
		s.deps.OnChange(ctx, s.id)
	}
}

func (s *Session) UpdateProfile(ctx context.Context, upd ProfileUpdate) (Identity, error) {
	s.mu.RLock()
	cur := s.account
	s.mu.RUnlock()
	if cur == nil {
		return Identity{}, contest.ErrUnauthorized
	}

	s.setLoading(true)
	defer s.setLoading(false)
	a, err := s.deps.Provider.UpdateProfile(ctx, cur.Token, upd)
	if err != nil {
		return Identity{}, err
	}
	if a.Email == "" {
		a.Identity = upd.apply(cur.Identity)
	}
	s.mu.Lock()
	s.account = &a
	s.mu.Unlock()
	s.changed(ctx, a.Identity)
	return a.Identity, nil
}

// changed runs the non-critical side effects of an identity change. The
// backend sync runs before returning so later calls carry the new cookie,
// but its failure is only logged.
func (s *Session) changed(ctx context.Context, id Identity) {
	client := s.Client()
	if err := client.SyncSession(ctx, backend.SessionIdentity{Email: id.Email, Name: id.Name, Photo: id.Photo}); err != nil {
		log.Printf("[session] sync %s for %s: %v", s.id, id.Email, err)
	}
	if s.deps.Mirror != nil {
		if err := s.deps.Mirror.SaveProfile(ctx, store.Profile{Email: id.Email, Name: id.Name, Photo: id.Photo}); err != nil {
			log.Printf("[session] mirror profile %s: %v", id.Email, err)
		}
	}
	if s.deps.OnChange != nil {
		s.deps.OnChange(ctx, s.id)
	}
}

// Signup is the account creation form.
type Signup struct {
	Name     string
	Email    string
	Password string
	PhotoURL string
	Image    *imagehost.Image
}

// Onboard creates an account end to end: image upload, identity, provider
// profile, backend user record. A failed upload stops before any account
// exists.
func (s *Session) Onboard(ctx context.Context, in Signup) (Identity, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Identity{}, &contest.ValidationError{Field: "name", Reason: "required"}
	}
	photo := in.PhotoURL
	if in.Image != nil && in.Image.Body != nil {
		url, err := s.upload(ctx, *in.Image)
		if err != nil {
			return Identity{}, err
		}
		photo = url
	}

	if _, err := s.Register(ctx, in.Email, in.Password); err != nil {
		return Identity{}, err
	}
	id, err := s.UpdateProfile(ctx, ProfileUpdate{Name: in.Name, Photo: photo})
	if err != nil {
		return Identity{}, err
	}
	return id, s.Client().CreateUser(ctx, contest.User{Email: id.Email, Name: id.Name, Photo: id.Photo, Role: "user"})
}

// EnsureUser upserts the backend user record after a sign-in. It is best
// effort: a failure is logged.
func (s *Session) EnsureUser(ctx context.Context) {
	cur := s.CurrentUser()
	if cur == nil {
		return
	}
	err := s.Client().CreateUser(ctx, contest.User{Email: cur.Email, Name: cur.Name, Photo: cur.Photo})
	if err != nil && !contest.IsConflict(err) {
		log.Printf("[session] upsert user %s: %v", cur.Email, err)
	}
}

// ProfileEdit is the profile page form.
type ProfileEdit struct {
	Name  string
	Bio   string
	Photo string
	Image *imagehost.Image
}

// EditProfile updates the provider profile and the backend user record.
func (s *Session) EditProfile(ctx context.Context, in ProfileEdit) (Identity, error) {
	cur := s.CurrentUser()
	if cur == nil {
		return Identity{}, contest.ErrUnauthorized
	}
	photo := in.Photo
	if in.Image != nil && in.Image.Body != nil {
		url, err := s.upload(ctx, *in.Image)
		if err != nil {
			return Identity{}, err
		}
		photo = url
	}
	id, err := s.UpdateProfile(ctx, ProfileUpdate{Name: in.Name, Photo: photo})
	if err != nil {
		return Identity{}, err
	}
	err = s.Client().UpdateProfile(ctx, id.Email, backend.ProfilePatch{Name: id.Name, Photo: id.Photo, Bio: in.Bio})
	return id, err
}

func (s *Session) upload(ctx context.Context, img imagehost.Image) (string, error) {
	if s.deps.Images == nil {
		return "", &contest.ValidationError{Field: "image", Reason: "uploads are not configured"}
	}
	return s.deps.Images.Upload(ctx, img)
}

// Theme is the signed-in identity's stored theme, light when unknown.
func (s *Session) Theme(ctx context.Context) string {
	cur := s.CurrentUser()
	if cur == nil || s.deps.Mirror == nil {
		return store.ThemeLight
	}
	t, err := s.deps.Mirror.Theme(ctx, cur.Email)
	if err != nil || !store.ValidTheme(t) {
		return store.ThemeLight
	}
	return t
}

func (s *Session) SetTheme(ctx context.Context, theme string) error {
	if !store.ValidTheme(theme) {
		return &contest.ValidationError{Field: "theme", Reason: "must be light or dark"}
	}
	cur := s.CurrentUser()
	if cur == nil {
		return contest.ErrUnauthorized
	}
	if s.deps.Mirror == nil {
		return nil
	}
	return s.deps.Mirror.SetTheme(ctx, cur.Email, theme)
}

// ToggleTheme flips between light and dark and returns the new theme.
func (s *Session) ToggleTheme(ctx context.Context) (string, error) {
	next := store.ThemeDark
	if s.Theme(ctx) == store.ThemeDark {
		next = store.ThemeLight
	}
	return next, s.SetTheme(ctx, next)
}
