package identity

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"skillspire/internal/contest"
)

const minPasswordLen = 6

type localAccount struct {
	hash []byte
	id   Identity
}

// LocalProvider keeps accounts in memory with bcrypt password hashes. The
// account's email doubles as its token.
type LocalProvider struct {
	Cost int
	// AllowProvider enables the unverified federated sign-in used in
	// development. Off, provider sign-in is refused.
	AllowProvider bool

	mu       sync.RWMutex
	accounts map[string]*localAccount
}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{Cost: bcrypt.DefaultCost, accounts: make(map[string]*localAccount)}
}

func (p *LocalProvider) Register(ctx context.Context, email, password string) (Account, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return Account{}, &contest.AuthError{Kind: contest.AuthBadCredentials}
	}
	if len(password) < minPasswordLen {
		return Account{}, &contest.AuthError{Kind: contest.AuthWeakPassword}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.Cost)
	if err != nil {
		return Account{}, &contest.AuthError{Kind: contest.AuthWeakPassword, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[email]; ok {
		return Account{}, &contest.AuthError{Kind: contest.AuthEmailInUse}
	}
	a := &localAccount{hash: hash, id: Identity{Email: email}}
	p.accounts[email] = a
	return Account{Identity: a.id, Token: email}, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Account, error) {
	email = normalizeEmail(email)
	p.mu.RLock()
	a, ok := p.accounts[email]
	p.mu.RUnlock()
	if !ok || a.hash == nil || bcrypt.CompareHashAndPassword(a.hash, []byte(password)) != nil {
		return Account{}, &contest.AuthError{Kind: contest.AuthBadCredentials}
	}
	return Account{Identity: a.id, Token: email}, nil
}

// SignInWithProvider treats the token as the federated account's email and
// creates the account on first use. Accounts with a password never sign in
// this way.
func (p *LocalProvider) SignInWithProvider(ctx context.Context, providerToken string) (Account, error) {
	email := normalizeEmail(providerToken)
	if email == "" {
		return Account{}, &contest.AuthError{Kind: contest.AuthProviderCancelled}
	}
	if !p.AllowProvider || !strings.Contains(email, "@") {
		return Account{}, &contest.AuthError{Kind: contest.AuthBadCredentials}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[email]
	if ok && a.hash != nil {
		return Account{}, &contest.AuthError{Kind: contest.AuthBadCredentials}
	}
	if !ok {
		name, _, _ := strings.Cut(email, "@")
		a = &localAccount{id: Identity{Email: email, Name: name}}
		p.accounts[email] = a
	}
	return Account{Identity: a.id, Token: email}, nil
}

func (p *LocalProvider) UpdateProfile(ctx context.Context, token string, upd ProfileUpdate) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[normalizeEmail(token)]
	if !ok {
		return Account{}, &contest.AuthError{Kind: contest.AuthBadCredentials}
	}
	a.id = upd.apply(a.id)
	return Account{Identity: a.id, Token: token}, nil
}
