package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"skillspire/internal/contest"
)

const firebaseBaseURL = "https://identitytoolkit.googleapis.com/v1"

// FirebaseProvider talks to the Identity Toolkit REST API.
type FirebaseProvider struct {
	BaseURL string
	// RequestURI is sent with federated sign-ins; any URL the project
	// authorizes will do.
	RequestURI string

	key  string
	http *http.Client
}

func NewFirebaseProvider(apiKey string) *FirebaseProvider {
	return &FirebaseProvider{
		BaseURL:    firebaseBaseURL,
		RequestURI: "http://localhost",
		key:        apiKey,
		http:       http.DefaultClient,
	}
}

type firebaseAccount struct {
	IDToken        string `json:"idToken"`
	Email          string `json:"email"`
	DisplayName    string `json:"displayName"`
	PhotoURL       string `json:"photoUrl"`
	ProfilePicture string `json:"profilePicture"`
}

func (a firebaseAccount) account() Account {
	photo := a.PhotoURL
	if photo == "" {
		photo = a.ProfilePicture
	}
	return Account{
		Identity: Identity{Email: normalizeEmail(a.Email), Name: a.DisplayName, Photo: photo},
		Token:    a.IDToken,
	}
}

type firebaseError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// authKind maps Identity Toolkit error codes. Messages look like
// "WEAK_PASSWORD : Password should be at least 6 characters".
func authKind(status int, message string) contest.AuthKind {
	code, _, _ := strings.Cut(message, " ")
	switch code {
	case "EMAIL_EXISTS":
		return contest.AuthEmailInUse
	case "WEAK_PASSWORD":
		return contest.AuthWeakPassword
	case "INVALID_IDP_RESPONSE", "USER_CANCELLED", "MISSING_OR_INVALID_NONCE":
		return contest.AuthProviderCancelled
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS",
		"USER_DISABLED", "INVALID_EMAIL", "INVALID_ID_TOKEN", "TOKEN_EXPIRED",
		"MISSING_PASSWORD", "TOO_MANY_ATTEMPTS_TRY_LATER":
		return contest.AuthBadCredentials
	}
	if status >= 500 {
		return contest.AuthNetwork
	}
	return contest.AuthBadCredentials
}

func (p *FirebaseProvider) call(ctx context.Context, method string, body any) (Account, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return Account{}, err
	}
	u := strings.TrimRight(p.BaseURL, "/") + "/accounts:" + method + "?key=" + url.QueryEscape(p.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(buf))
	if err != nil {
		return Account{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return Account{}, &contest.AuthError{Kind: contest.AuthNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var fe firebaseError
		if err := json.NewDecoder(resp.Body).Decode(&fe); err != nil || fe.Error.Message == "" {
			return Account{}, &contest.AuthError{
				Kind: authKind(resp.StatusCode, ""),
				Err:  fmt.Errorf("identity toolkit %s: %s", method, resp.Status),
			}
		}
		return Account{}, &contest.AuthError{
			Kind: authKind(resp.StatusCode, fe.Error.Message),
			Err:  errors.New(fe.Error.Message),
		}
	}

	var fa firebaseAccount
	if err := json.NewDecoder(resp.Body).Decode(&fa); err != nil {
		return Account{}, &contest.AuthError{Kind: contest.AuthNetwork, Err: fmt.Errorf("decode %s: %w", method, err)}
	}
	return fa.account(), nil
}

func (p *FirebaseProvider) Register(ctx context.Context, email, password string) (Account, error) {
	if len(password) < minPasswordLen {
		return Account{}, &contest.AuthError{Kind: contest.AuthWeakPassword}
	}
	return p.call(ctx, "signUp", map[string]any{
		"email": email, "password": password, "returnSecureToken": true,
	})
}

func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (Account, error) {
	return p.call(ctx, "signInWithPassword", map[string]any{
		"email": email, "password": password, "returnSecureToken": true,
	})
}

// SignInWithProvider exchanges a Google id token obtained by the browser.
func (p *FirebaseProvider) SignInWithProvider(ctx context.Context, providerToken string) (Account, error) {
	if strings.TrimSpace(providerToken) == "" {
		return Account{}, &contest.AuthError{Kind: contest.AuthProviderCancelled}
	}
	post := url.Values{"id_token": {providerToken}, "providerId": {"google.com"}}
	return p.call(ctx, "signInWithIdp", map[string]any{
		"postBody":            post.Encode(),
		"requestUri":          p.RequestURI,
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	})
}

func (p *FirebaseProvider) UpdateProfile(ctx context.Context, token string, upd ProfileUpdate) (Account, error) {
	body := map[string]any{"idToken": token, "returnSecureToken": true}
	if upd.Name != "" {
		body["displayName"] = upd.Name
	}
	if upd.Photo != "" {
		body["photoUrl"] = upd.Photo
	}
	a, err := p.call(ctx, "update", body)
	if err != nil {
		return Account{}, err
	}
	if a.Token == "" {
		a.Token = token
	}
	return a, nil
}
