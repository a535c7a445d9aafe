package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"skillspire/internal/contest"
)

// Client talks to the contest backend on behalf of one session. Session
// credentials are the cookies the backend sets (POST /jwt), kept in the
// client's own jar.
type Client struct {
	base *url.URL
	http *http.Client
}

// New builds a client with a fresh cookie jar. A zero timeout keeps the
// transport default.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		base: u,
		http: &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

// Fork returns a client for the same backend with an empty cookie jar.
func (c *Client) Fork() *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		base: c.base,
		http: &http.Client{Jar: jar, Timeout: c.http.Timeout, Transport: c.http.Transport},
	}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := method + " " + path

	u := *c.base
	u.RawPath = c.base.EscapedPath() + path
	if p, err := url.PathUnescape(u.RawPath); err == nil {
		u.Path = p
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", op, err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &contest.TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(op, path, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &contest.TransientError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func statusError(op, path string, resp *http.Response) error {
	var ae apiError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&ae)
	msg := ae.Error
	if msg == "" {
		msg = ae.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return contest.ErrUnauthorized
	case http.StatusNotFound:
		res, id := resourceOf(path)
		return &contest.NotFoundError{Resource: res, ID: id}
	case http.StatusConflict:
		if msg == "" {
			msg = "conflict"
		}
		return &contest.ConflictError{Reason: msg}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if msg == "" {
			msg = "rejected by backend"
		}
		return &contest.ValidationError{Field: "request", Reason: msg}
	}
	if msg == "" {
		msg = resp.Status
	}
	return &contest.TransientError{Op: op, Err: errors.New(msg)}
}

// resourceOf splits /contests/42/register into ("contest", "42").
func resourceOf(path string) (string, string) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	res := strings.TrimSuffix(segs[0], "s")
	if len(segs) < 2 {
		return res, ""
	}
	id, err := url.PathUnescape(segs[1])
	if err != nil {
		id = segs[1]
	}
	return res, id
}

func esc(s string) string { return url.PathEscape(s) }
