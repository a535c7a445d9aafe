package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"skillspire/internal/contest"
)

// Image is a file the user picked in a form.
type Image struct {
	Name string
	Body io.Reader
}

// Uploader posts images to an imgbb-compatible host and returns their
// public URL.
type Uploader struct {
	endpoint string
	key      string
	http     *http.Client
}

func New(endpoint, key string) *Uploader {
	return &Uploader{endpoint: endpoint, key: key, http: http.DefaultClient}
}

type uploadResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
	} `json:"data"`
}

func (u *Uploader) Upload(ctx context.Context, img Image) (string, error) {
	if img.Body == nil {
		return "", &contest.ValidationError{Field: "image", Reason: "is required"}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", img.Name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, img.Body); err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	target, err := url.Parse(u.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse image host url: %w", err)
	}
	q := target.Query()
	q.Set("key", u.key)
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.http.Do(req)
	if err != nil {
		return "", &contest.TransientError{Op: "image upload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &contest.TransientError{Op: "image upload", Err: errors.New(resp.Status)}
	}
	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &contest.TransientError{Op: "image upload", Err: err}
	}
	if out.Data.URL == "" {
		return "", &contest.TransientError{Op: "image upload", Err: errors.New("host returned no url")}
	}
	return out.Data.URL, nil
}
