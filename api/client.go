package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/folderpush/git"
)

// Client calls a folderpush API server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the server at baseURL
// (e.g. "http://localhost:5000"). A nil hc selects
// http.DefaultClient.
func NewClient(baseURL string, hc *http.Client) (*Client, error) {
	const errCtx = "creating api client"

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf(
			"%s: base url must be absolute: %q",
			errCtx, baseURL,
		)
	}

	if hc == nil {
		hc = http.DefaultClient
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    hc,
	}, nil
}

// LoginURL returns the platform authorization page
// carrying state.
func (c *Client) LoginURL(
	ctx context.Context,
	state string,
) (string, error) {
	const errCtx = "getting login url"

	var resp LoginURLResponse

	err := c.do(
		ctx, http.MethodGet,
		"/api/login-url?state="+url.QueryEscape(state),
		"", nil, &resp,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return resp.URL, nil
}

// Authenticate exchanges an OAuth code for a token.
func (c *Client) Authenticate(
	ctx context.Context,
	code string,
) (string, error) {
	const errCtx = "authenticating"

	var resp AuthResponse

	err := c.do(
		ctx, http.MethodPost, "/api/authenticate", "",
		AuthRequest{Code: code}, &resp,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return resp.AccessToken, nil
}

// Upload asks the server to upload a folder and
// returns the created branch.
func (c *Client) Upload(
	ctx context.Context,
	req UploadRequest,
) (string, error) {
	const errCtx = "requesting upload"

	var resp UploadResponse

	err := c.do(
		ctx, http.MethodPost, "/api/upload-to-github", "",
		req, &resp,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return resp.Branch, nil
}

// User returns the profile of the token owner.
func (c *Client) User(
	ctx context.Context,
	token string,
) (*git.Account, error) {
	const errCtx = "getting user"

	var acct git.Account

	err := c.do(
		ctx, http.MethodGet, "/api/user", token, nil, &acct,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &acct, nil
}

// Repos lists the repositories of the token owner.
func (c *Client) Repos(
	ctx context.Context,
	token string,
) ([]git.Repository, error) {
	const errCtx = "listing repos"

	var repos []git.Repository

	err := c.do(
		ctx, http.MethodGet, "/api/repos", token, nil, &repos,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return repos, nil
}

// do sends one request. Non-2xx answers become a
// *git.StatusError carrying the server message.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	token string,
	in any,
	out any,
) error {
	var body io.Reader

	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}

		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(
		ctx, method, c.baseURL+path, body,
	)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er ErrorResponse

		msg := resp.Status
		if json.NewDecoder(resp.Body).Decode(&er) == nil &&
			er.Error != "" {
			msg = er.Error
		}

		return &git.StatusError{
			Op:         method + " " + path,
			StatusCode: resp.StatusCode,
			Err:        errors.New(msg),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
