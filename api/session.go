package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/byte4ever/folderpush/git"
)

// Session is the client-side state of one user: the
// access token, the selected repository and the
// folder to upload.
type Session struct {
	client *Client

	Token      string
	Repo       *git.Repository
	FolderPath string
	BaseBranch string
}

// NewSession returns an unauthenticated session
// talking through c.
func NewSession(c *Client) *Session {
	return &Session{client: c}
}

// LoginURL returns the page where the user authorizes
// the application. The platform sends the user back
// with a code for Login.
func (s *Session) LoginURL(
	ctx context.Context,
	state string,
) (string, error) {
	return s.client.LoginURL(ctx, state)
}

// Login exchanges code and keeps the resulting token.
func (s *Session) Login(ctx context.Context, code string) error {
	tok, err := s.client.Authenticate(ctx, code)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	s.Token = tok

	return nil
}

// Logout forgets the token and selection.
func (s *Session) Logout() {
	s.Token = ""
	s.Repo = nil
	s.FolderPath = ""
	s.BaseBranch = ""
}

// Repositories lists the repositories the session can
// select from.
func (s *Session) Repositories(
	ctx context.Context,
) ([]git.Repository, error) {
	if s.Token == "" {
		return nil, errors.New("listing repositories: not logged in")
	}

	return s.client.Repos(ctx, s.Token)
}

// Select makes repo the upload target.
func (s *Session) Select(repo git.Repository) {
	s.Repo = &repo
}

// UploadRequest builds the request for the current
// selection. The base branch defaults to the selected
// repository's default branch.
func (s *Session) UploadRequest() (UploadRequest, error) {
	const errCtx = "building upload request"

	switch {
	case s.Token == "":
		return UploadRequest{}, fmt.Errorf(
			"%s: not logged in", errCtx,
		)
	case s.Repo == nil:
		return UploadRequest{}, fmt.Errorf(
			"%s: no repository selected", errCtx,
		)
	case s.FolderPath == "":
		return UploadRequest{}, fmt.Errorf(
			"%s: folder path must be set", errCtx,
		)
	}

	base := s.BaseBranch
	if base == "" {
		base = s.Repo.DefaultBranch
	}

	return UploadRequest{
		Token:      s.Token,
		RepoOwner:  s.Repo.Owner.Login,
		RepoName:   s.Repo.Name,
		FolderPath: s.FolderPath,
		MainBranch: base,
	}, nil
}

// Upload uploads the selected folder and returns the
// new branch.
func (s *Session) Upload(ctx context.Context) (string, error) {
	req, err := s.UploadRequest()
	if err != nil {
		return "", err
	}

	return s.client.Upload(ctx, req)
}
