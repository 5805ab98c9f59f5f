package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	gh "github.com/google/go-github/v68/github"

	"github.com/byte4ever/folderpush/git"
)

// Config holds the settings needed to create a GitHub
// store or lister.
type Config struct {
	// RepoOwner is the GitHub user or organisation
	// that owns the repository.
	RepoOwner string
	// Repo is the repository name (without owner).
	Repo string
	// AccessToken is an OAuth, personal access or
	// GitHub App token used for authentication.
	AccessToken string
	// EnterpriseHost is an optional GitHub Enterprise
	// hostname (e.g. "git.corp.example.com"). Leave
	// empty for github.com.
	EnterpriseHost string
	// BaseURL is an optional full API root (e.g.
	// "http://127.0.0.1:8080/"). It takes precedence
	// over EnterpriseHost.
	BaseURL string
}

// Provider talks to one GitHub repository.
//
// Pattern: Strategy -- implements git.Store and
// git.Lister.
type Provider struct {
	client    *gh.Client
	repoOwner string
	repo      string
}

var (
	_ git.Store             = (*Provider)(nil)
	_ git.Lister            = (*Provider)(nil)
	_ git.EmptyRepoDetector = (*Provider)(nil)
)

// NewProvider validates cfg and returns a Provider
// ready to build commits in RepoOwner/Repo.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating github provider"

	if cfg.RepoOwner == "" {
		return nil, fmt.Errorf(
			"%s: repo owner must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &Provider{
		client:    client,
		repoOwner: cfg.RepoOwner,
		repo:      cfg.Repo,
	}, nil
}

// NewLister validates cfg and returns a Provider that
// only serves account calls. RepoOwner and Repo are
// not required.
func NewLister(cfg Config) (*Provider, error) {
	const errCtx = "creating github lister"

	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &Provider{client: client}, nil
}

func newClient(cfg Config) (*gh.Client, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("access token must be set")
	}

	client := gh.NewClient(nil).
		WithAuthToken(cfg.AccessToken)

	switch {
	case cfg.BaseURL != "":
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}

		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("base url: %w", err)
		}

		client.BaseURL = u

	case cfg.EnterpriseHost != "":
		baseURL := "https://" +
			cfg.EnterpriseHost + "/api/v3/"
		uploadURL := "https://" +
			cfg.EnterpriseHost + "/api/uploads/"

		var err error

		client, err = client.WithEnterpriseURLs(
			baseURL, uploadURL,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"enterprise urls: %w", err,
			)
		}
	}

	return client, nil
}

// IsEmptyRepo reports the 409 Conflict GitHub returns
// for ref lookups in a repository with no commits.
func (p *Provider) IsEmptyRepo(err error) bool {
	return git.StatusCode(err) == http.StatusConflict
}

// BranchHead returns the commit SHA of branch.
func (p *Provider) BranchHead(
	ctx context.Context,
	branch string,
) (string, error) {
	const errCtx = "getting github ref"

	ref, resp, err := p.client.Git.GetRef(
		ctx, p.repoOwner, p.repo, "heads/"+branch,
	)
	if err != nil {
		return "", wrap(errCtx, resp, err)
	}

	return ref.GetObject().GetSHA(), nil
}

// CreateFile commits one file through the contents
// API.
func (p *Provider) CreateFile(
	ctx context.Context,
	branch string,
	path string,
	message string,
	content []byte,
) error {
	const errCtx = "creating github file"

	_, resp, err := p.client.Repositories.CreateFile(
		ctx, p.repoOwner, p.repo, path,
		&gh.RepositoryContentFileOptions{
			Message: gh.Ptr(message),
			Content: content,
			Branch:  gh.Ptr(branch),
		},
	)
	if err != nil {
		return wrap(errCtx, resp, err)
	}

	return nil
}

// CreateBlob stores content as utf-8 text, or base64
// when it is not valid UTF-8.
func (p *Provider) CreateBlob(
	ctx context.Context,
	content []byte,
) (string, error) {
	const errCtx = "creating github blob"

	blob := &gh.Blob{
		Content:  gh.Ptr(string(content)),
		Encoding: gh.Ptr("utf-8"),
	}

	if !utf8.Valid(content) {
		blob.Content = gh.Ptr(
			base64.StdEncoding.EncodeToString(content),
		)
		blob.Encoding = gh.Ptr("base64")
	}

	created, resp, err := p.client.Git.CreateBlob(
		ctx, p.repoOwner, p.repo, blob,
	)
	if err != nil {
		return "", wrap(errCtx, resp, err)
	}

	return created.GetSHA(), nil
}

// CommitTree returns the tree SHA of a commit.
func (p *Provider) CommitTree(
	ctx context.Context,
	commitID string,
) (string, error) {
	const errCtx = "getting github commit"

	commit, resp, err := p.client.Git.GetCommit(
		ctx, p.repoOwner, p.repo, commitID,
	)
	if err != nil {
		return "", wrap(errCtx, resp, err)
	}

	return commit.GetTree().GetSHA(), nil
}

// CreateTree creates a tree on top of baseTree.
func (p *Provider) CreateTree(
	ctx context.Context,
	baseTree string,
	entries []git.TreeEntry,
) (string, error) {
	const errCtx = "creating github tree"

	ghEntries := make([]*gh.TreeEntry, 0, len(entries))

	for _, e := range entries {
		ghEntries = append(ghEntries, &gh.TreeEntry{
			Path: gh.Ptr(e.Path),
			Mode: gh.Ptr(e.Mode),
			Type: gh.Ptr("blob"),
			SHA:  gh.Ptr(e.BlobID),
		})
	}

	tree, resp, err := p.client.Git.CreateTree(
		ctx, p.repoOwner, p.repo, baseTree, ghEntries,
	)
	if err != nil {
		return "", wrap(errCtx, resp, err)
	}

	return tree.GetSHA(), nil
}

// CreateCommit creates a commit object.
func (p *Provider) CreateCommit(
	ctx context.Context,
	message string,
	tree string,
	parents []string,
) (string, error) {
	const errCtx = "creating github commit"

	commit := &gh.Commit{
		Message: gh.Ptr(message),
		Tree:    &gh.Tree{SHA: gh.Ptr(tree)},
	}

	for _, sha := range parents {
		commit.Parents = append(
			commit.Parents, &gh.Commit{SHA: gh.Ptr(sha)},
		)
	}

	created, resp, err := p.client.Git.CreateCommit(
		ctx, p.repoOwner, p.repo, commit,
		&gh.CreateCommitOptions{},
	)
	if err != nil {
		return "", wrap(errCtx, resp, err)
	}

	return created.GetSHA(), nil
}

// CreateBranch creates refs/heads/<branch>.
func (p *Provider) CreateBranch(
	ctx context.Context,
	branch string,
	commitID string,
) error {
	const errCtx = "creating github ref"

	_, resp, err := p.client.Git.CreateRef(
		ctx, p.repoOwner, p.repo,
		&gh.Reference{
			Ref:    gh.Ptr("refs/heads/" + branch),
			Object: &gh.GitObject{SHA: gh.Ptr(commitID)},
		},
	)
	if err != nil {
		return wrap(errCtx, resp, err)
	}

	return nil
}

// UpdateBranch fast-forwards refs/heads/<branch>.
func (p *Provider) UpdateBranch(
	ctx context.Context,
	branch string,
	commitID string,
) error {
	const errCtx = "updating github ref"

	_, resp, err := p.client.Git.UpdateRef(
		ctx, p.repoOwner, p.repo,
		&gh.Reference{
			Ref:    gh.Ptr("refs/heads/" + branch),
			Object: &gh.GitObject{SHA: gh.Ptr(commitID)},
		},
		false,
	)
	if err != nil {
		return wrap(errCtx, resp, err)
	}

	return nil
}

// CurrentUser returns the token owner's profile.
func (p *Provider) CurrentUser(
	ctx context.Context,
) (*git.Account, error) {
	const errCtx = "getting github user"

	user, resp, err := p.client.Users.Get(ctx, "")
	if err != nil {
		return nil, wrap(errCtx, resp, err)
	}

	return &git.Account{
		ID:        user.GetID(),
		Login:     user.GetLogin(),
		Name:      user.GetName(),
		AvatarURL: user.GetAvatarURL(),
	}, nil
}

// Repositories lists every repository the token owner
// can see, public and private, across all pages.
func (p *Provider) Repositories(
	ctx context.Context,
) ([]git.Repository, error) {
	const errCtx = "listing github repositories"

	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Visibility:  "all",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var out []git.Repository

	for {
		repos, resp, err := p.client.Repositories.
			ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, wrap(errCtx, resp, err)
		}

		for _, r := range repos {
			out = append(out, git.Repository{
				ID:            r.GetID(),
				Name:          r.GetName(),
				FullName:      r.GetFullName(),
				Owner:         git.Owner{Login: r.GetOwner().GetLogin()},
				Private:       r.GetPrivate(),
				DefaultBranch: r.GetDefaultBranch(),
			})
		}

		if resp.NextPage == 0 {
			break
		}

		opts.Page = resp.NextPage
	}

	return out, nil
}

// wrap turns a client error into a *git.StatusError
// when GitHub answered, logging the response body for
// debugging.
func wrap(op string, resp *gh.Response, err error) error {
	if resp == nil || resp.Response == nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if resp.Body != nil {
		defer resp.Body.Close() //nolint:errcheck

		rb, readErr := io.ReadAll(resp.Body)
		if readErr == nil && len(rb) > 0 {
			slog.Warn(
				"github response",
				"op", op,
				"status", resp.StatusCode,
				"body", string(rb),
			)
		}
	}

	return &git.StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Err:        err,
	}
}
