package gitlab

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"unicode/utf8"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/byte4ever/folderpush/digester"
	"github.com/byte4ever/folderpush/git"
)

// Config holds the settings needed to create a GitLab
// store or lister.
type Config struct {
	// Host is the base URL of the GitLab instance
	// (e.g. "https://gitlab.com").
	Host string
	// Repo is the full project path
	// (e.g. "org/project") or numeric id.
	Repo string
	// AccessToken is sent as "Authorization: Bearer",
	// which GitLab accepts for OAuth access tokens as
	// well as personal, project and group tokens.
	AccessToken string
}

// Provider talks to one GitLab project.
//
// Pattern: Strategy -- implements git.Store and
// git.Lister.
type Provider struct {
	client *gl.Client
	repo   string

	mu      sync.Mutex
	blobs   map[string][]byte
	trees   map[string]stagedTree
	commits map[string]stagedCommit
}

type stagedTree struct {
	base    string
	actions []*gl.CommitActionOptions
}

type stagedCommit struct {
	message string
	tree    string
	parents []string
}

var (
	_ git.Store             = (*Provider)(nil)
	_ git.Lister            = (*Provider)(nil)
	_ git.EmptyRepoDetector = (*Provider)(nil)
)

// NewProvider validates cfg and returns a Provider
// ready to build commits in Repo.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating gitlab provider"

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
		client:  client,
		repo:    cfg.Repo,
		blobs:   make(map[string][]byte),
		trees:   make(map[string]stagedTree),
		commits: make(map[string]stagedCommit),
	}, nil
}

// NewLister validates cfg and returns a Provider that
// only serves account calls. Repo is not required.
func NewLister(cfg Config) (*Provider, error) {
	const errCtx = "creating gitlab lister"

	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &Provider{client: client}, nil
}

func newClient(cfg Config) (*gl.Client, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("access token must be set")
	}

	host := cfg.Host
	if host == "" {
		host = "https://gitlab.com"
	}

	client, err := gl.NewOAuthClient(
		cfg.AccessToken,
		gl.WithBaseURL(host),
	)
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}

	return client, nil
}

// IsEmptyRepo matches the error BranchHead returns
// for a project without commits.
func (p *Provider) IsEmptyRepo(err error) bool {
	return git.IsEmptyRepository(err)
}

// BranchHead returns the commit id of branch. A 404 on
// a project flagged empty_repo wraps
// git.ErrEmptyRepository.
func (p *Provider) BranchHead(
	ctx context.Context,
	branch string,
) (string, error) {
	const errCtx = "getting gitlab branch"

	b, resp, err := p.client.Branches.GetBranch(
		p.repo, branch, gl.WithContext(ctx),
	)
	if err != nil {
		if resp != nil && resp.Response != nil &&
			resp.StatusCode == http.StatusNotFound &&
			p.projectEmpty(ctx) {
			return "", fmt.Errorf(
				"%s: %w", errCtx, git.ErrEmptyRepository,
			)
		}

		return "", wrap(errCtx, resp, err)
	}

	if b.Commit == nil {
		return "", fmt.Errorf(
			"%s: branch %s has no commit", errCtx, branch,
		)
	}

	return b.Commit.ID, nil
}

func (p *Provider) projectEmpty(ctx context.Context) bool {
	proj, _, err := p.client.Projects.GetProject(
		p.repo, nil, gl.WithContext(ctx),
	)
	if err != nil {
		slog.Warn(
			"cannot inspect gitlab project",
			"repo", p.repo,
			"error", err,
		)

		return false
	}

	return proj.EmptyRepo
}

// CreateFile commits one file through the repository
// files API. On an empty project this creates branch.
func (p *Provider) CreateFile(
	ctx context.Context,
	branch string,
	path string,
	message string,
	content []byte,
) error {
	const errCtx = "creating gitlab file"

	text, encoding := encode(content)

	_, resp, err := p.client.RepositoryFiles.CreateFile(
		p.repo, path,
		&gl.CreateFileOptions{
			Branch:        gl.Ptr(branch),
			Content:       gl.Ptr(text),
			Encoding:      gl.Ptr(encoding),
			CommitMessage: gl.Ptr(message),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return wrap(errCtx, resp, err)
	}

	return nil
}

// CreateBlob stages content under its git blob id.
func (p *Provider) CreateBlob(
	_ context.Context,
	content []byte,
) (string, error) {
	id := digester.BlobID(content)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.blobs[id] = append([]byte(nil), content...)

	return id, nil
}

// CommitTree returns commitID: GitLab trees are
// addressed through the commit that holds them.
func (p *Provider) CommitTree(
	_ context.Context,
	commitID string,
) (string, error) {
	return commitID, nil
}

// CreateTree stages the commit actions that turn the
// tree of baseTree into the requested one. Paths
// already present in the base are updated, others are
// created.
func (p *Provider) CreateTree(
	ctx context.Context,
	baseTree string,
	entries []git.TreeEntry,
) (string, error) {
	const errCtx = "staging gitlab tree"

	existing := make(map[string]struct{})

	if baseTree != "" {
		var err error

		existing, err = p.listPaths(ctx, baseTree)
		if err != nil {
			return "", fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	sorted := append([]git.TreeEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	parts := []string{"tree", baseTree}
	actions := make([]*gl.CommitActionOptions, 0, len(sorted))

	for _, e := range sorted {
		content, ok := p.blobs[e.BlobID]
		if !ok {
			return "", fmt.Errorf(
				"%s: blob %s was not staged",
				errCtx, e.BlobID,
			)
		}

		action := gl.FileCreate
		if _, ok := existing[e.Path]; ok {
			action = gl.FileUpdate
		}

		text, encoding := encode(content)

		actions = append(actions, &gl.CommitActionOptions{
			Action:   gl.Ptr(action),
			FilePath: gl.Ptr(e.Path),
			Content:  gl.Ptr(text),
			Encoding: gl.Ptr(encoding),
		})
		parts = append(parts, e.Path, e.Mode, e.BlobID)
	}

	id := digester.Sum(parts...)
	p.trees[id] = stagedTree{
		base:    baseTree,
		actions: actions,
	}

	return id, nil
}

// CreateCommit stages a commit of tree on parents.
func (p *Provider) CreateCommit(
	_ context.Context,
	message string,
	tree string,
	parents []string,
) (string, error) {
	parts := append(
		[]string{"commit", message, tree}, parents...,
	)
	id := digester.Sum(parts...)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.commits[id] = stagedCommit{
		message: message,
		tree:    tree,
		parents: append([]string(nil), parents...),
	}

	return id, nil
}

// CreateBranch creates branch at an existing commit.
func (p *Provider) CreateBranch(
	ctx context.Context,
	branch string,
	commitID string,
) error {
	const errCtx = "creating gitlab branch"

	_, resp, err := p.client.Branches.CreateBranch(
		p.repo,
		&gl.CreateBranchOptions{
			Branch: gl.Ptr(branch),
			Ref:    gl.Ptr(commitID),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return wrap(errCtx, resp, err)
	}

	return nil
}

// UpdateBranch materializes a staged commit on branch,
// which must currently point at the commit's parent.
// A staged commit that changes nothing leaves the
// branch in place.
func (p *Provider) UpdateBranch(
	ctx context.Context,
	branch string,
	commitID string,
) error {
	const errCtx = "updating gitlab branch"

	p.mu.Lock()
	commit, ok := p.commits[commitID]
	tree := p.trees[commit.tree]
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf(
			"%s: commit %s was not staged",
			errCtx, commitID,
		)
	}

	if len(tree.actions) == 0 {
		slog.Info(
			"no changes to commit",
			"branch", branch,
		)

		return nil
	}

	created, resp, err := p.client.Commits.CreateCommit(
		p.repo,
		&gl.CreateCommitOptions{
			Branch:        gl.Ptr(branch),
			CommitMessage: gl.Ptr(commit.message),
			Actions:       tree.actions,
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return wrap(errCtx, resp, err)
	}

	slog.Info(
		"created gitlab commit",
		"branch", branch,
		"id", created.ID,
		"url", created.WebURL,
	)

	return nil
}

// listPaths returns every file path in the tree of
// ref, across all pages.
func (p *Provider) listPaths(
	ctx context.Context,
	ref string,
) (map[string]struct{}, error) {
	const errCtx = "listing gitlab tree"

	opt := &gl.ListTreeOptions{
		ListOptions: gl.ListOptions{PerPage: 100},
		Ref:         gl.Ptr(ref),
		Recursive:   gl.Ptr(true),
	}

	paths := make(map[string]struct{})

	for {
		nodes, resp, err := p.client.Repositories.ListTree(
			p.repo, opt, gl.WithContext(ctx),
		)
		if err != nil {
			return nil, wrap(errCtx, resp, err)
		}

		for _, n := range nodes {
			if n.Type == "blob" {
				paths[n.Path] = struct{}{}
			}
		}

		if resp.NextPage == 0 {
			break
		}

		opt.Page = resp.NextPage
	}

	return paths, nil
}

// CurrentUser returns the token owner's profile.
func (p *Provider) CurrentUser(
	ctx context.Context,
) (*git.Account, error) {
	const errCtx = "getting gitlab user"

	user, resp, err := p.client.Users.CurrentUser(
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, wrap(errCtx, resp, err)
	}

	return &git.Account{
		ID:        int64(user.ID),
		Login:     user.Username,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}, nil
}

// Repositories lists every project the token owner is
// a member of, across all pages.
func (p *Provider) Repositories(
	ctx context.Context,
) ([]git.Repository, error) {
	const errCtx = "listing gitlab projects"

	opt := &gl.ListProjectsOptions{
		ListOptions: gl.ListOptions{PerPage: 100},
		Membership:  gl.Ptr(true),
	}

	var out []git.Repository

	for {
		projects, resp, err := p.client.Projects.ListProjects(
			opt, gl.WithContext(ctx),
		)
		if err != nil {
			return nil, wrap(errCtx, resp, err)
		}

		for _, pr := range projects {
			owner := ""
			if pr.Namespace != nil {
				owner = pr.Namespace.FullPath
			}

			out = append(out, git.Repository{
				ID:            int64(pr.ID),
				Name:          pr.Path,
				FullName:      pr.PathWithNamespace,
				Owner:         git.Owner{Login: owner},
				Private:       pr.Visibility != gl.PublicVisibility,
				DefaultBranch: pr.DefaultBranch,
			})
		}

		if resp.NextPage == 0 {
			break
		}

		opt.Page = resp.NextPage
	}

	return out, nil
}

// encode returns content as text, or base64 when it is
// not valid UTF-8, with the matching GitLab encoding.
func encode(content []byte) (string, string) {
	if utf8.Valid(content) {
		return string(content), "text"
	}

	return base64.StdEncoding.EncodeToString(content), "base64"
}

// wrap turns a client error into a *git.StatusError
// when GitLab answered, logging the response body for
// debugging.
func wrap(op string, resp *gl.Response, err error) error {
	if resp == nil || resp.Response == nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if resp.Body != nil {
		defer resp.Body.Close() //nolint:errcheck

		rb, readErr := io.ReadAll(resp.Body)
		if readErr == nil && len(rb) > 0 {
			slog.Warn(
				"gitlab response",
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
