package platform

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/gitlab"

	"github.com/byte4ever/folderpush/auth"
	"github.com/byte4ever/folderpush/config"
	"github.com/byte4ever/folderpush/git"
	ghprov "github.com/byte4ever/folderpush/git/github"
	glprov "github.com/byte4ever/folderpush/git/gitlab"
	"github.com/byte4ever/folderpush/upload"
)

// Platform creates backend objects for one configured
// hosting platform.
type Platform struct {
	cfg config.Config
}

// New validates cfg and returns a Platform.
func New(cfg config.Config) (*Platform, error) {
	const errCtx = "creating platform"

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &Platform{cfg: cfg}, nil
}

// Name returns the configured platform name.
func (p *Platform) Name() string {
	return p.cfg.Platform
}

// Store returns a git.Store for owner/repo acting with
// token.
func (p *Platform) Store(
	token string,
	owner string,
	repo string,
) (git.Store, error) {
	const errCtx = "creating store"

	var (
		st  git.Store
		err error
	)

	switch p.cfg.Platform {
	case config.PlatformGitLab:
		st, err = glprov.NewProvider(glprov.Config{
			Host:        p.cfg.Host,
			Repo:        projectPath(owner, repo),
			AccessToken: token,
		})
	default:
		st, err = ghprov.NewProvider(ghprov.Config{
			RepoOwner:      owner,
			Repo:           repo,
			AccessToken:    token,
			EnterpriseHost: p.cfg.Host,
			BaseURL:        p.cfg.BaseURL,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return st, nil
}

// Lister returns a git.Lister acting with token.
func (p *Platform) Lister(token string) (git.Lister, error) {
	const errCtx = "creating lister"

	var (
		ls  git.Lister
		err error
	)

	switch p.cfg.Platform {
	case config.PlatformGitLab:
		ls, err = glprov.NewLister(glprov.Config{
			Host:        p.cfg.Host,
			AccessToken: token,
		})
	default:
		ls, err = ghprov.NewLister(ghprov.Config{
			AccessToken:    token,
			EnterpriseHost: p.cfg.Host,
			BaseURL:        p.cfg.BaseURL,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return ls, nil
}

// Endpoint returns the OAuth endpoint of the platform.
// Explicit URLs in the OAuth settings win.
func (p *Platform) Endpoint() oauth2.Endpoint {
	ep := p.defaultEndpoint()

	if p.cfg.OAuth.AuthURL != "" {
		ep.AuthURL = p.cfg.OAuth.AuthURL
	}

	if p.cfg.OAuth.TokenURL != "" {
		ep.TokenURL = p.cfg.OAuth.TokenURL
	}

	return ep
}

func (p *Platform) defaultEndpoint() oauth2.Endpoint {
	switch p.cfg.Platform {
	case config.PlatformGitLab:
		if p.cfg.Host == "" {
			return gitlab.Endpoint
		}

		host := strings.TrimSuffix(p.cfg.Host, "/")

		return oauth2.Endpoint{
			AuthURL:  host + "/oauth/authorize",
			TokenURL: host + "/oauth/token",
		}
	default:
		if p.cfg.Host == "" {
			return github.Endpoint
		}

		host := "https://" + strings.TrimSuffix(p.cfg.Host, "/")

		return oauth2.Endpoint{
			AuthURL:   host + "/login/oauth/authorize",
			TokenURL:  host + "/login/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
	}
}

// Exchanger returns the OAuth code exchanger.
func (p *Platform) Exchanger() (*auth.Exchanger, error) {
	const errCtx = "creating platform exchanger"

	ex, err := auth.NewExchanger(auth.Config{
		ClientID:     p.cfg.OAuth.ClientID,
		ClientSecret: p.cfg.OAuth.ClientSecret,
		RedirectURL:  p.cfg.OAuth.RedirectURL,
		Scopes:       p.cfg.OAuth.Scopes,
		Endpoint:     p.Endpoint(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return ex, nil
}

// UploadConfig returns upload settings for one request,
// filled with the configured defaults. An empty
// baseBranch selects the configured one.
func (p *Platform) UploadConfig(
	store git.Store,
	repo string,
	baseBranch string,
	folderPath string,
) upload.Config {
	u := p.cfg.Upload

	if baseBranch == "" {
		baseBranch = u.BaseBranch
	}

	cfg := upload.Config{
		Store:           store,
		Repo:            repo,
		BaseBranch:      baseBranch,
		FolderPath:      folderPath,
		BranchPrefix:    u.BranchPrefix,
		MessageTemplate: u.MessageTemplate,
		ReadmePath:      u.ReadmePath,
		ReadmeTemplate:  u.ReadmeTemplate,
		Description:     u.Description,
		Parallelism:     u.Parallelism,
		Ignore:          u.Ignore,
	}

	if u.EmptyRepoStatus != 0 {
		cfg.EmptyRepo = git.StatusIs(u.EmptyRepoStatus)
	}

	return cfg
}

func projectPath(owner, repo string) string {
	if owner == "" {
		return repo
	}

	return owner + "/" + repo
}
