package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Supported platforms.
const (
	PlatformGitHub = "github"
	PlatformGitLab = "gitlab"
)

// Environment variables overriding file values.
const (
	EnvClientID     = "FOLDERPUSH_OAUTH_CLIENT_ID"
	EnvClientSecret = "FOLDERPUSH_OAUTH_CLIENT_SECRET"
	EnvListen       = "FOLDERPUSH_LISTEN"
)

// Config is the root of the configuration file.
type Config struct {
	// Platform is "github" or "gitlab".
	Platform string `yaml:"platform"`

	// Host is the GitHub Enterprise hostname or the
	// GitLab instance URL. Empty means the public
	// service.
	Host string `yaml:"host"`

	// BaseURL points the GitHub client at another
	// REST root, mostly for tests and proxies.
	BaseURL string `yaml:"base_url"`

	Server Server `yaml:"server"`
	OAuth  OAuth  `yaml:"oauth"`
	Upload Upload `yaml:"upload"`
	Log    Log    `yaml:"log"`
}

// Server configures the HTTP API.
type Server struct {
	// Listen is the TCP address to bind.
	Listen string `yaml:"listen"`

	// AllowedOrigins may call the API from a browser.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedRoot, when set, restricts upload folder
	// paths to this directory.
	AllowedRoot string `yaml:"allowed_root"`
}

// OAuth configures the authorization code exchange.
type OAuth struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`

	// AuthURL and TokenURL override the platform
	// endpoint.
	AuthURL  string `yaml:"auth_url"`
	TokenURL string `yaml:"token_url"`
}

// Upload holds defaults applied to every upload.
type Upload struct {
	BaseBranch      string   `yaml:"base_branch"`
	BranchPrefix    string   `yaml:"branch_prefix"`
	MessageTemplate string   `yaml:"message_template"`
	ReadmePath      string   `yaml:"readme_path"`
	ReadmeTemplate  string   `yaml:"readme_template"`
	Description     string   `yaml:"description"`
	Parallelism     int      `yaml:"parallelism"`
	Ignore          []string `yaml:"ignore"`

	// EmptyRepoStatus, when non-zero, replaces the
	// platform's empty repository detection with a
	// match on this HTTP status.
	EmptyRepoStatus int `yaml:"empty_repo_status"`
}

// Log configures the process-wide slog handler.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Platform: PlatformGitHub,
		Server: Server{
			Listen: ":5000",
			AllowedOrigins: []string{
				"http://localhost:3000",
			},
		},
		OAuth: OAuth{
			RedirectURL: "http://localhost:3000",
			Scopes: []string{
				"repo", "user:email", "read:user",
			},
		},
		Upload: Upload{
			BaseBranch:   "main",
			BranchPrefix: "build-",
			ReadmePath:   "README.md",
			Parallelism:  8,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path on top of Default, applies
// environment overrides and validates the result. An
// empty path skips the file.
func Load(path string) (Config, error) {
	const errCtx = "loading config"

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		cfg, err = Parse(bytes.NewReader(raw))
		if err != nil {
			return Config{}, fmt.Errorf(
				"%s: %s: %w", errCtx, path, err,
			)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return cfg, nil
}

// Parse decodes YAML from in on top of Default.
// Unknown keys are rejected.
func Parse(in io.Reader) (Config, error) {
	const errCtx = "parsing config"

	cfg := Default()

	err := yaml.NewDecoder(in, yaml.Strict()).Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	return cfg, nil
}

// ApplyEnv overrides secrets and the listen address
// from the environment through lookup.
func (c *Config) ApplyEnv(
	lookup func(string) (string, bool),
) {
	if v, ok := lookup(EnvClientID); ok {
		c.OAuth.ClientID = v
	}

	if v, ok := lookup(EnvClientSecret); ok {
		c.OAuth.ClientSecret = v
	}

	if v, ok := lookup(EnvListen); ok {
		c.Server.Listen = v
	}
}

// Validate checks the settings needed by every
// binary. OAuth credentials are checked when the
// exchanger is built.
func (c *Config) Validate() error {
	const errCtx = "validating config"

	switch c.Platform {
	case PlatformGitHub, PlatformGitLab:
	default:
		return fmt.Errorf(
			"%s: unsupported platform %q",
			errCtx, c.Platform,
		)
	}

	if c.Upload.Parallelism < 1 {
		return fmt.Errorf(
			"%s: upload parallelism must be positive",
			errCtx,
		)
	}

	if c.Upload.BaseBranch == "" {
		return fmt.Errorf(
			"%s: upload base branch must be set", errCtx,
		)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf(
			"%s: unsupported log format %q",
			errCtx, c.Log.Format,
		)
	}

	return nil
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level

	err := lvl.UnmarshalText([]byte(strings.ToUpper(l.Level)))
	if err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}

	return lvl, nil
}

// Handler returns a slog handler writing to w with the
// configured level and format. Call after Validate.
func (l Log) Handler(w io.Writer) slog.Handler {
	lvl, _ := l.SlogLevel() //nolint:errcheck

	opts := &slog.HandlerOptions{Level: lvl}

	if l.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}
