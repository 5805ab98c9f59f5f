// Command folderpush uploads a local folder to a new
// timestamped branch of a hosted repository, either
// directly against the platform API or through a
// folderpush server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/byte4ever/folderpush/api"
	"github.com/byte4ever/folderpush/config"
	"github.com/byte4ever/folderpush/git"
	"github.com/byte4ever/folderpush/platform"
	"github.com/byte4ever/folderpush/upload"
)

// sliceFlag implements flag.Value for repeated string
// flags.
type sliceFlag []string

// String returns the values joined by commas.
func (s *sliceFlag) String() string {
	if s == nil {
		return ""
	}

	return strings.Join(*s, ",")
}

// Set appends a value to the slice.
func (s *sliceFlag) Set(val string) error {
	*s = append(*s, val)

	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // CLI flag setup is inherently long
func run() error {
	const errCtx = "running folderpush"

	configPath := flag.String(
		"config", "",
		"Path to the YAML configuration file",
	)
	server := flag.String(
		"server", "",
		"folderpush server URL; upload directly when empty",
	)
	loginURL := flag.Bool(
		"login_url", false,
		"Print the OAuth authorization page of -server and exit",
	)

	// Repository flags.
	token := flag.String(
		"token", os.Getenv("FOLDERPUSH_TOKEN"),
		"Platform access token",
	)
	owner := flag.String(
		"owner", "",
		"Repository owner (user, organization or group)",
	)
	repo := flag.String(
		"repo", "",
		"Repository name",
	)
	folderPath := flag.String(
		"folder", "",
		"Local folder to upload",
	)

	// Upload flags.
	baseBranch := flag.String(
		"base_branch", "",
		"Branch to start from (default from configuration)",
	)
	branchPrefix := flag.String(
		"branch_prefix", "",
		"Prefix of the generated branch name",
	)
	message := flag.String(
		"message", "",
		"Commit message template ({branch}, {files})",
	)
	parallelism := flag.Int(
		"parallelism", 0,
		"Number of concurrent blob uploads",
	)

	var ignore sliceFlag

	flag.Var(
		&ignore,
		"ignore",
		"Glob pattern of files to skip (repeatable)",
	)

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.SetDefault(slog.New(cfg.Log.Handler(os.Stderr)))

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	req := api.UploadRequest{
		Token:      *token,
		RepoOwner:  *owner,
		RepoName:   *repo,
		FolderPath: *folderPath,
		MainBranch: *baseBranch,
	}

	var out string

	switch {
	case *loginURL:
		if *server == "" {
			return fmt.Errorf(
				"%s: -login_url needs -server", errCtx,
			)
		}

		out, err = authorizationPage(ctx, *server)
	case *server != "":
		out, err = remote(ctx, *server, req)
	default:
		if *branchPrefix != "" {
			cfg.Upload.BranchPrefix = *branchPrefix
		}

		if *message != "" {
			cfg.Upload.MessageTemplate = *message
		}

		if *parallelism > 0 {
			cfg.Upload.Parallelism = *parallelism
		}

		cfg.Upload.Ignore = append(cfg.Upload.Ignore, ignore...)

		out, err = direct(ctx, cfg, req)
	}

	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	fmt.Println(out) //nolint:forbidigo // result is the output

	return nil
}

func direct(
	ctx context.Context,
	cfg config.Config,
	req api.UploadRequest,
) (string, error) {
	pf, err := platform.New(cfg)
	if err != nil {
		return "", err
	}

	store, err := pf.Store(req.Token, req.RepoOwner, req.RepoName)
	if err != nil {
		return "", err
	}

	return upload.Run(ctx, pf.UploadConfig(
		store, req.RepoName, req.MainBranch, req.FolderPath,
	))
}

func remote(
	ctx context.Context,
	server string,
	req api.UploadRequest,
) (string, error) {
	c, err := api.NewClient(server, nil)
	if err != nil {
		return "", err
	}

	s := api.NewSession(c)
	s.Token = req.Token
	s.FolderPath = req.FolderPath
	s.BaseBranch = req.MainBranch
	s.Select(git.Repository{
		Name:  req.RepoName,
		Owner: git.Owner{Login: req.RepoOwner},
	})

	return s.Upload(ctx)
}

func authorizationPage(
	ctx context.Context,
	server string,
) (string, error) {
	c, err := api.NewClient(server, nil)
	if err != nil {
		return "", err
	}

	return api.NewSession(c).LoginURL(ctx, "")
}
