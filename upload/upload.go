package upload

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/byte4ever/folderpush/commitmsg"
	"github.com/byte4ever/folderpush/folder"
	"github.com/byte4ever/folderpush/git"
)

const (
	// DefaultBaseBranch is used when Config.BaseBranch
	// is empty.
	DefaultBaseBranch = "main"

	// DefaultBranchPrefix prefixes generated branch
	// names.
	DefaultBranchPrefix = "build-"

	// DefaultReadmePath is where an empty repository
	// gets its initial README.
	DefaultReadmePath = "README.md"

	// DefaultParallelism bounds concurrent blob
	// creation.
	DefaultParallelism = 8

	// branchLayout renders wall clock time with
	// one-second resolution.
	branchLayout = "2006-01-02-15-04-05"
)

// Config holds all settings for one upload. Use a
// Config struct instead of many arguments.
type Config struct {
	// Store talks to the hosting platform for the
	// target repository.
	Store git.Store

	// Repo is the repository name written into the
	// initialization README.
	Repo string

	// BaseBranch is the branch the upload starts
	// from (e.g. "main").
	BaseBranch string

	// FolderPath is the local directory to upload.
	FolderPath string

	// BranchPrefix is prepended to the timestamp of
	// the new branch.
	BranchPrefix string

	// MessageTemplate renders the upload commit
	// message (see commitmsg.Upload).
	MessageTemplate string

	// ReadmePath is the file created in an empty
	// repository.
	ReadmePath string

	// ReadmeTemplate renders the initialization
	// README (see commitmsg.Readme).
	ReadmeTemplate string

	// Description fills the README template.
	Description string

	// Parallelism is the number of concurrent blob
	// creation workers.
	Parallelism int

	// Ignore lists glob patterns of local files to
	// leave out.
	Ignore []string

	// EmptyRepo overrides the store's detection of a
	// repository without commits.
	EmptyRepo git.EmptyRepoFunc

	// Now returns the current time. Defaults to
	// time.Now.
	Now func() time.Time
}

// BranchName returns the upload branch name for t:
// prefix followed by YYYY-MM-DD-HH-MM-SS.
func BranchName(prefix string, t time.Time) string {
	return prefix + t.Format(branchLayout)
}

// Run uploads cfg.FolderPath to a new branch and
// returns the branch name. Any platform failure other
// than an empty repository on the first lookup aborts
// the upload; objects created before the failure are
// left in place.
func Run(ctx context.Context, cfg Config) (string, error) {
	const errCtx = "uploading folder"

	if cfg.Store == nil {
		return "", fmt.Errorf(
			"%s: store must be set", errCtx,
		)
	}

	if cfg.FolderPath == "" {
		return "", fmt.Errorf(
			"%s: folder path must be set", errCtx,
		)
	}

	cfg = withDefaults(cfg)

	// Step 1: Detect an empty repository.
	_, err := cfg.Store.BranchHead(ctx, cfg.BaseBranch)
	if err != nil {
		if !cfg.EmptyRepo(err) {
			return "", fmt.Errorf(
				"%s: resolve %s: %w",
				errCtx, cfg.BaseBranch, err,
			)
		}

		// Step 2: Initialize it on the base branch.
		if err := initialize(ctx, cfg); err != nil {
			return "", fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	// Step 3: Name the new branch.
	branch := BranchName(cfg.BranchPrefix, cfg.Now())

	// Step 4: Collect local files.
	files, err := folder.Collect(
		cfg.FolderPath,
		folder.Options{Ignore: cfg.Ignore},
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"uploading files",
		"count", len(files),
		"branch", branch,
		"base", cfg.BaseBranch,
	)

	// Step 5: Resolve the base commit again, it moved
	// if the repository was just initialized.
	baseCommit, err := cfg.Store.BranchHead(
		ctx, cfg.BaseBranch,
	)
	if err != nil {
		return "", fmt.Errorf(
			"%s: resolve %s: %w",
			errCtx, cfg.BaseBranch, err,
		)
	}

	// Step 6: Create the branch at the base commit.
	if err := cfg.Store.CreateBranch(
		ctx, branch, baseCommit,
	); err != nil {
		return "", fmt.Errorf(
			"%s: create branch %s: %w",
			errCtx, branch, err,
		)
	}

	// Step 7: Base tree.
	baseTree, err := cfg.Store.CommitTree(ctx, baseCommit)
	if err != nil {
		return "", fmt.Errorf(
			"%s: base tree: %w", errCtx, err,
		)
	}

	// Step 8: One blob per file.
	entries, err := createBlobs(
		ctx, cfg.Store, files, cfg.Parallelism,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 9: Tree on top of the base tree.
	tree := baseTree

	if len(entries) > 0 {
		tree, err = cfg.Store.CreateTree(
			ctx, baseTree, entries,
		)
		if err != nil {
			return "", fmt.Errorf(
				"%s: create tree: %w", errCtx, err,
			)
		}
	}

	// Step 10: Commit.
	commit, err := cfg.Store.CreateCommit(
		ctx,
		commitmsg.Upload(
			cfg.MessageTemplate, branch, len(files),
		),
		tree,
		[]string{baseCommit},
	)
	if err != nil {
		return "", fmt.Errorf(
			"%s: create commit: %w", errCtx, err,
		)
	}

	// Step 11: Move the branch.
	if err := cfg.Store.UpdateBranch(
		ctx, branch, commit,
	); err != nil {
		return "", fmt.Errorf(
			"%s: update branch %s: %w",
			errCtx, branch, err,
		)
	}

	slog.Info(
		"files uploaded",
		"branch", branch,
		"commit", commit,
	)

	return branch, nil
}

// initialize creates the README on the base branch of
// an empty repository.
func initialize(ctx context.Context, cfg Config) error {
	const errCtx = "initializing empty repository"

	slog.Info(
		"initializing empty repository",
		"branch", cfg.BaseBranch,
	)

	content := commitmsg.Readme(
		cfg.ReadmeTemplate, cfg.Repo, cfg.Description,
	)

	if err := cfg.Store.CreateFile(
		ctx,
		cfg.BaseBranch,
		cfg.ReadmePath,
		commitmsg.InitMessage,
		[]byte(content),
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"repository initialized",
		"path", cfg.ReadmePath,
	)

	return nil
}

// createBlobs stores every file with a worker pool
// bounded by parallelism and returns one tree entry per
// file. Dispatch stops at the first failure; the first
// error is returned once in-flight workers finish.
func createBlobs(
	ctx context.Context,
	store git.Store,
	files []folder.File,
	parallelism int,
) ([]git.TreeEntry, error) {
	const errCtx = "creating blobs"

	if parallelism <= 0 {
		parallelism = 1
	}

	entries := make([]git.TreeEntry, len(files))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(errs) > 0
	}

	sem := make(chan struct{}, parallelism)

	for i, f := range files {
		sem <- struct{}{}

		if ctx.Err() != nil {
			mu.Lock()
			errs = append(errs, ctx.Err())
			mu.Unlock()

			<-sem

			break
		}

		if failed() {
			<-sem

			break
		}

		wg.Add(1)

		go func(idx int, fl folder.File) {
			defer wg.Done()
			defer func() { <-sem }()

			id, err := store.CreateBlob(ctx, fl.Content)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf(
					"blob %s: %w", fl.Path, err,
				))
				mu.Unlock()

				return
			}

			// Each worker owns its slot.
			entries[idx] = git.TreeEntry{
				Path:   fl.Path,
				Mode:   git.FileMode,
				BlobID: id,
			}
		}(i, f)
	}

	wg.Wait()

	if len(errs) > 0 {
		return nil, fmt.Errorf(
			"%s: %d errors, first: %w",
			errCtx, len(errs), errs[0],
		)
	}

	return entries, nil
}

func withDefaults(cfg Config) Config {
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = DefaultBaseBranch
	}

	if cfg.BranchPrefix == "" {
		cfg.BranchPrefix = DefaultBranchPrefix
	}

	if cfg.ReadmePath == "" {
		cfg.ReadmePath = DefaultReadmePath
	}

	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.EmptyRepo == nil {
		cfg.EmptyRepo = emptyRepoFunc(cfg.Store)
	}

	return cfg
}

// emptyRepoFunc picks the store's own detector, or
// GitHub's 409 Conflict.
func emptyRepoFunc(store git.Store) git.EmptyRepoFunc {
	if det, ok := store.(git.EmptyRepoDetector); ok {
		return det.IsEmptyRepo
	}

	return git.StatusIs(http.StatusConflict)
}
