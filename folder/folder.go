package folder

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// ErrNotDirectory reports a collection root that is
// not a directory.
var ErrNotDirectory = errors.New("not a directory")

// File is one collected file.
type File struct {
	// Path is relative to the collection root and
	// always uses forward slashes.
	Path string
	// Content is the raw file content.
	Content []byte
}

// Options tunes Collect.
type Options struct {
	// Ignore holds path.Match patterns. A file or
	// directory is skipped when a pattern matches its
	// relative path or its base name.
	Ignore []string
}

// Collect walks root recursively and returns every
// regular file below it. A symlinked root is resolved
// first. Below it, symlinks to files are read through
// and symlinked directories are not followed.
func Collect(root string, opts Options) ([]File, error) {
	const errCtx = "collecting folder"

	// WalkDir does not descend into a symlinked root.
	root, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if !fi.IsDir() {
		return nil, fmt.Errorf(
			"%s: %s: %w", errCtx, root, ErrNotDirectory,
		)
	}

	for _, pat := range opts.Ignore {
		if _, err := path.Match(pat, ""); err != nil {
			return nil, fmt.Errorf(
				"%s: ignore pattern %q: %w",
				errCtx, pat, err,
			)
		}
	}

	var files []File

	err = filepath.WalkDir(
		root,
		func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}

			if p == root {
				return nil
			}

			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}

			rel = filepath.ToSlash(rel)

			if ignored(rel, opts.Ignore) {
				if d.IsDir() {
					return filepath.SkipDir
				}

				return nil
			}

			if d.IsDir() {
				return nil
			}

			ok, err := readable(p, d)
			if err != nil || !ok {
				return err
			}

			content, err := os.ReadFile(p) //nolint:gosec // walking caller-provided root
			if err != nil {
				return err
			}

			files = append(files, File{
				Path:    rel,
				Content: content,
			})

			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return files, nil
}

// readable reports whether the entry resolves to a
// regular file.
func readable(p string, d fs.DirEntry) (bool, error) {
	if d.Type().IsRegular() {
		return true, nil
	}

	if d.Type()&fs.ModeSymlink == 0 {
		// Sockets, devices and pipes.
		return false, nil
	}

	target, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		// Dangling link.
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return target.Mode().IsRegular(), nil
}

func ignored(rel string, patterns []string) bool {
	base := path.Base(rel)

	for _, pat := range patterns {
		if ok, _ := path.Match(pat, rel); ok {
			return true
		}

		if ok, _ := path.Match(pat, base); ok {
			return true
		}
	}

	return false
}
