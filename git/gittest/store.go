package gittest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/byte4ever/folderpush/digester"
	"github.com/byte4ever/folderpush/git"
)

// Operation names used by Count and Fail.
const (
	OpBranchHead   = "BranchHead"
	OpCreateFile   = "CreateFile"
	OpCreateBlob   = "CreateBlob"
	OpCommitTree   = "CommitTree"
	OpCreateTree   = "CreateTree"
	OpCreateCommit = "CreateCommit"
	OpCreateBranch = "CreateBranch"
	OpUpdateBranch = "UpdateBranch"
)

// Commit is a stored commit object.
type Commit struct {
	Message string
	Tree    string
	Parents []string
}

// Store is a thread-safe in-memory git.Store.
type Store struct {
	mu      sync.Mutex
	refs    map[string]string
	commits map[string]Commit
	trees   map[string]map[string]string
	blobs   map[string][]byte
	calls   map[string]int
	fail    map[string]error
}

var _ git.Store = (*Store)(nil)

// NewStore returns an empty repository.
func NewStore() *Store {
	return &Store{
		refs:    make(map[string]string),
		commits: make(map[string]Commit),
		trees:   make(map[string]map[string]string),
		blobs:   make(map[string][]byte),
		calls:   make(map[string]int),
		fail:    make(map[string]error),
	}
}

// Seed commits files on branch without counting any
// call, and returns the new commit id.
func (s *Store) Seed(
	branch string,
	message string,
	files map[string]string,
) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make(map[string]string)

	var parents []string

	if head, ok := s.refs[branch]; ok {
		for p, b := range s.trees[s.commits[head].Tree] {
			paths[p] = b
		}

		parents = []string{head}
	}

	for p, c := range files {
		id := digester.BlobID([]byte(c))
		s.blobs[id] = []byte(c)
		paths[p] = id
	}

	tree := s.putTree(paths)
	id := s.putCommit(message, tree, parents)
	s.refs[branch] = id

	return id
}

// Fail makes every later call of op return err.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fail[op] = err
}

// Count returns how many times op was called.
func (s *Store) Count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[op]
}

// Head returns the commit a branch points at.
func (s *Store) Head(branch string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.refs[branch]

	return id, ok
}

// Commit returns a stored commit.
func (s *Store) Commit(id string) (Commit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commits[id]

	return c, ok
}

// Commits returns the number of stored commits.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.commits)
}

// Files returns the path to content snapshot of the
// tree at branch's head.
func (s *Store) Files(branch string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, ok := s.refs[branch]
	if !ok {
		return nil
	}

	out := make(map[string]string)
	for p, b := range s.trees[s.commits[head].Tree] {
		out[p] = string(s.blobs[b])
	}

	return out
}

// BranchHead implements git.Store.
func (s *Store) BranchHead(
	_ context.Context,
	branch string,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(OpBranchHead); err != nil {
		return "", err
	}

	if len(s.commits) == 0 {
		return "", &git.StatusError{
			Op:         "get ref",
			StatusCode: http.StatusConflict,
			Err:        git.ErrEmptyRepository,
		}
	}

	id, ok := s.refs[branch]
	if !ok {
		return "", notFound("get ref", "branch "+branch)
	}

	return id, nil
}

// CreateFile implements git.Store.
func (s *Store) CreateFile(
	_ context.Context,
	branch string,
	path string,
	message string,
	content []byte,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(OpCreateFile); err != nil {
		return err
	}

	paths := make(map[string]string)

	var parents []string

	head, ok := s.refs[branch]

	switch {
	case ok:
		for p, b := range s.trees[s.commits[head].Tree] {
			paths[p] = b
		}

		parents = []string{head}
	case len(s.commits) > 0:
		return notFound("create file", "branch "+branch)
	}

	id := digester.BlobID(content)
	s.blobs[id] = append([]byte(nil), content...)
	paths[path] = id

	s.refs[branch] = s.putCommit(
		message, s.putTree(paths), parents,
	)

	return nil
}

// CreateBlob implements git.Store.
func (s *Store) CreateBlob(
	_ context.Context,
	content []byte,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(OpCreateBlob); err != nil {
		return "", err
	}

	id := digester.BlobID(content)
	s.blobs[id] = append([]byte(nil), content...)

	return id, nil
}

// CommitTree implements git.Store.
func (s *Store) CommitTree(
	_ context.Context,
	commitID string,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(OpCommitTree); err != nil {
		return "", err
	}

	c, ok := s.commits[commitID]
	if !ok {
		return "", notFound("get commit", commitID)
	}

	return c.Tree, nil
}

// CreateTree implements git.Store.
func (s *Store) CreateTree(
	_ context.Context,
	baseTree string,
	entries []git.TreeEntry,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(OpCreateTree); err != nil {
		return "", err
	}

	paths := make(map[string]string)

	if baseTree != "" {
		base, ok := s.trees[baseTree]
		if !ok {
			return "", unprocessable(
				"create tree", "unknown base tree",
			)
		}

		for p, b := range base {
			paths[p] = b
		}
	}

	for _, e := range entries {
		if _, ok := s.blobs[e.BlobID]; !ok {
			return "", unprocessable(
				"create tree", "unknown blob "+e.BlobID,
			)
		}

		if e.Mode != git.FileMode {
			return "", unprocessable(
				"create tree", "bad mode "+e.Mode,
			)
		}

		paths[e.Path] = e.BlobID
	}

	return s.putTree(paths), nil
}

// CreateCommit implements git.Store.
func (s *Store) CreateCommit(
	_ context.Context,
	message string,
	tree string,
	parents []string,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(OpCreateCommit); err != nil {
		return "", err
	}

	if _, ok := s.trees[tree]; !ok {
		return "", unprocessable(
			"create commit", "unknown tree",
		)
	}

	for _, p := range parents {
		if _, ok := s.commits[p]; !ok {
			return "", unprocessable(
				"create commit", "unknown parent "+p,
			)
		}
	}

	return s.putCommit(message, tree, parents), nil
}

// CreateBranch implements git.Store.
func (s *Store) CreateBranch(
	_ context.Context,
	branch string,
	commitID string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(OpCreateBranch); err != nil {
		return err
	}

	if _, ok := s.refs[branch]; ok {
		return unprocessable(
			"create ref", "reference already exists",
		)
	}

	if _, ok := s.commits[commitID]; !ok {
		return unprocessable("create ref", "unknown commit")
	}

	s.refs[branch] = commitID

	return nil
}

// UpdateBranch implements git.Store.
func (s *Store) UpdateBranch(
	_ context.Context,
	branch string,
	commitID string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(OpUpdateBranch); err != nil {
		return err
	}

	if _, ok := s.refs[branch]; !ok {
		return notFound("update ref", "branch "+branch)
	}

	if _, ok := s.commits[commitID]; !ok {
		return unprocessable("update ref", "unknown commit")
	}

	s.refs[branch] = commitID

	return nil
}

// enter counts op and returns its injected failure.
// Callers hold s.mu.
func (s *Store) enter(op string) error {
	s.calls[op]++

	return s.fail[op]
}

func (s *Store) putTree(paths map[string]string) string {
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}

	sort.Strings(keys)

	parts := make([]string, 0, 2*len(keys)+1)
	parts = append(parts, "tree")

	for _, k := range keys {
		parts = append(parts, k, paths[k])
	}

	id := digester.Sum(parts...)
	s.trees[id] = paths

	return id
}

func (s *Store) putCommit(
	message string,
	tree string,
	parents []string,
) string {
	parts := append(
		[]string{"commit", message, tree}, parents...,
	)

	// Identical commits made in a row still need
	// distinct ids.
	parts = append(parts, fmt.Sprint(len(s.commits)))

	id := digester.Sum(parts...)
	s.commits[id] = Commit{
		Message: message,
		Tree:    tree,
		Parents: append([]string(nil), parents...),
	}

	return id
}

func notFound(op string, what string) error {
	return &git.StatusError{
		Op:         op,
		StatusCode: http.StatusNotFound,
		Err:        fmt.Errorf("%s not found", what),
	}
}

func unprocessable(op string, why string) error {
	return &git.StatusError{
		Op:         op,
		StatusCode: http.StatusUnprocessableEntity,
		Err:        errors.New(why),
	}
}
