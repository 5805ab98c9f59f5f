package gitlab_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/folderpush/git"
	glprov "github.com/byte4ever/folderpush/git/gitlab"
	"github.com/byte4ever/folderpush/upload"
)

func TestNewProvider_valid(t *testing.T) {
	t.Parallel()

	pv, err := glprov.NewProvider(glprov.Config{
		Host:        "https://gitlab.example.com",
		Repo:        "org/project",
		AccessToken: "tok",
	})

	require.NoError(t, err)
	assert.NotNil(t, pv)
}

func TestNewProvider_default_host(t *testing.T) {
	t.Parallel()

	pv, err := glprov.NewProvider(glprov.Config{
		Repo:        "org/project",
		AccessToken: "tok",
	})

	require.NoError(t, err)
	assert.NotNil(t, pv)
}

func TestNewProvider_missing_repo(t *testing.T) {
	t.Parallel()

	pv, err := glprov.NewProvider(glprov.Config{
		AccessToken: "tok",
	})

	assert.Nil(t, pv)
	assert.ErrorContains(t, err, "repo must be set")
}

func TestNewProvider_missing_token(t *testing.T) {
	t.Parallel()

	pv, err := glprov.NewProvider(glprov.Config{
		Repo: "org/project",
	})

	assert.Nil(t, pv)
	assert.ErrorContains(t, err, "access token")
}

// fakeGitLab serves the subset of the GitLab v4 API
// used by the provider for project 42.
type fakeGitLab struct {
	mu       sync.Mutex
	seq      int
	commits  map[string]map[string]string
	branches map[string]string
	auth     []string
	private  []string
	posts    int
}

func newFakeGitLab(t *testing.T) (*fakeGitLab, *httptest.Server) {
	t.Helper()

	fk := &fakeGitLab{
		commits:  make(map[string]map[string]string),
		branches: make(map[string]string),
	}
	base := "/api/v4/projects/42"

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+base, fk.getProject)
	mux.HandleFunc(
		"GET "+base+"/repository/branches/{branch...}",
		fk.getBranch,
	)
	mux.HandleFunc(
		"POST "+base+"/repository/branches",
		fk.postBranch,
	)
	mux.HandleFunc(
		"POST "+base+"/repository/files/{path...}",
		fk.postFile,
	)
	mux.HandleFunc(
		"GET "+base+"/repository/tree",
		fk.getTree,
	)
	mux.HandleFunc(
		"POST "+base+"/repository/commits",
		fk.postCommit,
	)
	mux.HandleFunc("GET /api/v4/user", fk.getUser)
	mux.HandleFunc("GET /api/v4/projects", fk.getProjects)

	ts := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fk.mu.Lock()
			fk.auth = append(
				fk.auth, r.Header.Get("Authorization"),
			)
			fk.private = append(
				fk.private, r.Header.Get("Private-Token"),
			)
			fk.mu.Unlock()

			mux.ServeHTTP(w, r)
		},
	))
	t.Cleanup(ts.Close)

	return fk, ts
}

func reply(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck
}

func message(w http.ResponseWriter, code int, msg string) {
	reply(w, code, map[string]any{"message": msg})
}

// commit must be called with fk.mu held.
func (fk *fakeGitLab) commit(files map[string]string) string {
	fk.seq++
	sha := fmt.Sprintf("%040d", fk.seq)
	fk.commits[sha] = files

	return sha
}

func (fk *fakeGitLab) seed(branch string, files map[string]string) string {
	fk.mu.Lock()
	defer fk.mu.Unlock()

	sha := fk.commit(files)
	fk.branches[branch] = sha

	return sha
}

func (fk *fakeGitLab) files(branch string) map[string]string {
	fk.mu.Lock()
	defer fk.mu.Unlock()

	return fk.commits[fk.branches[branch]]
}

func (fk *fakeGitLab) commitPosts() int {
	fk.mu.Lock()
	defer fk.mu.Unlock()

	return fk.posts
}

func (fk *fakeGitLab) getProject(w http.ResponseWriter, _ *http.Request) {
	fk.mu.Lock()
	defer fk.mu.Unlock()

	reply(w, http.StatusOK, map[string]any{
		"id":         42,
		"empty_repo": len(fk.commits) == 0,
	})
}

func (fk *fakeGitLab) getBranch(w http.ResponseWriter, r *http.Request) {
	fk.mu.Lock()
	defer fk.mu.Unlock()

	name := r.PathValue("branch")

	sha, ok := fk.branches[name]
	if !ok {
		message(w, http.StatusNotFound, "404 Branch Not Found")

		return
	}

	reply(w, http.StatusOK, map[string]any{
		"name":   name,
		"commit": map[string]any{"id": sha},
	})
}

func (fk *fakeGitLab) postBranch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Branch string `json:"branch"`
		Ref    string `json:"ref"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		message(w, http.StatusBadRequest, err.Error())

		return
	}

	fk.mu.Lock()
	defer fk.mu.Unlock()

	if _, ok := fk.branches[req.Branch]; ok {
		message(w, http.StatusBadRequest, "Branch already exists")

		return
	}

	if _, ok := fk.commits[req.Ref]; !ok {
		message(w, http.StatusBadRequest, "Invalid reference name")

		return
	}

	fk.branches[req.Branch] = req.Ref

	reply(w, http.StatusCreated, map[string]any{
		"name":   req.Branch,
		"commit": map[string]any{"id": req.Ref},
	})
}

func decode(content, encoding string) (string, error) {
	if encoding != "base64" {
		return content, nil
	}

	raw, err := base64.StdEncoding.DecodeString(content)

	return string(raw), err
}

func (fk *fakeGitLab) postFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Branch        string `json:"branch"`
		Content       string `json:"content"`
		Encoding      string `json:"encoding"`
		CommitMessage string `json:"commit_message"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		message(w, http.StatusBadRequest, err.Error())

		return
	}

	content, err := decode(req.Content, req.Encoding)
	if err != nil {
		message(w, http.StatusBadRequest, err.Error())

		return
	}

	fk.mu.Lock()
	defer fk.mu.Unlock()

	path := r.PathValue("path")
	files := make(map[string]string)

	if head, ok := fk.branches[req.Branch]; ok {
		for k, v := range fk.commits[head] {
			files[k] = v
		}
	} else if len(fk.commits) > 0 {
		message(w, http.StatusBadRequest, "branch does not exist")

		return
	}

	files[path] = content
	fk.branches[req.Branch] = fk.commit(files)

	reply(w, http.StatusCreated, map[string]any{
		"file_path": path,
		"branch":    req.Branch,
	})
}

const treePageSize = 2

func (fk *fakeGitLab) getTree(w http.ResponseWriter, r *http.Request) {
	fk.mu.Lock()
	defer fk.mu.Unlock()

	files, ok := fk.commits[r.URL.Query().Get("ref")]
	if !ok {
		message(w, http.StatusNotFound, "404 Tree Not Found")

		return
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	start := min((page-1)*treePageSize, len(paths))
	end := min(start+treePageSize, len(paths))

	if end < len(paths) {
		w.Header().Set("X-Next-Page", strconv.Itoa(page+1))
	}

	nodes := make([]map[string]any, 0, end-start)
	for _, p := range paths[start:end] {
		nodes = append(nodes, map[string]any{
			"id":   "x",
			"name": filepath.Base(p),
			"type": "blob",
			"path": p,
			"mode": "100644",
		})
	}

	reply(w, http.StatusOK, nodes)
}

func (fk *fakeGitLab) postCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Branch        string `json:"branch"`
		CommitMessage string `json:"commit_message"`
		Actions       []struct {
			Action   string `json:"action"`
			FilePath string `json:"file_path"`
			Content  string `json:"content"`
			Encoding string `json:"encoding"`
		} `json:"actions"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		message(w, http.StatusBadRequest, err.Error())

		return
	}

	fk.mu.Lock()
	defer fk.mu.Unlock()

	fk.posts++

	head, ok := fk.branches[req.Branch]
	if !ok {
		message(w, http.StatusBadRequest, "branch does not exist")

		return
	}

	files := make(map[string]string)
	for k, v := range fk.commits[head] {
		files[k] = v
	}

	for _, a := range req.Actions {
		_, exists := files[a.FilePath]

		switch {
		case a.Action == "create" && exists:
			message(w, http.StatusBadRequest,
				"A file with this name already exists")

			return
		case a.Action == "update" && !exists:
			message(w, http.StatusBadRequest,
				"A file with this name doesn't exist")

			return
		}

		content, err := decode(a.Content, a.Encoding)
		if err != nil {
			message(w, http.StatusBadRequest, err.Error())

			return
		}

		files[a.FilePath] = content
	}

	sha := fk.commit(files)
	fk.branches[req.Branch] = sha

	reply(w, http.StatusCreated, map[string]any{
		"id":      sha,
		"message": req.CommitMessage,
		"web_url": "https://gitlab.example.com/commit/" + sha,
	})
}

func (fk *fakeGitLab) getUser(w http.ResponseWriter, _ *http.Request) {
	reply(w, http.StatusOK, map[string]any{
		"id":         7,
		"username":   "octo",
		"name":       "Octo Cat",
		"avatar_url": "https://gitlab.example.com/a.png",
	})
}

func (fk *fakeGitLab) getProjects(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("membership") != "true" {
		message(w, http.StatusBadRequest, "membership expected")

		return
	}

	if r.URL.Query().Get("page") == "2" {
		reply(w, http.StatusOK, []map[string]any{{
			"id":                  2,
			"path":                "open",
			"path_with_namespace": "octo/open",
			"namespace":           map[string]any{"full_path": "octo"},
			"visibility":          "public",
			"default_branch":      "main",
		}})

		return
	}

	w.Header().Set("X-Next-Page", "2")
	reply(w, http.StatusOK, []map[string]any{{
		"id":                  1,
		"path":                "secret",
		"path_with_namespace": "group/sub/secret",
		"namespace":           map[string]any{"full_path": "group/sub"},
		"visibility":          "private",
		"default_branch":      "trunk",
	}})
}

func newProvider(t *testing.T, url string) *glprov.Provider {
	t.Helper()

	pv, err := glprov.NewProvider(glprov.Config{
		Host:        url,
		Repo:        "42",
		AccessToken: "tok",
	})
	require.NoError(t, err)

	return pv
}

func fixedNow() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)
}

func TestProvider_BranchHead(t *testing.T) {
	t.Parallel()

	fk, ts := newFakeGitLab(t)
	head := fk.seed("main", map[string]string{"a": "1"})

	got, err := newProvider(t, ts.URL).BranchHead(
		context.Background(), "main",
	)

	require.NoError(t, err)
	assert.Equal(t, head, got)

	fk.mu.Lock()
	defer fk.mu.Unlock()

	assert.Equal(t, []string{"Bearer tok"}, fk.auth)
}

func TestProvider_BranchHead_empty_repo(t *testing.T) {
	t.Parallel()

	_, ts := newFakeGitLab(t)
	pv := newProvider(t, ts.URL)

	_, err := pv.BranchHead(context.Background(), "main")

	require.ErrorIs(t, err, git.ErrEmptyRepository)
	assert.True(t, pv.IsEmptyRepo(err))
}

func TestProvider_BranchHead_not_found(t *testing.T) {
	t.Parallel()

	fk, ts := newFakeGitLab(t)
	fk.seed("main", nil)
	pv := newProvider(t, ts.URL)

	_, err := pv.BranchHead(context.Background(), "dev")

	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, git.StatusCode(err))
	assert.False(t, pv.IsEmptyRepo(err))
}

func TestProvider_UpdateBranch_unknown_commit(t *testing.T) {
	t.Parallel()

	_, ts := newFakeGitLab(t)

	err := newProvider(t, ts.URL).UpdateBranch(
		context.Background(), "main", "deadbeef",
	)

	assert.ErrorContains(t, err, "was not staged")
}

func TestProvider_CreateTree_unknown_blob(t *testing.T) {
	t.Parallel()

	_, ts := newFakeGitLab(t)

	_, err := newProvider(t, ts.URL).CreateTree(
		context.Background(), "",
		[]git.TreeEntry{{
			Path: "a", Mode: git.FileMode, BlobID: "nope",
		}},
	)

	assert.ErrorContains(t, err, "was not staged")
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()

	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	}

	return dir
}

func TestProvider_upload_end_to_end(t *testing.T) {
	t.Parallel()

	fk, ts := newFakeGitLab(t)
	fk.seed("main", map[string]string{
		"README.md": "existing",
		"a.txt":     "old",
		"c.txt":     "keep",
	})

	dir := writeFiles(t, map[string]string{
		"a.txt":     "hello",
		"sub/b.txt": "world",
		"bin.dat":   string([]byte{0xff, 0x00, 0xfe}),
	})

	branch, err := upload.Run(context.Background(), upload.Config{
		Store:      newProvider(t, ts.URL),
		BaseBranch: "main",
		FolderPath: dir,
		Now:        fixedNow,
	})

	require.NoError(t, err)
	assert.Equal(t, "build-2024-01-01-12-00-00", branch)
	assert.Equal(t, map[string]string{
		"README.md": "existing",
		"a.txt":     "hello",
		"bin.dat":   string([]byte{0xff, 0x00, 0xfe}),
		"c.txt":     "keep",
		"sub/b.txt": "world",
	}, fk.files(branch))
	assert.Equal(t, map[string]string{
		"README.md": "existing",
		"a.txt":     "old",
		"c.txt":     "keep",
	}, fk.files("main"))
	assert.Equal(t, 1, fk.commitPosts())
}

func TestProvider_upload_empty_repo(t *testing.T) {
	t.Parallel()

	fk, ts := newFakeGitLab(t)
	dir := writeFiles(t, map[string]string{"a.txt": "hello"})

	branch, err := upload.Run(context.Background(), upload.Config{
		Store:      newProvider(t, ts.URL),
		Repo:       "demo",
		BaseBranch: "main",
		FolderPath: dir,
		Now:        fixedNow,
	})

	require.NoError(t, err)

	files := fk.files(branch)
	assert.Equal(t, "hello", files["a.txt"])
	assert.Contains(t, files["README.md"], "# demo")
	assert.Contains(t, fk.files("main"), "README.md")
}

func TestProvider_upload_empty_folder(t *testing.T) {
	t.Parallel()

	fk, ts := newFakeGitLab(t)
	head := fk.seed("main", map[string]string{"a": "1"})

	branch, err := upload.Run(context.Background(), upload.Config{
		Store:      newProvider(t, ts.URL),
		BaseBranch: "main",
		FolderPath: t.TempDir(),
		Now:        fixedNow,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, fk.commitPosts())

	fk.mu.Lock()
	defer fk.mu.Unlock()

	assert.Equal(t, head, fk.branches[branch])
}

func (fk *fakeGitLab) headers() ([]string, []string) {
	fk.mu.Lock()
	defer fk.mu.Unlock()

	return append([]string(nil), fk.auth...),
		append([]string(nil), fk.private...)
}

func TestNewLister_oauth_token_header(t *testing.T) {
	t.Parallel()

	fk, ts := newFakeGitLab(t)

	pv, err := glprov.NewLister(glprov.Config{
		Host:        ts.URL,
		AccessToken: "oauth-tok",
	})
	require.NoError(t, err)

	_, err = pv.CurrentUser(context.Background())
	require.NoError(t, err)

	auth, private := fk.headers()
	assert.Equal(t, []string{"Bearer oauth-tok"}, auth)
	assert.Equal(t, []string{""}, private)
}

func TestProvider_CurrentUser(t *testing.T) {
	t.Parallel()

	_, ts := newFakeGitLab(t)

	pv, err := glprov.NewLister(glprov.Config{
		Host:        ts.URL,
		AccessToken: "tok",
	})
	require.NoError(t, err)

	acct, err := pv.CurrentUser(context.Background())

	require.NoError(t, err)
	assert.Equal(t, &git.Account{
		ID:        7,
		Login:     "octo",
		Name:      "Octo Cat",
		AvatarURL: "https://gitlab.example.com/a.png",
	}, acct)
}

func TestProvider_Repositories(t *testing.T) {
	t.Parallel()

	_, ts := newFakeGitLab(t)

	pv, err := glprov.NewLister(glprov.Config{
		Host:        ts.URL,
		AccessToken: "tok",
	})
	require.NoError(t, err)

	repos, err := pv.Repositories(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []git.Repository{
		{
			ID:            1,
			Name:          "secret",
			FullName:      "group/sub/secret",
			Owner:         git.Owner{Login: "group/sub"},
			Private:       true,
			DefaultBranch: "trunk",
		},
		{
			ID:            2,
			Name:          "open",
			FullName:      "octo/open",
			Owner:         git.Owner{Login: "octo"},
			DefaultBranch: "main",
		},
	}, repos)
}
