package git

import "context"

// Pattern: Strategy -- swap git platform without
// changing the upload sequence.

// FileMode is the tree entry mode of a regular,
// non-executable file.
const FileMode = "100644"

// TreeEntry places a stored blob at a path inside a
// new tree.
type TreeEntry struct {
	// Path is slash separated and relative to the
	// repository root.
	Path string
	// Mode is the git file mode, normally FileMode.
	Mode string
	// BlobID identifies a blob already held by the
	// store.
	BlobID string
}

// Store creates git objects and moves branches on a
// hosting platform. All identifiers are opaque to the
// caller.
type Store interface {
	// BranchHead returns the commit the branch
	// points at.
	BranchHead(
		ctx context.Context,
		branch string,
	) (string, error)

	// CreateFile commits a single file on branch.
	// On an empty repository this creates the branch.
	CreateFile(
		ctx context.Context,
		branch string,
		path string,
		message string,
		content []byte,
	) error

	// CreateBlob stores content and returns its id.
	CreateBlob(
		ctx context.Context,
		content []byte,
	) (string, error)

	// CommitTree returns the tree id of a commit.
	CommitTree(
		ctx context.Context,
		commitID string,
	) (string, error)

	// CreateTree creates a tree from baseTree with
	// entries added or overwritten.
	CreateTree(
		ctx context.Context,
		baseTree string,
		entries []TreeEntry,
	) (string, error)

	// CreateCommit creates a commit object without
	// moving any branch.
	CreateCommit(
		ctx context.Context,
		message string,
		tree string,
		parents []string,
	) (string, error)

	// CreateBranch creates a new branch at commitID.
	CreateBranch(
		ctx context.Context,
		branch string,
		commitID string,
	) error

	// UpdateBranch moves an existing branch to
	// commitID.
	UpdateBranch(
		ctx context.Context,
		branch string,
		commitID string,
	) error
}

// EmptyRepoDetector is implemented by stores that
// know how their platform reports a repository with
// no commits.
type EmptyRepoDetector interface {
	IsEmptyRepo(err error) bool
}

// Account is the authenticated user as reported by
// the hosting platform.
type Account struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Owner names the user or group owning a repository.
type Owner struct {
	Login string `json:"login"`
}

// Repository is one entry of the repository listing.
// JSON names follow the GitHub REST API so browser
// clients can consume either platform.
type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Owner         Owner  `json:"owner"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
}

// Lister reads account information with the user's
// token.
type Lister interface {
	CurrentUser(ctx context.Context) (*Account, error)
	Repositories(ctx context.Context) ([]Repository, error)
}
