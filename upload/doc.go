// Package upload commits the contents of a local folder to a new branch of a
// hosted repository as a single commit.
//
// Run resolves the base branch (initializing an empty repository with a
// README first), creates a timestamped branch at its head, stores one blob per
// file using a bounded worker pool, then creates a tree on top of the base
// tree, a commit, and moves the new branch to it. All platform calls go
// through a git.Store.
package upload
