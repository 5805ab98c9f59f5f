// Package git defines the strategy interfaces used to talk to a git hosting
// platform over its REST API.
//
// Store covers the low-level object calls needed to build a commit remotely:
// resolving and moving branches, creating blobs, trees and commits, and
// creating a single file to initialize an empty repository. Lister covers the
// account passthrough calls (current user, repositories). Implementations
// exist for GitHub and GitLab in sub-packages, and gittest provides an
// in-memory Store for tests.
//
// Failures that carry an HTTP status are reported as *StatusError so callers
// can classify them. EmptyRepoFunc is the pluggable predicate deciding
// whether a branch lookup failure means "this repository has no commits".
package git
