// Package gittest provides an in-memory git.Store for tests. It enforces the
// same preconditions a hosting platform does (blobs before trees, existing
// commits before branches) and reports an empty repository with HTTP 409 like
// GitHub.
package gittest
