// Package gitlab implements git.Store and git.Lister on top of the GitLab
// REST API.
//
// GitLab has no endpoints to upload blobs, trees or dangling commits. The
// provider therefore stages them in memory under stable ids and materializes
// the whole change with one commits API call when a branch is moved onto a
// staged commit. A commit id doubles as its own tree handle. A Provider holds
// staged objects for its lifetime, so create one per upload.
package gitlab
