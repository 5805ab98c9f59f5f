// Package commitmsg renders the text an upload writes into a repository: the
// message of the upload commit and the README used to initialize an empty
// repository. Templates use {name} placeholders; unknown placeholders are left
// as-is.
package commitmsg
