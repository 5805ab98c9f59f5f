// Package folder collects the files of a local directory tree into a flat
// list of (relative path, content) pairs ready to be uploaded.
package folder
