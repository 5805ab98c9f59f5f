// Package digester computes git object identifiers for content that has not
// been stored on a hosting platform yet, and stable synthetic identifiers for
// staged objects that a platform never names itself.
package digester
