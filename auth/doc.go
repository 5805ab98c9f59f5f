// Package auth exchanges an OAuth authorization code from the hosting
// platform for an access token.
package auth
