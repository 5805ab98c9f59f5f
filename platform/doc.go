// Package platform builds the hosting backend selected in the configuration:
// git stores and listers for a given access token, the OAuth exchanger, and
// upload settings carrying the configured defaults.
package platform
