// Package config loads folderpush settings from a YAML file layered on top of
// built-in defaults, then applies environment overrides for secrets and the
// listen address.
//
// Recognized environment variables:
//
//	FOLDERPUSH_OAUTH_CLIENT_ID
//	FOLDERPUSH_OAUTH_CLIENT_SECRET
//	FOLDERPUSH_LISTEN
package config
