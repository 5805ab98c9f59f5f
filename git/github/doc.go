// Package github implements git.Store and git.Lister on top of the GitHub
// REST API (cloud or enterprise). Configure with a Config containing the
// repository owner, name, and access token. Set EnterpriseHost for GitHub
// Enterprise installations, or BaseURL to point at any API root.
package github
