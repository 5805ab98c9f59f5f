// Package api exposes folderpush over HTTP for a browser front end and
// provides a matching Go client.
//
// Routes:
//
//	GET  /api/login-url        ?state=<state> -> {url}
//	POST /api/authenticate     {code} -> {access_token}
//	POST /api/upload-to-github {githubToken, repoOwner, repoName,
//	                            folderPath, mainBranch} -> {branch}
//	GET  /api/user             Authorization: Bearer <token>
//	GET  /api/repos            Authorization: Bearer <token>
//
// Failures answer {error}. Session holds the client-side state of one user
// (token, selected repository, folder) and turns it into upload requests.
package api
