package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/folderpush/folder"
	"github.com/byte4ever/folderpush/git"
	"github.com/byte4ever/folderpush/upload"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Backend builds platform objects for a request.
// *platform.Platform implements it.
type Backend interface {
	Store(token, owner, repo string) (git.Store, error)
	Lister(token string) (git.Lister, error)
	UploadConfig(
		store git.Store,
		repo, baseBranch, folderPath string,
	) upload.Config
}

// Exchanger trades an OAuth code for an access token.
// *auth.Exchanger implements it.
type Exchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

// Config holds the server dependencies.
type Config struct {
	// Backend is required.
	Backend Backend

	// Exchanger serves /api/authenticate. When nil
	// the route answers 503.
	Exchanger Exchanger

	// AllowedOrigins may call the API from a browser.
	// "*" allows any origin.
	AllowedOrigins []string

	// AllowedRoot, when set, restricts upload folder
	// paths to this directory.
	AllowedRoot string
}

// Server serves the HTTP API.
type Server struct {
	backend     Backend
	exchanger   Exchanger
	origins     map[string]struct{}
	allowedRoot string
	handler     http.Handler
}

// NewServer validates cfg and returns a Server.
func NewServer(cfg Config) (*Server, error) {
	const errCtx = "creating api server"

	if cfg.Backend == nil {
		return nil, fmt.Errorf(
			"%s: backend must be set", errCtx,
		)
	}

	s := &Server{
		backend:   cfg.Backend,
		exchanger: cfg.Exchanger,
		origins:   make(map[string]struct{}),
	}

	for _, o := range cfg.AllowedOrigins {
		s.origins[o] = struct{}{}
	}

	if cfg.AllowedRoot != "" {
		root, err := filepath.Abs(cfg.AllowedRoot)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: allowed root: %w", errCtx, err,
			)
		}

		s.allowedRoot = root
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/login-url", s.handleLoginURL)
	mux.HandleFunc("POST /api/authenticate", s.handleAuthenticate)
	mux.HandleFunc("POST /api/upload-to-github", s.handleUpload)
	mux.HandleFunc("GET /api/user", s.handleUser)
	mux.HandleFunc("GET /api/repos", s.handleRepos)

	s.handler = logRequests(s.cors(mux))

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleLoginURL(
	w http.ResponseWriter,
	r *http.Request,
) {
	if s.exchanger == nil {
		writeError(
			w, http.StatusServiceUnavailable,
			"oauth is not configured",
		)

		return
	}

	writeJSON(w, http.StatusOK, LoginURLResponse{
		URL: s.exchanger.AuthCodeURL(r.URL.Query().Get("state")),
	})
}

func (s *Server) handleAuthenticate(
	w http.ResponseWriter,
	r *http.Request,
) {
	if s.exchanger == nil {
		writeError(
			w, http.StatusServiceUnavailable,
			"oauth is not configured",
		)

		return
	}

	var req AuthRequest
	if !decode(w, r, &req) {
		return
	}

	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")

		return
	}

	tok, err := s.exchanger.Exchange(r.Context(), req.Code)
	if err != nil {
		slog.Error("authentication failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{AccessToken: tok})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if !decode(w, r, &req) {
		return
	}

	if msg := missingField(req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)

		return
	}

	if !s.allowed(req.FolderPath) {
		writeError(
			w, http.StatusForbidden,
			"folder path is outside the allowed root",
		)

		return
	}

	store, err := s.backend.Store(
		req.Token, req.RepoOwner, req.RepoName,
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	cfg := s.backend.UploadConfig(
		store, req.RepoName, req.MainBranch, req.FolderPath,
	)

	branch, err := upload.Run(r.Context(), cfg)
	if err != nil {
		slog.Error(
			"upload failed",
			"owner", req.RepoOwner,
			"repo", req.RepoName,
			"error", err,
		)
		writeError(w, uploadStatus(err), err.Error())

		return
	}

	slog.Info(
		"upload done",
		"owner", req.RepoOwner,
		"repo", req.RepoName,
		"branch", branch,
	)
	writeJSON(w, http.StatusOK, UploadResponse{Branch: branch})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.lister(w, r)
	if !ok {
		return
	}

	acct, err := ls.CurrentUser(r.Context())
	if err != nil {
		writeError(w, passthroughStatus(err), err.Error())

		return
	}

	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleRepos(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.lister(w, r)
	if !ok {
		return
	}

	repos, err := ls.Repositories(r.Context())
	if err != nil {
		writeError(w, passthroughStatus(err), err.Error())

		return
	}

	if repos == nil {
		repos = []git.Repository{}
	}

	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) lister(
	w http.ResponseWriter,
	r *http.Request,
) (git.Lister, bool) {
	tok := bearer(r.Header.Get("Authorization"))
	if tok == "" {
		writeError(
			w, http.StatusUnauthorized,
			"missing bearer token",
		)

		return nil, false
	}

	ls, err := s.backend.Lister(tok)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return nil, false
	}

	return ls, true
}

// allowed reports whether dir lies inside the allowed
// root, if one is configured.
func (s *Server) allowed(dir string) bool {
	if s.allowedRoot == "" {
		return true
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(s.allowedRoot, abs)
	if err != nil {
		return false
	}

	return rel != ".." &&
		!strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func missingField(req UploadRequest) string {
	switch {
	case req.Token == "":
		return "githubToken is required"
	case req.RepoOwner == "":
		return "repoOwner is required"
	case req.RepoName == "":
		return "repoName is required"
	case req.FolderPath == "":
		return "folderPath is required"
	}

	return ""
}

// bearer extracts the token of an "Authorization:
// Bearer x" or "Authorization: token x" header.
func bearer(header string) string {
	scheme, tok, ok := strings.Cut(header, " ")
	if !ok {
		return ""
	}

	switch strings.ToLower(scheme) {
	case "bearer", "token":
		return strings.TrimSpace(tok)
	}

	return ""
}

// uploadStatus maps an upload failure to a response
// status. Unclassified failures are server errors.
func uploadStatus(err error) int {
	var pe *fs.PathError
	if errors.As(err, &pe) ||
		errors.Is(err, folder.ErrNotDirectory) {
		return http.StatusBadRequest
	}

	switch code := git.StatusCode(err); code {
	case http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusUnprocessableEntity:
		return code
	}

	return http.StatusInternalServerError
}

func passthroughStatus(err error) int {
	if code := git.StatusCode(err); code >= 400 && code < 500 {
		return code
	}

	return http.StatusBadGateway
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(
			w, http.StatusBadRequest,
			"invalid request body: "+err.Error(),
		)

		return false
	}

	return true
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("writing response", "error", err)
	}
}
