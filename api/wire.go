package api

// LoginURLResponse carries the platform page where the
// user authorizes the application.
type LoginURLResponse struct {
	URL string `json:"url"`
}

// AuthRequest is the body of POST /api/authenticate.
type AuthRequest struct {
	Code string `json:"code"`
}

// AuthResponse carries the exchanged access token.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
}

// UploadRequest is the body of POST
// /api/upload-to-github.
type UploadRequest struct {
	Token      string `json:"githubToken"`
	RepoOwner  string `json:"repoOwner"`
	RepoName   string `json:"repoName"`
	FolderPath string `json:"folderPath"`
	MainBranch string `json:"mainBranch,omitempty"`
}

// UploadResponse names the branch holding the upload.
type UploadResponse struct {
	Branch string `json:"branch"`
}

// ErrorResponse is returned with every failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
