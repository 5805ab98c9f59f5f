package commitmsg

import (
	"strconv"

	"github.com/valyala/fasttemplate"
)

const (
	// DefaultUpload is the upload commit message.
	// Placeholders: {branch}, {files}.
	DefaultUpload = "Latest code with {branch}"

	// DefaultReadme is the README written into an
	// empty repository. Placeholders: {repo},
	// {description}.
	DefaultReadme = "# {repo}\n\n{description}"

	// DefaultDescription fills {description} when
	// none is configured.
	DefaultDescription = "Initial repository setup"

	// InitMessage is the message of the commit that
	// initializes an empty repository.
	InitMessage = "Initial commit: Added README"
)

// Upload renders the upload commit message for branch
// carrying files uploaded files. An empty template
// falls back to DefaultUpload.
func Upload(tpl string, branch string, files int) string {
	if tpl == "" {
		tpl = DefaultUpload
	}

	return fasttemplate.ExecuteStringStd(
		tpl, "{", "}",
		map[string]interface{}{
			"branch": branch,
			"files":  strconv.Itoa(files),
		},
	)
}

// Readme renders the initialization README for repo.
// Empty template or description fall back to the
// defaults.
func Readme(tpl string, repo string, description string) string {
	if tpl == "" {
		tpl = DefaultReadme
	}

	if description == "" {
		description = DefaultDescription
	}

	return fasttemplate.ExecuteStringStd(
		tpl, "{", "}",
		map[string]interface{}{
			"repo":        repo,
			"description": description,
		},
	)
}
