package tools

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/models"
)

// ScopeInput lets a tool call override the configured principal.
type ScopeInput struct {
	Owner   string `json:"owner,omitempty" jsonschema:"Owner id (defaults to the configured owner)"`
	Project string `json:"project,omitempty" jsonschema:"Project id (defaults to the configured or detected project)"`
}

// ResolveScope determines the principal for a tool call.
// Owner: explicit > config. Project: explicit > config > git origin > cwd basename,
// the last two only when cfg.ProjectFromGit is set.
func ResolveScope(cfg config.Config, in ScopeInput) models.Scope {
	scope := models.Scope{OwnerID: cfg.Owner, ProjectID: cfg.Project}
	if in.Owner != "" {
		scope.OwnerID = in.Owner
	}
	switch {
	case in.Project != "":
		scope.ProjectID = in.Project
	case scope.ProjectID == "" && cfg.ProjectFromGit:
		scope.ProjectID = detectProject()
	}
	return scope
}

func detectProject() string {
	if origin := getGitOriginName(); origin != "" {
		return origin
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Base(cwd)
	}
	return ""
}

// getGitOriginName extracts repo name from git remote origin URL.
func getGitOriginName() string {
	cmd := exec.Command("git", "config", "--get", "remote.origin.url")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return parseRepoName(strings.TrimSpace(string(output)))
}

// parseRepoName extracts repo name from git URL.
// Handles: git@github.com:owner/repo.git, https://github.com/owner/repo.git
func parseRepoName(url string) string {
	if url == "" {
		return ""
	}
	url = strings.TrimSuffix(url, ".git")

	// SSH format: git@github.com:owner/repo
	if strings.HasPrefix(url, "git@") {
		parts := strings.Split(url, ":")
		if len(parts) == 2 {
			pathParts := strings.Split(parts[1], "/")
			return pathParts[len(pathParts)-1]
		}
	}

	// HTTPS format: https://github.com/owner/repo
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		parts := strings.Split(url, "/")
		return parts[len(parts)-1]
	}

	return ""
}
