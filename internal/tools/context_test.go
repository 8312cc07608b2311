package tools

import (
	"testing"

	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestParseRepoName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"git@github.com:acme/groundwork.git", "groundwork"},
		{"https://github.com/acme/groundwork.git", "groundwork"},
		{"https://github.com/acme/groundwork", "groundwork"},
		{"file:///srv/repo", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRepoName(tt.url))
		})
	}
}

func TestResolveScope(t *testing.T) {
	cfg := config.Config{Owner: "local", Project: "apollo"}

	tests := []struct {
		name string
		in   ScopeInput
		want models.Scope
	}{
		{"defaults", ScopeInput{}, models.Scope{OwnerID: "local", ProjectID: "apollo"}},
		{"explicit owner", ScopeInput{Owner: "alice"}, models.Scope{OwnerID: "alice", ProjectID: "apollo"}},
		{"explicit project", ScopeInput{Project: "gemini"}, models.Scope{OwnerID: "local", ProjectID: "gemini"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveScope(cfg, tt.in))
		})
	}

	// Without a configured project and detection off the scope covers the whole corpus.
	assert.Equal(t, models.Scope{OwnerID: "local"}, ResolveScope(config.Config{Owner: "local"}, ScopeInput{}))
}
