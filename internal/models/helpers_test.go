package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMemoryType(t *testing.T) {
	tests := []struct {
		in      string
		want    MemoryType
		wantErr bool
	}{
		{"fact", MemoryTypeFact, false},
		{"preference", MemoryTypePreference, false},
		{"procedure", MemoryTypeProcedure, false},
		{"goal", MemoryTypeGoal, false},
		{"context", MemoryTypeContext, false},
		{"Fact", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMemoryType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSourceType(t *testing.T) {
	for _, in := range []string{"pdf", "doc-export", "wiki-page", "cloud-file"} {
		got, err := ParseSourceType(in)
		require.NoError(t, err)
		assert.Equal(t, SourceType(in), got)
	}
	_, err := ParseSourceType("s3")
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestMemoryRetrievable(t *testing.T) {
	tests := []struct {
		name   string
		active bool
		status MemoryStatus
		want   bool
	}{
		{"active candidate", true, MemoryStatusCandidate, true},
		{"active approved", true, MemoryStatusApproved, true},
		{"active rejected", true, MemoryStatusRejected, false},
		{"inactive approved", false, MemoryStatusApproved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Memory{Active: tt.active, Status: tt.status}
			assert.Equal(t, tt.want, m.Retrievable())
		})
	}
}

func TestScope(t *testing.T) {
	assert.ErrorIs(t, Scope{}.Validate(), ErrNoOwner)
	assert.NoError(t, Scope{OwnerID: "u1"}.Validate())

	all := Scope{OwnerID: "u1"}
	assert.True(t, all.Contains("u1", ""))
	assert.True(t, all.Contains("u1", "p1"))
	assert.False(t, all.Contains("u2", ""))

	proj := Scope{OwnerID: "u1", ProjectID: "p1"}
	assert.True(t, proj.Contains("u1", "p1"))
	assert.False(t, proj.Contains("u1", "p2"))
	assert.False(t, proj.Contains("u1", ""))
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.5))
	assert.Equal(t, 0.4, ClampConfidence(0.4))
	assert.Equal(t, 1.0, ClampConfidence(3))
}

func TestMemoryEmbeddingText(t *testing.T) {
	assert.Equal(t, "body", Memory{Content: "body"}.EmbeddingText())
	assert.Equal(t, "T\nbody", Memory{Title: "T", Content: "body"}.EmbeddingText())
}
