package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/surrealdb/surrealdb.go"
)

func TestWrapQueryError(t *testing.T) {
	plain := errors.New("socket closed")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"exists", &surrealdb.QueryError{Message: "Database record `memory:x` already exists"}, ErrAlreadyExists},
		{"conflict", &surrealdb.QueryError{Message: "Transaction conflict: retry"}, ErrTransactionConflict},
		{"missing message", &surrealdb.QueryError{Message: "An error occurred: " + errMissingMessage}, store.ErrNotFound},
		{"other", plain, plain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapQueryError(tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestKeywordFilter(t *testing.T) {
	vars := map[string]any{}
	clause := keywordFilter([]string{"title", "content"}, []string{"Kafka", "lag"}, vars)

	assert.Equal(t, "(string::contains(string::lowercase(title), $kw0) OR string::contains(string::lowercase(content), $kw0) OR "+
		"string::contains(string::lowercase(title), $kw1) OR string::contains(string::lowercase(content), $kw1))", clause)
	assert.Equal(t, "kafka", vars["kw0"])
	assert.Equal(t, "lag", vars["kw1"])
}

func TestScopeFilter(t *testing.T) {
	vars := map[string]any{}
	assert.Equal(t, "owner_id = $owner", scopeFilter("", models.Scope{OwnerID: "u"}, vars))
	assert.Equal(t, "u", vars["owner"])

	vars = map[string]any{}
	assert.Equal(t, "source.owner_id = $owner AND source.project_id = $project", scopeFilter("source.", models.Scope{OwnerID: "u", ProjectID: "p"}, vars))
	assert.Equal(t, "p", vars["project"])
}

func TestSchemaSQLUsesDimension(t *testing.T) {
	sql := schemaSQL(768)
	assert.Contains(t, sql, "memory_embedding ON memory FIELDS embedding HNSW DIMENSION 768")
	assert.Contains(t, sql, "chunk_embedding ON knowledge_chunk FIELDS embedding HNSW DIMENSION 768")
}

func TestKNNClause(t *testing.T) {
	assert.Equal(t, "embedding <|40,40|> $emb", knnClause(40))
	assert.Equal(t, "embedding <|320,40|> $emb", knnClause(320))
}

func TestKNNSizes(t *testing.T) {
	tests := []struct {
		limit int
		want  []int
	}{
		{6, []int{40, 80, 160, 320, 640, 1280}},
		{20, []int{80, 160, 320, 640, 1280}},
		{300, []int{1200, 1280}},
		{500, []int{2000}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.limit), func(t *testing.T) {
			assert.Equal(t, tt.want, knnSizes(tt.limit))
		})
	}
}
