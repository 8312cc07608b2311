package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywords(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty", "", nil},
		{"whitespace", "   ", nil},
		{"stopwords dropped", "What is the deploy process?", []string{"deploy", "process"}},
		{"dedup and lowercase", "Kafka kafka KAFKA topics", []string{"kafka", "topics"}},
		{"short only falls back", "Go", []string{"go"}},
		{"numbers kept", "error 503 on gateway", []string{"error", "503", "gateway"}},
		{"capped", "alpha bravo charlie delta echo foxtrot golf hotel india juliet", []string{
			"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Keywords(tt.query))
		})
	}
}
