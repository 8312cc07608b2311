package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	// Encodings ship with the binary; no download at runtime.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens estimates the cl100k_base token count of text. If the encoding cannot
// be loaded it falls back to four bytes per token.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}

// TrimHistory keeps the newest messages that fit both maxTurns (a turn is a user
// and an assistant message) and tokenBudget, in chronological order. Non-positive
// limits are ignored.
func TrimHistory(history []Message, maxTurns, tokenBudget int) []Message {
	if maxTurns > 0 && len(history) > maxTurns*2 {
		history = history[len(history)-maxTurns*2:]
	}
	if tokenBudget <= 0 {
		return history
	}

	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		n := CountTokens(history[i].Content)
		if used+n > tokenBudget {
			break
		}
		used += n
		start = i
	}
	return history[start:]
}
