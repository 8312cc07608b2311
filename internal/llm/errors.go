package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGenerationFailed means the provider failed before producing any token.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrStreamInterrupted means the stream broke after tokens were delivered. The
	// accumulated text is returned alongside it but must not be treated as an answer.
	ErrStreamInterrupted = errors.New("stream interrupted")

	// ErrFatalAPI marks provider errors that retrying will not fix: bad credentials,
	// exhausted quota or billing problems.
	ErrFatalAPI = errors.New("fatal provider error")
)

var fatalMarkers = []string{
	"credit balance",
	"rate limit",
	"quota",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %w", ErrFatalAPI, err)
	}
	return err
}

// WrapFatal tags err with ErrFatalAPI when it looks permanent.
func WrapFatal(err error) error {
	return wrapFatalError(err)
}

// IsFatal reports whether err was tagged as a permanent provider failure.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalAPI)
}
