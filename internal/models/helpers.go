package models

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidType is returned for an unknown memory or source type.
var ErrInvalidType = errors.New("invalid type")

var (
	memoryTypes = []MemoryType{MemoryTypeFact, MemoryTypePreference, MemoryTypeProcedure, MemoryTypeGoal, MemoryTypeContext}
	sourceTypes = []SourceType{SourceTypePDF, SourceTypeDocExport, SourceTypeWikiPage, SourceTypeCloudFile}
)

// ParseMemoryType validates a memory type string.
func ParseMemoryType(s string) (MemoryType, error) {
	t := MemoryType(s)
	if !slices.Contains(memoryTypes, t) {
		return "", fmt.Errorf("%w: memory type %q (want one of %v)", ErrInvalidType, s, memoryTypes)
	}
	return t, nil
}

// ParseSourceType validates a source type string.
func ParseSourceType(s string) (SourceType, error) {
	t := SourceType(s)
	if !slices.Contains(sourceTypes, t) {
		return "", fmt.Errorf("%w: source type %q (want one of %v)", ErrInvalidType, s, sourceTypes)
	}
	return t, nil
}

// ClampConfidence keeps a confidence value within [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 {
	return &f
}
