package models

import "errors"

// ErrNoOwner is returned when a scope carries no principal.
var ErrNoOwner = errors.New("scope has no owner")

// Scope is the explicit principal every retrieval, ingestion and backfill call runs under.
// An empty ProjectID means the owner's whole corpus.
type Scope struct {
	OwnerID   string `json:"owner_id"`
	ProjectID string `json:"project_id,omitempty"`
}

// Validate checks that the scope names an owner.
func (s Scope) Validate() error {
	if s.OwnerID == "" {
		return ErrNoOwner
	}
	return nil
}

// Contains reports whether a row owned by ownerID in projectID is visible in the scope.
func (s Scope) Contains(ownerID, projectID string) bool {
	if ownerID != s.OwnerID {
		return false
	}
	return s.ProjectID == "" || s.ProjectID == projectID
}
