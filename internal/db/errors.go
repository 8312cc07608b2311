package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/groundwork/internal/store"
	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for database operations.
var (
	// ErrAlreadyExists indicates a record with the same ID already exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTransactionConflict indicates concurrent writers touched the same records.
	// Callers should typically retry.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// errMissingMessage is thrown from SurrealQL when a provenance link names an unknown message.
const errMissingMessage = "message not found"

// wrapQueryError maps known SurrealDB query errors onto sentinels.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		switch {
		case strings.Contains(msg, "already exists"):
			return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
		case strings.Contains(msg, "Transaction conflict"):
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		case strings.Contains(msg, errMissingMessage):
			return fmt.Errorf("%w: %s", store.ErrNotFound, msg)
		}
	}
	return err
}
