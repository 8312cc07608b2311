// Package sqlitedb implements store.Store on an embedded SQLite database.
// Vectors are stored as little-endian float32 BLOBs and ranked in Go.
package sqlitedb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
	"modernc.org/sqlite"
)

// lowerFunc lowercases with Unicode case folding. SQLite's LOWER only folds ASCII.
const lowerFunc = "unicode_lower"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(lowerFunc, 1, unicodeLower)
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// DB implements store.Store.
type DB struct {
	db  *sql.DB
	now func() time.Time

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var _ store.Store = (*DB)(nil)

// Option configures a DB.
type Option func(*DB)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *DB) { d.now = now }
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, opts ...Option) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; SQLite serializes anyway.
	sqlDB.SetMaxOpenConns(1)

	d := &DB{
		db:      sqlDB,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the database.
func (d *DB) Close(_ context.Context) error {
	return d.db.Close()
}

func (d *DB) newID() string {
	d.idMu.Lock()
	defer d.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), d.entropy).String()
}

func (d *DB) timestamp() int64 {
	return d.now().UnixNano()
}

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	confidence  REAL NOT NULL DEFAULT 0.5,
	pinned      INTEGER NOT NULL DEFAULT 0,
	active      INTEGER NOT NULL DEFAULT 1,
	status      TEXT NOT NULL DEFAULT 'candidate',
	embedding   BLOB,
	owner_id    TEXT NOT NULL,
	project_id  TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories(owner_id, project_id);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);

CREATE TABLE IF NOT EXISTS knowledge_sources (
	id              TEXT PRIMARY KEY,
	type            TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	locator         TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	version         INTEGER NOT NULL DEFAULT 0,
	last_synced_at  INTEGER,
	metadata        TEXT,
	owner_id        TEXT NOT NULL,
	project_id      TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sources_scope ON knowledge_sources(owner_id, project_id);

CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id           TEXT PRIMARY KEY,
	source_id    TEXT NOT NULL REFERENCES knowledge_sources(id) ON DELETE CASCADE,
	chunk_index  INTEGER NOT NULL,
	content      TEXT NOT NULL,
	embedding    BLOB,
	metadata     TEXT,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON knowledge_chunks(source_id, chunk_index);
CREATE INDEX IF NOT EXISTS idx_chunks_created ON knowledge_chunks(created_at);

CREATE TABLE IF NOT EXISTS conversations (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	conversation_id  TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role             TEXT NOT NULL,
	content          TEXT NOT NULL,
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS memory_refs (
	message_id  TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	memory_id   TEXT NOT NULL,
	score       REAL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_refs_message ON memory_refs(message_id);

CREATE TABLE IF NOT EXISTS knowledge_refs (
	message_id  TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	chunk_id    TEXT NOT NULL,
	score       REAL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_knowledge_refs_message ON knowledge_refs(message_id);
`

func (d *DB) migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// scopeClause filters rows by owner and, when set, project.
func scopeClause(prefix string, scope models.Scope) (string, []any) {
	if scope.ProjectID == "" {
		return prefix + "owner_id = ?", []any{scope.OwnerID}
	}
	return prefix + "owner_id = ? AND " + prefix + "project_id = ?", []any{scope.OwnerID, scope.ProjectID}
}

// likeAny builds "(a LIKE ? OR b LIKE ? ...)" over every column and keyword.
func likeAny(columns []string, keywords []string) (string, []any) {
	var parts []string
	var args []any
	for _, kw := range keywords {
		pattern := "%" + escapeLike(strings.ToLower(kw)) + "%"
		for _, col := range columns {
			parts = append(parts, lowerFunc+"("+col+") LIKE ? ESCAPE '\\'")
			args = append(args, pattern)
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
