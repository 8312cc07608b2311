package db

import "fmt"

// schemaSQL returns the schema with the HNSW indexes sized to dimension.
func schemaSQL(dimension int) string {
	return fmt.Sprintf(schemaTemplate, dimension, dimension)
}

const schemaTemplate = `
    -- ==========================================================================
    -- MEMORY
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS memory SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS type ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON memory TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS content ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS confidence ON memory TYPE float DEFAULT 0.5;
    DEFINE FIELD IF NOT EXISTS pinned ON memory TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS active ON memory TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS status ON memory TYPE string DEFAULT "candidate"
        ASSERT $value IN ["candidate", "approved", "rejected"];
    DEFINE FIELD IF NOT EXISTS embedding ON memory TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS owner_id ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS project_id ON memory TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS created_at ON memory TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON memory TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS memory_scope ON memory FIELDS owner_id, project_id;
    DEFINE INDEX IF NOT EXISTS memory_created ON memory FIELDS created_at;
    DEFINE INDEX IF NOT EXISTS memory_embedding ON memory FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- KNOWLEDGE SOURCES AND CHUNKS
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS knowledge_source SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS type ON knowledge_source TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON knowledge_source TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS locator ON knowledge_source TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON knowledge_source TYPE string DEFAULT "pending"
        ASSERT $value IN ["pending", "processing", "ready", "error"];
    DEFINE FIELD IF NOT EXISTS version ON knowledge_source TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS last_synced_at ON knowledge_source TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS metadata ON knowledge_source TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS owner_id ON knowledge_source TYPE string;
    DEFINE FIELD IF NOT EXISTS project_id ON knowledge_source TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS created_at ON knowledge_source TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON knowledge_source TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS source_scope ON knowledge_source FIELDS owner_id, project_id;

    DEFINE TABLE IF NOT EXISTS knowledge_chunk SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS source ON knowledge_chunk TYPE record<knowledge_source>;
    DEFINE FIELD IF NOT EXISTS chunk_index ON knowledge_chunk TYPE int;
    DEFINE FIELD IF NOT EXISTS content ON knowledge_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON knowledge_chunk TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS metadata ON knowledge_chunk TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created_at ON knowledge_chunk TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS chunk_source ON knowledge_chunk FIELDS source, chunk_index;
    DEFINE INDEX IF NOT EXISTS chunk_created ON knowledge_chunk FIELDS created_at;
    DEFINE INDEX IF NOT EXISTS chunk_embedding ON knowledge_chunk FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- CONVERSATIONS
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner_id ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON conversation TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS created_at ON conversation TYPE datetime DEFAULT time::now();

    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation ON message TYPE record<conversation>;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string ASSERT $value IN ["user", "assistant"];
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS message_conversation ON message FIELDS conversation, created_at;

    -- ==========================================================================
    -- PROVENANCE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS memory_ref SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS message ON memory_ref TYPE record<message>;
    DEFINE FIELD IF NOT EXISTS memory_id ON memory_ref TYPE string;
    DEFINE FIELD IF NOT EXISTS score ON memory_ref TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS created_at ON memory_ref TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS memory_ref_message ON memory_ref FIELDS message;

    DEFINE TABLE IF NOT EXISTS knowledge_ref SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS message ON knowledge_ref TYPE record<message>;
    DEFINE FIELD IF NOT EXISTS chunk_id ON knowledge_ref TYPE string;
    DEFINE FIELD IF NOT EXISTS score ON knowledge_ref TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS created_at ON knowledge_ref TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS knowledge_ref_message ON knowledge_ref FIELDS message;
`
