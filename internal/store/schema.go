package store

// CurrentSchemaVersion is bumped whenever a migration is appended to
// pendingMigrations, mirroring the teacher's versioned migration idiom
// (internal/store/migrations.go in the original tree).
const CurrentSchemaVersion = 1

// baseTables creates every logical table from spec.md §6 that does not
// need migration-aware column addition. Statements are idempotent
// (CREATE TABLE/INDEX IF NOT EXISTS) so opening an existing store is
// always safe.
var baseTables = []string{
	`CREATE TABLE IF NOT EXISTS skills (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL DEFAULT '',
		author TEXT,
		layer INTEGER NOT NULL,
		source_path TEXT NOT NULL DEFAULT '',
		git_remote TEXT,
		git_commit TEXT,
		content_hash TEXT NOT NULL UNIQUE,
		token_count INTEGER NOT NULL DEFAULT 0,
		quality_score REAL NOT NULL DEFAULT 0,
		indexed_at TEXT NOT NULL,
		modified_at TEXT NOT NULL,
		is_deprecated INTEGER NOT NULL DEFAULT 0,
		deprecation_reason TEXT,
		metadata_json TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_skills_layer ON skills(layer);`,
	`CREATE INDEX IF NOT EXISTS idx_skills_content_hash ON skills(content_hash);`,

	`CREATE TABLE IF NOT EXISTS skill_tags (
		skill_id TEXT NOT NULL REFERENCES skills(id) ON DELETE CASCADE,
		tag TEXT NOT NULL,
		PRIMARY KEY (skill_id, tag)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_skill_tags_tag ON skill_tags(tag);`,

	`CREATE TABLE IF NOT EXISTS skill_provides (
		skill_id TEXT NOT NULL REFERENCES skills(id) ON DELETE CASCADE,
		capability TEXT NOT NULL,
		PRIMARY KEY (skill_id, capability)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_skill_provides_capability ON skill_provides(capability);`,

	`CREATE TABLE IF NOT EXISTS skill_requires (
		skill_id TEXT NOT NULL REFERENCES skills(id) ON DELETE CASCADE,
		capability_or_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		PRIMARY KEY (skill_id, ordinal)
	);`,

	`CREATE TABLE IF NOT EXISTS skill_extends (
		child_id TEXT PRIMARY KEY REFERENCES skills(id) ON DELETE CASCADE,
		parent_id TEXT NOT NULL
	);`,

	// skills_fts is a shadow table of searchable text per skill, written
	// by writeSkillRows (tx.go) on every put and removed with its skill
	// by ON DELETE CASCADE. It is not a true SQLite FTS5 virtual table: the BM25 ranking itself lives in
	// internal/index/lexical, in-process, per SPEC_FULL.md §4.2.
	`CREATE TABLE IF NOT EXISTS skills_fts (
		skill_id TEXT PRIMARY KEY REFERENCES skills(id) ON DELETE CASCADE,
		search_text TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS aliases (
		alias TEXT PRIMARY KEY,
		canonical_id TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS tombstones (
		id TEXT PRIMARY KEY,
		original_id TEXT NOT NULL,
		deleted_at TEXT NOT NULL,
		archive_path TEXT
	);`,

	`CREATE TABLE IF NOT EXISTS tx_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		intent_json TEXT NOT NULL,
		staging_path TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tx_log_phase ON tx_log(phase);`,

	`CREATE TABLE IF NOT EXISTS quarantine_records (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		message_index INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		source TEXT NOT NULL,
		classification TEXT NOT NULL,
		original_excerpt TEXT NOT NULL,
		safe_excerpt TEXT NOT NULL,
		created_at TEXT NOT NULL,
		reviewed INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_quarantine_session ON quarantine_records(session_id);`,

	`CREATE TABLE IF NOT EXISTS quarantine_reviews (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL REFERENCES quarantine_records(id) ON DELETE CASCADE,
		reviewer TEXT NOT NULL,
		decision TEXT NOT NULL,
		notes TEXT,
		reviewed_at TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS bandit_params (
		skill_id TEXT PRIMARY KEY,
		params_blob BLOB NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS suggestion_cooldowns (
		context_hash TEXT NOT NULL,
		skill_id TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		PRIMARY KEY (context_hash, skill_id)
	);`,

	`CREATE TABLE IF NOT EXISTS user_history (
		skill_id TEXT PRIMARY KEY,
		last_seen TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0
	);`,

	`CREATE TABLE IF NOT EXISTS lock_holder (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		pid INTEGER NOT NULL,
		hostname TEXT NOT NULL,
		acquired_at TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS schema_version (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL
	);`,
}

// migration is one additive, idempotent schema change applied to an
// existing database on open, mirroring the teacher's
// Migration{Table,Column,Def} idiom (internal/store/migrations.go).
type migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists additive column migrations for future schema
// versions. Empty at CurrentSchemaVersion == 1; entries are appended
// here (never rewritten) as the schema evolves.
var pendingMigrations []migration
