// Package store implements the transactional dual store: a relational
// metadata database and a content-addressed archive, kept consistent
// by a two-phase commit protocol and a startup recovery pass.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
)

// Store is the transactional dual store: a single *sql.DB connection
// (SQLite is single-writer; the teacher's LocalStore makes the same
// choice) plus the content-addressed archive rooted alongside it.
type Store struct {
	db        *sql.DB
	dataRoot  string
	archive   *Archive
	txManager *TxManager
	log       *logging.Logger
}

// DBFileName is the metadata database's name within the data root.
const DBFileName = "ms.db"

// Open opens (creating if absent) the store rooted at dataRoot,
// bootstraps its schema, applies pending migrations, and runs crash
// recovery before returning. autoRecover controls whether recoverable
// issues are repaired automatically or merely reported.
func Open(dataRoot string, autoRecover bool) (*Store, error) {
	log := logging.Get(logging.CategoryStore)
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to create data root", err)
	}

	dbPath := filepath.Join(dataRoot, DBFileName)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to open metadata database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn("pragma failed", "pragma", pragma, "error", err.Error())
		}
	}

	archive, err := newArchive(dataRoot)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, dataRoot: dataRoot, archive: archive, log: log}
	if err := s.bootstrapSchema(); err != nil {
		db.Close()
		return nil, err
	}
	s.txManager = newTxManager(db, archive)

	report, err := newRecoveryManager(s).Recover(autoRecover)
	if err != nil {
		db.Close()
		return nil, err
	}
	if report.HasCritical() && !autoRecover {
		db.Close()
		return nil, mserr.New(mserr.KindIntegrity, "store has unrecovered critical issues; refusing to open").
			WithContext(map[string]any{"issues": report.Issues})
	}

	log.Info("store opened", "path", dbPath, "issues", len(report.Issues))
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.log.Debug("store closed")
	return s.db.Close()
}

// DB exposes the underlying connection for components (resolver,
// bandit, quarantine) that need direct queries outside the
// transactional write path.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Archive exposes the content-addressed blob store.
func (s *Store) Archive() *Archive {
	return s.archive
}

// Tx exposes the transaction manager for callers composing multi-step
// writes (e.g. the dedup engine's merge operation).
func (s *Store) Tx() *TxManager {
	return s.txManager
}

// SetIndexer attaches the derived-index wiring (internal/indexer.
// Indexer) so every future PutSkill/DeleteSkill commit keeps the
// lexical and vector indexes in sync, per spec.md §4.2.
func (s *Store) SetIndexer(idx Indexer) {
	s.txManager.SetIndexer(idx)
}

func (s *Store) bootstrapSchema() error {
	for _, stmt := range baseTables {
		if _, err := s.db.Exec(stmt); err != nil {
			return mserr.Wrap(mserr.KindIO, fmt.Sprintf("failed to apply schema statement: %s", stmt), err)
		}
	}
	if err := s.runMigrations(); err != nil {
		return err
	}
	return s.recordSchemaVersion()
}

func (s *Store) runMigrations() error {
	for _, m := range pendingMigrations {
		if !tableExists(s.db, m.Table) {
			continue
		}
		if columnExists(s.db, m.Table, m.Column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.Exec(stmt); err != nil {
			return mserr.Wrap(mserr.KindIO, "migration failed: "+stmt, err)
		}
	}
	return nil
}

func (s *Store) recordSchemaVersion() error {
	_, err := s.db.Exec(
		`INSERT INTO schema_version (id, version) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version = excluded.version`,
		CurrentSchemaVersion,
	)
	return err
}

func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
	return err == nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}
