//go:build cgo

package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
)

func init() {
	// Registers sqlite-vec as an auto-loadable extension for every
	// mattn/go-sqlite3 connection opened after this point, mirroring
	// the teacher's internal/store/init_vec.go. mattn/go-sqlite3 is
	// already an unconditional, cgo-based dependency of internal/store,
	// so cgo is mandatory for this module regardless of this file —
	// there is no pure-Go build of ms to protect with a second tag.
	vec.Auto()
}

// ANNIndex is the approximate-nearest-neighbor VectorIndex backend for
// corpora above the ~10^5-skill crossover named in spec.md §9 Open
// Question (b). It implements the same VectorUpserter/VectorSearcher
// contracts FlatIndex does, so System.Open can swap backends based on
// corpus size with no change to the indexer or search call sites.
type ANNIndex struct {
	db   *sql.DB
	dims int
	log  *logging.Logger
}

// NewANNIndex creates (if absent) a vec0 virtual table named
// "skill_vectors" sized for dims-dimensional float vectors against an
// already-open sqlite3 connection (normally the same *sql.DB the
// metadata store uses), plus a companion table tracking each row's
// content hash, mirroring FlatIndex.ContentHash's dedup-on-resave role.
func NewANNIndex(db *sql.DB, dims int) (*ANNIndex, error) {
	stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS skill_vectors USING vec0(
		skill_id TEXT PRIMARY KEY,
		embedding float[%d] distance_metric=cosine
	)`, dims)
	if _, err := db.Exec(stmt); err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to create vec0 virtual table", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS skill_vector_hashes (
		skill_id TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL
	)`); err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to create vector content-hash table", err)
	}
	return &ANNIndex{db: db, dims: dims, log: logging.Get(logging.CategoryIndex)}, nil
}

// Upsert stores skillID's vector and content hash, replacing any prior
// entry. Matches indexer.VectorUpserter's signature exactly so ANNIndex
// is a drop-in replacement for FlatIndex.
func (a *ANNIndex) Upsert(skillID, contentHash string, v []float32) error {
	if len(v) != a.dims {
		return mserr.New(mserr.KindValidation, "vector dimension mismatch")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to marshal vector", err)
	}
	// vec0 virtual tables do not support UPSERT, so replace by delete
	// then insert.
	if _, err = a.db.Exec(`DELETE FROM skill_vectors WHERE skill_id = ?`, skillID); err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to upsert ann vector", err)
	}
	_, err = a.db.Exec(
		`INSERT INTO skill_vectors (skill_id, embedding) VALUES (?, ?)`,
		skillID, string(payload),
	)
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to upsert ann vector", err)
	}
	_, err = a.db.Exec(
		`INSERT INTO skill_vector_hashes (skill_id, content_hash) VALUES (?, ?)
		 ON CONFLICT(skill_id) DO UPDATE SET content_hash = excluded.content_hash`,
		skillID, contentHash,
	)
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to upsert ann content hash", err)
	}
	return nil
}

// ContentHash returns skillID's last-upserted content hash, mirroring
// FlatIndex.ContentHash so callers can dedup re-embedding the same way
// regardless of which backend is active.
func (a *ANNIndex) ContentHash(skillID string) (string, bool) {
	var hash string
	err := a.db.QueryRow(`SELECT content_hash FROM skill_vector_hashes WHERE skill_id = ?`, skillID).Scan(&hash)
	if err != nil {
		return "", false
	}
	return hash, true
}

// Remove drops skillID's vector from the ANN table. Matches
// indexer.VectorUpserter's no-error Remove signature; failures are
// logged rather than surfaced, same as FlatIndex.Remove's contract
// (removal of an already-absent id is not an error condition).
func (a *ANNIndex) Remove(skillID string) {
	if _, err := a.db.Exec(`DELETE FROM skill_vectors WHERE skill_id = ?`, skillID); err != nil {
		a.log.Warn("failed to remove ann vector", "skill_id", skillID, "error", err.Error())
		return
	}
	if _, err := a.db.Exec(`DELETE FROM skill_vector_hashes WHERE skill_id = ?`, skillID); err != nil {
		a.log.Warn("failed to remove ann content hash", "skill_id", skillID, "error", err.Error())
	}
}

// Search runs an approximate k-NN query over the vec0 table, returning
// results ordered by ascending vec0 distance (== descending cosine
// similarity for unit-normalized vectors), tie-broken by skill id.
func (a *ANNIndex) Search(_ context.Context, query []float32, limit int) ([]Result, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to marshal query vector", err)
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.db.Query(
		`SELECT skill_id, distance FROM skill_vectors
		 WHERE embedding MATCH ? AND k = ?
		 ORDER BY distance`,
		string(payload), limit,
	)
	if err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "ann search query failed", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, mserr.Wrap(mserr.KindIO, "failed to scan ann result", err)
		}
		results = append(results, Result{SkillID: id, Cosine: 1 - distance})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Cosine != results[j].Cosine {
			return results[i].Cosine > results[j].Cosine
		}
		return results[i].SkillID < results[j].SkillID
	})
	return results, nil
}

// Len reports how many vectors are currently indexed, mirroring
// FlatIndex.Len so System.Open's crossover check can re-evaluate it
// across reopens without caring which backend was active last time.
func (a *ANNIndex) Len() int {
	var n int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM skill_vectors`).Scan(&n); err != nil {
		return 0
	}
	return n
}
