package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
)

// GetSkill loads a skill's full metadata row and associated tags,
// capabilities, and requirements by id. The returned skill's Sections
// are left empty: bodies live in the archive and are read on demand
// via GetSkillBody, per spec.md §6's split between metadata DB and
// content-addressed archive.
func (s *Store) GetSkill(ctx context.Context, id string) (*skill.Skill, error) {
	timer := logging.StartTimer(logging.CategoryStore, "GetSkill")
	defer timer.Stop()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, version, author, layer, source_path,
			git_remote, git_commit, content_hash, token_count, quality_score,
			indexed_at, modified_at, is_deprecated, deprecation_reason, metadata_json
		FROM skills WHERE id = ?`, id)

	sk, err := scanSkillRow(row)
	if err != nil {
		return nil, err
	}

	if err := s.attachAssociations(ctx, sk); err != nil {
		return nil, err
	}
	return sk, nil
}

// GetSkillBody reads and parses a skill's canonical body from the
// archive, keyed by the content hash on its metadata row.
func (s *Store) GetSkillBody(ctx context.Context, id string) (*skill.Skill, error) {
	meta, err := s.GetSkill(ctx, id)
	if err != nil {
		return nil, err
	}
	raw, err := s.archive.Read(meta.Source.ContentHash)
	if err != nil {
		return nil, err
	}
	parsed, err := skill.Parse(string(raw), meta.Source.SourcePath)
	if err != nil {
		return nil, mserr.Wrap(mserr.KindValidation, "failed to parse archived skill body", err)
	}
	// Metadata DB columns are authoritative for fields the store tracks
	// independently of the document (timestamps, deprecation, quality).
	parsed.TokenCount = meta.TokenCount
	parsed.QualityScore = meta.QualityScore
	parsed.IndexedAt = meta.IndexedAt
	parsed.ModifiedAt = meta.ModifiedAt
	parsed.Deprecated = meta.Deprecated
	parsed.DeprecationReason = meta.DeprecationReason
	parsed.Source = meta.Source
	return parsed, nil
}

// ListSkills returns every non-deprecated skill's metadata row, ordered
// by id, optionally filtered by layer (pass -1 for all layers).
func (s *Store) ListSkills(ctx context.Context, layer int) ([]*skill.Skill, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListSkills")
	defer timer.Stop()

	query := `
		SELECT id, name, description, version, author, layer, source_path,
			git_remote, git_commit, content_hash, token_count, quality_score,
			indexed_at, modified_at, is_deprecated, deprecation_reason, metadata_json
		FROM skills WHERE is_deprecated = 0`
	args := []any{}
	if layer >= 0 {
		query += ` AND layer = ?`
		args = append(args, layer)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to list skills", err)
	}
	defer rows.Close()

	var out []*skill.Skill
	for rows.Next() {
		sk, err := scanSkillRow(rows)
		if err != nil {
			return nil, err
		}
		if err := s.attachAssociations(ctx, sk); err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, nil
}

// ResolveAlias follows an alias to its canonical skill id, returning
// the input unchanged if it is not an alias.
func (s *Store) ResolveAlias(ctx context.Context, aliasOrID string) (string, error) {
	var canonical string
	err := s.db.QueryRowContext(ctx, `SELECT canonical_id FROM aliases WHERE alias = ?`, aliasOrID).Scan(&canonical)
	if err == sql.ErrNoRows {
		return aliasOrID, nil
	}
	if err != nil {
		return "", mserr.Wrap(mserr.KindIO, "failed to resolve alias", err)
	}
	return canonical, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting
// scanSkillRow serve GetSkill's single-row path and ListSkills' cursor.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSkillRow(row rowScanner) (*skill.Skill, error) {
	var sk skill.Skill
	var author, gitRemote, gitCommit sql.NullString
	var deprecationReason, metadataJSON sql.NullString
	var layer, isDeprecated int
	var indexedAt, modifiedAt string
	err := row.Scan(
		&sk.ID, &sk.Name, &sk.Description, &sk.Version, &author, &layer, &sk.Source.SourcePath,
		&gitRemote, &gitCommit, &sk.Source.ContentHash, &sk.TokenCount, &sk.QualityScore,
		&indexedAt, &modifiedAt, &isDeprecated, &deprecationReason, &metadataJSON,
	)
	if err == sql.ErrNoRows {
		return nil, mserr.New(mserr.KindSkillNotFound, "skill not found")
	}
	if err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to scan skill row", err)
	}

	sk.Layer = skill.Layer(layer)
	sk.Author = nullStringPtr(author)
	sk.Source.GitRemote = nullStringPtr(gitRemote)
	sk.Source.GitCommit = nullStringPtr(gitCommit)
	sk.DeprecationReason = nullStringPtr(deprecationReason)
	sk.Deprecated = isDeprecated != 0
	sk.IndexedAt = parseTimeOrZero(indexedAt)
	sk.ModifiedAt = parseTimeOrZero(modifiedAt)

	if metadataJSON.Valid && metadataJSON.String != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(metadataJSON.String), &m); err == nil {
			sk.Metadata = m
		}
	}
	return &sk, nil
}

func (s *Store) attachAssociations(ctx context.Context, sk *skill.Skill) error {
	var err error
	if sk.Tags, err = s.queryStrings(ctx, `SELECT tag FROM skill_tags WHERE skill_id = ? ORDER BY tag`, sk.ID); err != nil {
		return err
	}
	if sk.Provides, err = s.queryStrings(ctx, `SELECT capability FROM skill_provides WHERE skill_id = ? ORDER BY capability`, sk.ID); err != nil {
		return err
	}
	if sk.Requires, err = s.queryStrings(ctx,
		`SELECT capability_or_id FROM skill_requires WHERE skill_id = ? ORDER BY ordinal`, sk.ID); err != nil {
		return err
	}

	var parent string
	err = s.db.QueryRowContext(ctx, `SELECT parent_id FROM skill_extends WHERE child_id = ?`, sk.ID).Scan(&parent)
	switch {
	case err == sql.ErrNoRows:
		sk.Extends = nil
	case err != nil:
		return mserr.Wrap(mserr.KindIO, "failed to load extends", err)
	default:
		sk.Extends = &parent
	}
	return nil
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to query associations", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, mserr.Wrap(mserr.KindIO, "failed to scan association row", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseTimeOrZero(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
