package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverNoOpenTransactionsIsClean(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Tx().PutSkill(context.Background(), sampleTestSkill("clean-skill")))

	report, err := newRecoveryManager(s).Recover(true)
	require.NoError(t, err)
	assert.False(t, report.HasCritical())
	assert.Zero(t, report.RolledBack)
}

func TestRecoverDiscardsPrepareOnlyStaging(t *testing.T) {
	s := newTestStore(t)

	hash := "deadbeef00000000000000000000000000000000000000000000000000ab"
	require.NoError(t, s.archive.Stage(hash, []byte("staged but never written")))

	_, err := s.db.Exec(
		`INSERT INTO tx_log (entity_type, entity_id, phase, intent_json, staging_path, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		"skill", "orphan-prepare", string(PhasePrepare),
		`{"content_hash":"`+hash+`","staging_path":""}`, "", time.Now().UTC().Format(time.RFC3339),
	)
	require.NoError(t, err)

	report, err := newRecoveryManager(s).Recover(true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RolledBack)
	assert.False(t, s.archive.Has(hash))

	stagingLeft, err := s.archive.ListStaging()
	require.NoError(t, err)
	assert.NotContains(t, stagingLeft, hash)
}

func TestRecoverRollsForwardWriteWithStagedBlob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sk := sampleTestSkill("roll-forward-skill")
	require.NoError(t, s.Tx().PutSkill(ctx, sk))
	hash := sk.Source.ContentHash

	// Simulate a crash between WRITE and PUBLISH: republish into
	// staging and reopen a WRITE-phase log entry.
	raw, err := s.archive.Read(hash)
	require.NoError(t, err)
	require.NoError(t, removeBlobForTest(s, hash))
	require.NoError(t, s.archive.Stage(hash, raw))

	_, err = s.db.Exec(
		`INSERT INTO tx_log (entity_type, entity_id, phase, intent_json, staging_path, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		"skill", sk.ID, string(PhaseWrite),
		`{"content_hash":"`+hash+`","skill_id":"`+sk.ID+`"}`, "", time.Now().UTC().Format(time.RFC3339),
	)
	require.NoError(t, err)

	report, err := newRecoveryManager(s).Recover(true)
	require.NoError(t, err)
	assert.True(t, s.archive.Has(hash))
	assert.GreaterOrEqual(t, report.Completed, 1)
}

func TestCheckIntegrityFlagsDBResult(t *testing.T) {
	s := newTestStore(t)
	report, err := s.CheckIntegrity()
	require.NoError(t, err)
	assert.True(t, report.DBHealthy)
}
