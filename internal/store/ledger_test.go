package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codex/internal/audit"
	"github.com/roach88/codex/internal/ir"
	"github.com/roach88/codex/internal/testutil"
)

func testRecord(id string, seq int64, action string, ids ...string) ir.AuditRecord {
	return ir.AuditRecord{
		ID:        id,
		Seq:       seq,
		Action:    action,
		EntityIDs: ids,
		Timestamp: testutil.Epoch.Add(time.Duration(seq) * time.Second),
		Actor:     audit.SystemActor,
	}
}

func TestLedger_AppendAndLoadAll(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, testRecord("r2", 2, audit.ActionFusionConsent, "s1")))
	require.NoError(t, s.Append(ctx, testRecord("r1", 1, audit.ActionFusionPropose, "s1", "node_1", "card_0_fool")))

	records, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, int64(1), records[0].Seq)
	assert.Equal(t, []string{"s1", "node_1", "card_0_fool"}, records[0].EntityIDs)
	assert.True(t, records[0].Timestamp.Equal(testutil.Epoch.Add(time.Second)))
	assert.Equal(t, audit.SystemActor, records[0].Actor)
	assert.Equal(t, "r2", records[1].ID)
}

func TestLedger_EmptyReturnsEmptySlice(t *testing.T) {
	s := createTestStore(t)

	records, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	seq, err := s.MaxSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
}

func TestLedger_AppendIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := testRecord("r1", 1, audit.ActionFusionPropose, "s1")
	require.NoError(t, s.Append(ctx, rec))
	require.NoError(t, s.Append(ctx, rec))

	records, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLedger_SeqCollisionRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, testRecord("r1", 1, audit.ActionFusionPropose)))
	assert.Error(t, s.Append(ctx, testRecord("other", 1, audit.ActionFusionAbort)))
}

func TestLedger_NilEntityIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, testRecord("r1", 1, audit.ActionPassSummary)))
	records, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{}, records[0].EntityIDs)
}

func TestLedger_LoadSinceAndByAction(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, action := range []string{
		audit.ActionFusionPropose,
		audit.ActionFusionConsent,
		audit.ActionPassSummary,
		audit.ActionFusionResolve,
		audit.ActionPassSummary,
	} {
		seq := int64(i + 1)
		require.NoError(t, s.Append(ctx, testRecord(action+string(rune('a'+i)), seq, action)))
	}

	since, err := s.LoadSince(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, int64(3), since[0].Seq)
	assert.Equal(t, int64(4), since[1].Seq)

	all, err := s.LoadSince(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	passes, err := s.LoadByAction(ctx, audit.ActionPassSummary)
	require.NoError(t, err)
	require.Len(t, passes, 2)
	assert.Equal(t, int64(3), passes[0].Seq)
	assert.Equal(t, int64(5), passes[1].Seq)

	maxSeq, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), maxSeq)
}

func TestLedger_RecorderResumesAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/ledger.db"
	ctx := context.Background()
	wall := testutil.NewFakeClock(testutil.Epoch)

	s1, err := Open(path)
	require.NoError(t, err)
	rec1 := audit.NewRecorder(s1, wall, 0)
	_, err = rec1.Record(ctx, audit.ActionFusionPropose, "s1")
	require.NoError(t, err)
	_, err = rec1.Record(ctx, audit.ActionFusionAbort, "s1")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	start, err := s2.MaxSeq(ctx)
	require.NoError(t, err)
	rec2 := audit.NewRecorder(s2, wall, start)
	_, err = rec2.Record(ctx, audit.ActionFusionPropose, "s2")
	require.NoError(t, err)

	records, err := s2.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{records[0].Seq, records[1].Seq, records[2].Seq})
}
