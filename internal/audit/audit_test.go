package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codex/internal/ir"
	"github.com/roach88/codex/internal/testutil"
)

func TestRecorderStampsRecords(t *testing.T) {
	ledger := NewMemoryLedger()
	r := NewRecorder(ledger, testutil.NewFakeClock(testutil.Epoch), 0)
	ctx := WithActor(context.Background(), "alice")

	rec, err := r.Record(ctx, ActionFusionPropose, "node_1", "node_2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Seq)
	assert.Equal(t, "alice", rec.Actor)
	assert.Equal(t, testutil.Epoch, rec.Timestamp)
	assert.Len(t, rec.ID, 64)

	rec2, err := r.Record(context.Background(), ActionFusionAbort)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec2.Seq)
	assert.Equal(t, SystemActor, rec2.Actor)
	assert.Equal(t, []string{}, rec2.EntityIDs)

	all, err := ledger.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, rec, all[0])
}

func TestRecorderResumesSequence(t *testing.T) {
	r := NewRecorder(NewMemoryLedger(), nil, 41)
	rec, err := r.Record(context.Background(), ActionPassSummary)
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.Seq)
	assert.Equal(t, int64(42), r.Seq())
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	rec, err := r.Record(context.Background(), ActionPassSummary)
	require.NoError(t, err)
	assert.Equal(t, ir.AuditRecord{}, rec)
	assert.Equal(t, int64(0), r.Seq())
}

type failingLedger struct{}

func (failingLedger) Append(context.Context, ir.AuditRecord) error { return errors.New("disk full") }
func (failingLedger) LoadAll(context.Context) ([]ir.AuditRecord, error) {
	return nil, nil
}

func TestRecordWrapsLedgerError(t *testing.T) {
	r := NewRecorder(failingLedger{}, nil, 0)
	_, err := r.Record(context.Background(), ActionValidation)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.NotPanics(t, func() { r.RecordOrLog(context.Background(), ActionValidation) })
}

func TestMemoryLedgerConcurrentAppends(t *testing.T) {
	ledger := NewMemoryLedger()
	r := NewRecorder(ledger, nil, 0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				r.RecordOrLog(context.Background(), ActionHealthAlert, "node_1")
			}
		}()
	}
	wg.Wait()

	all, err := ledger.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 200)
	for i, rec := range all {
		assert.Equal(t, int64(i+1), rec.Seq)
	}
}

func TestMemoryLedgerReturnsCopies(t *testing.T) {
	ledger := NewMemoryLedger()
	require.NoError(t, ledger.Append(context.Background(), ir.AuditRecord{Seq: 1, EntityIDs: []string{"a"}}))
	all, _ := ledger.LoadAll(context.Background())
	all[0].EntityIDs[0] = "mutated"
	again, _ := ledger.LoadAll(context.Background())
	assert.Equal(t, "a", again[0].EntityIDs[0])
}
