package service

import (
	"context"
	"encoding/json"
	"testing"

	"bizledger/internal/model"
	"bizledger/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotExportImportRoundTrip(t *testing.T) {
	src := newTestEnv(t)
	ctx := context.Background()
	depot := src.depot(t, "North")
	product := src.product(t, "SKU-1", "120.00")
	quote := src.salesQuote(t, depot, product, 3, "120.00")
	docs := src.chain(t, quote, 3)
	_, err := src.payments.Record(ctx, "tester", uuid.MustParse(docs[2].ID), pay("100", model.MethodCash))
	require.NoError(t, err)

	snap, err := src.snapshots.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Test Co", snap.Company.Name)
	assert.Len(t, snap.Documents, 4)
	assert.Len(t, snap.Payments, 1)
	assert.EqualValues(t, 1, snap.Counters[CounterKey(model.ChannelSales, model.DocTypeInvoice, 2024)])

	// Snapshots travel as JSON.
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded model.Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	dst := newTestEnv(t)
	state, err := dst.snapshots.State(ctx)
	require.NoError(t, err)

	revision, err := dst.snapshots.Import(ctx, "tester", &decoded, state.Revision)
	require.NoError(t, err)
	assert.Equal(t, state.Revision+1, revision)

	got, _, err := dst.documents.List(ctx, DocumentFilter{})
	require.NoError(t, err)
	want, _, err := src.documents.List(ctx, DocumentFilter{})
	require.NoError(t, err)
	assert.Equal(t, codesOf(want), codesOf(got))

	invoice, err := dst.documents.Get(ctx, uuid.MustParse(docs[2].ID))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPartial, invoice.PaymentStatus)
	assert.Equal(t, "360.00", invoice.Totals.Payable)

	qty, err := dst.stock.QuantityOf(ctx, depot, product)
	require.NoError(t, err)
	assert.Equal(t, -3, qty)

	// Counters came along: the next invoice code continues the sequence.
	code, err := dst.sequence.NextForNow(ctx, model.ChannelSales, model.DocTypeInvoice)
	require.NoError(t, err)
	assert.Equal(t, "V-FA24-00002", code)

	// Invariants still hold on the imported state.
	_, err = dst.transform.Transform(ctx, "tester", uuid.MustParse(quote.ID))
	assert.ErrorIs(t, err, ErrAlreadyTransformed)
}

func TestSnapshotImportRevisionConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	snap, err := env.snapshots.Export(ctx)
	require.NoError(t, err)
	stale := snap.Revision

	env.depot(t, "North")

	_, err = env.snapshots.Import(ctx, "tester", snap, stale)
	assert.ErrorIs(t, err, repository.ErrRevisionConflict)
	assert.True(t, IsConflict(err))
	assert.Equal(t, KindConflict, KindOf(err))

	depots, err := env.catalog.ListDepots(ctx)
	require.NoError(t, err)
	assert.Len(t, depots, 1, "rejected import leaves state untouched")
}

func TestSnapshotImportRejectsDoubleSuccessor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	source := uuid.New()

	snap := &model.Snapshot{
		Documents: []model.Document{
			{ID: uuid.New(), Code: "V-BC24-00001", SourceID: &source},
			{ID: uuid.New(), Code: "V-BC24-00002", SourceID: &source},
		},
	}
	_, err := env.snapshots.Import(ctx, "tester", snap, 0)
	assert.ErrorIs(t, err, ErrAlreadyTransformed)
}

func TestSnapshotImportRejectsDoubleReturn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	delivery := uuid.New()

	snap := &model.Snapshot{
		Documents: []model.Document{
			{ID: uuid.New(), Code: "V-BR24-00001", Type: model.DocTypeReturn, ReturnOfID: &delivery},
			{ID: uuid.New(), Code: "V-BR24-00002", Type: model.DocTypeReturn, ReturnOfID: &delivery},
		},
	}
	_, err := env.snapshots.Import(ctx, "tester", snap, 0)
	assert.ErrorIs(t, err, ErrAlreadyReturned)

	invoice := uuid.New()
	snap = &model.Snapshot{
		Documents: []model.Document{
			{ID: delivery, Code: "V-BL24-00001", Type: model.DocTypeDelivery},
			{ID: invoice, Code: "V-FA24-00001", Type: model.DocTypeInvoice, SourceID: &delivery},
			{ID: uuid.New(), Code: "V-BR24-00001", Type: model.DocTypeReturn, ReturnOfID: &delivery},
			{ID: uuid.New(), Code: "V-BR24-00002", Type: model.DocTypeReturn, ReturnOfID: &invoice},
		},
	}
	_, err = env.snapshots.Import(ctx, "tester", snap, 0)
	assert.ErrorIs(t, err, ErrAlreadyReturned)
}

func TestSnapshotSeedIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.snapshots.Seed(ctx))
	require.NoError(t, env.snapshots.Seed(ctx))

	depots, err := env.catalog.ListDepots(ctx)
	require.NoError(t, err)
	require.Len(t, depots, 1)
	assert.Equal(t, DefaultDepotName, depots[0].Name)

	state, err := env.snapshots.State(ctx)
	require.NoError(t, err)
	assert.True(t, state.Seeded)
}

func TestSnapshotRevisionTracksMutations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var hooked []int64
	env.txManager.OnCommit(func(_ context.Context, revision int64) {
		hooked = append(hooked, revision)
	})

	before, err := env.snapshots.State(ctx)
	require.NoError(t, err)

	env.depot(t, "North")
	env.product(t, "SKU-1", "10")

	after, err := env.snapshots.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Revision+2, after.Revision)
	assert.Equal(t, []int64{before.Revision + 1, before.Revision + 2}, hooked)

	require.NoError(t, env.snapshots.MarkReplicated(ctx, after.Revision))
	require.NoError(t, env.snapshots.MarkReplicated(ctx, before.Revision))
	state, err := env.snapshots.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, after.Revision, state.ReplicatedRevision)
}
