package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subscription-escrow/escrowdex/model"
	"github.com/subscription-escrow/escrowdex/model/escrow"
	"github.com/subscription-escrow/escrowdex/model/visor"
)

func saveProvider(t *testing.T, st *MemStorage, p *escrow.Provider) {
	t.Helper()
	err := st.Transact(context.Background(), func(ctx context.Context, tx model.EntityTx) error {
		return tx.Save(ctx, p)
	})
	require.NoError(t, err)
}

func TestMemStorageTransactCommits(t *testing.T) {
	st := NewMemStorageLatest()
	saveProvider(t, st, &escrow.Provider{ID: "0xa", Name: "a", TotalPlans: 1})

	var got escrow.Provider
	require.True(t, st.Get(&got, "0xa"))
	assert.Equal(t, "a", got.Name)
	assert.EqualValues(t, 1, got.TotalPlans)
	assert.Equal(t, 1, st.Count("providers"))
	assert.False(t, st.Get(&got, "0xb"))
}

func TestMemStorageLoadSeesOwnWrites(t *testing.T) {
	st := NewMemStorageLatest()
	err := st.Transact(context.Background(), func(ctx context.Context, tx model.EntityTx) error {
		if err := tx.Save(ctx, &escrow.Plan{ID: "1", Provider: "0xa"}); err != nil {
			return err
		}
		var p escrow.Plan
		found, err := tx.Load(ctx, &p, "1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "0xa", p.Provider)
		return nil
	})
	require.NoError(t, err)
}

func TestMemStorageRollsBackOnError(t *testing.T) {
	st := NewMemStorageLatest()
	saveProvider(t, st, &escrow.Provider{ID: "0xa", TotalPlans: 1})

	boom := errors.New("boom")
	err := st.Transact(context.Background(), func(ctx context.Context, tx model.EntityTx) error {
		if err := tx.Save(ctx, &escrow.Provider{ID: "0xa", TotalPlans: 2}); err != nil {
			return err
		}
		if err := tx.Save(ctx, &escrow.Plan{ID: "1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var got escrow.Provider
	require.True(t, st.Get(&got, "0xa"))
	assert.EqualValues(t, 1, got.TotalPlans)
	assert.Equal(t, 0, st.Count("plans"))
}

func TestMemStorageRollsBackOnPanic(t *testing.T) {
	st := NewMemStorageLatest()

	assert.Panics(t, func() {
		_ = st.Transact(context.Background(), func(ctx context.Context, tx model.EntityTx) error {
			_ = tx.Save(ctx, &escrow.Plan{ID: "1"})
			panic("handler bug")
		})
	})
	assert.Equal(t, 0, st.Count("plans"))

	// the store is still usable
	saveProvider(t, st, &escrow.Provider{ID: "0xa"})
	assert.Equal(t, 1, st.Count("providers"))
}

func TestMemStorageCopiesEntities(t *testing.T) {
	st := NewMemStorageLatest()
	p := &escrow.Provider{ID: "0xa", Name: "before"}
	saveProvider(t, st, p)
	p.Name = "after"

	var got escrow.Provider
	require.True(t, st.Get(&got, "0xa"))
	assert.Equal(t, "before", got.Name)

	got.Name = "mutated"
	var again escrow.Provider
	require.True(t, st.Get(&again, "0xa"))
	assert.Equal(t, "before", again.Name)
}

func TestMemStorageSeparatesTables(t *testing.T) {
	st := NewMemStorageLatest()
	err := st.Transact(context.Background(), func(ctx context.Context, tx model.EntityTx) error {
		if err := tx.Save(ctx, &escrow.Plan{ID: "1"}); err != nil {
			return err
		}
		return tx.Save(ctx, &escrow.UserSubscription{ID: "1"})
	})
	require.NoError(t, err)

	assert.Equal(t, 1, st.Count("plans"))
	assert.Equal(t, 1, st.Count("user_subscriptions"))
}

func TestMemStorageSnapshotIsSorted(t *testing.T) {
	st := NewMemStorageLatest()
	saveProvider(t, st, &escrow.Provider{ID: "0xc"})
	saveProvider(t, st, &escrow.Provider{ID: "0xa"})
	saveProvider(t, st, &escrow.Provider{ID: "0xb"})
	err := st.Transact(context.Background(), func(ctx context.Context, tx model.EntityTx) error {
		return tx.Save(ctx, &visor.Cursor{ID: "0xcontract", BlockNumber: 3})
	})
	require.NoError(t, err)

	snap, err := st.Snapshot(context.Background())
	require.NoError(t, err)

	var providers escrow.ProviderList
	var cursors visor.CursorList
	for _, p := range snap {
		switch l := p.(type) {
		case escrow.ProviderList:
			providers = l
		case visor.CursorList:
			cursors = l
		}
	}
	require.Len(t, providers, 3)
	assert.Equal(t, "0xa", providers[0].ID)
	assert.Equal(t, "0xb", providers[1].ID)
	assert.Equal(t, "0xc", providers[2].ID)
	require.Len(t, cursors, 1)
	assert.EqualValues(t, 3, cursors[0].BlockNumber)
}

func TestMemStoragePersistBatch(t *testing.T) {
	st := NewMemStorageLatest()
	reports := visor.ProcessingReportList{
		{BlockNumber: 1, Status: visor.ProcessingStatusOK},
		{BlockNumber: 2, Status: visor.ProcessingStatusSkip},
	}
	require.NoError(t, st.PersistBatch(context.Background(), reports))
	assert.Len(t, st.Data["visor_processing_reports"], 2)
}
