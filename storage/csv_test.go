package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subscription-escrow/escrowdex/model"
	"github.com/subscription-escrow/escrowdex/model/escrow"
	"github.com/subscription-escrow/escrowdex/model/visor"
	"github.com/subscription-escrow/escrowdex/testutil"
)

type TestModel struct {
	Height  int64  `pg:",pk,notnull,use_zero"`
	Block   string `pg:",pk,notnull"`
	Message string `pg:",pk,notnull"`
}

func (tm *TestModel) Persist(ctx context.Context, s model.StorageBatch, version model.Version) error {
	return s.PersistModel(ctx, tm)
}

func readCSV(t *testing.T, dir, name string) string {
	t.Helper()
	written, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(written)
}

func TestCSVTable(t *testing.T) {
	table := getCSVModelTable(&escrow.Payment{}, model.Version{Major: 1})
	assert.Equal(t, "payments", table.name)
	assert.Equal(t, []string{
		"id", "subscription", "from", "to", "amount", "timestamp", "transaction_hash", "block_number",
		"is_recurring", "payment_index", "protocol_fee", "provider_amount",
	}, table.columns)
	assert.Equal(t, "ID", table.fields[0])
}

func TestCSVPersist(t *testing.T) {
	dir := t.TempDir()
	st, err := NewCSVStorage(dir, model.Version{Major: 1}, DefaultCSVStorageOptions())
	require.NoError(t, err)

	err = st.PersistBatch(context.Background(), &TestModel{Height: 42, Block: "blocka", Message: "msg1"})
	require.NoError(t, err)

	// a second batch appends without repeating the header
	err = st.PersistBatch(context.Background(), &TestModel{Height: 43, Block: "blockb", Message: "msg2"})
	require.NoError(t, err)

	assert.Equal(t,
		"height,block,message\n"+
			"42,blocka,msg1\n"+
			"43,blockb,msg2\n",
		readCSV(t, dir, "test_models.csv"))
}

func TestCSVPersistDecimals(t *testing.T) {
	dir := t.TempDir()
	st, err := NewCSVStorage(dir, model.Version{Major: 1}, DefaultCSVStorageOptions())
	require.NoError(t, err)

	acct := &escrow.EscrowAccount{
		ID:             "0xuser",
		Balance:        escrow.MustParseDecimal("0.000000000000000001"),
		TotalDeposited: escrow.FromWei(testutil.Wei(3)),
		DepositCount:   1,
	}
	require.NoError(t, st.PersistBatch(context.Background(), acct))

	assert.Equal(t,
		"id,balance,total_deposited,total_withdrawn,deposit_count,withdrawal_count,last_activity_at\n"+
			"0xuser,0.000000000000000001,3.000000000000000000,0.000000000000000000,1,0,0\n",
		readCSV(t, dir, "escrow_accounts.csv"))
}

func TestCSVPersistReport(t *testing.T) {
	dir := t.TempDir()
	st, err := NewCSVStorage(dir, model.Version{Major: 1}, DefaultCSVStorageOptions())
	require.NoError(t, err)

	reports := visor.ProcessingReportList{
		{
			BlockNumber:     7,
			LogIndex:        1,
			TransactionHash: "0xabc",
			Reporter:        "test",
			EventKind:       "PaymentProcessed",
			StartedAt:       testutil.KnownTime,
			CompletedAt:     testutil.KnownTime.Add(time.Second),
			Status:          visor.ProcessingStatusOK,
		},
		{
			BlockNumber:     7,
			LogIndex:        2,
			TransactionHash: "0xabc",
			Reporter:        "test",
			StartedAt:       testutil.KnownTime,
			CompletedAt:     testutil.KnownTime,
			Status:          visor.ProcessingStatusError,
			ErrorsDetected:  map[string]string{"error": "boom"},
		},
	}
	require.NoError(t, st.PersistBatch(context.Background(), reports))

	assert.Equal(t,
		"block_number,log_index,transaction_hash,reporter,event_kind,started_at,completed_at,status,status_information,errors_detected\n"+
			"7,1,0xabc,test,PaymentProcessed,2020-09-29T11:13:20Z,2020-09-29T11:13:21Z,OK,,null\n"+
			`7,2,0xabc,test,,2020-09-29T11:13:20Z,2020-09-29T11:13:20Z,ERROR,,"{""error"":""boom""}"`+"\n",
		readCSV(t, dir, "visor_processing_reports.csv"))
}

func TestCSVOptionOmitHeader(t *testing.T) {
	tm := &TestModel{Height: 42, Block: "blocka", Message: "msg1"}

	runTest := func(t *testing.T, omitHeader bool, expected string) {
		dir := t.TempDir()
		opts := DefaultCSVStorageOptions()
		opts.OmitHeader = omitHeader

		st, err := NewCSVStorage(dir, model.Version{Major: 1}, opts)
		require.NoError(t, err)
		require.NoError(t, st.PersistBatch(context.Background(), tm))
		assert.Equal(t, expected, readCSV(t, dir, "test_models.csv"))
	}

	t.Run("false", func(t *testing.T) {
		runTest(t, false, "height,block,message\n"+"42,blocka,msg1\n")
	})

	t.Run("true", func(t *testing.T) {
		runTest(t, true, "42,blocka,msg1\n")
	})
}

func TestCSVOptionFilePattern(t *testing.T) {
	tm := &TestModel{Height: 42, Block: "blocka", Message: "msg1"}

	runTest := func(t *testing.T, pattern string, md Metadata, expected string) {
		dir := t.TempDir()
		opts := DefaultCSVStorageOptions()
		opts.FilePattern = pattern

		st, err := NewCSVStorage(dir, model.Version{Major: 1}, opts)
		require.NoError(t, err)

		err = st.WithMetadata(md).PersistBatch(context.Background(), tm)
		require.NoError(t, err)

		_, err = os.Stat(filepath.Join(dir, expected))
		require.NoError(t, err)
	}

	t.Run("default", func(t *testing.T) {
		runTest(t, "", Metadata{}, "test_models.csv")
	})

	t.Run("jobname", func(t *testing.T) {
		runTest(t, "{jobname}-{table}.csv", Metadata{JobName: "export"}, "export-test_models.csv")
	})
}
