package testing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/stretchr/testify/require"

	"github.com/subscription-escrow/escrowdex/storage"
	"github.com/subscription-escrow/escrowdex/testutil"
)

// MigratedStorage connects to the test database in a new schema migrated to the latest version. The schema is
// dropped when the test finishes. The test is skipped when no test database is configured.
func MigratedStorage(ctx context.Context, tb testing.TB, debugLogs bool) *storage.Database {
	tb.Helper()
	if testing.Short() || !testutil.DatabaseAvailable() {
		tb.Skip("short testing requested or ESCROWDEX_TEST_DB not set")
	}

	schemaName := fmt.Sprintf("test_%d", time.Now().UnixNano())
	db, err := storage.NewDatabase(ctx, testutil.Database(), 4, "escrowdex-test", schemaName, false)
	require.NoError(tb, err)
	require.NoError(tb, db.MigrateSchema(ctx))
	require.NoError(tb, db.Connect(ctx))

	if debugLogs {
		db.AsORM().AddQueryHook(&LoggingQueryHook{})
	}

	tb.Cleanup(func() {
		_, _ = db.AsORM().Exec(`DROP SCHEMA IF EXISTS ? CASCADE`, pg.Ident(schemaName))
		_ = db.Close(context.Background())
	})
	return db
}

type LoggingQueryHook struct{}

func (l *LoggingQueryHook) BeforeQuery(ctx context.Context, event *pg.QueryEvent) (context.Context, error) {
	q, err := event.FormattedQuery()
	if err != nil {
		return nil, err
	}

	if event.Err != nil {
		fmt.Printf("%s executing a query:\n%s\n", event.Err, q)
	}
	fmt.Println(string(q))

	return ctx, nil
}

func (l *LoggingQueryHook) AfterQuery(ctx context.Context, event *pg.QueryEvent) error {
	return nil
}
