package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"github.com/go-pg/pg/v10/types"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/model"
	"github.com/subscription-escrow/escrowdex/model/escrow"
	"github.com/subscription-escrow/escrowdex/model/visor"
	"github.com/subscription-escrow/escrowdex/schemas"
)

var log = logging.Logger("escrowdex/storage")

// Note this list is manually maintained and must be kept in sync with the base schema and patches.
var models = []interface{}{
	(*escrow.Provider)(nil),
	(*escrow.Plan)(nil),
	(*escrow.UserSubscription)(nil),
	(*escrow.Payment)(nil),
	(*escrow.ProviderEarning)(nil),
	(*escrow.EscrowDeposit)(nil),
	(*escrow.EscrowWithdrawal)(nil),
	(*escrow.EscrowAccount)(nil),
	(*escrow.GlobalStats)(nil),
	(*escrow.DailyMetric)(nil),

	(*visor.Cursor)(nil),
	(*visor.ProcessingReport)(nil),
}

var (
	ErrSchemaTooOld     = errors.New("database schema is too old and requires migration")
	ErrSchemaTooNew     = errors.New("database schema is too new for this version of escrowdex")
	ErrNameTooLong      = errors.New("name exceeds maximum length for postgres application names")
	ErrNotConnected     = errors.New("not connected to database")
	ErrAlreadyConnected = errors.New("already connected to database")
)

const MaxPostgresNameLength = 64 // including trailing null byte

var (
	_ model.Storage     = (*Database)(nil)
	_ model.EntityStore = (*Database)(nil)
	_ Snapshotter       = (*Database)(nil)
)

// Database is a postgresql backed store for entities and processing reports.
type Database struct {
	db           *pg.DB
	opt          *pg.Options
	schemaConfig schemas.Config
	version      model.Version // schema version identified in the database

	// Upsert controls whether processing reports overwrite existing rows. Entities are always upserted.
	Upsert bool
}

func NewDatabase(ctx context.Context, url string, poolSize int, name string, schemaName string, upsert bool) (*Database, error) {
	if len(name) > MaxPostgresNameLength-1 {
		return nil, ErrNameTooLong
	}

	opt, err := pg.ParseURL(url)
	if err != nil {
		return nil, xerrors.Errorf("parse database URL: %w", err)
	}
	opt.PoolSize = poolSize
	if opt.ApplicationName == "" {
		opt.ApplicationName = name
	}
	if schemaName == "" {
		schemaName = "public"
	}
	opt.OnConnect = func(ctx context.Context, conn *pg.Conn) error {
		_, err := conn.ExecContext(ctx, "SET search_path TO ?, public", pg.Ident(schemaName))
		return err
	}

	return &Database{
		opt: opt,
		schemaConfig: schemas.Config{
			SchemaName: schemaName,
		},
		Upsert: upsert,
	}, nil
}

// Connect opens a connection pool and verifies the installed schema is compatible.
func (d *Database) Connect(ctx context.Context) error {
	if d.db != nil {
		return ErrAlreadyConnected
	}

	db, err := connect(ctx, d.opt)
	if err != nil {
		return xerrors.Errorf("connect: %w", err)
	}

	dbVersion, err := validateDatabaseSchemaVersion(ctx, db, d.schemaConfig)
	if err != nil {
		_ = db.Close()
		return err
	}

	d.db = db
	d.version = dbVersion
	return nil
}

func connect(ctx context.Context, opt *pg.Options) (*pg.DB, error) {
	db := pg.Connect(opt)
	db = db.WithContext(ctx)

	// Check if connection credentials are valid and PostgreSQL is up and running.
	if err := db.Ping(ctx); err != nil {
		return nil, xerrors.Errorf("ping database: %w", err)
	}

	return db, nil
}

func (d *Database) Close(ctx context.Context) error {
	if d.db == nil {
		return ErrNotConnected
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// AsORM exposes the underlying go-pg handle, mainly for tests.
func (d *Database) AsORM() *pg.DB {
	return d.db
}

func (d *Database) SchemaName() string {
	return d.schemaConfig.SchemaName
}

// PersistBatch persists a batch of persistables in a single transaction.
func (d *Database) PersistBatch(ctx context.Context, ps ...model.Persistable) error {
	if d.db == nil {
		return ErrNotConnected
	}
	return d.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		txs := &TxStorage{
			tx:     tx,
			upsert: d.Upsert,
		}

		for _, p := range ps {
			if err := p.Persist(ctx, txs, d.version); err != nil {
				return err
			}
		}

		return nil
	})
}

// Transact runs fn inside a database transaction. The transaction is rolled back if fn returns an error or panics.
func (d *Database) Transact(ctx context.Context, fn func(ctx context.Context, tx model.EntityTx) error) error {
	if d.db == nil {
		return ErrNotConnected
	}
	return d.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		return fn(ctx, &entityTx{
			tx:      tx,
			version: d.version,
		})
	})
}

type entityTx struct {
	tx      *pg.Tx
	version model.Version
}

func (e *entityTx) Load(ctx context.Context, dst model.Entity, id string) (bool, error) {
	err := e.tx.ModelContext(ctx, dst).Where("?TableAlias.id = ?", id).Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return false, nil
		}
		return false, xerrors.Errorf("load %T %q: %w", dst, id, err)
	}
	return true, nil
}

func (e *entityTx) Save(ctx context.Context, ent model.Entity) error {
	return ent.Persist(ctx, &TxStorage{tx: e.tx, upsert: true}, e.version)
}

// TxStorage persists models within an open transaction.
type TxStorage struct {
	tx     *pg.Tx
	upsert bool
}

// PersistModel persists a single model or a slice of models.
func (s *TxStorage) PersistModel(ctx context.Context, m interface{}) error {
	value := reflect.ValueOf(m)

	elemKind := value.Kind()
	if value.Kind() == reflect.Ptr {
		elemKind = value.Elem().Kind()
	}

	if elemKind == reflect.Slice || elemKind == reflect.Array {
		// Avoid persisting zero length lists
		if value.Len() == 0 {
			return nil
		}
		// go-pg expects pointers to slices. We can fix it up.
		if value.Kind() != reflect.Ptr {
			p := reflect.New(value.Type())
			p.Elem().Set(value)
			m = p.Interface()
		}
	}

	if s.upsert {
		conflict, upsert := GenerateUpsertStrings(m)
		if _, err := s.tx.ModelContext(ctx, m).
			OnConflict(conflict).
			Set(upsert).
			Insert(); err != nil {
			return xerrors.Errorf("upserting model: %w", err)
		}
		return nil
	}

	if _, err := s.tx.ModelContext(ctx, m).
		OnConflict("do nothing").
		Insert(); err != nil {
		return xerrors.Errorf("persisting model: %w", err)
	}
	return nil
}

// GenerateUpsertStrings accepts a model and returns two strings containing SQL that may be used to upsert it. The
// first string is the conflict target, the second the list of assignments.
func GenerateUpsertStrings(model interface{}) (string, string) {
	var cf []string
	var ucf []string

	tm := orm.NewQuery(nil, model).TableModel().Table()

	for _, pk := range tm.PKs {
		cf = append(cf, string(pk.Column))
	}
	for _, field := range tm.DataFields {
		ucf = append(ucf, fmt.Sprintf("%s = EXCLUDED.%s", field.Column, field.Column))
	}

	conflict := fmt.Sprintf("(%s) DO UPDATE", strings.Join(cf, ", "))
	return conflict, strings.Join(ucf, ", ")
}

// Snapshot reads every entity table ordered by id.
func (d *Database) Snapshot(ctx context.Context) (model.PersistableList, error) {
	if d.db == nil {
		return nil, ErrNotConnected
	}

	var (
		providers     escrow.ProviderList
		plans         escrow.PlanList
		subscriptions escrow.UserSubscriptionList
		payments      escrow.PaymentList
		earnings      escrow.ProviderEarningList
		deposits      escrow.EscrowDepositList
		withdrawals   escrow.EscrowWithdrawalList
		accounts      escrow.EscrowAccountList
		globals       escrow.GlobalStatsList
		daily         escrow.DailyMetricList
		cursors       visor.CursorList
	)

	lists := []interface{}{
		&providers, &plans, &subscriptions, &payments, &earnings,
		&deposits, &withdrawals, &accounts, &globals, &daily, &cursors,
	}
	for _, l := range lists {
		if err := d.db.ModelContext(ctx, l).Order("id").Select(); err != nil {
			return nil, xerrors.Errorf("select %T: %w", l, err)
		}
	}

	return model.PersistableList{
		providers, plans, subscriptions, payments, earnings,
		deposits, withdrawals, accounts, globals, daily, cursors,
	}, nil
}

func stripQuotes(s types.Safe) string {
	return strings.Trim(string(s), `"`)
}
