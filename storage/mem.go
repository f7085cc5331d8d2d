package storage

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/go-pg/pg/v10/orm"
	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/model"
	"github.com/subscription-escrow/escrowdex/model/escrow"
	"github.com/subscription-escrow/escrowdex/model/visor"
)

// A Snapshotter can produce a consistent copy of every entity it holds.
type Snapshotter interface {
	Snapshot(ctx context.Context) (model.PersistableList, error)
}

var (
	_ model.Storage     = (*MemStorage)(nil)
	_ model.EntityStore = (*MemStorage)(nil)
	_ Snapshotter       = (*MemStorage)(nil)
)

func NewMemStorage(version model.Version) *MemStorage {
	return &MemStorage{
		Data:     map[string][]interface{}{},
		Version:  version,
		entities: map[string]map[string]model.Entity{},
	}
}

func NewMemStorageLatest() *MemStorage {
	return NewMemStorage(LatestSchemaVersion())
}

// MemStorage keeps entities and persisted models in memory. Entity transactions are applied to a private overlay
// and merged on success so a failed transaction leaves no trace.
type MemStorage struct {
	// Data holds models written with PersistBatch, keyed by table name.
	Data    map[string][]interface{}
	DataMu  sync.Mutex
	Version model.Version

	// txMu serializes transactions.
	txMu     sync.Mutex
	entities map[string]map[string]model.Entity
}

func (j *MemStorage) PersistModel(ctx context.Context, m interface{}) error {
	value := reflect.ValueOf(m)
	if value.Kind() == reflect.Ptr {
		value = value.Elem()
	}

	switch value.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < value.Len(); i++ {
			if err := j.PersistModel(ctx, value.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		name := tableName(m)
		j.DataMu.Lock()
		j.Data[name] = append(j.Data[name], m)
		j.DataMu.Unlock()
		return nil
	default:
		return ErrMarshalUnsupportedType
	}
}

func (j *MemStorage) PersistBatch(ctx context.Context, ps ...model.Persistable) error {
	for _, p := range ps {
		if err := p.Persist(ctx, j, j.Version); err != nil {
			return err
		}
	}
	return nil
}

func (j *MemStorage) Transact(ctx context.Context, fn func(ctx context.Context, tx model.EntityTx) error) error {
	j.txMu.Lock()
	defer j.txMu.Unlock()

	tx := &memTx{
		parent: j,
		writes: map[string]map[string]model.Entity{},
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for table, rows := range tx.writes {
		committed, ok := j.entities[table]
		if !ok {
			committed = map[string]model.Entity{}
			j.entities[table] = committed
		}
		for id, e := range rows {
			committed[id] = e
		}
	}
	return nil
}

// Get copies the committed entity with the given id into dst and reports whether it was found.
func (j *MemStorage) Get(dst model.Entity, id string) bool {
	j.txMu.Lock()
	defer j.txMu.Unlock()

	src, ok := j.entities[tableName(dst)][id]
	if !ok {
		return false
	}
	return copyEntity(dst, src) == nil
}

// Count returns the number of committed entities stored in the table.
func (j *MemStorage) Count(table string) int {
	j.txMu.Lock()
	defer j.txMu.Unlock()
	return len(j.entities[table])
}

func (j *MemStorage) Snapshot(ctx context.Context) (model.PersistableList, error) {
	j.txMu.Lock()
	defer j.txMu.Unlock()

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

	for table, rows := range j.entities {
		ids := make([]string, 0, len(rows))
		for id := range rows {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			switch e := cloneEntity(rows[id]).(type) {
			case *escrow.Provider:
				providers = append(providers, e)
			case *escrow.Plan:
				plans = append(plans, e)
			case *escrow.UserSubscription:
				subscriptions = append(subscriptions, e)
			case *escrow.Payment:
				payments = append(payments, e)
			case *escrow.ProviderEarning:
				earnings = append(earnings, e)
			case *escrow.EscrowDeposit:
				deposits = append(deposits, e)
			case *escrow.EscrowWithdrawal:
				withdrawals = append(withdrawals, e)
			case *escrow.EscrowAccount:
				accounts = append(accounts, e)
			case *escrow.GlobalStats:
				globals = append(globals, e)
			case *escrow.DailyMetric:
				daily = append(daily, e)
			case *visor.Cursor:
				cursors = append(cursors, e)
			default:
				return nil, xerrors.Errorf("unexpected entity %T in table %s", e, table)
			}
		}
	}

	return model.PersistableList{
		providers, plans, subscriptions, payments, earnings,
		deposits, withdrawals, accounts, globals, daily, cursors,
	}, nil
}

type memTx struct {
	parent *MemStorage
	writes map[string]map[string]model.Entity
}

func (t *memTx) Load(ctx context.Context, dst model.Entity, id string) (bool, error) {
	table := tableName(dst)
	src, ok := t.writes[table][id]
	if !ok {
		src, ok = t.parent.entities[table][id]
	}
	if !ok {
		return false, nil
	}
	if err := copyEntity(dst, src); err != nil {
		return false, err
	}
	return true, nil
}

func (t *memTx) Save(ctx context.Context, e model.Entity) error {
	if reflect.ValueOf(e).Kind() != reflect.Ptr {
		return xerrors.Errorf("save %T: entity must be a pointer", e)
	}
	table := tableName(e)
	rows, ok := t.writes[table]
	if !ok {
		rows = map[string]model.Entity{}
		t.writes[table] = rows
	}
	rows[e.EntityID()] = cloneEntity(e)
	return nil
}

func tableName(m interface{}) string {
	q := orm.NewQuery(nil, m)
	return stripQuotes(q.TableModel().Table().SQLNameForSelects)
}

func cloneEntity(e model.Entity) model.Entity {
	v := reflect.ValueOf(e).Elem()
	cp := reflect.New(v.Type())
	cp.Elem().Set(v)
	return cp.Interface().(model.Entity)
}

func copyEntity(dst, src model.Entity) error {
	dv := reflect.ValueOf(dst)
	sv := reflect.ValueOf(src)
	if dv.Kind() != reflect.Ptr || dv.Type() != sv.Type() {
		return xerrors.Errorf("cannot load %T into %T", src, dst)
	}
	dv.Elem().Set(sv.Elem())
	return nil
}
