package model

import (
	"context"
)

// A Storage can marshal models into a serializable format and persist them.
type Storage interface {
	PersistBatch(ctx context.Context, ps ...Persistable) error
}

// A StorageBatch persists a model to storage as part of a batch such as a transaction.
type StorageBatch interface {
	PersistModel(ctx context.Context, m interface{}) error
}

// A Persistable can persist a full copy of itself or its components as part of a storage batch using a specific
// version of a schema.
type Persistable interface {
	Persist(ctx context.Context, s StorageBatch, version Version) error
}

// A PersistableList is a list of Persistables that should be persisted together
type PersistableList []Persistable

// Ensure that a PersistableList can be used as a Persistable
var _ Persistable = (PersistableList)(nil)

func (pl PersistableList) Persist(ctx context.Context, s StorageBatch, version Version) error {
	if len(pl) == 0 {
		return nil
	}
	for _, p := range pl {
		if p == nil {
			continue
		}
		if err := p.Persist(ctx, s, version); err != nil {
			return err
		}
	}
	return nil
}

// An Entity is a model addressed by a stable string identifier that can be loaded and saved individually.
type Entity interface {
	Persistable
	EntityID() string
}

// An EntityTx is the view of an EntityStore available inside a transaction. Load copies the stored entity with
// the given id into dst and reports whether it was found. Save upserts the entity by its id.
type EntityTx interface {
	Load(ctx context.Context, dst Entity, id string) (bool, error)
	Save(ctx context.Context, e Entity) error
}

// An EntityStore applies the writes made by fn as a single unit. If fn returns an error none of its writes are
// visible to later transactions.
type EntityStore interface {
	Transact(ctx context.Context, fn func(ctx context.Context, tx EntityTx) error) error
}
