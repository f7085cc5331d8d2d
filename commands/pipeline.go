package commands

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/chain/events"
	"github.com/subscription-escrow/escrowdex/chain/indexer"
	"github.com/subscription-escrow/escrowdex/config"
	"github.com/subscription-escrow/escrowdex/lens"
	"github.com/subscription-escrow/escrowdex/lens/evm"
	"github.com/subscription-escrow/escrowdex/model"
	"github.com/subscription-escrow/escrowdex/schedule"
	"github.com/subscription-escrow/escrowdex/storage"
	"github.com/subscription-escrow/escrowdex/tasks/escrow"
)

// entityStorage is where projected entities and processing reports are kept.
type entityStorage struct {
	store   model.EntityStore
	reports model.Storage
	snap    storage.Snapshotter
	locker  schedule.Locker
	close   func() error
}

// openEntityStorage opens the named postgresql storage, or an in-memory store when name is empty.
func openEntityStorage(ctx context.Context, cat *storage.Catalog, name string, contract common.Address) (*entityStorage, error) {
	if name == "" {
		log.Warn("no storage specified, entities will be kept in memory and discarded on exit")
		mem := storage.NewMemStorageLatest()
		return &entityStorage{
			store:   mem,
			reports: &storage.NullStorage{},
			snap:    mem,
			close:   func() error { return nil },
		}, nil
	}

	db, err := cat.Database(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx); err != nil {
		return nil, xerrors.Errorf("connect database %q: %w", name, err)
	}

	return &entityStorage{
		store:   db,
		reports: db,
		snap:    db,
		locker:  db.NewLocker(storage.IndexerLock(events.AddressID(contract))),
		close:   func() error { return db.Close(ctx) },
	}, nil
}

// pipeline wires the event source, decoder, dispatcher and entity storage into an indexer.
type pipeline struct {
	cfg     *config.Conf
	storage *entityStorage
	indexer *indexer.Indexer
	closer  lens.APICloser
}

func (p *pipeline) Close() error {
	if p.closer != nil {
		p.closer()
	}
	if p.storage != nil {
		return p.storage.close()
	}
	return nil
}

func newPipeline(ctx context.Context, cfg *config.Conf, storageName, reporter string, it indexer.IndexerType) (_ *pipeline, err error) {
	if !common.IsHexAddress(cfg.Chain.Contract) {
		return nil, xerrors.Errorf("invalid contract address %q", cfg.Chain.Contract)
	}
	contract := common.HexToAddress(cfg.Chain.Contract)

	cat, err := storage.NewCatalog(cfg.Storage)
	if err != nil {
		return nil, xerrors.Errorf("storage catalog: %w", err)
	}

	p := &pipeline{cfg: cfg}
	defer func() {
		if err != nil {
			err = multierr.Append(err, p.Close())
		}
	}()

	p.storage, err = openEntityStorage(ctx, cat, storageName, contract)
	if err != nil {
		return nil, err
	}

	opener := evm.NewAPIOpener(cfg.Chain.Endpoints(), cfg.Chain.RequestTimeout.Duration())
	api, closer, err := opener.Open(ctx)
	if err != nil {
		return nil, xerrors.Errorf("open chain api: %w", err)
	}
	p.closer = closer

	decoder := events.NewDecoder()
	src, err := evm.NewLogSource(api, contract, decoder.Topics(),
		evm.WithHeaderWorkers(cfg.Chain.HeaderWorkers),
		evm.WithHeaderCache(cfg.Chain.HeaderCache),
	)
	if err != nil {
		return nil, xerrors.Errorf("log source: %w", err)
	}

	log.Infow("indexing contract", "contract", src.Contract().Hex(), "endpoints", len(cfg.Chain.Endpoints()))
	p.indexer, err = indexer.NewIndexer(p.storage.store, src, decoder, escrow.NewDispatcher(), contract,
		indexer.WithIndexerType(it),
		indexer.WithReporter(reporter),
		indexer.WithStartBlock(cfg.Chain.StartBlock),
		indexer.WithReportStorage(p.storage.reports),
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// runJob runs a single job under the scheduler, holding the storage's indexer lock if it has one.
func (p *pipeline) runJob(ctx context.Context, name string, job schedule.Job, restart bool) error {
	jc := &schedule.JobConfig{
		Name:             name,
		Job:              job,
		Locker:           p.storage.locker,
		RestartOnFailure: restart,
		RestartDelay:     p.cfg.Chain.PollInterval.Duration(),
	}
	s := schedule.NewScheduler(0, []*schedule.JobConfig{jc})
	if err := s.Run(ctx); err != nil {
		return err
	}

	for _, j := range s.Jobs() {
		if j.Error != "" {
			return fmt.Errorf("job %s: %s", j.Name, j.Error)
		}
	}
	return nil
}
