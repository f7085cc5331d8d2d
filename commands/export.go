package commands

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/model"
	"github.com/subscription-escrow/escrowdex/storage"
)

var exportFlags struct {
	storage string
	to      string
}

var ExportCmd = &cli.Command{
	Name:  "export",
	Usage: "Export every entity held in a postgresql storage to CSV files.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "storage",
			Usage:       "Name of the postgresql storage to read entities from.",
			Value:       "Database1",
			Destination: &exportFlags.storage,
		},
		&cli.StringFlag{
			Name:        "to",
			Usage:       "Name of the file storage to write CSV files to.",
			Value:       "CSV",
			Destination: &exportFlags.to,
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		cfg, err := setupAll()
		if err != nil {
			return err
		}

		cat, err := storage.NewCatalog(cfg.Storage)
		if err != nil {
			return xerrors.Errorf("storage catalog: %w", err)
		}

		db, err := cat.Database(ctx, exportFlags.storage)
		if err != nil {
			return err
		}
		if err := db.Connect(ctx); err != nil {
			return xerrors.Errorf("connect database: %w", err)
		}
		defer db.Close(ctx) // nolint: errcheck

		return exportSnapshot(ctx, db, cat, exportFlags.to, "export")
	},
}

// exportSnapshot copies every entity held by snap to the named file storage.
func exportSnapshot(ctx context.Context, snap storage.Snapshotter, cat *storage.Catalog, to, jobName string) error {
	csv, err := cat.CSV(to)
	if err != nil {
		return xerrors.Errorf("open file storage: %w", err)
	}

	start := time.Now()
	data, err := snap.Snapshot(ctx)
	if err != nil {
		return xerrors.Errorf("snapshot: %w", err)
	}

	var out model.Storage = csv.WithMetadata(storage.Metadata{JobName: jobName})
	if err := out.PersistBatch(ctx, data...); err != nil {
		return xerrors.Errorf("write csv: %w", err)
	}
	log.Infow("exported entities", "storage", to, "tables", len(data), "time", time.Since(start))
	return nil
}
