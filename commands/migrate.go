package commands

import (
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/model"
	"github.com/subscription-escrow/escrowdex/storage"
)

var migrateFlags struct {
	storage string
	to      string
	latest  bool
}

var MigrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "Reports the current database schema version and latest available for migration. Use --to or --latest to perform a schema migration.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "storage",
			Usage:       "Name of the postgresql storage to migrate.",
			Value:       "Database1",
			Destination: &migrateFlags.storage,
		},
		&cli.StringFlag{
			Name:        "to",
			Usage:       "Migrate the schema to the `VERSION`, formatted as major.patch.",
			Destination: &migrateFlags.to,
		},
		&cli.BoolFlag{
			Name:        "latest",
			Usage:       "Migrate the schema to the latest version.",
			Destination: &migrateFlags.latest,
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

		db, err := cat.Database(ctx, migrateFlags.storage)
		if err != nil {
			return err
		}

		if migrateFlags.to != "" {
			target, err := model.ParseVersion(migrateFlags.to)
			if err != nil {
				return xerrors.Errorf("parse version: %w", err)
			}
			if err := db.MigrateSchemaTo(ctx, target); err != nil {
				return xerrors.Errorf("migrate schema to: %w", err)
			}
		} else if migrateFlags.latest {
			if err := db.MigrateSchema(ctx); err != nil {
				return xerrors.Errorf("migrate schema: %w", err)
			}
		}

		dbVersion, latestVersion, err := db.GetSchemaVersions(ctx)
		if err != nil {
			return xerrors.Errorf("get schema versions: %w", err)
		}

		log.Infof("database schema %q is version %s, latest is %s", db.SchemaName(), dbVersion, latestVersion)
		if dbVersion.Before(latestVersion) {
			log.Warnf("database schema is out of date, use `escrowdex migrate --latest` to upgrade")
		}
		return nil
	},
}
