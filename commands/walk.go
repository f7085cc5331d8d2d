package commands

import (
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
	"gopkg.in/cheggaaa/pb.v1"

	"github.com/subscription-escrow/escrowdex/chain/indexer"
	"github.com/subscription-escrow/escrowdex/chain/walk"
	"github.com/subscription-escrow/escrowdex/storage"
)

type walkOps struct {
	from     uint64
	to       uint64
	batch    uint64
	storage  string
	name     string
	export   string
	progress bool
}

var walkFlags walkOps

var WalkCmd = &cli.Command{
	Name:  "walk",
	Usage: "Index the contract events in a fixed range of blocks.",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:        "from",
			Usage:       "First block to index. Defaults to the saved cursor or the configured start block.",
			Destination: &walkFlags.from,
		},
		&cli.Uint64Flag{
			Name:        "to",
			Usage:       "Last block to index. Defaults to the chain head.",
			Destination: &walkFlags.to,
		},
		&cli.Uint64Flag{
			Name:        "batch",
			Usage:       "Number of blocks requested from the rpc endpoint at a time. Defaults to the configured batch size.",
			Destination: &walkFlags.batch,
		},
		&cli.StringFlag{
			Name:        "storage",
			Usage:       "Name of storage that entities will be written to. Entities are kept in memory if empty.",
			Value:       "",
			Destination: &walkFlags.storage,
		},
		&cli.StringFlag{
			Name:        "name",
			Usage:       "Name of job for easy identification later.",
			Value:       "walk",
			Destination: &walkFlags.name,
		},
		&cli.StringFlag{
			Name:        "export",
			Usage:       "Name of file storage that entities are exported to once the walk completes.",
			Destination: &walkFlags.export,
		},
		&cli.BoolFlag{
			Name:        "progress",
			Usage:       "Show a progress bar.",
			Value:       true,
			Destination: &walkFlags.progress,
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		cfg, err := setupAll()
		if err != nil {
			return err
		}

		p, err := newPipeline(ctx, cfg, walkFlags.storage, walkFlags.name, indexer.Walk)
		if err != nil {
			return err
		}
		defer func() {
			if err := p.Close(); err != nil {
				log.Errorw("close", "error", err)
			}
		}()

		from := walkFlags.from
		if !cctx.IsSet("from") {
			if from, err = p.indexer.Resume(ctx); err != nil {
				return err
			}
		}
		to := walkFlags.to
		if !cctx.IsSet("to") {
			if to, err = p.indexer.Head(ctx); err != nil {
				return xerrors.Errorf("get chain head: %w", err)
			}
		}
		batch := walkFlags.batch
		if batch == 0 {
			batch = cfg.Chain.BatchSize
		}

		var progress walk.ProgressFunc
		if walkFlags.progress && to >= from {
			bar := pb.New64(int64(to - from + 1))
			bar.ShowTimeLeft = true
			bar.ShowPercent = true
			bar.Start()
			defer bar.Finish()
			progress = func(done, total uint64) {
				bar.Set64(int64(done))
			}
		}

		log.Infow("walking blocks", "from", from, "to", to, "batch", batch, "name", walkFlags.name)
		w := walk.NewWalker(p.indexer, walkFlags.name, from, to, batch, progress)
		if err := p.runJob(ctx, walkFlags.name, w, false); err != nil {
			return err
		}

		if walkFlags.export != "" {
			cat, err := storage.NewCatalog(cfg.Storage)
			if err != nil {
				return xerrors.Errorf("storage catalog: %w", err)
			}
			return exportSnapshot(ctx, p.storage.snap, cat, walkFlags.export, walkFlags.name)
		}
		return nil
	},
}
