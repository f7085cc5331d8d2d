package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/subscription-escrow/escrowdex/chain/indexer"
	"github.com/subscription-escrow/escrowdex/chain/watch"
)

type watchOps struct {
	confidence int
	interval   time.Duration
	batch      uint64
	storage    string
	name       string
}

var watchFlags watchOps

var WatchCmd = &cli.Command{
	Name:  "watch",
	Usage: "Follow the chain head and index contract events as they become final.",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:        "confidence",
			Usage:       "Number of blocks behind the head to stay. Defaults to the configured confidence.",
			Value:       -1,
			DefaultText: "from config",
			Destination: &watchFlags.confidence,
		},
		&cli.DurationFlag{
			Name:        "interval",
			Usage:       "How often to poll for a new head. Defaults to the configured poll interval.",
			Destination: &watchFlags.interval,
		},
		&cli.Uint64Flag{
			Name:        "batch",
			Usage:       "Number of blocks requested from the rpc endpoint at a time.",
			Destination: &watchFlags.batch,
		},
		&cli.StringFlag{
			Name:        "storage",
			Usage:       "Name of storage that entities will be written to. Entities are kept in memory if empty.",
			Value:       "",
			Destination: &watchFlags.storage,
		},
		&cli.StringFlag{
			Name:        "name",
			Usage:       "Name of job for easy identification later.",
			Value:       "watch",
			Destination: &watchFlags.name,
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := setupAll()
		if err != nil {
			return err
		}

		confidence := watchFlags.confidence
		if confidence < 0 {
			confidence = cfg.Chain.Confidence
		}
		interval := watchFlags.interval
		if interval == 0 {
			interval = cfg.Chain.PollInterval.Duration()
		}
		batch := watchFlags.batch
		if batch == 0 {
			batch = cfg.Chain.BatchSize
		}

		g, ctx := errgroup.WithContext(cctx.Context)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		p, err := newPipeline(ctx, cfg, watchFlags.storage, watchFlags.name, indexer.Watch)
		if err != nil {
			return err
		}
		defer func() {
			if err := p.Close(); err != nil {
				log.Errorw("close", "error", err)
			}
		}()

		w := watch.NewWatcher(p.indexer, watchFlags.name,
			watch.WithConfidence(confidence),
			watch.WithPollInterval(interval),
			watch.WithBatchSize(batch),
		)

		g.Go(func() error {
			defer cancel()
			return p.runJob(ctx, watchFlags.name, w, true)
		})

		g.Go(func() error {
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigs)
			select {
			case sig := <-sigs:
				log.Infow("received signal, shutting down", "signal", sig.String())
				cancel()
			case <-ctx.Done():
			}
			return nil
		})

		err = g.Wait()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}
