package main

import (
	"context"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"

	"github.com/subscription-escrow/escrowdex/commands"
	"github.com/subscription-escrow/escrowdex/version"
)

var log = logging.Logger("escrowdex")

func main() {
	if err := logging.SetLogLevel("*", "info"); err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:    "escrowdex",
		Usage:   "Subscription escrow contract indexer",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				EnvVars:     []string{"ESCROWDEX_CONFIG"},
				Usage:       "Path of the config file. Built in defaults are used if empty.",
				Destination: &commands.ConfigFlags.Path,
			},
			&cli.StringFlag{
				Name:        "log-level",
				EnvVars:     []string{"GOLOG_LOG_LEVEL"},
				Value:       "info",
				Usage:       "Set the default log level for all loggers to `LEVEL`",
				Destination: &commands.LogFlags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-level-named",
				EnvVars:     []string{"ESCROWDEX_LOG_LEVEL_NAMED"},
				Value:       "",
				Usage:       "A comma delimited list of named loggers and log levels formatted as name:level, for example 'logger1:debug,logger2:info'",
				Destination: &commands.LogFlags.LogLevelNamed,
			},
			&cli.StringFlag{
				Name:        "prometheus-port",
				EnvVars:     []string{"ESCROWDEX_PROMETHEUS_PORT"},
				Usage:       "Address the prometheus metrics and pprof endpoints listen on. Overrides the config file.",
				Destination: &commands.MetricFlags.PrometheusPort,
			},
			&cli.BoolFlag{
				Name:        "tracing",
				EnvVars:     []string{"ESCROWDEX_TRACING"},
				Usage:       "Enable tracing. Overrides the config file.",
				Destination: &commands.TracingFlags.Enabled,
			},
			&cli.StringFlag{
				Name:        "jaeger-service-name",
				EnvVars:     []string{"ESCROWDEX_JAEGER_SERVICE_NAME"},
				Destination: &commands.TracingFlags.ServiceName,
			},
			&cli.StringFlag{
				Name:        "jaeger-provider-url",
				EnvVars:     []string{"ESCROWDEX_JAEGER_PROVIDER_URL"},
				Destination: &commands.TracingFlags.ProviderURL,
			},
			&cli.Float64Flag{
				Name:        "jaeger-sampler-ratio",
				EnvVars:     []string{"ESCROWDEX_JAEGER_SAMPLER_RATIO"},
				Destination: &commands.TracingFlags.JaegerSamplerParam,
			},
		},
		Commands: []*cli.Command{
			commands.InitCmd,
			commands.MigrateCmd,
			commands.WalkCmd,
			commands.WatchCmd,
			commands.ExportCmd,
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
