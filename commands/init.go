package commands

import (
	"fmt"

	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"

	"github.com/subscription-escrow/escrowdex/config"
)

var initFlags struct {
	config string
}

var InitCmd = &cli.Command{
	Name:  "init",
	Usage: "Write a config file with default values if one does not exist.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Specify path of config file to create.",
			EnvVars:     []string{"ESCROWDEX_CONFIG"},
			Value:       "~/.escrowdex/config.toml",
			Destination: &initFlags.config,
		},
	},
	Action: func(c *cli.Context) error {
		if err := setupLogging(LogFlags); err != nil {
			return fmt.Errorf("setup logging: %w", err)
		}

		path, err := homedir.Expand(initFlags.config)
		if err != nil {
			return fmt.Errorf("expand config path: %w", err)
		}

		if err := config.EnsureExists(path); err != nil {
			return fmt.Errorf("ensuring config is present at %q: %w", path, err)
		}
		log.Infof("config file: %s", path)
		return nil
	},
}
