package command

import (
	"context"
	"errors"
	"strings"

	"github.com/urfave/cli/v2"

	"cellflow/internal/config"
)

type Deps struct {
	LoadConfig   func() (config.Config, error)
	RunServe     func(context.Context, config.Config) error
	RunRuntime   func(context.Context, config.Config) error
	RunAgent     func(context.Context, config.Config, string) error
	RunMigrateUp func(context.Context, config.Config) error
}

func BuildApp(deps Deps) *cli.App {
	notebookFlag := &cli.StringFlag{
		Name:  "notebook",
		Usage: "notebook id to operate on",
	}
	relayFlag := &cli.StringFlag{
		Name:  "relay",
		Usage: "websocket url of the event log relay",
	}
	return &cli.App{
		Name:  "cellflow",
		Usage: "event-sourced notebook execution coordinator",
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(deps, ctx)
			if err != nil {
				return err
			}
			return runServe(ctx.Context, deps, cfg)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the log relay, materializer and scheduler",
				Flags: []cli.Flag{notebookFlag},
				Action: func(ctx *cli.Context) error {
					cfg, err := loadConfig(deps, ctx)
					if err != nil {
						return err
					}
					return runServe(ctx.Context, deps, cfg)
				},
			},
			{
				Name:  "runtime",
				Usage: "run a runtime worker against a relay",
				Flags: []cli.Flag{notebookFlag, relayFlag},
				Action: func(ctx *cli.Context) error {
					cfg, err := loadConfig(deps, ctx)
					if err != nil {
						return err
					}
					if deps.RunRuntime == nil {
						return errors.New("runtime runner is not configured")
					}
					return deps.RunRuntime(ctx.Context, cfg)
				},
			},
			{
				Name:      "agent",
				Usage:     "run an ai agent prompt against the notebook",
				ArgsUsage: "<prompt>",
				Flags:     []cli.Flag{notebookFlag, relayFlag},
				Action: func(ctx *cli.Context) error {
					cfg, err := loadConfig(deps, ctx)
					if err != nil {
						return err
					}
					prompt := strings.TrimSpace(strings.Join(ctx.Args().Slice(), " "))
					if prompt == "" {
						return errors.New("prompt is required")
					}
					if deps.RunAgent == nil {
						return errors.New("agent runner is not configured")
					}
					return deps.RunAgent(ctx.Context, cfg, prompt)
				},
			},
			{
				Name:  "migrate",
				Usage: "run database migration",
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply pending migrations",
						Flags: []cli.Flag{notebookFlag},
						Action: func(ctx *cli.Context) error {
							cfg, err := loadConfig(deps, ctx)
							if err != nil {
								return err
							}
							if deps.RunMigrateUp == nil {
								return errors.New("migrate up runner is not configured")
							}
							return deps.RunMigrateUp(ctx.Context, cfg)
						},
					},
				},
			},
		},
	}
}

func loadConfig(deps Deps, ctx *cli.Context) (config.Config, error) {
	if deps.LoadConfig == nil {
		return config.Config{}, errors.New("config loader is not configured")
	}
	cfg, err := deps.LoadConfig()
	if err != nil {
		return config.Config{}, err
	}
	if notebook := strings.TrimSpace(ctx.String("notebook")); notebook != "" {
		cfg.NotebookID = notebook
	}
	if relay := strings.TrimSpace(ctx.String("relay")); relay != "" {
		cfg.RelayURL = relay
	}
	return cfg, nil
}

func runServe(ctx context.Context, deps Deps, cfg config.Config) error {
	if deps.RunServe == nil {
		return errors.New("serve runner is not configured")
	}
	return deps.RunServe(ctx, cfg)
}
