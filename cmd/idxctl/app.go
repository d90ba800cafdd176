package main

import (
	"context"
	"fmt"
	"io"

	gojson "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/hupe1980/idxstore"
	"github.com/hupe1980/idxstore/config"
)

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "idxctl",
		Usage:     "Inspect, decode and migrate idxstore catalogs",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML or JSON configuration file",
				Sources: cli.EnvVars("IDXSTORE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "Store path (overrides the configuration)",
			},
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Store backend: file, pebble (overrides the configuration)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "error",
			},
		},
		Commands: []*cli.Command{
			inspectCommand(),
			keysCommand(),
			decodeCommand(),
			migrateCommand(),
		},
	}
}

// loadConfig resolves the configuration from the file, the environment
// and the global flags.
func loadConfig(c *cli.Command) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)
	if v := c.String("path"); v != "" {
		cfg.Store.Path = v
	}
	if v := c.String("backend"); v != "" {
		cfg.Store.Backend = v
	}
	if c.IsSet("log-level") || c.String("config") == "" {
		cfg.Log.Level = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*idxstore.DB, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	db, err := idxstore.Open(ctx, cfg.Store.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Store.Path, err)
	}
	return db, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := gojson.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
