package main

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/urfave/cli/v3"
)

type checkpointer interface {
	Checkpoint(dst string) error
}

type migrationSummary struct {
	Pending   int            `json:"pending"`
	Backup    string         `json:"backup,omitempty"`
	Scopes    int            `json:"scopes"`
	Scanned   int            `json:"scanned"`
	Rewritten int            `json:"rewritten"`
	Bytes     int64          `json:"bytes"`
	ByType    map[string]int `json:"byType,omitempty"`
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Rewrite parts stored in legacy layouts in the current format",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "backup", Usage: "Checkpoint the store to this path before migrating"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Only report the number of pending parts"},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c.Root())
			if err != nil {
				return err
			}
			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			summary := migrationSummary{Pending: db.PendingMigration()}
			if !c.Bool("dry-run") && summary.Pending > 0 {
				if dst := c.String("backup"); dst != "" {
					cp, ok := db.Store().(checkpointer)
					if !ok {
						return fmt.Errorf("backend %s does not support backups", cfg.Store.Backend)
					}
					if err := cp.Checkpoint(dst); err != nil {
						return fmt.Errorf("backup: %w", err)
					}
					summary.Backup = dst
				}
				report, err := db.Migrate(ctx)
				if err != nil {
					return err
				}
				summary.Scopes = report.Scopes
				summary.Scanned = report.Scanned
				summary.Rewritten = report.Rewritten
				summary.Bytes = report.Bytes
				summary.ByType = make(map[string]int, len(report.ByType))
				for t, n := range report.ByType {
					summary.ByType[t.String()] = n
				}
			}

			out := c.Root().Writer
			if c.Bool("json") {
				return writeJSON(out, summary)
			}
			fmt.Fprintf(out, "pending: %d\n", summary.Pending)
			if summary.Backup != "" {
				fmt.Fprintf(out, "backup: %s\n", summary.Backup)
			}
			fmt.Fprintf(out, "rewritten: %d (%d bytes)\n", summary.Rewritten, summary.Bytes)
			for _, name := range slices.Sorted(maps.Keys(summary.ByType)) {
				fmt.Fprintf(out, "  %-24s %d\n", name, summary.ByType[name])
			}
			return nil
		},
	}
}
