package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/hupe1980/idxstore/engine"
	"github.com/hupe1980/idxstore/keys"
)

type scopeSummary struct {
	ID            int32          `json:"id"`
	EntityType    string         `json:"entityType,omitempty"`
	Discriminator string         `json:"discriminator,omitempty"`
	Version       uint64         `json:"version"`
	Parts         int            `json:"parts"`
	ByType        map[string]int `json:"byType"`
	Error         string         `json:"error,omitempty"`
}

type catalogSummary struct {
	Path             string         `json:"path"`
	Keys             int            `json:"keys"`
	PendingMigration int            `json:"pendingMigration"`
	Scopes           []scopeSummary `json:"scopes"`
}

func summarizeScope(sc *engine.Scope) scopeSummary {
	s := scopeSummary{ID: sc.ID(), ByType: map[string]int{}}
	if !sc.IsCatalog() {
		s.EntityType = sc.EntityType()
		s.Discriminator = sc.Discriminator().String()
	}
	snap, err := sc.Snapshot()
	if err != nil {
		s.Error = err.Error()
		return s
	}
	s.Version = snap.Version()
	s.Parts = snap.Len()
	for _, id := range snap.IDs() {
		s.ByType[id.Type.String()]++
	}
	return s
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Summarize the scopes and parts of a catalog",
		Flags: []cli.Flag{
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

			summary := catalogSummary{
				Path:             db.Path(),
				Keys:             db.Keys().Len(),
				PendingMigration: db.PendingMigration(),
				Scopes:           []scopeSummary{summarizeScope(db.CatalogScope())},
			}
			for _, sc := range db.Scopes() {
				summary.Scopes = append(summary.Scopes, summarizeScope(sc))
			}

			out := c.Root().Writer
			if c.Bool("json") {
				return writeJSON(out, summary)
			}
			fmt.Fprintf(out, "path: %s\nkeys: %d\npending migration: %d\n\n", summary.Path, summary.Keys, summary.PendingMigration)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCOPE\tENTITY\tDISCRIMINATOR\tVERSION\tPARTS\tSTATUS")
			for _, s := range summary.Scopes {
				status := "ok"
				if s.Error != "" {
					status = s.Error
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", s.ID, s.EntityType, s.Discriminator, s.Version, s.Parts, status)
			}
			return tw.Flush()
		},
	}
}

type keyEntry struct {
	ID   int32  `json:"id"`
	Kind string `json:"kind"`
	Key  string `json:"key"`
}

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "List the key dictionary",
		Flags: []cli.Flag{
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

			entries := listKeys(db.Keys())
			out := c.Root().Writer
			if c.Bool("json") {
				return writeJSON(out, entries)
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%6d  %-16s %s\n", e.ID, e.Kind, e.Key)
			}
			return nil
		},
	}
}

func listKeys(c *keys.Compressor) []keyEntry {
	entries := c.Entries()
	out := make([]keyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, keyEntry{ID: e.ID, Kind: e.Key.Kind().String(), Key: e.Key.String()})
	}
	return out
}
