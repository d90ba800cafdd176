package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hupe1980/idxstore/keys"
	"github.com/hupe1980/idxstore/storagepart"
)

type partView struct {
	Type    string `json:"type"`
	Scope   int32  `json:"scope"`
	KeyID   int32  `json:"keyId"`
	Key     string `json:"key,omitempty"`
	Version uint16 `json:"version,omitempty"`
	Offset  int64  `json:"offset,omitempty"`
	Size    int    `json:"size,omitempty"`
	Body    any    `json:"body"`
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode one storage part and print it as JSON",
		ArgsUsage: "<type>",
		Flags: []cli.Flag{
			&cli.Int32Flag{Name: "scope", Aliases: []string{"s"}, Usage: "Scope id (0 is the catalog scope)"},
			&cli.Int32Flag{Name: "key", Aliases: []string{"k"}, Usage: "Compressed key id"},
			&cli.StringFlag{Name: "attribute", Aliases: []string{"a"}, Usage: "Attribute name, resolved to a key id"},
			&cli.StringFlag{Name: "locale", Usage: "Locale of the attribute key"},
			&cli.StringFlag{Name: "reference", Aliases: []string{"r"}, Usage: "Reference name, resolved to a key id"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one part type, got %d arguments", c.Args().Len())
			}
			t, err := storagepart.ParseType(c.Args().First())
			if err != nil {
				return err
			}

			cfg, err := loadConfig(c.Root())
			if err != nil {
				return err
			}
			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			keyID, err := resolveKey(db.Keys(), c)
			if err != nil {
				return err
			}
			sc, err := db.ScopeByID(c.Int32("scope"))
			if err != nil {
				return err
			}
			snap, err := sc.Snapshot()
			if err != nil {
				return err
			}
			id := storagepart.ID{Type: t, PK: storagepart.ComputePK(sc.ID(), keyID)}
			p, err := snap.Part(ctx, id)
			if err != nil {
				return err
			}

			view := partView{
				Type:  t.String(),
				Scope: p.ScopeID(),
				KeyID: p.KeyID(),
				Body:  describe(p),
			}
			if k, err := db.Keys().KeyForID(p.KeyID()); err == nil {
				view.Key = k.String()
			}
			if loc, ok := snap.Location(id); ok {
				view.Version, view.Offset, view.Size = loc.Version, loc.Offset, loc.Size
			}
			return writeJSON(c.Root().Writer, view)
		},
	}
}

func resolveKey(comp *keys.Compressor, c *cli.Command) (int32, error) {
	var k keys.Key
	switch {
	case c.String("attribute") != "":
		k = keys.AttributeIndexKey{AttributeName: c.String("attribute"), Locale: c.String("locale")}
	case c.String("reference") != "":
		k = keys.ReferenceNameKey{Name: c.String("reference")}
	default:
		return c.Int32("key"), nil
	}
	id, ok := comp.IDIfExists(k)
	if !ok {
		return 0, fmt.Errorf("%w: %s", keys.ErrUnknownKeyID, k)
	}
	return id, nil
}

type filterBody struct {
	ValueType string `json:"valueType"`
	Points    any    `json:"points"`
	Ranges    any    `json:"ranges,omitempty"`
}

type sortBody struct {
	Axes    any     `json:"axes"`
	Records []int32 `json:"records"`
	Values  any     `json:"values"`
}

type entityBody struct {
	EntityType    string `json:"entityType"`
	Discriminator string `json:"discriminator"`
	Records       any    `json:"records"`
	Registrations any    `json:"registrations"`
	Hierarchy     bool   `json:"hierarchy"`
}

type hierarchyBody struct {
	Nodes   any     `json:"nodes"`
	Roots   []int32 `json:"roots"`
	Orphans []int32 `json:"orphans"`
}

// describe renders the content of a part as plain data.
func describe(p storagepart.Part) any {
	switch x := p.(type) {
	case *storagepart.KeyDictionary:
		return x.Entries
	case *storagepart.CatalogIndex:
		return map[string]any{"scopes": x.Catalog.Scopes(), "uniqueKeys": x.Catalog.UniqueKeys(), "lastScope": x.Catalog.LastScope()}
	case *storagepart.EntityIndex:
		return entityBody{
			EntityType:    x.Index.EntityType,
			Discriminator: x.Index.Discriminator.String(),
			Records:       x.Index.AllRecords(),
			Registrations: x.Index.Registrations(),
			Hierarchy:     x.Index.HasHierarchy(),
		}
	case *storagepart.Filter:
		b := filterBody{ValueType: x.Index.ValueType().String(), Points: x.Index.Points()}
		if ri := x.Index.RangeIndex(); ri != nil {
			b.Ranges = ri.Points()
		}
		return b
	case *storagepart.Sort:
		return sortBody{Axes: x.Index.Axes(), Records: x.Index.SortedRecords(), Values: x.Index.SortedValues()}
	case *storagepart.Unique:
		return map[string]any{"name": x.Index.Name(), "entries": x.Index.Entries()}
	case *storagepart.GlobalUnique:
		return map[string]any{"name": x.Index.Name(), "entries": x.Index.Entries()}
	case *storagepart.Chain:
		return map[string]any{"chains": x.Index.Chains(), "elements": x.Index.Elements()}
	case *storagepart.AttributeCardinality:
		return x.Index.Entries()
	case *storagepart.ReferenceCardinality:
		return x.Index.Entries()
	case *storagepart.Hierarchy:
		return hierarchyBody{Nodes: x.Index.Nodes(), Roots: x.Index.Roots(), Orphans: x.Index.Orphans()}
	case *storagepart.Facet:
		return x.Index.Buckets()
	case *storagepart.Price:
		return x.Index.Records()
	default:
		return fmt.Sprintf("%T", p)
	}
}
