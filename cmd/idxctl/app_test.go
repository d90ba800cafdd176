package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/idxstore"
	"github.com/hupe1980/idxstore/codec"
	"github.com/hupe1980/idxstore/index/entity"
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/keys"
	"github.com/hupe1980/idxstore/storagepart"
	"github.com/hupe1980/idxstore/store"
	"github.com/hupe1980/idxstore/value"
)

var (
	codeKey = keys.AttributeIndexKey{AttributeName: "code"}
	rankKey = keys.AttributeIndexKey{AttributeName: "rank"}
)

// seedCatalog writes one product scope with a filter index and returns
// the id of the rank key.
func seedCatalog(t *testing.T, path string) int32 {
	t.Helper()
	ctx := context.Background()
	db, err := idxstore.Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	sc, err := db.CreateScope(ctx, "product", entity.Global())
	require.NoError(t, err)
	rankID := db.Keys().ID(rankKey)
	sess, err := sc.Begin(ctx)
	require.NoError(t, err)
	f, err := sess.Filter(ctx, codeKey, value.TypeString)
	require.NoError(t, err)
	require.NoError(t, f.AddRecord("A-1", 7))
	require.NoError(t, sess.Commit(ctx))
	return rankID
}

// appendLegacySort adds a sort part in the single axis layout.
func appendLegacySort(t *testing.T, path string, scope, keyID int32) {
	t.Helper()
	w := wire.NewWriter(32)
	w.WriteVarint(scope)
	w.WriteVarlong(storagepart.ComputePK(scope, keyID))
	w.WriteVarint(keyID)
	value.WriteType(w, value.TypeInt)
	w.WriteInt32s([]int32{2, 1})
	value.Write(w, value.TypeInt, int64(1))
	value.Write(w, value.TypeInt, int64(5))

	st, err := store.OpenFileStore(path)
	require.NoError(t, err)
	defer st.Close()
	_, err = st.Append(context.Background(),
		storagepart.ID{Type: storagepart.TypeSort, PK: storagepart.ComputePK(scope, keyID)},
		codec.Version1, w.Bytes())
	require.NoError(t, err)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(context.Background(), append([]string{"idxctl"}, args...))
	return out.String(), err
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.ixs")
	seedCatalog(t, path)

	out, err := run(t, "--path", path, "inspect", "--json")
	require.NoError(t, err)
	var summary catalogSummary
	require.NoError(t, gojson.Unmarshal([]byte(out), &summary))
	assert.Equal(t, path, summary.Path)
	assert.Zero(t, summary.PendingMigration)
	require.Len(t, summary.Scopes, 2)
	assert.Equal(t, "product", summary.Scopes[1].EntityType)
	assert.Equal(t, 1, summary.Scopes[1].ByType["filter"])

	out, err = run(t, "--path", path, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "product")
}

func TestKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.ixs")
	seedCatalog(t, path)

	out, err := run(t, "--path", path, "keys", "--json")
	require.NoError(t, err)
	var entries []keyEntry
	require.NoError(t, gojson.Unmarshal([]byte(out), &entries))
	var names []string
	for _, e := range entries {
		names = append(names, e.Key)
	}
	assert.Contains(t, names, codeKey.String())
	assert.Contains(t, names, rankKey.String())
}

func TestDecodeFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.ixs")
	seedCatalog(t, path)

	out, err := run(t, "--path", path, "decode", "--scope", "1", "--attribute", "code", "filter")
	require.NoError(t, err)
	var view struct {
		Type  string `json:"type"`
		Scope int32  `json:"scope"`
		Body  struct {
			ValueType string `json:"valueType"`
			Points    []struct {
				Value   string  `json:"Value"`
				Records []int32 `json:"Records"`
			} `json:"points"`
		} `json:"body"`
	}
	require.NoError(t, gojson.Unmarshal([]byte(out), &view))
	assert.Equal(t, "filter", view.Type)
	assert.Equal(t, int32(1), view.Scope)
	require.Len(t, view.Body.Points, 1)
	assert.Equal(t, "A-1", view.Body.Points[0].Value)
	assert.Equal(t, []int32{7}, view.Body.Points[0].Records)
}

func TestDecodeErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.ixs")
	seedCatalog(t, path)

	_, err := run(t, "--path", path, "decode", "--scope", "1", "nonsense")
	assert.ErrorContains(t, err, "unknown storage part type")

	_, err = run(t, "--path", path, "decode", "--scope", "1", "--attribute", "missing", "filter")
	assert.ErrorIs(t, err, keys.ErrUnknownKeyID)

	_, err = run(t, "--path", path, "decode", "--scope", "9", "entity-index")
	assert.Error(t, err)
}

func TestMigrateWithBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.ixs")
	rankID := seedCatalog(t, path)
	appendLegacySort(t, path, 1, rankID)

	out, err := run(t, "--path", path, "migrate", "--dry-run", "--json")
	require.NoError(t, err)
	var dry migrationSummary
	require.NoError(t, gojson.Unmarshal([]byte(out), &dry))
	assert.Equal(t, 1, dry.Pending)
	assert.Zero(t, dry.Rewritten)

	backup := filepath.Join(dir, "backup.ixs")
	out, err = run(t, "--path", path, "migrate", "--backup", backup, "--json")
	require.NoError(t, err)
	var summary migrationSummary
	require.NoError(t, gojson.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 1, summary.Rewritten)
	assert.Equal(t, 1, summary.ByType["sort"])
	assert.Equal(t, backup, summary.Backup)
	_, err = os.Stat(backup)
	require.NoError(t, err)

	out, err = run(t, "--path", path, "inspect", "--json")
	require.NoError(t, err)
	var after catalogSummary
	require.NoError(t, gojson.Unmarshal([]byte(out), &after))
	assert.Zero(t, after.PendingMigration)

	// The backup still holds the legacy part.
	out, err = run(t, "--path", backup, "migrate", "--dry-run", "--json")
	require.NoError(t, err)
	require.NoError(t, gojson.Unmarshal([]byte(out), &dry))
	assert.Equal(t, 1, dry.Pending)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.ixs")
	seedCatalog(t, path)
	cfgPath := filepath.Join(dir, "idxstore.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("store:\n  path: "+path+"\nlog:\n  level: error\n"), 0o600))

	out, err := run(t, "--config", cfgPath, "inspect", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"pendingMigration": 0`)
}
