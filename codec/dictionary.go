package codec

import (
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/keys"
	"github.com/hupe1980/idxstore/migration"
	"github.com/hupe1980/idxstore/storagepart"
)

func encodeKeyDictionary(p storagepart.Part, _ *Context) ([]byte, error) {
	d := p.(*storagepart.KeyDictionary)
	w := wire.NewWriter(16 + 24*len(d.Entries))
	writeHeader(w, d)
	w.WriteCount(len(d.Entries))
	for _, e := range d.Entries {
		w.WriteVarint(e.ID)
		keys.Write(w, e.Key)
	}
	return encoded(w)
}

func decodeKeyDictionary(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	n := readLen(r)
	entries := make([]keys.Entry, 0, n)
	for range n {
		e := keys.Entry{ID: r.ReadVarint(), Key: keys.Read(r)}
		if e.Key != nil && e.Key.Kind() == keys.KindAttribute {
			r.Failf("legacy attribute key %s in current dictionary", e.Key)
		}
		entries = append(entries, e)
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	if _, err := keys.Restore(entries); err != nil {
		return nil, err
	}
	return &storagepart.KeyDictionary{Header: h, Entries: entries}, nil
}

// decodeKeyDictionaryV1 reads the header-less dictionary layout whose
// attribute keys are bare attribute keys.
func decodeKeyDictionaryV1(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	n := readLen(r)
	entries := make([]keys.Entry, 0, n)
	for range n {
		entries = append(entries, keys.Entry{ID: r.ReadVarint(), Key: keys.Read(r)})
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	upgraded, _, err := migration.UpgradeEntries(entries)
	if err != nil {
		return nil, err
	}
	if _, err := keys.Restore(upgraded); err != nil {
		return nil, err
	}
	return storagepart.NewKeyDictionary(upgraded), nil
}
