package codec

import (
	"fmt"

	"github.com/hupe1980/idxstore/bitmap"
	"github.com/hupe1980/idxstore/index/entity"
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/storagepart"
)

func encodeEntityIndex(p storagepart.Part, _ *Context) ([]byte, error) {
	e := p.(*storagepart.EntityIndex)
	x := e.Index
	if x.ScopeID != e.ScopeID() {
		return nil, fmt.Errorf("entity index of scope %d stored in part of scope %d", x.ScopeID, e.ScopeID())
	}
	w := wire.NewWriter(64)
	writeHeader(w, e)
	w.WriteString(x.EntityType)
	writeDiscriminator(w, x.Discriminator)
	bitmap.Write(w, x.AllRecords())
	w.WriteBool(x.HasHierarchy())
	regs := x.Registrations()
	w.WriteCount(len(regs))
	for _, reg := range regs {
		_ = w.WriteByte(byte(reg.Kind))
		bitmap.Write(w, reg.Keys)
	}
	return encoded(w)
}

func decodeEntityIndex(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	entityType := r.ReadString()
	d := readDiscriminator(r)
	records := bitmap.Read(r)
	hier := r.ReadBool()
	n := readLen(r)
	regs := make([]entity.Registration, 0, n)
	for range n {
		k, _ := r.ReadByte()
		regs = append(regs, entity.Registration{Kind: entity.IndexKind(k), Keys: bitmap.Read(r)})
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	x, err := entity.RestoreIndex(h.ScopeID(), entityType, d, records, regs, hier)
	if err != nil {
		return nil, err
	}
	return &storagepart.EntityIndex{Header: h, Index: x}, nil
}

func encodeCatalogIndex(p storagepart.Part, _ *Context) ([]byte, error) {
	c := p.(*storagepart.CatalogIndex)
	scopes := c.Catalog.Scopes()

	w := wire.NewWriter(32 + 24*len(scopes))
	writeHeader(w, c)
	w.WriteVarint(c.Catalog.LastScope())
	w.WriteInt32s(c.Catalog.UniqueKeys())
	w.WriteCount(len(scopes))
	for _, s := range scopes {
		w.WriteVarint(s.ScopeID)
		w.WriteString(s.EntityType)
		writeDiscriminator(w, s.Discriminator)
	}
	return encoded(w)
}

func decodeCatalogIndex(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	last := r.ReadVarint()
	unique := r.ReadInt32s()
	n := readLen(r)
	scopes := make([]entity.ScopeRef, 0, n)
	for range n {
		scopes = append(scopes, entity.ScopeRef{
			ScopeID:       r.ReadVarint(),
			EntityType:    r.ReadString(),
			Discriminator: readDiscriminator(r),
		})
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	if h.ScopeID() != storagepart.CatalogScope {
		return nil, fmt.Errorf("catalog index stored in scope %d", h.ScopeID())
	}
	for _, k := range unique {
		if k <= 0 {
			return nil, fmt.Errorf("invalid unique key id %d", k)
		}
	}
	c, err := entity.RestoreCatalog(bitmap.FromSorted(unique), scopes, last)
	if err != nil {
		return nil, err
	}
	return &storagepart.CatalogIndex{Header: h, Catalog: c}, nil
}

func writeDiscriminator(w *wire.Writer, d entity.Discriminator) {
	_ = w.WriteByte(byte(d.Kind))
	w.WriteString(d.ReferenceName)
	w.WriteVarint(d.ReferencedPK)
}

func readDiscriminator(r *wire.Reader) entity.Discriminator {
	k, _ := r.ReadByte()
	return entity.Discriminator{Kind: entity.ScopeKind(k), ReferenceName: r.ReadString(), ReferencedPK: r.ReadVarint()}
}
