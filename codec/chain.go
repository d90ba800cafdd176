package codec

import (
	"github.com/hupe1980/idxstore/index/chain"
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/migration"
	"github.com/hupe1980/idxstore/storagepart"
)

func encodeChain(p storagepart.Part, _ *Context) ([]byte, error) {
	c := p.(*storagepart.Chain)
	elements := c.Index.Elements()
	chains := c.Index.Chains()

	w := wire.NewWriter(16 + 8*len(elements))
	writeHeader(w, c)
	w.WriteCount(len(elements))
	for _, e := range elements {
		w.WriteVarint(e.Record)
		w.WriteVarint(e.Head)
		w.WriteVarint(e.Predecessor)
		_ = w.WriteByte(byte(e.State))
	}
	writeSequences(w, chains)
	return encoded(w)
}

func decodeChain(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	n := readLen(r)
	elements := make([]chain.Element, 0, n)
	for range n {
		e := chain.Element{Record: r.ReadVarint(), Head: r.ReadVarint(), Predecessor: r.ReadVarint()}
		state, _ := r.ReadByte()
		e.State = chain.State(state)
		elements = append(elements, e)
	}
	chains := readSequences(r)
	if err := finish(r); err != nil {
		return nil, err
	}
	idx, err := chain.Restore(elements, chains)
	if err != nil {
		return nil, err
	}
	return &storagepart.Chain{Header: h, Index: idx}, nil
}

// decodeChainV1 reads chain parts that persisted only the ordered
// sequences.
func decodeChainV1(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	seqs := readSequences(r)
	if err := finish(r); err != nil {
		return nil, err
	}
	idx, err := migration.ChainFromSequences(seqs)
	if err != nil {
		return nil, err
	}
	return &storagepart.Chain{Header: h, Index: idx}, nil
}

func writeSequences(w *wire.Writer, seqs [][]int32) {
	w.WriteCount(len(seqs))
	for _, s := range seqs {
		w.WriteInt32s(s)
	}
}

func readSequences(r *wire.Reader) [][]int32 {
	n := readLen(r)
	out := make([][]int32, 0, n)
	for range n {
		out = append(out, r.ReadInt32s())
	}
	return out
}
