package txsupervisor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/wireframe"
)

// CurrentSnapshotVersion is the schema version this build writes.
// Versions 5, 6 and 7 can still be read.
const CurrentSnapshotVersion uint32 = 7

// PersistenceAdapter registers the keys/values savers and loaders
// that snapshot the persistent commit map and decommission flag. The
// values block is zstd-compressed before being written.
type PersistenceAdapter struct {
	sup *Supervisor
}

func NewPersistenceAdapter(sup *Supervisor) *PersistenceAdapter {
	return &PersistenceAdapter{sup: sup}
}

// Register binds the keys/values saver and loader to consensus.
func (p *PersistenceAdapter) Register(consensus Consensus) {
	consensus.RegisterSaver("transaction_supervisor_keys", p.saveKeys)
	consensus.RegisterSaver("transaction_supervisor_values", p.saveValues)
	consensus.RegisterLoader("transaction_supervisor_keys", p.loadKeys)
	consensus.RegisterLoader("transaction_supervisor_values", p.loadValues)
}

// pendingLoad buffers the key order read by loadKeys until loadValues
// decodes the matching records, since the two sections load
// independently through the consensus layer's registered-loader chain.
type pendingLoad struct {
	version uint32
	keys    []hiveid.TxId
}

// saveKeys writes the version tag followed by the set of persistent
// commit TxIds, in ascending byte order.
func (p *PersistenceAdapter) saveKeys(w io.Writer) error {
	keys := p.sup.persistentKeysSnapshot()

	if err := binary.Write(w, binary.BigEndian, CurrentSnapshotVersion); err != nil {
		return fmt.Errorf("write snapshot version: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(keys))); err != nil {
		return fmt.Errorf("write key count: %w", err)
	}
	for _, k := range keys {
		if _, err := w.Write(k[:]); err != nil {
			return fmt.Errorf("write tx id: %w", err)
		}
	}
	return nil
}

// saveValues writes the per-commit persistent attributes in key order,
// zstd-compressed, followed by the decommission flag.
func (p *PersistenceAdapter) saveValues(w io.Writer) error {
	keys := p.sup.persistentKeysSnapshot()

	var raw bytes.Buffer
	for _, k := range keys {
		commit, ok := p.sup.persistentCommit(k)
		if !ok {
			continue
		}
		rec := wireframe.EncodeCommitRecord(commit.ToRecord())
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(rec)))
		raw.Write(lenBuf[:])
		raw.Write(rec)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	compressed := enc.EncodeAll(raw.Bytes(), nil)
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd encoder: %w", err)
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(compressed))); err != nil {
		return fmt.Errorf("write values length: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("write values: %w", err)
	}

	if _, err := w.Write([]byte{boolToByte(p.sup.isDecommissionFlagSet())}); err != nil {
		return fmt.Errorf("write decommission flag: %w", err)
	}
	return nil
}

func (p *PersistenceAdapter) loadKeys(r io.Reader) error {
	var version, count uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return fmt.Errorf("read snapshot version: %w", err)
	}
	if version < 5 || version > CurrentSnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", version)
	}
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return fmt.Errorf("read key count: %w", err)
	}
	keys := make([]hiveid.TxId, count)
	for i := range keys {
		if _, err := io.ReadFull(r, keys[i][:]); err != nil {
			return fmt.Errorf("read tx id %d: %w", i, err)
		}
	}
	p.sup.pendingLoad = &pendingLoad{version: version, keys: keys}
	return nil
}

func (p *PersistenceAdapter) loadValues(r io.Reader) error {
	pending := p.sup.pendingLoad
	if pending == nil {
		return fmt.Errorf("load values called before load keys")
	}

	var compressedLen uint32
	if err := binary.Read(r, binary.BigEndian, &compressedLen); err != nil {
		return fmt.Errorf("read values length: %w", err)
	}
	compressed := make([]byte, compressedLen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return fmt.Errorf("read values: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("decompress values: %w", err)
	}

	p.sup.clearPersistentCommits()

	off := 0
	for _, key := range pending.keys {
		if off+4 > len(raw) {
			return fmt.Errorf("truncated value for tx id %s", key)
		}
		recLen := int(binary.BigEndian.Uint32(raw[off : off+4]))
		off += 4
		if off+recLen > len(raw) {
			return fmt.Errorf("truncated value body for tx id %s", key)
		}
		rec, err := wireframe.DecodeCommitRecord(raw[off:off+recLen], pending.version)
		if err != nil {
			return fmt.Errorf("decode commit record for tx id %s: %w", key, err)
		}
		off += recLen

		commit := CommitFromRecord(rec)
		p.sup.restorePersistentCommit(commit)
	}

	decommissioned := false
	if pending.version >= 7 {
		var flag [1]byte
		if _, err := io.ReadFull(r, flag[:]); err != nil {
			return fmt.Errorf("read decommission flag: %w", err)
		}
		decommissioned = flag[0] != 0
	}
	p.sup.setDecommissionFlag(decommissioned)
	p.sup.pendingLoad = nil
	return nil
}

func boolToByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
