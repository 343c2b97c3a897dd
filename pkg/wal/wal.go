package wal

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"sync/atomic"

	"github.com/cuemby/objstore/pkg/frag"
	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/ostore"
)

// Op classifies a WAL entry's data-level mutation.
type Op int

const (
	// OpOverwrite replays Payload written at Offset into Fid.
	OpOverwrite Op = iota
	// OpZero replays a zero-fill of [Offset, Offset+Length) into Fid.
	OpZero
)

// Entry is one WAL record.
type Entry struct {
	Seq       uint64
	ObjectKey []byte // full onode kv key, for the atomic replay pairing
	Op        Op
	Fid       ostore.Fid
	Offset    uint64
	Length    uint64 // used by OpZero
	Payload   []byte // used by OpOverwrite
}

type record struct {
	ObjectKey []byte     `json:"object_key"`
	Op        Op         `json:"op"`
	Fid       ostore.Fid `json:"fid"`
	Offset    uint64     `json:"offset"`
	Length    uint64     `json:"length,omitempty"`
	Payload   []byte     `json:"payload,omitempty"`
}

// Log allocates WAL sequence numbers and applies/replays their
// entries against fragment files.
type Log struct {
	seq   atomic.Uint64
	frags *frag.Allocator
}

// Open creates a Log that allocates fresh sequence numbers starting
// after the highest one found in kvEngine's L prefix, so a remount
// never reissues a sequence number already used.
func Open(kvEngine kv.Engine, frags *frag.Allocator) (*Log, error) {
	l := &Log{frags: frags}

	var maxSeq uint64
	var any bool
	err := kvEngine.Scan(kv.PrefixWAL, nil, nil, func(k, v []byte) error {
		s := decodeSeqKey(k)
		if !any || s > maxSeq {
			maxSeq = s
			any = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if any {
		l.seq.Store(maxSeq + 1)
	}
	return l, nil
}

// Stage allocates the next sequence number, assigns it to e, and
// stages its encoded form into batch under PrefixWAL. The caller
// commits batch as part of the owning transaction's kv batch and must
// also call onode.PushUnappliedTxn(seq) on the affected onode before
// that commit.
func (l *Log) Stage(batch *kv.Batch, e Entry) (uint64, error) {
	seq := l.seq.Add(1) - 1
	e.Seq = seq

	data, err := json.Marshal(record{
		ObjectKey: e.ObjectKey,
		Op:        e.Op,
		Fid:       e.Fid,
		Offset:    e.Offset,
		Length:    e.Length,
		Payload:   e.Payload,
	})
	if err != nil {
		return 0, ostore.Wrap(ostore.CodeCorrupt, "wal.Stage", "marshal entry", err)
	}
	batch.Set(kv.PrefixWAL, encodeSeqKey(seq), data)
	return seq, nil
}

// Apply idempotently replays e's mutation into its fragment file.
// Idempotence follows from WriteAt/zero-fill being pure overwrites of
// a fixed byte range: applying the same entry twice produces the same
// bytes.
func (l *Log) Apply(e Entry) error {
	f, err := l.frags.Open(e.Fid, os.O_RDWR)
	if err != nil {
		return err
	}
	defer f.Close()

	switch e.Op {
	case OpOverwrite:
		if _, err := f.WriteAt(e.Payload, int64(e.Offset)); err != nil {
			return ostore.Wrap(ostore.CodeIo, "wal.Apply", "write fragment", err)
		}
	case OpZero:
		zeros := make([]byte, e.Length)
		if _, err := f.WriteAt(zeros, int64(e.Offset)); err != nil {
			return ostore.Wrap(ostore.CodeIo, "wal.Apply", "zero fragment", err)
		}
	default:
		return ostore.New(ostore.CodeCorrupt, "wal.Apply", "unknown wal op")
	}
	return f.Sync()
}

// Pending returns the current count of unreplayed WAL entries, for
// metrics.StatsSource.
func (l *Log) Pending(kvEngine kv.Engine) (int, error) {
	n := 0
	err := kvEngine.Scan(kv.PrefixWAL, nil, nil, func(k, v []byte) error {
		n++
		return nil
	})
	return n, err
}

func encodeSeqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func decodeSeqKey(k []byte) uint64 {
	if len(k) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(k)
}

func decodeRecord(k, v []byte) (Entry, error) {
	var r record
	if err := json.Unmarshal(v, &r); err != nil {
		return Entry{}, ostore.Wrap(ostore.CodeCorrupt, "wal.decodeRecord", "unmarshal entry", err)
	}
	return Entry{
		Seq:       decodeSeqKey(k),
		ObjectKey: r.ObjectKey,
		Op:        r.Op,
		Fid:       r.Fid,
		Offset:    r.Offset,
		Length:    r.Length,
		Payload:   r.Payload,
	}, nil
}
