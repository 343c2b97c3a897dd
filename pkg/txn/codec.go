package txn

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cuemby/objstore/pkg/ostore"
)

// Encoder builds a transaction stream: a sequence of length-framed,
// opcode-tagged records, big-endian throughout.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded stream built so far.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Put appends one op to the stream.
func (e *Encoder) Put(op Op) {
	e.writeUint8(uint8(op.Code))
	e.writeString(op.CID)
	e.writeOid(op.Oid)

	switch op.Code {
	case OpWrite:
		e.writeUint64(op.Offset)
		e.writeUint64(op.Length)
		e.writeBytes(op.Data)
		e.writeUint32(op.Flags)
	case OpZero, OpTruncate:
		e.writeUint64(op.Offset)
		e.writeUint64(op.Length)
	case OpSetAttr:
		e.writeString(op.AttrName)
		e.writeBytes(op.AttrValue)
	case OpSetAttrs:
		e.writeAttrs(op.Attrs)
	case OpRmAttr:
		e.writeString(op.AttrName)
	case OpRmAttrs:
		e.writeStrings(op.AttrNames)
	case OpClone:
		e.writeString(op.DstCID)
		e.writeOid(op.DstOid)
	case OpCloneRange2:
		e.writeString(op.DstCID)
		e.writeOid(op.DstOid)
		e.writeUint64(op.Offset)
		e.writeUint64(op.Length)
		e.writeUint64(op.DstOffset)
	case OpCollMoveRename:
		e.writeString(op.DstCID)
		e.writeOid(op.DstOid)
	case OpOmapSetKeys:
		e.writeAttrs(op.OmapKeys)
	case OpOmapRmKeys:
		e.writeStrings(op.OmapKeyNames)
	case OpOmapRmKeyRange:
		e.writeString(op.OmapRangeStart)
		e.writeString(op.OmapRangeEnd)
	case OpOmapSetHeader:
		e.writeBytes(op.OmapHeader)
	case OpSplitCollection2:
		e.writeString(op.DstCID)
		e.writeUint32(op.SplitBits)
		e.writeUint32(op.SplitRem)
	case OpCollHint:
		e.writeUint32(op.HintType)
	case OpSetAllocHint:
		e.writeUint64(op.AllocHintExpectedSize)
		e.writeUint64(op.AllocHintExpectedWriteSize)
	case OpNop, OpTouch, OpRemove, OpMkColl, OpRmColl, OpOmapClear:
		// no extra fields
	}
}

func (e *Encoder) writeUint8(v uint8)   { e.buf.WriteByte(v) }
func (e *Encoder) writeUint32(v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); e.buf.Write(b[:]) }
func (e *Encoder) writeUint64(v uint64) { var b [8]byte; binary.BigEndian.PutUint64(b[:], v); e.buf.Write(b[:]) }

func (e *Encoder) writeBytes(v []byte) {
	e.writeUint32(uint32(len(v)))
	e.buf.Write(v)
}

func (e *Encoder) writeString(s string) {
	e.writeBytes([]byte(s))
}

func (e *Encoder) writeStrings(ss []string) {
	e.writeUint32(uint32(len(ss)))
	for _, s := range ss {
		e.writeString(s)
	}
}

func (e *Encoder) writeAttrs(m map[string][]byte) {
	e.writeUint32(uint32(len(m)))
	for k, v := range m {
		e.writeString(k)
		e.writeBytes(v)
	}
}

func (e *Encoder) writeOid(o ostore.Oid) {
	e.writeUint32(uint32(int32(o.Shard)))
	e.writeUint32(o.Hash)
	e.writeUint64(uint64(o.Pool))
	e.writeString(o.Namespace)
	e.writeString(o.Key)
	e.writeString(o.Name)
	e.writeUint64(uint64(o.Snap))
	e.writeUint64(o.Generation)
}

// Decoder reads a transaction stream one op at a time.
type Decoder struct {
	r *bytes.Reader
}

// NewDecoder wraps data for sequential decode.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{r: bytes.NewReader(data)}
}

// Next decodes the next op, returning io.EOF once the stream is
// exhausted. A malformed stream returns an ostore.CodeCorrupt error.
func (d *Decoder) Next() (Op, error) {
	codeByte, err := d.r.ReadByte()
	if err == io.EOF {
		return Op{}, io.EOF
	}
	if err != nil {
		return Op{}, ostore.Wrap(ostore.CodeCorrupt, "txn.Decoder.Next", "read opcode", err)
	}

	op := Op{Code: OpCode(codeByte)}
	if op.CID, err = d.readString(); err != nil {
		return Op{}, err
	}
	if op.Oid, err = d.readOid(); err != nil {
		return Op{}, err
	}

	switch op.Code {
	case OpWrite:
		if op.Offset, err = d.readUint64(); err != nil {
			return Op{}, err
		}
		if op.Length, err = d.readUint64(); err != nil {
			return Op{}, err
		}
		if op.Data, err = d.readBytes(); err != nil {
			return Op{}, err
		}
		if op.Flags, err = d.readUint32(); err != nil {
			return Op{}, err
		}
	case OpZero, OpTruncate:
		if op.Offset, err = d.readUint64(); err != nil {
			return Op{}, err
		}
		if op.Length, err = d.readUint64(); err != nil {
			return Op{}, err
		}
	case OpSetAttr:
		if op.AttrName, err = d.readString(); err != nil {
			return Op{}, err
		}
		if op.AttrValue, err = d.readBytes(); err != nil {
			return Op{}, err
		}
	case OpSetAttrs:
		if op.Attrs, err = d.readAttrs(); err != nil {
			return Op{}, err
		}
	case OpRmAttr:
		if op.AttrName, err = d.readString(); err != nil {
			return Op{}, err
		}
	case OpRmAttrs:
		if op.AttrNames, err = d.readStrings(); err != nil {
			return Op{}, err
		}
	case OpClone:
		if op.DstCID, err = d.readString(); err != nil {
			return Op{}, err
		}
		if op.DstOid, err = d.readOid(); err != nil {
			return Op{}, err
		}
	case OpCloneRange2:
		if op.DstCID, err = d.readString(); err != nil {
			return Op{}, err
		}
		if op.DstOid, err = d.readOid(); err != nil {
			return Op{}, err
		}
		if op.Offset, err = d.readUint64(); err != nil {
			return Op{}, err
		}
		if op.Length, err = d.readUint64(); err != nil {
			return Op{}, err
		}
		if op.DstOffset, err = d.readUint64(); err != nil {
			return Op{}, err
		}
	case OpCollMoveRename:
		if op.DstCID, err = d.readString(); err != nil {
			return Op{}, err
		}
		if op.DstOid, err = d.readOid(); err != nil {
			return Op{}, err
		}
	case OpOmapSetKeys:
		if op.OmapKeys, err = d.readAttrs(); err != nil {
			return Op{}, err
		}
	case OpOmapRmKeys:
		if op.OmapKeyNames, err = d.readStrings(); err != nil {
			return Op{}, err
		}
	case OpOmapRmKeyRange:
		if op.OmapRangeStart, err = d.readString(); err != nil {
			return Op{}, err
		}
		if op.OmapRangeEnd, err = d.readString(); err != nil {
			return Op{}, err
		}
	case OpOmapSetHeader:
		if op.OmapHeader, err = d.readBytes(); err != nil {
			return Op{}, err
		}
	case OpSplitCollection2:
		if op.DstCID, err = d.readString(); err != nil {
			return Op{}, err
		}
		if op.SplitBits, err = d.readUint32(); err != nil {
			return Op{}, err
		}
		if op.SplitRem, err = d.readUint32(); err != nil {
			return Op{}, err
		}
	case OpCollHint:
		if op.HintType, err = d.readUint32(); err != nil {
			return Op{}, err
		}
	case OpSetAllocHint:
		if op.AllocHintExpectedSize, err = d.readUint64(); err != nil {
			return Op{}, err
		}
		if op.AllocHintExpectedWriteSize, err = d.readUint64(); err != nil {
			return Op{}, err
		}
	case OpNop, OpTouch, OpRemove, OpMkColl, OpRmColl, OpOmapClear:
		// no extra fields
	default:
		return Op{}, ostore.New(ostore.CodeCorrupt, "txn.Decoder.Next", "unknown opcode")
	}

	return op, nil
}

func (d *Decoder) readUint32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, ostore.Wrap(ostore.CodeCorrupt, "txn.Decoder", "read uint32", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (d *Decoder) readUint64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, ostore.Wrap(ostore.CodeCorrupt, "txn.Decoder", "read uint64", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (d *Decoder) readBytes() ([]byte, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, ostore.Wrap(ostore.CodeCorrupt, "txn.Decoder", "read bytes", err)
	}
	return buf, nil
}

func (d *Decoder) readString() (string, error) {
	b, err := d.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) readStrings() ([]string, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = d.readString(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *Decoder) readAttrs() (map[string][]byte, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, n)
	for i := uint32(0); i < n; i++ {
		k, err := d.readString()
		if err != nil {
			return nil, err
		}
		v, err := d.readBytes()
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (d *Decoder) readOid() (ostore.Oid, error) {
	var o ostore.Oid
	shard, err := d.readUint32()
	if err != nil {
		return o, err
	}
	o.Shard = int32(shard)
	if o.Hash, err = d.readUint32(); err != nil {
		return o, err
	}
	pool, err := d.readUint64()
	if err != nil {
		return o, err
	}
	o.Pool = int64(pool)
	if o.Namespace, err = d.readString(); err != nil {
		return o, err
	}
	if o.Key, err = d.readString(); err != nil {
		return o, err
	}
	if o.Name, err = d.readString(); err != nil {
		return o, err
	}
	snap, err := d.readUint64()
	if err != nil {
		return o, err
	}
	o.Snap = ostore.SnapID(snap)
	if o.Generation, err = d.readUint64(); err != nil {
		return o, err
	}
	return o, nil
}
