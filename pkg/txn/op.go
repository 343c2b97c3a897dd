package txn

import "github.com/cuemby/objstore/pkg/ostore"

// OpCode tags one decoded transaction-stream entry.
type OpCode uint8

const (
	OpNop OpCode = iota
	OpTouch
	OpWrite
	OpZero
	OpTruncate
	OpRemove
	OpSetAttr
	OpSetAttrs
	OpRmAttr
	OpRmAttrs
	OpClone
	OpCloneRange2
	OpMkColl
	OpRmColl
	OpCollMoveRename
	OpOmapClear
	OpOmapSetKeys
	OpOmapRmKeys
	OpOmapRmKeyRange
	OpOmapSetHeader
	OpSplitCollection2
	OpCollHint
	OpSetAllocHint
)

func (c OpCode) String() string {
	switch c {
	case OpNop:
		return "NOP"
	case OpTouch:
		return "TOUCH"
	case OpWrite:
		return "WRITE"
	case OpZero:
		return "ZERO"
	case OpTruncate:
		return "TRUNCATE"
	case OpRemove:
		return "REMOVE"
	case OpSetAttr:
		return "SETATTR"
	case OpSetAttrs:
		return "SETATTRS"
	case OpRmAttr:
		return "RMATTR"
	case OpRmAttrs:
		return "RMATTRS"
	case OpClone:
		return "CLONE"
	case OpCloneRange2:
		return "CLONERANGE2"
	case OpMkColl:
		return "MKCOLL"
	case OpRmColl:
		return "RMCOLL"
	case OpCollMoveRename:
		return "COLL_MOVE_RENAME"
	case OpOmapClear:
		return "OMAP_CLEAR"
	case OpOmapSetKeys:
		return "OMAP_SETKEYS"
	case OpOmapRmKeys:
		return "OMAP_RMKEYS"
	case OpOmapRmKeyRange:
		return "OMAP_RMKEYRANGE"
	case OpOmapSetHeader:
		return "OMAP_SETHEADER"
	case OpSplitCollection2:
		return "SPLIT_COLLECTION2"
	case OpCollHint:
		return "COLL_HINT"
	case OpSetAllocHint:
		return "SETALLOCHINT"
	default:
		return "UNKNOWN"
	}
}

// Op is one decoded transaction-stream entry. Not every field applies
// to every Code; see the per-op comment on which fields it reads.
type Op struct {
	Code OpCode

	CID string // primary collection id
	Oid ostore.Oid

	DstCID string      // CLONE/CLONERANGE2/COLL_MOVE_RENAME/SPLIT_COLLECTION2 destination collection
	DstOid ostore.Oid  // CLONE/CLONERANGE2/COLL_MOVE_RENAME destination oid

	Offset    uint64 // WRITE/ZERO/TRUNCATE/CLONERANGE2 source offset
	Length    uint64 // WRITE/ZERO/CLONERANGE2 length
	DstOffset uint64 // CLONERANGE2 destination offset
	Data      []byte // WRITE payload
	Flags     uint32 // WRITE flags

	AttrName  string            // SETATTR/RMATTR
	AttrValue []byte            // SETATTR
	AttrNames []string          // RMATTRS
	Attrs     map[string][]byte // SETATTRS

	OmapKeys       map[string][]byte // OMAP_SETKEYS
	OmapKeyNames   []string          // OMAP_RMKEYS
	OmapRangeStart string            // OMAP_RMKEYRANGE
	OmapRangeEnd   string            // OMAP_RMKEYRANGE
	OmapHeader     []byte            // OMAP_SETHEADER

	SplitBits uint32 // SPLIT_COLLECTION2: number of hash bits to match
	SplitRem  uint32 // SPLIT_COLLECTION2: remainder selecting which objects move

	HintType uint32 // COLL_HINT: hint kind, unknown values ignored

	AllocHintExpectedSize      uint64 // SETALLOCHINT
	AllocHintExpectedWriteSize uint64
}
