package ostore

import "fmt"

const (
	// MaxObjectNameLength bounds the "name" field of an Oid, mirroring
	// NewStore::get_max_object_name_length.
	MaxObjectNameLength = 4096

	// MaxAttrNameLength bounds attribute names, mirroring
	// NewStore::get_max_attr_name_length. The limit is arbitrary — there
	// is no structural reason an attribute name can't be longer — but
	// it is enforced consistently.
	MaxAttrNameLength = 256
)

// SnapID distinguishes the three snap-field encodings an Oid can carry.
type SnapID uint64

const (
	// SnapHead is the "live" / head version of an object.
	SnapHead SnapID = ^SnapID(0)
	// SnapDir marks the snapshot-directory pseudo-object.
	SnapDir SnapID = ^SnapID(0) - 1
)

// NoGeneration marks an Oid that carries no explicit generation field.
const NoGeneration uint64 = ^uint64(0)

// Oid is the object identifier tuple: (shard, hash, pool, namespace,
// key, name, snap, generation). Ordering is lexicographic over the
// canonical encoding produced by pkg/oid.
type Oid struct {
	Shard      int32
	Hash       uint32
	Pool       int64
	Namespace  string
	Key        string
	Name       string
	Snap       SnapID
	Generation uint64 // NoGeneration when unset
}

func (o Oid) String() string {
	return fmt.Sprintf("Oid{shard=%d hash=%08x pool=%d ns=%q key=%q name=%q snap=%d gen=%d}",
		o.Shard, o.Hash, o.Pool, o.Namespace, o.Key, o.Name, o.Snap, o.Generation)
}

// HasGeneration reports whether the Oid carries an explicit generation.
func (o Oid) HasGeneration() bool {
	return o.Generation != NoGeneration
}

// Fid identifies one fragment file: (fset, fno). fset names a bucket
// directory under fragments/, fno names a regular file within it.
type Fid struct {
	Fset uint64
	Fno  uint64
}

func (f Fid) String() string {
	return fmt.Sprintf("%d.%d", f.Fset, f.Fno)
}

// Less reports whether f sorts before other under the monotonic
// allocation order (fset major, fno minor).
func (f Fid) Less(other Fid) bool {
	if f.Fset != other.Fset {
		return f.Fset < other.Fset
	}
	return f.Fno < other.Fno
}

// IsZero reports whether f is the zero Fid (never a valid allocated id,
// since allocation starts fno at 1).
func (f Fid) IsZero() bool {
	return f.Fset == 0 && f.Fno == 0
}

// Fragment is one entry in an onode's data map: a contiguous logical
// byte range backed by one fragment file.
type Fragment struct {
	Offset uint64
	Length uint64
	Fid    Fid
}

// End returns the exclusive end offset of the fragment's logical range.
func (f Fragment) End() uint64 {
	return f.Offset + f.Length
}

// StoreStats reports approximate store-wide statistics, the Go
// equivalent of NewStore::statfs.
type StoreStats struct {
	Collections   int
	Onodes        int
	Fragments     int
	FragmentBytes uint64
	WALPending    int
}

// Config carries the store's recognized configuration options.
type Config struct {
	// MaxBucketSize is the number of fragments per fset directory
	// before rotation.
	MaxBucketSize uint64

	// KVBackend names the kv engine implementation to open, passed to
	// the kv factory (pkg/kv.Open).
	KVBackend string

	// FailEIO carries the fail_eio option. No code path reads it: Stat
	// reports no error for a failed filesystem call whatever its value.
	FailEIO bool
}

// DefaultConfig returns the engine's default configuration.
func DefaultConfig() Config {
	return Config{
		MaxBucketSize: 512,
		KVBackend:     "bbolt",
		FailEIO:       false,
	}
}
