package frag

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/cuemby/objstore/pkg/ostore"
)

// Allocator hands out monotonically increasing fragment ids and the
// open, writable files behind them. All state is guarded by one mutex.
type Allocator struct {
	mu            sync.Mutex
	fragRoot      string
	maxBucketSize uint64

	curFset   uint64
	curFno    uint64
	bucketDir *os.File // cached handle to fragRoot/<curFset>
}

// NewAllocator creates a fresh allocator rooted at fragRoot (normally
// "<store root>/fragments") with no fragments issued yet. Used by
// Mkfs.
func NewAllocator(fragRoot string, maxBucketSize uint64) (*Allocator, error) {
	if maxBucketSize == 0 {
		maxBucketSize = 1
	}
	if err := os.MkdirAll(fragRoot, 0755); err != nil {
		return nil, ostore.Wrap(ostore.CodeIo, "frag.NewAllocator", "create fragments root", err)
	}
	return &Allocator{fragRoot: fragRoot, maxBucketSize: maxBucketSize}, nil
}

// Recover rebuilds an Allocator's cur_fid from the highest (fset, fno)
// found on disk under fragRoot, satisfying invariant 4 ("cur_fid is
// strictly greater than every fid ever issued") across a remount.
func Recover(fragRoot string, maxBucketSize uint64) (*Allocator, error) {
	a, err := NewAllocator(fragRoot, maxBucketSize)
	if err != nil {
		return nil, err
	}

	fset, err := highestNumericEntry(fragRoot)
	if err != nil {
		return nil, ostore.Wrap(ostore.CodeIo, "frag.Recover", "scan fragments root", err)
	}
	if fset == nil {
		return a, nil
	}
	a.curFset = *fset

	bucketPath := filepath.Join(fragRoot, strconv.FormatUint(a.curFset, 10))
	fno, err := highestNumericEntry(bucketPath)
	if err != nil {
		return nil, ostore.Wrap(ostore.CodeIo, "frag.Recover", "scan bucket directory", err)
	}
	if fno != nil {
		a.curFno = *fno
	}

	dir, err := os.Open(bucketPath)
	if err != nil {
		return nil, ostore.Wrap(ostore.CodeIo, "frag.Recover", "open current bucket", err)
	}
	a.bucketDir = dir

	return a, nil
}

func highestNumericEntry(dir string) (*uint64, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var values []uint64
	for _, e := range entries {
		n, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		values = append(values, n)
	}
	if len(values) == 0 {
		return nil, nil
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	max := values[len(values)-1]
	return &max, nil
}

// Allocate returns the next fid and an open, writable file descriptor
// for it, following the bucket rotation policy: increment fno within
// the current bucket until max_bucket_size is reached, then roll over
// to a fresh fset starting at fno 1.
func (a *Allocator) Allocate() (ostore.Fid, *os.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bucketDir == nil || a.curFno >= a.maxBucketSize {
		if err := a.rotateLocked(); err != nil {
			return ostore.Fid{}, nil, err
		}
	}

	a.curFno++
	fid := ostore.Fid{Fset: a.curFset, Fno: a.curFno}
	name := strconv.FormatUint(fid.Fno, 10)

	fd, err := unix.Openat(int(a.bucketDir.Fd()), name, unix.O_CREAT|unix.O_RDWR|unix.O_EXCL, 0644)
	if err != nil {
		return ostore.Fid{}, nil, ostore.Wrap(ostore.CodeIo, "frag.Allocate", "openat fragment file", err)
	}
	f := os.NewFile(uintptr(fd), a.Path(fid))
	return fid, f, nil
}

// rotateLocked advances to a fresh bucket directory. Caller must hold
// a.mu.
func (a *Allocator) rotateLocked() error {
	nextFset := a.curFset
	if a.bucketDir != nil {
		nextFset++
	}
	bucketPath := filepath.Join(a.fragRoot, strconv.FormatUint(nextFset, 10))
	if err := os.Mkdir(bucketPath, 0755); err != nil && !os.IsExist(err) {
		return ostore.Wrap(ostore.CodeIo, "frag.rotateLocked", "create bucket directory", err)
	}
	dir, err := os.Open(bucketPath)
	if err != nil {
		return ostore.Wrap(ostore.CodeIo, "frag.rotateLocked", "open bucket directory", err)
	}
	if a.bucketDir != nil {
		_ = a.bucketDir.Close()
	}
	a.bucketDir = dir
	a.curFset = nextFset
	a.curFno = 0
	return nil
}

// Open opens an existing fragment file with the given flags (e.g.
// os.O_RDWR for in-place overwrite application during WAL replay).
func (a *Allocator) Open(fid ostore.Fid, flag int) (*os.File, error) {
	f, err := os.OpenFile(a.Path(fid), flag, 0644)
	if err != nil {
		return nil, ostore.Wrap(ostore.CodeIo, "frag.Open", "open fragment file", err)
	}
	return f, nil
}

// Remove unlinks a fragment file. Callers invoke this only after the
// transaction that queued it in fids_to_remove has committed; deletion
// is always deferred to post-commit.
func (a *Allocator) Remove(fid ostore.Fid) error {
	if err := os.Remove(a.Path(fid)); err != nil && !os.IsNotExist(err) {
		return ostore.Wrap(ostore.CodeIo, "frag.Remove", "unlink fragment file", err)
	}
	return nil
}

// Path returns the filesystem path of a fragment file, independent of
// whether it is currently open.
func (a *Allocator) Path(fid ostore.Fid) string {
	return filepath.Join(a.fragRoot, strconv.FormatUint(fid.Fset, 10), strconv.FormatUint(fid.Fno, 10))
}

// FragmentBucketCount returns the number of fset bucket directories on
// disk, for metrics.StatsSource.
func (a *Allocator) FragmentBucketCount() int {
	entries, err := os.ReadDir(a.fragRoot)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			n++
		}
	}
	return n
}

// FragmentCount returns the total number of fragment files across every
// bucket directory, for metrics.StatsSource. This walks the fragments
// tree on every call; it is sampled on metrics.Collector's interval, not
// the hot path.
func (a *Allocator) FragmentCount() int {
	entries, err := os.ReadDir(a.fragRoot)
	if err != nil {
		return 0
	}
	total := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(a.fragRoot, e.Name()))
		if err != nil {
			continue
		}
		total += len(files)
	}
	return total
}

// FragmentBytes returns the approximate total size on disk of every
// fragment file, for ostore.StoreStats. Like FragmentCount, this walks
// the fragments tree and is meant for an occasional stat call, not the
// hot path.
func (a *Allocator) FragmentBytes() uint64 {
	entries, err := os.ReadDir(a.fragRoot)
	if err != nil {
		return 0
	}
	var total uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		bucketPath := filepath.Join(a.fragRoot, e.Name())
		files, err := os.ReadDir(bucketPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if info, err := f.Info(); err == nil {
				total += uint64(info.Size())
			}
		}
	}
	return total
}

// Close releases the cached bucket directory handle.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bucketDir == nil {
		return nil
	}
	err := a.bucketDir.Close()
	a.bucketDir = nil
	if err != nil {
		return ostore.Wrap(ostore.CodeIo, "frag.Close", "close bucket directory", err)
	}
	return nil
}
