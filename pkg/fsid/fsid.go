package fsid

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/cuemby/objstore/pkg/ostore"
)

// Path owns the open root directory and the locked fsid file for the
// lifetime of one mount.
type Path struct {
	mu     sync.Mutex
	root   string
	fsid   uuid.UUID
	file   *os.File
	locked bool
}

// Open opens root (which must already exist), opens or creates
// root/fsid, takes an exclusive non-blocking lock on it, and
// reads-or-generates-then-writes the fsid. If want is non-nil, is not
// the zero UUID, and disagrees with the on-disk value, Open fails with
// ostore.CodeMismatch.
func Open(root string, create bool, want *uuid.UUID) (*Path, error) {
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		if err != nil {
			return nil, ostore.Wrap(ostore.CodeIo, "fsid.Open", "stat root", err)
		}
		return nil, ostore.New(ostore.CodeInvalidArgument, "fsid.Open", "root is not a directory")
	}

	fsidPath := filepath.Join(root, "fsid")
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(fsidPath, flags, 0600)
	if err != nil {
		return nil, ostore.Wrap(ostore.CodeIo, "fsid.Open", "open fsid file", err)
	}

	if err := lockExclusive(f); err != nil {
		f.Close()
		return nil, ostore.Wrap(ostore.CodeInUse, "fsid.Open", "another instance holds this store", err)
	}

	p := &Path{root: root, file: f, locked: true}

	id, err := readOrGenerate(f, create)
	if err != nil {
		p.Close()
		return nil, err
	}
	if want != nil && *want != uuid.Nil && *want != id {
		p.Close()
		return nil, ostore.New(ostore.CodeMismatch, "fsid.Open", "injected fsid disagrees with on-disk value")
	}
	p.fsid = id

	return p, nil
}

// Probe performs a non-destructive check for whether root's fsid file
// is currently locked by another instance, without disturbing it. It
// mirrors NewStore::test_mount_in_use.
func Probe(root string) (inUse bool, err error) {
	fsidPath := filepath.Join(root, "fsid")
	f, err := os.OpenFile(fsidPath, os.O_RDWR, 0600)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, ostore.Wrap(ostore.CodeIo, "fsid.Probe", "open fsid file", err)
	}
	defer f.Close()

	if err := lockExclusive(f); err != nil {
		return true, nil
	}
	// We took the lock ourselves; release it immediately so we leave
	// no trace of having probed.
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return false, nil
}

// FSID returns the store's instance identifier.
func (p *Path) FSID() uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fsid
}

// Root returns the store's root directory path.
func (p *Path) Root() string {
	return p.root
}

// Close releases the fsid lock and closes the file handle. Close is
// idempotent.
func (p *Path) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	if p.locked {
		_ = unix.Flock(int(p.file.Fd()), unix.LOCK_UN)
		p.locked = false
	}
	err := p.file.Close()
	p.file = nil
	if err != nil {
		return ostore.Wrap(ostore.CodeIo, "fsid.Close", "close fsid file", err)
	}
	return nil
}

func lockExclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func readOrGenerate(f *os.File, create bool) (uuid.UUID, error) {
	data, err := readAll(f)
	if err != nil {
		return uuid.Nil, ostore.Wrap(ostore.CodeIo, "fsid.readOrGenerate", "read fsid", err)
	}

	text := strings.TrimSpace(string(data))
	if text != "" {
		id, err := uuid.Parse(text)
		if err != nil {
			return uuid.Nil, ostore.Wrap(ostore.CodeCorrupt, "fsid.readOrGenerate", "parse fsid", err)
		}
		return id, nil
	}

	if !create {
		return uuid.Nil, ostore.New(ostore.CodeNotFound, "fsid.readOrGenerate", "fsid file is empty")
	}

	id := uuid.New()
	if err := writeFsid(f, id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func writeFsid(f *os.File, id uuid.UUID) error {
	if _, err := f.Seek(0, 0); err != nil {
		return ostore.Wrap(ostore.CodeIo, "fsid.writeFsid", "seek", err)
	}
	if err := f.Truncate(0); err != nil {
		return ostore.Wrap(ostore.CodeIo, "fsid.writeFsid", "truncate", err)
	}
	if _, err := f.WriteString(id.String() + "\n"); err != nil {
		return ostore.Wrap(ostore.CodeIo, "fsid.writeFsid", "write", err)
	}
	return f.Sync()
}

func readAll(f *os.File) ([]byte, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, fi.Size())
	if _, err := f.Read(buf); err != nil && fi.Size() > 0 {
		return nil, err
	}
	return buf, nil
}
