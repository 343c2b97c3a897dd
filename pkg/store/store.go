package store

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cuemby/objstore/pkg/commit"
	"github.com/cuemby/objstore/pkg/events"
	"github.com/cuemby/objstore/pkg/frag"
	"github.com/cuemby/objstore/pkg/fsid"
	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/log"
	"github.com/cuemby/objstore/pkg/ostore"
	"github.com/cuemby/objstore/pkg/txn"
	"github.com/cuemby/objstore/pkg/wal"
)

// Config carries everything Mkfs and Mount need: the on-disk root plus
// the recognized tuning options.
type Config struct {
	Root string
	ostore.Config
}

// superblockKey is a reserved row under PrefixColl, distinguishable
// from every real collection id because it carries a NUL byte no cid
// is ever constructed with (OP_MKCOLL rejects a cid containing NUL).
var superblockKey = []byte{0x00, 's', 'u', 'p', 'e', 'r', 'b', 'l', 'o', 'c', 'k'}

const superblockVersion = 1

// Mkfs formats a fresh store at cfg.Root: opens (creating) the fsid
// file, locks it, provisions fragments/, opens the kv backend, and
// persists a reserved superblock record. Mkfs does not leave the store
// mounted; call Mount afterward.
func Mkfs(cfg Config) error {
	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return ostore.Wrap(ostore.CodeIo, "store.Mkfs", "create root directory", err)
	}

	fp, err := fsid.Open(cfg.Root, true, nil)
	if err != nil {
		return err
	}
	defer fp.Close()

	if _, err := frag.NewAllocator(filepath.Join(cfg.Root, "fragments"), bucketSize(cfg)); err != nil {
		return err
	}

	kvEngine, err := kv.Open(cfg.KVBackend, filepath.Join(cfg.Root, "db"))
	if err != nil {
		return err
	}
	defer kvEngine.Close()

	batch := kvEngine.NewBatch()
	batch.Set(kv.PrefixColl, superblockKey, []byte{superblockVersion})
	if err := kvEngine.Commit(batch); err != nil {
		return ostore.Wrap(ostore.CodeIo, "store.Mkfs", "persist superblock", err)
	}

	log.WithComponent("store").Info().Str("root", cfg.Root).Str("fsid", fp.FSID().String()).Msg("formatted store")
	return nil
}

// Store is a mounted objstore instance: the fsid lock, the fragment
// allocator, the kv engine, the WAL, the transaction engine, and the
// commit pipeline, all opened and running.
type Store struct {
	cfg Config

	path   *fsid.Path
	frags  *frag.Allocator
	kv     kv.Engine
	walLog *wal.Log
	engine *txn.Engine
	pipe   *commit.Pipeline
	events *events.Broker
}

func bucketSize(cfg Config) uint64 {
	if cfg.MaxBucketSize == 0 {
		return ostore.DefaultConfig().MaxBucketSize
	}
	return cfg.MaxBucketSize
}

// Mount opens an already-formatted store at cfg.Root: opens the fsid
// lock (failing with ostore.CodeInUse if another instance holds it),
// opens fragments/ and the kv backend, replays any pending WAL entries
// left from before an unclean shutdown, then starts the commit
// pipeline's single finisher goroutine.
func Mount(cfg Config) (*Store, error) {
	fp, err := fsid.Open(cfg.Root, false, nil)
	if err != nil {
		return nil, err
	}

	frags, err := frag.Recover(filepath.Join(cfg.Root, "fragments"), bucketSize(cfg))
	if err != nil {
		fp.Close()
		return nil, err
	}

	kvEngine, err := kv.Open(cfg.KVBackend, filepath.Join(cfg.Root, "db"))
	if err != nil {
		fp.Close()
		return nil, err
	}

	if _, err := kvEngine.Get(kv.PrefixColl, superblockKey); err != nil {
		kvEngine.Close()
		fp.Close()
		return nil, ostore.New(ostore.CodeCorrupt, "store.Mount", "missing superblock, store was never formatted")
	}

	walLog, err := wal.Open(kvEngine, frags)
	if err != nil {
		kvEngine.Close()
		fp.Close()
		return nil, err
	}

	engine := txn.NewEngine(kvEngine, frags, walLog)

	if applied, err := wal.Replay(kvEngine, walLog, engine); err != nil {
		kvEngine.Close()
		fp.Close()
		return nil, ostore.Wrap(ostore.CodeCorrupt, "store.Mount", "wal replay failed", err)
	} else if applied > 0 {
		log.WithComponent("store").Info().Int("applied", applied).Msg("replayed pending wal entries")
	}

	broker := events.NewBroker()
	broker.Start()

	engine.SetBroker(broker)
	pipe := commit.NewPipeline(kvEngine, frags, walLog)
	pipe.SetBroker(broker)
	pipe.SetEngine(engine)
	pipe.Start()

	s := &Store{cfg: cfg, path: fp, frags: frags, kv: kvEngine, walLog: walLog, engine: engine, pipe: pipe, events: broker}
	log.WithComponent("store").Info().Str("root", cfg.Root).Str("fsid", fp.FSID().String()).Msg("mounted store")
	broker.Publish(&events.Event{Type: events.EventStoreMounted, Message: cfg.Root})
	return s, nil
}

// Umount drains every installed sequencer, stops the commit pipeline,
// closes the kv engine and fragment allocator, and releases the fsid
// lock, in the reverse order of Mount.
func (s *Store) Umount() error {
	s.engine.Sequencers().FlushAll()
	s.pipe.Stop()
	s.events.Publish(&events.Event{Type: events.EventStoreUnmounted, Message: s.cfg.Root})
	s.events.Stop()

	var firstErr error
	if err := s.kv.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.frags.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.path.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	log.WithComponent("store").Info().Str("root", s.cfg.Root).Msg("unmounted store")
	return firstErr
}

// FSID returns the mounted store's instance identifier.
func (s *Store) FSID() uuid.UUID {
	return s.path.FSID()
}

// Subscribe returns a channel of lifecycle and diagnostic events
// (mount/unmount, collection churn, WAL replay progress, transaction
// aborts) for a CLI "watch" command or a test to observe, without
// touching the hot commit path.
func (s *Store) Subscribe() events.Subscriber {
	return s.events.Subscribe()
}

// Unsubscribe releases a subscription created by Subscribe.
func (s *Store) Unsubscribe(sub events.Subscriber) {
	s.events.Unsubscribe(sub)
}

// Submit decodes and applies a transaction stream on behalf of handle,
// blocking until it is durably committed (or the transaction aborted).
// Dispatch happens synchronously here, but the durability work itself
// — fsync, kv batch commit, WAL apply triggering — runs on the commit
// pipeline's single goroutine via Submit, so it can never interleave
// with a concurrent WAL-apply pass touching the same onode. This call
// blocks on the sequencer ticket completing before returning.
func (s *Store) Submit(handle string, stream []byte) error {
	ctx, err := s.engine.Submit(handle, stream)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	ctx.Ticket.OnCommit(func() { close(done) })
	s.pipe.Submit(ctx)
	<-done
	return ctx.CommitErr
}

// Read serves a non-transactional read of an object's byte range.
func (s *Store) Read(cid string, o ostore.Oid, offset, length uint64) ([]byte, error) {
	return s.engine.Read(cid, o, offset, length)
}

// StatObject reports an object's current size and attributes.
func (s *Store) StatObject(cid string, o ostore.Oid) (size uint64, attrs map[string][]byte, err error) {
	return s.engine.Stat(cid, o)
}
