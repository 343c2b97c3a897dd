/*
Package store composes pkg/fsid, pkg/frag, pkg/kv, pkg/wal, pkg/txn, and
pkg/commit into a mkfs/mount/umount lifecycle: Mkfs provisions a fresh
data root, Mount opens it and starts the commit pipeline's background
goroutine (which also drives WAL apply), Umount drains every sequencer and closes storage
in reverse order.

It follows a composition-root shape: a Config struct, a constructor
that wires sub-components in dependency order, and lifecycle methods
that start and stop background workers around an otherwise passive
handle.
*/
package store
