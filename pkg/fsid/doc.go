/*
Package fsid manages the store's root directory and its fsid file: the
instance identifier that also doubles as the store's exclusive mount
lock.

Path opens $path as a directory handle, opens (creating if necessary)
$path/fsid, and takes an advisory exclusive flock on it for the mount's
lifetime via golang.org/x/sys/unix.Flock, a non-blocking LOCK_EX|LOCK_NB
raw flock(2) syscall rather than a higher-level locking library. A
second mount attempt observes EWOULDBLOCK and fails with
ostore.CodeInUse. The fsid itself is a github.com/google/uuid value,
generated on first mkfs and read back on every subsequent mount; Open
compares it only against a caller-supplied value, and store.Mount
supplies none.
*/
package fsid
