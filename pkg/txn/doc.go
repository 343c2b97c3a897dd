/*
Package txn implements the transaction engine: it decodes an opaque
transaction stream into a sequence of opcodes, dispatches each to a
per-op handler, and stages every mutation into an in-memory Context —
no mutation reaches disk until the commit pipeline (pkg/commit) runs.

Opcode dispatch is a tagged OpCode enum (iota-based) switched over in
one loop. The decoder reads a length-prefixed binary stream with
encoding/binary, big-endian, matching the fixed-width byte-oriented
encoding used for every on-disk key and wire value in this store. This
wire format stays on the standard library rather than
google.golang.org/protobuf/grpc: there's no RPC transport in front of
this engine to justify one — the caller that drives this stream (a
filesystem adapter, an RPC handler) is a collaborator outside this
module, not part of it. See DESIGN.md.

Error classification during dispatch: NotFound on a missing object is
tolerated for every op except CLONE/CLONERANGE2; NoData
(missing attribute) is tolerated; NoSpace and a stale NotEmpty on
RMCOLL are fatal and abort the whole transaction without a partial
commit.
*/
package txn
