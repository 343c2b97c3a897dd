/*
Package health provides liveness probes for a mounted store.

A Checker performs one kind of probe (the fsid file is still in place, the kv
engine answers a trivial read, the fragments root is still a directory we
can stat) and a Runner drives a Checker on an interval, tracking
consecutive failures the way a retry-budgeted liveness probe would,
independent of the store's own commit path. These are diagnostic only:
no correctness invariant depends on a Checker running, and a failing
Checker never aborts an in-flight transaction — it is surfaced through
the CLI's healthz command and serve's /healthz endpoint.
*/
package health
