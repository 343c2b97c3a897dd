/*
Package events provides an in-memory event broker for store lifecycle
notifications.

The commit pipeline and lifecycle package publish non-critical,
best-effort events (mount/unmount, collection create/remove, WAL replay
progress, transaction aborts) to a buffered broker that fans them out to
any number of subscribers. Delivery is non-blocking: a slow or absent
subscriber never stalls a commit. This is strictly a side channel for
observability and tests — no correctness property depends on an event
being delivered.
*/
package events
