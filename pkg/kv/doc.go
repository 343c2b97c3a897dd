/*
Package kv adapts an embedded key/value engine to the three prefixed key
spaces the object store needs: collections ("C"), objects ("O"), and
the write-ahead log ("L"). It exposes a small Engine interface — Get,
Scan by prefix, and atomic Batch commit — modeled as a pluggable
interface so swapping embedded stores is possible, giving the store's
kv_backend configuration option a real dispatch point (pkg/kv.Open)
even though only one backend ships today.

The shipped backend, in bolt.go, is go.etcd.io/bbolt, with each kv
prefix mapped onto its own top-level bbolt bucket and prefix scans
implemented with a Cursor walk.
*/
package kv
