/*
Package oid implements a canonical, prefix-free oid encoding: a
byte-lexicographic key laying out the tuple's fields in the order (shard,
hash, namespace, pool, key, name, snap, generation), suitable for use
directly as a kv row key under the "O" prefix.

Encode uses fixed-width hex for shard and hash to keep their numeric
order aligned with byte order, escapes variable-length fields so an
embedded separator byte can't be mistaken for a field boundary, and
terminates the whole key with 0xff so no encoded key is ever a
byte-wise prefix of another.
*/
package oid
