package store

import (
	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/oid"
	"github.com/cuemby/objstore/pkg/onode"
	"github.com/cuemby/objstore/pkg/ostore"
)

// CollectionList scans the kv store's object-key prefix for cid and
// returns every oid present, in ascending key order. This scans the
// authoritative kv rows rather than the in-memory onode cache, which
// is not authoritative for emptiness or listing.
func (s *Store) CollectionList(cid string) ([]ostore.Oid, error) {
	var oids []ostore.Oid
	prefix := []byte(cid + "\x00")
	err := s.kv.Scan(kv.PrefixObj, prefix, nil, func(k, v []byte) error {
		if len(k) < len(prefix) || string(k[:len(prefix)]) != string(prefix) {
			return nil
		}
		_, encoded, err := onode.ParseObjectKey(k)
		if err != nil {
			return err
		}
		o, err := oid.Decode(encoded)
		if err != nil {
			return err
		}
		oids = append(oids, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return oids, nil
}

// CollectionEmpty reports whether cid currently has no object rows, the
// Go equivalent of NewStore::collection_empty.
func (s *Store) CollectionEmpty(cid string) (bool, error) {
	empty := true
	prefix := []byte(cid + "\x00")
	err := s.kv.Scan(kv.PrefixObj, prefix, nil, func(k, v []byte) error {
		if len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix) {
			empty = false
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return empty, nil
}
