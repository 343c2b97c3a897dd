package store

import "github.com/cuemby/objstore/pkg/ostore"

// FragmentCount implements metrics.StatsSource.
func (s *Store) FragmentCount() int { return s.frags.FragmentCount() }

// FragmentBucketCount implements metrics.StatsSource.
func (s *Store) FragmentBucketCount() int { return s.frags.FragmentBucketCount() }

// CollectionCount implements metrics.StatsSource.
func (s *Store) CollectionCount() int { return s.engine.CollectionCount() }

// WALPendingCount implements metrics.StatsSource.
func (s *Store) WALPendingCount() int {
	n, err := s.walLog.Pending(s.kv)
	if err != nil {
		return 0
	}
	return n
}

// OnodeCacheSizes implements metrics.StatsSource.
func (s *Store) OnodeCacheSizes() map[string]int {
	return s.engine.OnodeCacheSizes()
}

// Stat reports approximate store-wide statistics. Onode counts are
// derived from resident onode caches only — an approximation, not an
// authoritative kv scan.
func (s *Store) Stat() (ostore.StoreStats, error) {
	onodes := 0
	for _, n := range s.engine.OnodeCacheSizes() {
		onodes += n
	}
	return ostore.StoreStats{
		Collections:   s.engine.CollectionCount(),
		Onodes:        onodes,
		Fragments:     s.frags.FragmentCount(),
		FragmentBytes: s.frags.FragmentBytes(),
		WALPending:    s.WALPendingCount(),
	}, nil
}
