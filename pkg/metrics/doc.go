/*
Package metrics provides Prometheus metrics collection and exposition for the
object store engine.

Metrics are registered at package init against the default Prometheus
registry and exposed via Handler() for scraping. A Collector samples
cheap-to-poll aggregates (fragment counts, onode cache sizes, WAL backlog)
on a fixed interval rather than on every mutation; hot-path counters
(transactions, commit latency, fsync latency) are updated inline by the
commit pipeline instead.

# Categories

  - Onode cache: live onode counts per collection, cache hit/load/coalesce
    outcomes.
  - Fragments: total referenced fragment files, bucket directory count,
    allocation rate.
  - WAL: pending (committed-but-unapplied) entry count, apply latency.
  - Commit pipeline: transaction outcomes, commit latency, fsync latency,
    per-sequencer queue depth.
*/
package metrics
