// Package strategy decides the order in which the selector probes replicas:
//
//   - Ordered: always index 0..N-1, the cached selection is advisory only
//   - Sticky: the last selected replica first, then the rest in order
//
// Neither strategy ranks replicas by load or latency; the replica set order
// is the only priority.
package strategy
