// Package replica describes the fixed, ordered set of backend replicas the
// client fails over across. Order defines fallback priority and a replica's
// identity is its position in the set.
package replica
