// Package timeout bounds operations that may hang. The guard stops waiting
// after a fixed duration; it does not abort the operation itself.
package timeout
