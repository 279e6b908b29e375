// Package selector finds a replica that currently answers its health check.
//
// Discovery walks the replica set in the order chosen by a strategy, probes
// each candidate once and stops at the first healthy one. The result is
// cached as the selection state, which the request orchestrator clears when
// the selected replica fails a request.
//
// State is guarded by a mutex, so a Selector may be shared between
// goroutines. Concurrent requests can still overwrite each other's selection;
// callers that need isolation should use one Selector per request stream.
package selector
