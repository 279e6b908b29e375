// Package client sends logical requests to whichever replica is currently
// healthy, moving on to the next one when a replica fails mid-request.
//
// A logical request is tried at most once per replica. Discovery failures,
// timeouts and transport errors are retried after a fixed backoff; a 5xx
// answer evicts the replica and is retried straight away. Once every attempt
// is used the caller gets a *fault.ExhaustedError.
package client
