// Package healthcheck probes replicas through their HTTP health endpoint.
// A probe succeeds only when the replica answers with a 2xx status before the
// probe timeout fires.
package healthcheck
