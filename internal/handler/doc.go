// Package handler implements the gateway's HTTP handler. It forwards each
// incoming request through the failover client and decides what the caller
// sees once every replica has been tried.
package handler
