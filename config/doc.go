// Package config loads the gateway configuration from a YAML file and the
// environment. It covers the server, logging, the replica list or the host
// replicas are derived from, probe and request timing, the selection strategy
// and the fallback page.
package config
