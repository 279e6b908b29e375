// Package httpserver wraps http.Server with address validation, configurable
// timeouts and graceful shutdown.
package httpserver
