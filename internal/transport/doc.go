// Package transport is the network layer shared by health probes and
// logical requests. It carries credentials through a cookie jar, marks
// requests as cross-origin when an origin is configured, and turns net/http
// failures into fault kinds so nothing upstream inspects error text.
package transport
