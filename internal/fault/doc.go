// Package fault defines the closed set of error kinds produced by the network
// layer and the failover loop. Retry decisions switch on Kind, never on error
// text.
package fault
