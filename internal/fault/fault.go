package fault

import (
	"errors"
	"fmt"
	"time"
)

type Kind int

const (
	KindInternal  Kind = iota // Anything the failover loop must not retry
	KindTimeout               // Timeout guard fired
	KindNetwork               // Transport-level failure
	KindNoReplica             // Discovery found no healthy replica
	KindStatus                // Replica answered a probe with a failing status
	KindCanceled              // Caller gave up
)

var (
	ErrTimeout            = errors.New("timeout")
	ErrNetwork            = errors.New("network failure")
	ErrNoReplicaAvailable = errors.New("no replica available")
	ErrUnhealthy          = errors.New("replica unhealthy")
	ErrCanceled           = errors.New("canceled")

	// ErrExhausted is matched by every error returned after all replicas
	// were tried.
	ErrExhausted = errors.New("all replicas exhausted")

	// ErrConnectivity is reported when replicas were exhausted without a
	// retryable error being recorded, i.e. every attempt ended in a 5xx.
	ErrConnectivity = errors.New("failed to connect to any replica")
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindNoReplica:
		return "no-replica"
	case KindStatus:
		return "status"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether an error of this kind should move the request on
// to the next replica.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindNetwork, KindNoReplica, KindStatus:
		return true
	default:
		return false
	}
}

// Error is a classified failure. Err holds the kind's sentinel or the
// underlying cause.
type Error struct {
	Kind    Kind
	Op      string
	Replica string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Replica != "" {
		msg += " (" + e.Replica + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind, so errors.Is(err, ErrTimeout)
// holds for every timeout regardless of its cause.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(k Kind) error {
	switch k {
	case KindTimeout:
		return ErrTimeout
	case KindNetwork:
		return ErrNetwork
	case KindNoReplica:
		return ErrNoReplicaAvailable
	case KindStatus:
		return ErrUnhealthy
	case KindCanceled:
		return ErrCanceled
	default:
		return nil
	}
}

func Timeout(after time.Duration) *Error {
	return &Error{Kind: KindTimeout, Err: fmt.Errorf("no answer after %s", after)}
}

func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

func Canceled(err error) *Error {
	return &Error{Kind: KindCanceled, Err: err}
}

func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

func Status(replica string, code int) *Error {
	return &Error{Kind: KindStatus, Op: "probe", Replica: replica, Err: fmt.Errorf("unexpected status code %d", code)}
}

func NoReplica(probed int) *Error {
	return &Error{Kind: KindNoReplica, Op: "discover", Err: fmt.Errorf("none of %d replicas answered the health check", probed)}
}

// KindOf returns the kind of the first *Error in err's chain. Unclassified
// errors are KindInternal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

func IsRetryable(err error) bool {
	return err != nil && KindOf(err).Retryable()
}

// WithReplica returns a copy of a classified error tagged with the replica
// it happened against. Unclassified errors are returned unchanged.
func WithReplica(err error, replica string) error {
	var fe *Error
	if !errors.As(err, &fe) {
		return err
	}
	tagged := *fe
	tagged.Replica = replica
	return &tagged
}
