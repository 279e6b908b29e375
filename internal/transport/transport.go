package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"syscall"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/angeloszaimis/replica-failover/internal/fault"
)

// maxDrain bounds how much of an unread body is consumed before closing so
// the connection can be reused.
const maxDrain = 64 << 10

//go:generate mockgen -source=transport.go -destination=../test/mocks/doer_mock.go -package=mocks

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transport sends requests through a Doer and classifies failures.
type Transport struct {
	doer   Doer
	origin string
}

// NewHTTPClient returns a client without a cookie jar. Cookies only travel
// in the Cookie header of the request being forwarded, so a client shared by
// many callers never mixes their sessions. timeout bounds the whole exchange
// independently of the failover guards.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewSessionClient returns a client with a cookie jar, so cookies a replica
// sets are sent back to every replica on the same host. It suits a single
// user's client and must not be shared between callers.
func NewSessionClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	client := NewHTTPClient(timeout)
	client.Jar = jar

	return client, nil
}

// New wraps doer. When origin is non-empty every request carries it in the
// Origin header.
func New(doer Doer, origin string) *Transport {
	return &Transport{
		doer:   doer,
		origin: origin,
	}
}

// Send issues req. Any error returned is a *fault.Error.
func (t *Transport) Send(req *http.Request) (*http.Response, error) {
	if t.origin != "" && req.Header.Get("Origin") == "" {
		req.Header.Set("Origin", t.origin)
	}

	resp, err := t.doer.Do(req)
	if err != nil {
		return nil, Classify(err)
	}

	return resp, nil
}

// Classify maps an error from the HTTP stack to a fault kind.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return fault.Canceled(err)
	case errors.Is(err, context.DeadlineExceeded):
		return &fault.Error{Kind: fault.KindTimeout, Op: "send", Err: err}
	}

	// *url.Error is itself a net.Error, so judge what it wraps.
	cause := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		cause = urlErr.Err
	}

	var netErr net.Error
	if errors.As(cause, &netErr) {
		if netErr.Timeout() {
			return &fault.Error{Kind: fault.KindTimeout, Op: "send", Err: err}
		}
		return fault.Network("send", err)
	}

	var dnsErr *net.DNSError
	var errno syscall.Errno
	switch {
	case errors.As(cause, &dnsErr), errors.As(cause, &errno),
		errors.Is(cause, io.EOF), errors.Is(cause, io.ErrUnexpectedEOF):
		return fault.Network("send", err)
	}

	// Setup failures such as an unsupported scheme would fail the same way
	// against every replica.
	if urlErr != nil {
		return fault.Internal(urlErr.Op, cause)
	}

	return fault.Internal("send", err)
}

// Drain discards what is left of a response body and closes it.
func Drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	_ = resp.Body.Close()
}

// IsSuccess reports a 2xx status.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}
