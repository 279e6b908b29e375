package replica

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

var ErrEmptySet = errors.New("replica set must contain at least one replica")

// Replica is one backend endpoint. It is immutable once the set is built.
type Replica struct {
	Index    int
	Endpoint *url.URL
	Label    string
}

// Entry is the configured form of a replica.
type Entry struct {
	URL   string
	Label string
}

// Set is the ordered list of replicas. Index 0 is tried first.
type Set []Replica

func (r Replica) String() string {
	return fmt.Sprintf("%s (%s)", r.Label, r.Endpoint)
}

// Resolve appends path, which may carry a query string, to the replica's
// endpoint.
func (r Replica) Resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, fmt.Errorf("request path %q must be relative to the replica", path)
	}

	u := *r.Endpoint
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	u.Fragment = ""
	return &u, nil
}

// NewSet builds a set from configured entries, keeping their order. Entries
// without a label are named after their position.
func NewSet(entries ...Entry) (Set, error) {
	if len(entries) == 0 {
		return nil, ErrEmptySet
	}

	set := make(Set, 0, len(entries))
	for i, e := range entries {
		u, err := parseEndpoint(e.URL)
		if err != nil {
			return nil, fmt.Errorf("replica %d: %w", i, err)
		}

		label := e.Label
		if label == "" {
			label = defaultLabel(i)
		}
		set = append(set, Replica{Index: i, Endpoint: u, Label: label})
	}

	return set, nil
}

// FromHost derives one replica per port on the same host, labelled
// http1..httpN.
func FromHost(scheme, host string, ports []int) (Set, error) {
	if host == "" {
		return nil, errors.New("host cannot be empty")
	}
	if scheme == "" {
		scheme = "http"
	}

	entries := make([]Entry, 0, len(ports))
	for i, port := range ports {
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("replica %d: invalid port %d", i, port)
		}
		entries = append(entries, Entry{
			URL:   scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port)),
			Label: defaultLabel(i),
		})
	}

	return NewSet(entries...)
}

func (s Set) Len() int {
	return len(s)
}

// Endpoints returns the endpoint strings in order.
func (s Set) Endpoints() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = r.Endpoint.String()
	}
	return out
}

func parseEndpoint(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("endpoint URL cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("endpoint %q must have a host", raw)
	}

	return u, nil
}

func defaultLabel(i int) string {
	return "http" + strconv.Itoa(i+1)
}
