package model

import (
	"net"
	"net/url"
)

// LocalhostName is the host every resolved address is scoped to
const LocalhostName = "localhost"

// DefaultHost returns the network location used when a forward does not name one
func DefaultHost() url.URL {
	return url.URL{Scheme: "http", Host: LocalhostName}
}

// TunnelKind tells which mapping of the model a tunnel belongs to
type TunnelKind string

const (
	// TunnelKindForwarded is a tunnel the local user created
	TunnelKindForwarded TunnelKind = "forwarded"
	// TunnelKindPublished is a tunnel the remote side already exposes
	TunnelKindPublished TunnelKind = "published"
	// TunnelKindCandidate is a detected remote listener that is not forwarded yet
	TunnelKindCandidate TunnelKind = "candidate"
)

// Tunnel maps a port on the remote host to a local port
type Tunnel struct {
	// Remote identifies the port on the remote host
	Remote string
	// Host is the network location (scheme and authority) of the remote endpoint
	Host url.URL
	// Local is the local port the remote port is mapped to
	Local string
	// Name is the user-facing label
	Name string
	// Description is a free-text annotation
	Description string
	// Closeable is true for entries the user may tear down
	Closeable bool
}

// ForwardOptions holds the optional fields of a forward request.
//
// Host defaults to DefaultHost() when nil and Local defaults to the remote
// identifier when empty.
type ForwardOptions struct {
	Host        *url.URL
	Local       string
	Name        string
	Description string
}

// NewForwardedTunnel builds a closeable tunnel for remote with defaults filled in
func NewForwardedTunnel(remote string, opts ForwardOptions) Tunnel {
	host := DefaultHost()
	if opts.Host != nil {
		host = *opts.Host
	}

	local := opts.Local
	if local == "" {
		local = remote
	}

	return Tunnel{
		Remote:      remote,
		Host:        host,
		Local:       local,
		Name:        opts.Name,
		Description: opts.Description,
		Closeable:   true,
	}
}

// Normalize fills in the defaults of a tunnel fed in by a transport.
// Entries that did not come from a user forward are never closeable.
func (t Tunnel) Normalize() Tunnel {
	if t.Host.Scheme == "" && t.Host.Host == "" {
		t.Host = DefaultHost()
	}
	if t.Local == "" {
		t.Local = t.Remote
	}
	t.Closeable = false
	return t
}

// Options returns the forward options that recreate this tunnel
func (t Tunnel) Options() ForwardOptions {
	host := t.Host
	return ForwardOptions{
		Host:        &host,
		Local:       t.Local,
		Name:        t.Name,
		Description: t.Description,
	}
}

// Label returns the name of the tunnel, or its remote identifier when unnamed
func (t Tunnel) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Remote
}

// Address is a locally reachable network address
type Address struct {
	Host string
	Port string
}

// LocalAddress returns the localhost-scoped address for a local port
func LocalAddress(local string) Address {
	return Address{Host: LocalhostName, Port: local}
}

// String returns the address in host:port form
func (a Address) String() string {
	return net.JoinHostPort(a.Host, a.Port)
}
