package port

import "net/url"

// TunnelTransport opens and tears down the network tunnel behind a forwarded port
type TunnelTransport interface {
	// Establish opens a tunnel from the local port to the remote port on host
	Establish(remote string, host url.URL, local string) error

	// Release tears down the tunnel opened for remote
	Release(remote string) error

	// Close releases every tunnel and the transport's own resources
	Close() error
}
