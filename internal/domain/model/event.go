package model

import "fmt"

// EventType names a notification channel of the tunnel model
type EventType string

const (
	// EventPortForwarded fires when a new forwarded tunnel is created
	EventPortForwarded EventType = "port-forwarded"
	// EventPortNameChanged fires when a forwarded tunnel is renamed
	EventPortNameChanged EventType = "port-name-changed"
	// EventPortClosed fires when a forwarded tunnel is removed
	EventPortClosed EventType = "port-closed"
)

// TunnelError reports a failure of the tunnel transport for one remote port
type TunnelError struct {
	// Op is the transport operation that failed (establish, release)
	Op string
	// Remote is the remote identifier the operation was for
	Remote string
	// Err is the underlying cause
	Err error
}

// NewTunnelError creates a new TunnelError
func NewTunnelError(op, remote string, err error) *TunnelError {
	return &TunnelError{Op: op, Remote: remote, Err: err}
}

func (e *TunnelError) Error() string {
	return fmt.Sprintf("failed to %s tunnel for remote port %s: %v", e.Op, e.Remote, e.Err)
}

func (e *TunnelError) Unwrap() error {
	return e.Err
}
