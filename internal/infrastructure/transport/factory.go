package transport

import (
	"fmt"

	"github.com/haxorport/haxorport-ports/internal/domain/model"
	"github.com/haxorport/haxorport-ports/internal/domain/port"
)

// CreateTunnelTransport creates the transport for the configured connection mode.
// The returned client is nil unless the mode talks to a control server.
// ConnectionModeNone returns a nil transport: forwards are recorded without opening tunnels.
func CreateTunnelTransport(config *model.Config, logger port.Logger) (port.TunnelTransport, *Client, error) {
	switch config.ConnectionMode {
	case model.ConnectionModeDirectTCP, "":
		return NewDirectTransport(logger), nil, nil
	case model.ConnectionModeWebSocket:
		if config.ServerAddress == "" || config.ControlPort == 0 {
			return nil, nil, fmt.Errorf("server address and control port must be set")
		}
		client, err := NewClient(config, logger)
		if err != nil {
			return nil, nil, err
		}
		return NewWebSocketTransport(client, logger), client, nil
	case model.ConnectionModeNone:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("connection mode not supported: %s", config.ConnectionMode)
	}
}
