package transport

import (
	"fmt"
	"net/url"
	"time"

	"github.com/haxorport/haxorport-ports/internal/domain/model"
	"github.com/haxorport/haxorport-ports/internal/domain/port"
)

// TunnelFeed receives the published and candidate ports reported by the server
type TunnelFeed interface {
	ReplacePublished(tunnels []model.Tunnel)
	ReplaceCandidates(tunnels []model.Tunnel)
}

// WebSocketTransport asks the control server to open and close tunnels
type WebSocketTransport struct {
	client  port.Client
	logger  port.Logger
	timeout time.Duration
}

// NewWebSocketTransport creates a transport on top of client
func NewWebSocketTransport(client port.Client, logger port.Logger) *WebSocketTransport {
	return &WebSocketTransport{
		client:  client,
		logger:  logger,
		timeout: requestTimeout,
	}
}

// Establish sends a forward request and waits for the server to confirm it
func (t *WebSocketTransport) Establish(remote string, host url.URL, local string) error {
	if !t.client.IsConnected() {
		if err := t.client.Connect(); err != nil {
			return model.NewTunnelError("establish", remote, err)
		}
	}

	msg, err := model.NewMessage(model.MessageTypeForward, model.ForwardPayload{
		Remote: remote,
		Host:   host.String(),
		Local:  local,
	})
	if err != nil {
		return model.NewTunnelError("establish", remote, err)
	}

	reply, err := t.client.Request(msg, t.timeout)
	if err != nil {
		return model.NewTunnelError("establish", remote, err)
	}

	var response model.ForwardResponsePayload
	if err := reply.ParsePayload(&response); err != nil {
		return model.NewTunnelError("establish", remote, fmt.Errorf("failed to parse forward response: %w", err))
	}
	if !response.Success {
		return model.NewTunnelError("establish", remote, fmt.Errorf("server refused forward: %s", response.Error))
	}

	t.logger.Debug("Server confirmed forward of remote port %s", remote)
	return nil
}

// Release tells the server to tear the tunnel for remote down
func (t *WebSocketTransport) Release(remote string) error {
	msg, err := model.NewMessage(model.MessageTypeUnforward, model.UnforwardPayload{Remote: remote})
	if err != nil {
		return model.NewTunnelError("release", remote, err)
	}
	if err := t.client.Send(msg); err != nil {
		return model.NewTunnelError("release", remote, err)
	}
	return nil
}

// Close closes the control connection
func (t *WebSocketTransport) Close() error {
	t.client.Close()
	return nil
}

// BindFeed routes published and candidate updates from the server into feed
func (t *WebSocketTransport) BindFeed(feed TunnelFeed) {
	t.client.RegisterHandler(model.MessageTypePublished, func(msg *model.Message) error {
		tunnels, err := t.parseTunnelList(msg)
		if err != nil {
			return err
		}
		feed.ReplacePublished(tunnels)
		return nil
	})
	t.client.RegisterHandler(model.MessageTypeCandidates, func(msg *model.Message) error {
		tunnels, err := t.parseTunnelList(msg)
		if err != nil {
			return err
		}
		feed.ReplaceCandidates(tunnels)
		return nil
	})
}

func (t *WebSocketTransport) parseTunnelList(msg *model.Message) ([]model.Tunnel, error) {
	var payload model.TunnelListPayload
	if err := msg.ParsePayload(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", msg.Type, err)
	}

	tunnels := make([]model.Tunnel, 0, len(payload.Tunnels))
	for _, cfg := range payload.Tunnels {
		tunnel, err := cfg.Tunnel()
		if err != nil {
			t.logger.Warn("Skipping %s entry for remote port %s: %v", msg.Type, cfg.Remote, err)
			continue
		}
		tunnels = append(tunnels, tunnel)
	}
	return tunnels, nil
}

var _ port.TunnelTransport = (*WebSocketTransport)(nil)
