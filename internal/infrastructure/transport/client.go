package transport

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haxorport/haxorport-ports/internal/domain/model"
	"github.com/haxorport/haxorport-ports/internal/domain/port"
)

const (
	requestTimeout   = 10 * time.Second
	pingInterval     = 30 * time.Second
	reconnectDelay   = 5 * time.Second
	handshakeTimeout = 10 * time.Second
)

// ErrNotConnected is returned when a message is sent without a live connection
var ErrNotConnected = errors.New("not connected to server")

// Client is a WebSocket connection to the haxorport control server
type Client struct {
	serverURL   string
	authEnabled bool
	authToken   string
	tlsConfig   *tls.Config

	conn         *websocket.Conn
	isConnected  bool
	reconnecting bool
	closed       bool
	mutex        sync.Mutex
	writeMutex   sync.Mutex
	stopCh       chan struct{}

	logger   port.Logger
	handlers map[model.MessageType]port.MessageHandler
	pending  map[string]chan *model.Message
}

// NewClient creates a client for the control server named in config
func NewClient(config *model.Config, logger port.Logger) (*Client, error) {
	protocol := "ws"
	var tlsConfig *tls.Config
	if config.TLSEnabled {
		protocol = "wss"
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		if config.TLSCert != "" && config.TLSKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLSCert, config.TLSKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	serverURL := fmt.Sprintf("%s://%s:%d/control", protocol, config.ServerAddress, config.ControlPort)
	return NewClientForURL(serverURL, config.AuthEnabled, config.AuthToken, tlsConfig, logger), nil
}

// NewClientForURL creates a client for an explicit control URL
func NewClientForURL(serverURL string, authEnabled bool, authToken string, tlsConfig *tls.Config, logger port.Logger) *Client {
	return &Client{
		serverURL:   serverURL,
		authEnabled: authEnabled,
		authToken:   authToken,
		tlsConfig:   tlsConfig,
		stopCh:      make(chan struct{}),
		logger:      logger,
		handlers:    make(map[model.MessageType]port.MessageHandler),
		pending:     make(map[string]chan *model.Message),
	}
}

// Connect dials the control server and authenticates when enabled
func (c *Client) Connect() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return errors.New("client is closed")
	}
	if c.isConnected {
		return nil
	}

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		TLSClientConfig:  c.tlsConfig,
	}

	c.logger.Info("Connecting to server: %s", u.String())
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	if c.authEnabled {
		if c.authToken == "" {
			conn.Close()
			return errors.New("authentication is enabled but no token is configured")
		}
		authMessage, err := model.NewMessage(model.MessageTypeAuth, model.AuthPayload{Token: c.authToken})
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to create authentication message: %w", err)
		}
		if err := conn.WriteJSON(authMessage); err != nil {
			conn.Close()
			return fmt.Errorf("failed to send authentication: %w", err)
		}
	}

	c.conn = conn
	c.isConnected = true

	go c.readPump(conn)

	c.logger.Info("Connected to server: %s", u.String())
	return nil
}

// disconnect drops the current connection without stopping reconnects
func (c *Client) disconnect(conn *websocket.Conn) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn != conn || !c.isConnected {
		return
	}
	c.conn.Close()
	c.conn = nil
	c.isConnected = false

	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Close closes the connection and stops background reconnects
func (c *Client) Close() {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return
	}
	c.closed = true
	close(c.stopCh)
	conn := c.conn
	c.mutex.Unlock()

	if conn != nil {
		c.logger.Info("Closing connection")
		c.writeMutex.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMutex.Unlock()
		c.disconnect(conn)
	}
}

// IsConnected returns whether the client is connected to the server
func (c *Client) IsConnected() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.isConnected
}

// RunWithReconnect reconnects after a dropped connection and keeps it alive with pings
func (c *Client) RunWithReconnect() {
	c.mutex.Lock()
	if c.reconnecting || c.closed {
		c.mutex.Unlock()
		return
	}
	c.reconnecting = true
	c.mutex.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
			}
			if c.IsConnected() {
				continue
			}
			c.logger.Info("Reconnecting to server...")
			if err := c.Connect(); err != nil {
				c.logger.Error("Failed to reconnect: %v", err)
				select {
				case <-c.stopCh:
					return
				case <-time.After(reconnectDelay):
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
			}
			if !c.IsConnected() {
				continue
			}
			ping, err := model.NewMessage(model.MessageTypePing, nil)
			if err != nil {
				c.logger.Error("Failed to create ping message: %v", err)
				continue
			}
			if err := c.Send(ping); err != nil {
				c.logger.Warn("Failed to send ping: %v", err)
			}
		}
	}()
}

// RegisterHandler registers a handler for messages pushed by the server
func (c *Client) RegisterHandler(msgType model.MessageType, handler port.MessageHandler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.handlers[msgType] = handler
}

// Send writes a message to the server
func (c *Client) Send(msg *model.Message) error {
	c.mutex.Lock()
	conn := c.conn
	connected := c.isConnected
	c.mutex.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to convert message to JSON: %w", err)
	}

	c.writeMutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMutex.Unlock()
	if err != nil {
		c.logger.Error("Failed to send message: %v", err)
		c.disconnect(conn)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Request sends msg with a fresh ID and waits for the server's reply carrying that ID
func (c *Client) Request(msg *model.Message, timeout time.Duration) (*model.Message, error) {
	msg.ID = uuid.NewString()
	replyCh := make(chan *model.Message, 1)

	c.mutex.Lock()
	c.pending[msg.ID] = replyCh
	c.mutex.Unlock()

	defer func() {
		c.mutex.Lock()
		delete(c.pending, msg.ID)
		c.mutex.Unlock()
	}()

	if err := c.Send(msg); err != nil {
		return nil, err
	}

	select {
	case reply, ok := <-replyCh:
		if !ok {
			return nil, errors.New("connection closed while waiting for response")
		}
		if reply.Type == model.MessageTypeError {
			var payload model.ErrorPayload
			if err := reply.ParsePayload(&payload); err != nil {
				return nil, fmt.Errorf("failed to parse error message: %w", err)
			}
			return nil, fmt.Errorf("error from server: %s - %s", payload.Code, payload.Message)
		}
		return reply, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout waiting for %s response", msg.Type)
	}
}

// readPump reads messages from the server until the connection drops
func (c *Client) readPump(conn *websocket.Conn) {
	defer c.disconnect(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug("Read loop ended: %v", err)
			}
			return
		}

		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Error("Failed to parse message: %v", err)
			continue
		}

		if msg.Type == model.MessageTypePong {
			continue
		}

		c.mutex.Lock()
		replyCh, isReply := c.pending[msg.ID]
		if isReply {
			delete(c.pending, msg.ID)
		}
		handler, exists := c.handlers[msg.Type]
		c.mutex.Unlock()

		if isReply && msg.ID != "" {
			replyCh <- &msg
			continue
		}

		if exists {
			if err := handler(&msg); err != nil {
				c.logger.Error("Error handling message %s: %v", msg.Type, err)
			}
		} else {
			c.logger.Warn("No handler for message type: %s", msg.Type)
		}
	}
}

var _ port.Client = (*Client)(nil)
