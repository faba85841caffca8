package port

import (
	"time"

	"github.com/haxorport/haxorport-ports/internal/domain/model"
)

// MessageHandler handles one message type pushed by the server
type MessageHandler func(*model.Message) error

// Client is an interface for communicating with the haxorport control server
type Client interface {
	// Connect establishes a connection to the control server
	Connect() error

	// Close closes the connection to the server
	Close()

	// IsConnected returns the connection status
	IsConnected() bool

	// RunWithReconnect keeps the connection alive in the background
	RunWithReconnect()

	// Send writes a message without waiting for a reply
	Send(msg *model.Message) error

	// Request sends a message and waits for the reply carrying the same ID
	Request(msg *model.Message, timeout time.Duration) (*model.Message, error)

	// RegisterHandler routes messages of msgType pushed by the server to handler
	RegisterHandler(msgType model.MessageType, handler MessageHandler)
}
