package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType defines message types for client-server communication
type MessageType string

const (
	// MessageTypeAuth is for authentication
	MessageTypeAuth MessageType = "auth"
	// MessageTypeForward asks the server to open a tunnel for a remote port
	MessageTypeForward MessageType = "forward"
	// MessageTypeUnforward asks the server to tear a tunnel down
	MessageTypeUnforward MessageType = "unforward"
	// MessageTypePublished carries the ports the remote side publishes
	MessageTypePublished MessageType = "published"
	// MessageTypeCandidates carries the detected remote listeners
	MessageTypeCandidates MessageType = "candidates"
	// MessageTypePing keeps the connection alive
	MessageTypePing MessageType = "ping"
	// MessageTypePong is a response to ping
	MessageTypePong MessageType = "pong"
	// MessageTypeError indicates an error message
	MessageTypeError MessageType = "error"
)

// ProtocolVersion is the version sent with every message
const ProtocolVersion = "1.0.0"

// Message represents the base structure for all client-server messages
type Message struct {
	// Type is the message type
	Type MessageType `json:"type"`
	// ID correlates a request with its response
	ID string `json:"id,omitempty"`
	// Version is the protocol version
	Version string `json:"version"`
	// Timestamp is when the message was created (in milliseconds since epoch)
	Timestamp int64 `json:"timestamp"`
	// Payload contains the actual message data
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage creates a new message with specified type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadJSON json.RawMessage
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to convert payload to JSON: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Version:   ProtocolVersion,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payloadJSON,
	}, nil
}

// ParsePayload parses message payload into the provided struct
func (m *Message) ParsePayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// AuthPayload is for authentication messages
type AuthPayload struct {
	Token string `json:"token"`
}

// ForwardPayload is for forward requests
type ForwardPayload struct {
	// Remote is the remote port identifier
	Remote string `json:"remote"`
	// Host is the remote network location
	Host string `json:"host"`
	// Local is the local port the remote port maps to
	Local string `json:"local"`
}

// ForwardResponsePayload is the response to forward requests
type ForwardResponsePayload struct {
	Success bool   `json:"success"`
	Remote  string `json:"remote"`
	Error   string `json:"error,omitempty"`
}

// UnforwardPayload is for tunnel removal messages
type UnforwardPayload struct {
	Remote string `json:"remote"`
}

// TunnelListPayload carries published or candidate tunnels
type TunnelListPayload struct {
	Tunnels []TunnelConfig `json:"tunnels"`
}

// ErrorPayload is for error messages
type ErrorPayload struct {
	// Code is the error code
	Code string `json:"code"`
	// Message contains the error details
	Message string `json:"message"`
}
