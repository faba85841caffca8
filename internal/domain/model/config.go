package model

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LogLevel defines logging levels
type LogLevel string

const (
	// LogLevelDebug is the level for debug messages
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the level for informational messages
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn is the level for warning messages
	LogLevelWarn LogLevel = "warn"
	// LogLevelError is the level for error messages
	LogLevelError LogLevel = "error"
)

// ConnectionMode defines how tunnels are established
type ConnectionMode string

const (
	// ConnectionModeWebSocket registers forwards with a control server over WebSocket
	ConnectionModeWebSocket ConnectionMode = "websocket"
	// ConnectionModeDirectTCP opens a local listener and dials the remote port directly
	ConnectionModeDirectTCP ConnectionMode = "direct_tcp"
	// ConnectionModeNone keeps the mapping only, without opening tunnels
	ConnectionModeNone ConnectionMode = "none"
)

// TunnelConfig is the persisted form of a tunnel
type TunnelConfig struct {
	// Remote is the remote port identifier
	Remote string `mapstructure:"remote" yaml:"remote" json:"remote"`
	// Host is the remote network location, e.g. http://devbox:0
	Host string `mapstructure:"host" yaml:"host,omitempty" json:"host,omitempty"`
	// Local is the local port (defaults to Remote)
	Local string `mapstructure:"local" yaml:"local,omitempty" json:"local,omitempty"`
	// Name is the label shown to the user
	Name string `mapstructure:"name" yaml:"name,omitempty" json:"name,omitempty"`
	// Description is a free-text annotation
	Description string `mapstructure:"description" yaml:"description,omitempty" json:"description,omitempty"`
}

// ParseHost parses a host string into a network location.
// A bare authority such as "devbox" or "devbox:22" gets the http scheme.
func ParseHost(host string) (*url.URL, error) {
	if host == "" {
		return nil, nil
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host %q: %w", host, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid host %q: missing authority", host)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// ForwardOptions converts the configuration into forward options
func (c TunnelConfig) ForwardOptions() (ForwardOptions, error) {
	host, err := ParseHost(c.Host)
	if err != nil {
		return ForwardOptions{}, err
	}
	return ForwardOptions{
		Host:        host,
		Local:       c.Local,
		Name:        c.Name,
		Description: c.Description,
	}, nil
}

// Tunnel converts the configuration into a tunnel value with defaults applied
func (c TunnelConfig) Tunnel() (Tunnel, error) {
	opts, err := c.ForwardOptions()
	if err != nil {
		return Tunnel{}, err
	}
	return NewForwardedTunnel(c.Remote, opts), nil
}

// Config is the configuration structure for the port forwarding client
type Config struct {
	// ServerAddress is the control server address (websocket mode)
	ServerAddress string
	// ControlPort is the port of the control server
	ControlPort int
	// ConnectionMode is how tunnels are established
	ConnectionMode ConnectionMode
	// AuthEnabled is a flag to enable authentication
	AuthEnabled bool
	// AuthToken is the token for server authentication
	AuthToken string
	// TLSEnabled is a flag to enable TLS
	TLSEnabled bool
	// TLSCert is the path to TLS certificate file
	TLSCert string
	// TLSKey is the path to TLS key file
	TLSKey string
	// LogLevel is the logging level (debug, info, warn, error)
	LogLevel LogLevel
	// LogFile is the path to log file (empty for stdout only)
	LogFile string
	// DefaultHost is the remote location used when a forward names none
	DefaultHost string
	// Forwards are forwarded at startup
	Forwards []TunnelConfig
	// Published seeds the published mapping
	Published []TunnelConfig
	// Candidates seeds the candidate mapping
	Candidates []TunnelConfig
}

// NewConfig creates a new Config instance with default values
func NewConfig() *Config {
	return &Config{
		ServerAddress:  "control.haxorport.online",
		ControlPort:    443,
		ConnectionMode: ConnectionModeDirectTCP,
		AuthEnabled:    false,
		AuthToken:      "",
		TLSEnabled:     false,
		LogLevel:       LogLevelWarn,
		LogFile:        "",
		DefaultHost:    "",
		Forwards:       []TunnelConfig{},
		Published:      []TunnelConfig{},
		Candidates:     []TunnelConfig{},
	}
}

// AddForward adds a forward to the configuration, replacing one with the same remote
func (c *Config) AddForward(forward TunnelConfig) {
	for i, f := range c.Forwards {
		if f.Remote == forward.Remote {
			c.Forwards[i] = forward
			return
		}
	}
	c.Forwards = append(c.Forwards, forward)
}

// RemoveForward removes a forward from configuration by remote identifier
func (c *Config) RemoveForward(remote string) bool {
	for i, f := range c.Forwards {
		if f.Remote == remote {
			c.Forwards = append(c.Forwards[:i], c.Forwards[i+1:]...)
			return true
		}
	}
	return false
}

// GetForward returns a forward by remote identifier
func (c *Config) GetForward(remote string) *TunnelConfig {
	for i := range c.Forwards {
		if c.Forwards[i].Remote == remote {
			f := c.Forwards[i]
			return &f
		}
	}
	return nil
}

// ResolveDefaultHost returns the configured default host, or DefaultHost() when unset or invalid
func (c *Config) ResolveDefaultHost() url.URL {
	host, err := ParseHost(c.DefaultHost)
	if err != nil || host == nil {
		return DefaultHost()
	}
	return *host
}

// GetConfigFilePath returns the path to configuration file
func (c *Config) GetConfigFilePath() string {
	configDir := "/etc/haxorport"

	if os.Getuid() != 0 {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			configDir = filepath.Join(homeDir, ".haxorport")
		}
	}

	return filepath.Join(configDir, "ports.yaml")
}
