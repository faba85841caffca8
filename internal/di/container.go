package di

import (
	"os"

	"go.uber.org/multierr"

	"github.com/haxorport/haxorport-ports/internal/application/service"
	"github.com/haxorport/haxorport-ports/internal/domain/model"
	"github.com/haxorport/haxorport-ports/internal/domain/port"
	domainservice "github.com/haxorport/haxorport-ports/internal/domain/service"
	"github.com/haxorport/haxorport-ports/internal/infrastructure/config"
	"github.com/haxorport/haxorport-ports/internal/infrastructure/logger"
	"github.com/haxorport/haxorport-ports/internal/infrastructure/transport"
)

// Container is a container for dependency injection
type Container struct {
	// Logger
	Logger *logger.Logger

	// Repositories
	ConfigRepository port.ConfigRepository

	// Services
	ConfigService *service.ConfigService
	TunnelService *service.TunnelService

	// Model holds the forwarded, published and candidate ports
	Model *domainservice.TunnelModel

	// Transport establishes tunnels; nil when connection mode is none
	Transport port.TunnelTransport

	// Client is the control connection; nil unless connection mode is websocket
	Client *transport.Client

	// Config
	Config *model.Config
}

// NewContainer creates a new Container instance
func NewContainer() *Container {
	return &Container{}
}

// Initialize initializes the container.
// A non-empty logLevel overrides the configured level.
func (c *Container) Initialize(configPath, logLevel string) error {
	c.Logger = logger.NewLogger(os.Stdout, string(model.LogLevelWarn))
	if logLevel != "" {
		c.Logger.SetLevel(logLevel)
	}

	if c.ConfigRepository == nil {
		c.ConfigRepository = config.NewConfigRepository()
	}
	// bootstrap service, rebuilt once the final logger is known
	c.ConfigService = service.NewConfigService(c.ConfigRepository, c.Logger.Named("config"))

	var err error
	c.Config, err = c.ConfigService.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Config.LogLevel = model.LogLevel(logLevel)
	}
	c.Logger.SetLevel(string(c.Config.LogLevel))

	// Log file output is teed with the terminal
	if c.Config.LogFile != "" {
		fileLogger, err := logger.NewFileLogger(c.Config.LogFile, string(c.Config.LogLevel))
		if err != nil {
			c.Logger.Error("Failed to create file logger: %v", err)
		} else {
			c.Logger.Close()
			c.Logger = fileLogger
			c.Logger.Debug("Logs will also be written to file: %s", c.Config.LogFile)
		}
	}

	// Named loggers are derived from the final logger so they reach log_file
	c.ConfigService = service.NewConfigService(c.ConfigRepository, c.Logger.Named("config"))

	c.Transport, c.Client, err = transport.CreateTunnelTransport(c.Config, c.Logger.Named("transport"))
	if err != nil {
		return err
	}

	published := parseTunnels(c.Config.Published, c.Logger)
	candidates := parseTunnels(c.Config.Candidates, c.Logger)

	c.Model = domainservice.NewTunnelModel(
		domainservice.WithTransport(c.Transport),
		domainservice.WithLogger(c.Logger.Named("model")),
		domainservice.WithDefaultHost(c.Config.ResolveDefaultHost()),
		domainservice.WithPublished(published...),
		domainservice.WithCandidates(candidates...),
	)

	if ws, ok := c.Transport.(*transport.WebSocketTransport); ok {
		ws.BindFeed(c.Model)
	}

	c.TunnelService = service.NewTunnelService(c.Model, c.Logger.Named("tunnel"))

	return nil
}

// Start connects to the control server and keeps the connection alive.
// It does nothing unless connection mode is websocket.
func (c *Container) Start() {
	if c.Client == nil {
		return
	}
	if err := c.Client.Connect(); err != nil {
		c.Logger.Warn("Initial connection failed, retrying in background: %v", err)
	}
	c.Client.RunWithReconnect()
}

// Close closes all resources
func (c *Container) Close() error {
	var err error

	if c.TunnelService != nil {
		c.TunnelService.Shutdown()
	}

	if c.Transport != nil {
		err = multierr.Append(err, c.Transport.Close())
	}

	if c.Logger != nil {
		err = multierr.Append(err, c.Logger.Close())
	}

	return err
}

func parseTunnels(configs []model.TunnelConfig, log port.Logger) []model.Tunnel {
	tunnels := make([]model.Tunnel, 0, len(configs))
	for _, cfg := range configs {
		tunnel, err := cfg.Tunnel()
		if err != nil {
			log.Warn("Skipping configured port %s: %v", cfg.Remote, err)
			continue
		}
		tunnels = append(tunnels, tunnel)
	}
	return tunnels
}
