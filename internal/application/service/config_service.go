package service

import (
	"fmt"

	"github.com/haxorport/haxorport-ports/internal/domain/model"
	"github.com/haxorport/haxorport-ports/internal/domain/port"
)

// ConfigService is a service for managing configuration
type ConfigService struct {
	configRepo port.ConfigRepository
	logger     port.Logger
}

// NewConfigService creates a new ConfigService instance
func NewConfigService(configRepo port.ConfigRepository, logger port.Logger) *ConfigService {
	return &ConfigService{
		configRepo: configRepo,
		logger:     logger,
	}
}

// LoadConfig loads configuration from a file.
// The default configuration is returned when loading fails.
func (s *ConfigService) LoadConfig(configPath string) (*model.Config, error) {
	if configPath == "" {
		var err error
		configPath, err = s.configRepo.GetDefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get default path: %w", err)
		}
	}

	config, err := s.configRepo.Load(configPath)
	if err != nil {
		s.logger.Warn("Failed to load configuration from %s: %v", configPath, err)
		return model.NewConfig(), nil
	}

	s.logger.Debug("Configuration loaded from %s", configPath)
	return config, nil
}

// SaveConfig saves configuration to a file
func (s *ConfigService) SaveConfig(config *model.Config, configPath string) error {
	if configPath == "" {
		var err error
		configPath, err = s.configRepo.GetDefaultPath()
		if err != nil {
			return fmt.Errorf("failed to get default path: %w", err)
		}
	}

	if err := s.configRepo.Save(config, configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	s.logger.Info("Configuration saved to %s", configPath)
	return nil
}

// SetServerAddress sets the server address
func (s *ConfigService) SetServerAddress(config *model.Config, serverAddress string) {
	config.ServerAddress = serverAddress
}

// SetControlPort sets the control plane port
func (s *ConfigService) SetControlPort(config *model.Config, controlPort int) {
	config.ControlPort = controlPort
}

// SetConnectionMode sets how tunnels are established
func (s *ConfigService) SetConnectionMode(config *model.Config, mode string) error {
	switch m := model.ConnectionMode(mode); m {
	case model.ConnectionModeDirectTCP, model.ConnectionModeWebSocket, model.ConnectionModeNone:
		config.ConnectionMode = m
		return nil
	default:
		return fmt.Errorf("invalid connection mode: %s", mode)
	}
}

// SetAuthToken sets the authentication token
func (s *ConfigService) SetAuthToken(config *model.Config, authToken string) {
	config.AuthToken = authToken
}

// SetLogLevel sets the log level
func (s *ConfigService) SetLogLevel(config *model.Config, logLevel string) {
	config.LogLevel = model.LogLevel(logLevel)
}

// SetLogFile sets the log file
func (s *ConfigService) SetLogFile(config *model.Config, logFile string) {
	config.LogFile = logFile
}

// SetDefaultHost sets the host used by forwards that do not name one
func (s *ConfigService) SetDefaultHost(config *model.Config, host string) error {
	if _, err := model.ParseHost(host); err != nil {
		return err
	}
	config.DefaultHost = host
	return nil
}

// AddForward adds a forward to the configuration
func (s *ConfigService) AddForward(config *model.Config, forward model.TunnelConfig) error {
	if forward.Remote == "" {
		return fmt.Errorf("remote port is required")
	}
	if _, err := model.ParseHost(forward.Host); err != nil {
		return err
	}
	config.AddForward(forward)
	return nil
}

// RemoveForward removes a forward from the configuration
func (s *ConfigService) RemoveForward(config *model.Config, remote string) bool {
	return config.RemoveForward(remote)
}

// GetForward returns a forward from the configuration
func (s *ConfigService) GetForward(config *model.Config, remote string) *model.TunnelConfig {
	return config.GetForward(remote)
}
