package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/haxorport/haxorport-ports/internal/domain/model"
	"github.com/haxorport/haxorport-ports/internal/domain/port"
)

// ConfigRepository is an implementation of port.ConfigRepository backed by a viper YAML file
type ConfigRepository struct{}

// NewConfigRepository creates a new ConfigRepository instance
func NewConfigRepository() *ConfigRepository {
	return &ConfigRepository{}
}

func setDefaults(v *viper.Viper, config *model.Config) {
	v.SetDefault("server_address", config.ServerAddress)
	v.SetDefault("control_port", config.ControlPort)
	v.SetDefault("connection_mode", string(config.ConnectionMode))
	v.SetDefault("auth_enabled", config.AuthEnabled)
	v.SetDefault("tls_enabled", config.TLSEnabled)
	v.SetDefault("log_level", string(config.LogLevel))
}

// Load loads configuration from file
func (r *ConfigRepository) Load(configPath string) (*model.Config, error) {
	config := model.NewConfig()

	if configPath == "" {
		var err error
		configPath, err = r.GetDefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return config, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v, config)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config.ServerAddress = v.GetString("server_address")
	config.ControlPort = v.GetInt("control_port")
	config.ConnectionMode = model.ConnectionMode(v.GetString("connection_mode"))
	config.AuthEnabled = v.GetBool("auth_enabled")
	config.AuthToken = v.GetString("auth_token")
	config.TLSEnabled = v.GetBool("tls_enabled")
	config.TLSCert = v.GetString("tls_cert")
	config.TLSKey = v.GetString("tls_key")
	config.LogLevel = model.LogLevel(v.GetString("log_level"))
	config.LogFile = v.GetString("log_file")
	config.DefaultHost = v.GetString("default_host")

	for key, target := range map[string]*[]model.TunnelConfig{
		"forwards":   &config.Forwards,
		"published":  &config.Published,
		"candidates": &config.Candidates,
	} {
		var tunnels []model.TunnelConfig
		if err := v.UnmarshalKey(key, &tunnels); err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", key, err)
		}
		if tunnels != nil {
			*target = tunnels
		}
	}

	return config, nil
}

// Save saves configuration to file
func (r *ConfigRepository) Save(config *model.Config, configPath string) error {
	if configPath == "" {
		var err error
		configPath, err = r.GetDefaultPath()
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.Set("server_address", config.ServerAddress)
	v.Set("control_port", config.ControlPort)
	v.Set("connection_mode", string(config.ConnectionMode))
	v.Set("auth_enabled", config.AuthEnabled)
	v.Set("auth_token", config.AuthToken)
	v.Set("tls_enabled", config.TLSEnabled)
	v.Set("tls_cert", config.TLSCert)
	v.Set("tls_key", config.TLSKey)
	v.Set("log_level", string(config.LogLevel))
	v.Set("log_file", config.LogFile)
	v.Set("default_host", config.DefaultHost)
	v.Set("forwards", config.Forwards)
	v.Set("published", config.Published)
	v.Set("candidates", config.Candidates)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("error saving configuration: %w", err)
	}

	return nil
}

// GetDefaultPath returns the default path for configuration file
func (r *ConfigRepository) GetDefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting home directory: %w", err)
	}

	return filepath.Join(homeDir, ".haxorport", "ports.yaml"), nil
}

// Ensure ConfigRepository implements port.ConfigRepository
var _ port.ConfigRepository = (*ConfigRepository)(nil)
