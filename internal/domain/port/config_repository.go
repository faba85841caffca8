package port

import "github.com/haxorport/haxorport-ports/internal/domain/model"

// ConfigRepository loads and stores the client configuration, including the
// forwards that are restored at startup
type ConfigRepository interface {
	// Load reads the configuration at path, returning defaults when the file is missing
	Load(path string) (*model.Config, error)

	// Save writes the configuration to path, creating parent directories
	Save(config *model.Config, path string) error

	// GetDefaultPath returns the default path for configuration file
	GetDefaultPath() (string, error)
}
