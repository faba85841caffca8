package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haxorport/haxorport-ports/internal/domain/model"
)

type fakeConfigRepository struct {
	configs map[string]*model.Config
	loadErr error
	saveErr error
}

func newFakeConfigRepository() *fakeConfigRepository {
	return &fakeConfigRepository{configs: make(map[string]*model.Config)}
}

func (r *fakeConfigRepository) Load(path string) (*model.Config, error) {
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	if config, ok := r.configs[path]; ok {
		return config, nil
	}
	return model.NewConfig(), nil
}

func (r *fakeConfigRepository) Save(config *model.Config, path string) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.configs[path] = config
	return nil
}

func (r *fakeConfigRepository) GetDefaultPath() (string, error) {
	return "default.yaml", nil
}

func TestConfigService_SaveAndLoad(t *testing.T) {
	repo := newFakeConfigRepository()
	s := NewConfigService(repo, newTestLogger())

	config := model.NewConfig()
	s.SetServerAddress(config, "control.example.com")
	s.SetControlPort(config, 8443)
	require.NoError(t, s.SaveConfig(config, ""))

	loaded, err := s.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "control.example.com", loaded.ServerAddress)
	assert.Equal(t, 8443, loaded.ControlPort)
	assert.Contains(t, repo.configs, "default.yaml")
}

func TestConfigService_LoadFailureFallsBackToDefaults(t *testing.T) {
	repo := newFakeConfigRepository()
	repo.loadErr = errors.New("broken yaml")
	s := NewConfigService(repo, newTestLogger())

	config, err := s.LoadConfig("ports.yaml")
	require.NoError(t, err)
	assert.Equal(t, model.NewConfig(), config)
}

func TestConfigService_SaveFailure(t *testing.T) {
	repo := newFakeConfigRepository()
	repo.saveErr = errors.New("read-only")
	s := NewConfigService(repo, newTestLogger())

	assert.ErrorIs(t, s.SaveConfig(model.NewConfig(), "ports.yaml"), repo.saveErr)
}

func TestConfigService_Setters(t *testing.T) {
	s := NewConfigService(newFakeConfigRepository(), newTestLogger())
	config := model.NewConfig()

	require.NoError(t, s.SetConnectionMode(config, "websocket"))
	assert.Equal(t, model.ConnectionModeWebSocket, config.ConnectionMode)
	assert.Error(t, s.SetConnectionMode(config, "udp"))
	assert.Equal(t, model.ConnectionModeWebSocket, config.ConnectionMode)

	require.NoError(t, s.SetDefaultHost(config, "devbox"))
	assert.Equal(t, "devbox", config.DefaultHost)
	assert.Error(t, s.SetDefaultHost(config, "http://"))

	s.SetAuthToken(config, "token")
	s.SetLogLevel(config, "debug")
	s.SetLogFile(config, "/tmp/ports.log")
	assert.Equal(t, "token", config.AuthToken)
	assert.Equal(t, model.LogLevelDebug, config.LogLevel)
	assert.Equal(t, "/tmp/ports.log", config.LogFile)
}

func TestConfigService_Forwards(t *testing.T) {
	s := NewConfigService(newFakeConfigRepository(), newTestLogger())
	config := model.NewConfig()

	require.NoError(t, s.AddForward(config, model.TunnelConfig{Remote: "8080", Name: "web"}))
	require.NoError(t, s.AddForward(config, model.TunnelConfig{Remote: "8080", Name: "api"}))
	assert.Len(t, config.Forwards, 1)
	assert.Equal(t, "api", s.GetForward(config, "8080").Name)

	assert.Error(t, s.AddForward(config, model.TunnelConfig{Name: "nameless"}))
	assert.Error(t, s.AddForward(config, model.TunnelConfig{Remote: "22", Host: "http://"}))

	assert.True(t, s.RemoveForward(config, "8080"))
	assert.False(t, s.RemoveForward(config, "8080"))
	assert.Nil(t, s.GetForward(config, "8080"))
}
