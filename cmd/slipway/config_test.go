package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.Stack.Branch)
	assert.Equal(t, 80, cfg.Stack.ContainerPort)
	assert.Equal(t, 1, cfg.Stack.DesiredCount)
	assert.Equal(t, 256, cfg.Stack.CPU)
	assert.Equal(t, 512, cfg.Stack.Memory)
	assert.Equal(t, "/", cfg.Stack.HealthCheckPath)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.True(t, cfg.AWS.StartInitialBuild)
	assert.Equal(t, "./data/slipway.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slipway.yaml")
	content := `
stack:
  name: demo
  connection_arn: arn:aws:codestar-connections:us-east-1:123456789012:connection/abc
  repo_owner: acme
  repo_name: widgets
  branch: release
  container_port: 3000
aws:
  region: eu-west-1
log:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Stack.Name)
	assert.Equal(t, "acme", cfg.Stack.RepoOwner)
	assert.Equal(t, "release", cfg.Stack.Branch)
	assert.Equal(t, 3000, cfg.Stack.ContainerPort)
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset values keep their defaults.
	assert.Equal(t, 1, cfg.Stack.DesiredCount)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SLIPWAY_AWS_REGION", "ap-southeast-2")
	t.Setenv("SLIPWAY_STACK_BRANCH", "develop")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "ap-southeast-2", cfg.AWS.Region)
	assert.Equal(t, "develop", cfg.Stack.Branch)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stack: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

// =============================================================================
// Spec Building Tests
// =============================================================================

func validConfig() *Config {
	cfg, _ := LoadConfig("")
	cfg.Stack.ConnectionARN = "arn:aws:codestar-connections:us-east-1:123456789012:connection/abc"
	cfg.Stack.RepoOwner = "acme"
	cfg.Stack.RepoName = "widgets"
	return cfg
}

func TestBuildSpec_NameDefaultsToRepo(t *testing.T) {
	cfg := validConfig()
	spec, err := cfg.BuildSpec()
	require.NoError(t, err)
	assert.Equal(t, "widgets", spec.Name)
	assert.Equal(t, "us-east-1", spec.Region)
	assert.Equal(t, 80, spec.ContainerPort)
}

func TestBuildSpec_ExplicitName(t *testing.T) {
	cfg := validConfig()
	cfg.Stack.Name = "demo"
	spec, err := cfg.BuildSpec()
	require.NoError(t, err)
	assert.Equal(t, "demo", spec.Name)
}

func TestBuildSpec_ComposeEnrichment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compose.yaml")
	content := `
services:
  web:
    image: nginx
    ports:
      - "8080:3000"
    environment:
      APP_ENV: production
      LOG_LEVEL: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := validConfig()
	cfg.Stack.ComposeFile = path
	cfg.Stack.ComposeService = "web"
	cfg.Stack.Environment = map[string]string{"LOG_LEVEL": "debug"}

	spec, err := cfg.BuildSpec()
	require.NoError(t, err)

	assert.Equal(t, 3000, spec.ContainerPort)
	assert.Equal(t, "production", spec.Environment["APP_ENV"])
	// Manifest values win over Compose values.
	assert.Equal(t, "debug", spec.Environment["LOG_LEVEL"])
}

func TestBuildSpec_ComposePortYieldsToExplicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compose.yaml")
	content := `
services:
  web:
    image: nginx
    ports:
      - "8080:3000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := validConfig()
	cfg.Stack.ComposeFile = path
	cfg.Stack.ComposeService = "web"
	cfg.Stack.ContainerPort = 9000

	spec, err := cfg.BuildSpec()
	require.NoError(t, err)
	assert.Equal(t, 9000, spec.ContainerPort)
}

func TestBuildSpec_ComposeFileMissing(t *testing.T) {
	cfg := validConfig()
	cfg.Stack.ComposeFile = filepath.Join(t.TempDir(), "nope.yaml")
	_, err := cfg.BuildSpec()
	assert.Error(t, err)
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestSetupLogger(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "debug", Format: "text"}}
	logger := SetupLogger(cfg)
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	cfg = &Config{Log: LogConfig{Level: "error", Format: "json"}}
	logger = SetupLogger(cfg)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
}
