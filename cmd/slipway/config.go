package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/slipway-sh/slipway/internal/core/compose"
	"github.com/slipway-sh/slipway/internal/core/stack"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Stack    StackConfig    `mapstructure:"stack"`
	AWS      AWSConfig      `mapstructure:"aws"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// StackConfig holds the deployment topology parameters.
type StackConfig struct {
	// Name is the stack name all resource names derive from.
	// Defaults to the repository name.
	Name string `mapstructure:"name"`

	// ConnectionARN references the pre-created source connection that lets
	// the build pipeline read the repository. Never created by slipway.
	ConnectionARN string `mapstructure:"connection_arn"`

	RepoOwner string `mapstructure:"repo_owner"`
	RepoName  string `mapstructure:"repo_name"`
	Branch    string `mapstructure:"branch"`

	ContainerPort   int    `mapstructure:"container_port"`
	DesiredCount    int    `mapstructure:"desired_count"`
	CPU             int    `mapstructure:"cpu"`
	Memory          int    `mapstructure:"memory"`
	HealthCheckPath string `mapstructure:"health_check_path"`

	// Environment is passed to the service's container definition.
	Environment map[string]string `mapstructure:"environment"`

	// ComposeFile and ComposeService derive the container port and base
	// environment from a Compose service definition.
	ComposeFile    string `mapstructure:"compose_file"`
	ComposeService string `mapstructure:"compose_service"`
}

// AWSConfig holds control plane access configuration.
type AWSConfig struct {
	Region string `mapstructure:"region"`

	// AccessKeyID and SecretAccessKey are optional static credentials.
	// When empty the SDK default credential chain is used.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// StartInitialBuild triggers a first build after apply so the service
	// has an image to run without waiting for a push.
	StartInitialBuild bool `mapstructure:"start_initial_build"`
}

// DatabaseConfig holds state database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("stack.name", "")
	v.SetDefault("stack.branch", "main")
	v.SetDefault("stack.container_port", stack.DefaultContainerPort)
	v.SetDefault("stack.desired_count", stack.DefaultDesiredCount)
	v.SetDefault("stack.cpu", stack.DefaultCPU)
	v.SetDefault("stack.memory", stack.DefaultMemory)
	v.SetDefault("stack.health_check_path", stack.DefaultHealthCheckPath)
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.start_initial_build", true)
	v.SetDefault("database.dsn", "./data/slipway.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("SLIPWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// BuildSpec turns the stack configuration into a plan spec, enriching it from
// a Compose service when one is referenced. Manifest values win over Compose
// values so an explicit port or variable always takes effect.
func (c *Config) BuildSpec() (stack.Spec, error) {
	sc := c.Stack

	name := sc.Name
	if name == "" {
		name = sc.RepoName
	}

	spec := stack.Spec{
		Name:            name,
		Region:          c.AWS.Region,
		ConnectionARN:   sc.ConnectionARN,
		RepoOwner:       sc.RepoOwner,
		RepoName:        sc.RepoName,
		Branch:          sc.Branch,
		ContainerPort:   sc.ContainerPort,
		DesiredCount:    sc.DesiredCount,
		CPU:             sc.CPU,
		Memory:          sc.Memory,
		HealthCheckPath: sc.HealthCheckPath,
		Environment:     sc.Environment,
	}

	if sc.ComposeFile != "" {
		content, err := os.ReadFile(sc.ComposeFile)
		if err != nil {
			return stack.Spec{}, fmt.Errorf("failed to read compose file: %w", err)
		}
		shape, err := compose.ExtractServiceShape(string(content), sc.ComposeService)
		if err != nil {
			return stack.Spec{}, fmt.Errorf("failed to parse compose file: %w", err)
		}

		if spec.ContainerPort == stack.DefaultContainerPort && shape.ContainerPort != 0 {
			spec.ContainerPort = shape.ContainerPort
		}
		if len(shape.Environment) > 0 {
			merged := make(map[string]string, len(shape.Environment)+len(sc.Environment))
			for k, val := range shape.Environment {
				merged[k] = val
			}
			for k, val := range sc.Environment {
				merged[k] = val
			}
			spec.Environment = merged
		}
	}

	return spec, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// Logs go to stderr so command output on stdout stays clean.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
