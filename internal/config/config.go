package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// AutomationConfig holds settings for the browser-automation service the
// orchestrator delegates game actions to.
type AutomationConfig struct {
	URL     string
	Timeout time.Duration
}

// OrchestratorConfig holds scheduler tuning.
type OrchestratorConfig struct {
	MonitorInterval time.Duration
	AutoStart       bool
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Automation   AutomationConfig
	Orchestrator OrchestratorConfig
	Notification NotificationConfig

	Mode          string
	LogLevel      string
	StateDir      string
	ShutdownGrace time.Duration
}

const (
	defaultAddr              = "0.0.0.0:7070"
	defaultLogLevel          = "info"
	defaultAutomationTimeout = 5 * time.Minute
	defaultMonitorInterval   = 3 * time.Minute
	defaultShutdownGrace     = 5 * time.Second
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse() (*Config, error) {
	// Load .env file if exists (silent fail if not present)
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "plemiona", ".env"))
	}
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("PLEMIONA_ADDR", defaultAddr),
			AuthToken: getEnvString("PLEMIONA_AUTH_TOKEN", ""),
		},
		Automation: AutomationConfig{
			URL:     getEnvString("PLEMIONA_AUTOMATION_URL", "http://127.0.0.1:3000"),
			Timeout: getEnvDuration("PLEMIONA_AUTOMATION_TIMEOUT", defaultAutomationTimeout),
		},
		Orchestrator: OrchestratorConfig{
			MonitorInterval: getEnvDuration("PLEMIONA_MONITOR_INTERVAL", defaultMonitorInterval),
			AutoStart:       getEnvBool("PLEMIONA_AUTO_START", true),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("PLEMIONA_BARK_URL", ""),
				Enabled: getEnvBool("PLEMIONA_BARK_ENABLED", false),
			},
		},
		Mode:          getEnvString("PLEMIONA_MODE", "http"),
		LogLevel:      getEnvString("PLEMIONA_LOG_LEVEL", defaultLogLevel),
		StateDir:      getEnvString("PLEMIONA_STATE_DIR", ""),
		ShutdownGrace: getEnvDuration("PLEMIONA_SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	// Define CLI flags (these will override environment variables)
	var addr, logLevel, stateDir, mode, automationURL string
	var monitorInterval, shutdownGrace time.Duration

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&stateDir, "state-dir", "", "Directory to store the database")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&mode, "mode", "", "Run mode: http or mcp")
	flag.StringVar(&automationURL, "automation-url", "", "Base URL of the browser-automation service")
	flag.DurationVar(&monitorInterval, "monitor-interval", 0, "Interval between orchestration monitoring passes")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if automationURL != "" {
		cfg.Automation.URL = automationURL
	}
	if monitorInterval > 0 {
		cfg.Orchestrator.MonitorInterval = monitorInterval
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "shutdown-grace" {
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	if cfg.Mode != "http" && cfg.Mode != "mcp" {
		return nil, fmt.Errorf("invalid mode %q (want http or mcp)", cfg.Mode)
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}

	return cfg, nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "plemiona")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
