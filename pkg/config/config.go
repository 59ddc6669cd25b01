// Package config loads sitedex configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// AzureConfig holds the credentials for the client-credential exchange.
type AzureConfig struct {
	TenantID     string `mapstructure:"tenant_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// GraphConfig configures the remote API client.
type GraphConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Retries        int           `mapstructure:"retries"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CrawlConfig configures the crawler's guards and throttles.
type CrawlConfig struct {
	FolderTimeout      time.Duration `mapstructure:"folder_timeout"`
	SiteTimeout        time.Duration `mapstructure:"site_timeout"`
	MaxDepth           int           `mapstructure:"max_depth"`
	MaxFoldersPerLevel int           `mapstructure:"max_folders_per_level"`
	ThrottleDelay      time.Duration `mapstructure:"throttle_delay"`
}

// CacheConfig configures the index store's TTL cache.
type CacheConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

// PaginationConfig sets listing page-size defaults and maxima.
type PaginationConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Components map[string]string `mapstructure:"components"`
	// File, when set, sends logs there instead of stderr. The
	// conventional location is LogFilePath().
	File string `mapstructure:"file"`
}

// ServerConfig configures the HTTP API layer.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	// APIToken, when set, is required as a bearer token on every /api route.
	// The full authentication flow is owned by the fronting layer.
	APIToken string `mapstructure:"api_token"`
}

// Config represents the application configuration.
type Config struct {
	Azure AzureConfig `mapstructure:"azure"`
	Graph GraphConfig `mapstructure:"graph"`
	Crawl CrawlConfig `mapstructure:"crawl"`
	Cache CacheConfig `mapstructure:"cache"`

	// SiteIDs, when non-empty, bypasses site discovery.
	SiteIDs []string `mapstructure:"site_ids"`

	Pagination PaginationConfig `mapstructure:"pagination"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
}

// ErrMissingCredentials is returned by Validate when the Azure credentials
// are incomplete.
var ErrMissingCredentials = errors.New("azure tenant_id, client_id and client_secret are required")

// Validate checks that the configuration is usable for crawling.
func (c *Config) Validate() error {
	if c.Azure.TenantID == "" || c.Azure.ClientID == "" || c.Azure.ClientSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/sitedex/config.yaml
//   - $HOME/.config/sitedex/config.yaml
//
// Environment variables are prefixed with SITEDEX_ (e.g., SITEDEX_AZURE_TENANT_ID).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "sitedex"))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "sitedex"))

	v.SetEnvPrefix("SITEDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("graph.endpoint", DefaultGraphEndpoint)
	v.SetDefault("graph.retries", DefaultRetries)
	v.SetDefault("graph.request_timeout", DefaultRequestTimeout)
	v.SetDefault("crawl.folder_timeout", DefaultFolderTimeout)
	v.SetDefault("crawl.site_timeout", DefaultSiteTimeout)
	v.SetDefault("crawl.max_depth", DefaultMaxDepth)
	v.SetDefault("crawl.max_folders_per_level", DefaultMaxFoldersPerLevel)
	v.SetDefault("crawl.throttle_delay", DefaultThrottleDelay)
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.max_size", DefaultCacheMaxSize)
	v.SetDefault("pagination.default_page_size", DefaultPageSize)
	v.SetDefault("pagination.max_page_size", DefaultMaxPageSize)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.components", map[string]string{
		"graph":   "info",
		"crawler": "info",
		"jobs":    "info",
		"index":   "info",
		"api":     "info",
	})
	v.SetDefault("logging.file", "")
	v.SetDefault("server.listen_addr", DefaultListenAddr)

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "sitedex"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "sitedex"), nil
}

// StateDir returns $XDG_STATE_HOME/sitedex/ for runtime state files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "sitedex")
}

// LogFilePath returns the conventional log file location under StateDir.
func LogFilePath() string {
	return filepath.Join(StateDir(), "sitedex.log")
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a commented default config file if none exists.
// Returns nil if a config file already exists.
func WriteDefault() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configDir, err := ConfigDir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# Sitedex Configuration

# Client credentials for the remote repository (required)
azure:
  tenant_id: ""
  client_id: ""
  client_secret: ""

# Sites to index; empty means discover everything visible to the credential
site_ids: []

# crawl:
#   folder_timeout: %s
#   site_timeout: %s
#   max_depth: %d
#   max_folders_per_level: %d
#   throttle_delay: %s

# server:
#   listen_addr: "%s"
#   api_token: ""

logging:
  level: info
  # Uncomment to log to a file instead of stderr
  # file: %s
`,
		DefaultFolderTimeout, DefaultSiteTimeout, DefaultMaxDepth,
		DefaultMaxFoldersPerLevel, DefaultThrottleDelay,
		DefaultListenAddr, LogFilePath())

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
