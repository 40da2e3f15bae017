package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/modshell/internal/checksum"
)

// AppName names the per-user config and data directories
const AppName = "modshell"

// Defaults for unset fields
const (
	DefaultListenAddr    = "127.0.0.1:8787"
	DefaultLinePrefix    = "\r"
	DefaultCookieTimeout = 30 * time.Second
	storeFileBase        = ".metadata_cache"
)

// Config represents the complete modshell configuration
type Config struct {
	Paths PathsConfig `yaml:"paths"`
	Tools ToolsConfig `yaml:"tools"`
	Cache CacheConfig `yaml:"cache"`
	Sync  SyncConfig  `yaml:"sync"`
	Serve ServeConfig `yaml:"serve"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	ConfigDir string `yaml:"config_dir"`
	DataDir   string `yaml:"data_dir"`
	TempDir   string `yaml:"temp_dir"`
}

// ToolsConfig overrides the bundled tool locations
type ToolsConfig struct {
	Rclone       string `yaml:"rclone"`
	RcloneConfig string `yaml:"rclone_config"`
	BoostStudio  string `yaml:"booststudio"`
}

// CacheConfig configures the metadata cache
type CacheConfig struct {
	File      string `yaml:"file"`
	Algorithm string `yaml:"algorithm"`
}

// SyncConfig configures rclone syncs
type SyncConfig struct {
	CookieRemotes   []string      `yaml:"cookie_remotes"`
	DefaultExcludes []string      `yaml:"default_excludes"`
	LinePrefix      *string       `yaml:"line_prefix"`
	CookieTimeout   time.Duration `yaml:"cookie_timeout"`
}

// ServeConfig configures the bridge server
type ServeConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	TokenFile  string `yaml:"token_file"`
	Metrics    bool   `yaml:"metrics"`
}

// DefaultPath returns the config file location under the XDG config home
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads the file at DefaultPath, falling back to Default when
// it does not exist.
func LoadDefault() (*Config, error) {
	cfg, err := Load(DefaultPath())
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// expandEnv expands environment variables in all path-like string fields
func (c *Config) expandEnv() {
	c.Paths.ConfigDir = os.ExpandEnv(c.Paths.ConfigDir)
	c.Paths.DataDir = os.ExpandEnv(c.Paths.DataDir)
	c.Paths.TempDir = os.ExpandEnv(c.Paths.TempDir)
	c.Tools.Rclone = os.ExpandEnv(c.Tools.Rclone)
	c.Tools.RcloneConfig = os.ExpandEnv(c.Tools.RcloneConfig)
	c.Tools.BoostStudio = os.ExpandEnv(c.Tools.BoostStudio)
	c.Cache.File = os.ExpandEnv(c.Cache.File)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.TokenFile = os.ExpandEnv(c.Serve.TokenFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Paths.ConfigDir == "" {
		c.Paths.ConfigDir = filepath.Join(xdg.ConfigHome, AppName)
	}
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = filepath.Join(xdg.DataHome, AppName)
	}
	if c.Paths.TempDir == "" {
		c.Paths.TempDir = os.TempDir()
	}
	if c.Cache.Algorithm == "" {
		c.Cache.Algorithm = string(checksum.MD5)
	}
	if c.Sync.LinePrefix == nil {
		prefix := DefaultLinePrefix
		c.Sync.LinePrefix = &prefix
	}
	if c.Sync.CookieTimeout == 0 {
		c.Sync.CookieTimeout = DefaultCookieTimeout
	}
	if c.Serve.ListenAddr == "" {
		c.Serve.ListenAddr = DefaultListenAddr
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	dirs := []struct {
		name string
		path string
	}{
		{"paths.config_dir", c.Paths.ConfigDir},
		{"paths.data_dir", c.Paths.DataDir},
		{"paths.temp_dir", c.Paths.TempDir},
	}
	for _, d := range dirs {
		if d.path == "" {
			return fmt.Errorf("%s is required", d.name)
		}
		if !filepath.IsAbs(d.path) {
			return fmt.Errorf("%s must be an absolute path: %s", d.name, d.path)
		}
	}

	if c.Cache.File != "" && !filepath.IsAbs(c.Cache.File) {
		return fmt.Errorf("cache.file must be an absolute path: %s", c.Cache.File)
	}
	if !checksum.Algorithm(c.Cache.Algorithm).Valid() {
		return fmt.Errorf("invalid cache.algorithm: %s (must be md5, sha256, or xxhash)", c.Cache.Algorithm)
	}

	if c.Sync.CookieTimeout < 0 {
		return fmt.Errorf("sync.cookie_timeout must not be negative: %s", c.Sync.CookieTimeout)
	}

	if c.Serve.ListenAddr == "" {
		return fmt.Errorf("serve.listen_addr is required")
	}

	return nil
}

// StoreFilePath returns the metadata store file. md5 keeps the historical
// name; other algorithms get their own file so digests never mix.
func (c *Config) StoreFilePath() string {
	if c.Cache.File != "" {
		return c.Cache.File
	}
	if c.Cache.Algorithm == "" || c.Cache.Algorithm == string(checksum.MD5) {
		return filepath.Join(c.Paths.ConfigDir, storeFileBase+".dat")
	}
	return filepath.Join(c.Paths.ConfigDir, storeFileBase+"."+c.Cache.Algorithm+".dat")
}

// LinePrefix returns the prefix for forwarded sync lines
func (c *Config) LinePrefix() string {
	if c.Sync.LinePrefix == nil {
		return DefaultLinePrefix
	}
	return *c.Sync.LinePrefix
}

// ReadToken returns the bridge server token, or "" when none is configured
func (c *Config) ReadToken() (string, error) {
	if c.Serve.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Serve.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
