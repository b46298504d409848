// Package config loads the node configuration.
//
// Sources, highest priority first: command line flags, THUMBSHARE_*
// environment variables, the configuration file (YAML or TOML), defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. THUMBSHARE_LOGGING_LEVEL.
const EnvPrefix = "THUMBSHARE"

// Config is the complete node configuration.
type Config struct {
	// DataDirectory holds the index and the thumbnails directory.
	DataDirectory string `mapstructure:"data_directory" validate:"required"`

	Logging    LoggingConfig    `mapstructure:"logging"`
	Thumbnails ThumbnailsConfig `mapstructure:"thumbnails"`
	P2P        P2PConfig        `mapstructure:"p2p"`
	Libraries  []LibraryConfig  `mapstructure:"libraries" validate:"dive"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// LoggingConfig controls logrus.
type LoggingConfig struct {
	// Level is normalized to upper case by ApplyDefaults.
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// ThumbnailsConfig controls generation.
type ThumbnailsConfig struct {
	// SingleInterval is the minimum spacing between ad-hoc generations.
	SingleInterval time.Duration `mapstructure:"single_interval" validate:"gte=0"`
	// GenerationTimeout bounds one generation.
	GenerationTimeout time.Duration `mapstructure:"generation_timeout" validate:"gt=0"`
	// Workers is the size of the CPU pool.
	Workers int `mapstructure:"workers" validate:"gte=1"`
	// BatchConcurrency is the number of files a batch works on at once.
	BatchConcurrency int `mapstructure:"batch_concurrency" validate:"gte=1"`

	Video     VideoConfig     `mapstructure:"video"`
	Documents DocumentsConfig `mapstructure:"documents"`
}

// VideoConfig enables frame extraction through ffmpeg.
type VideoConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	FFmpegPath string `mapstructure:"ffmpeg_path"`
}

// DocumentsConfig enables first page rendering through pdftoppm.
type DocumentsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	PdftoppmPath string `mapstructure:"pdftoppm_path"`
	DPI          int    `mapstructure:"dpi" validate:"gte=0,lte=1200"`
}

// P2PConfig controls the listener and the address book.
type P2PConfig struct {
	// Listen is the TCP address for inbound streams. Empty disables serving.
	Listen            string       `mapstructure:"listen" validate:"omitempty,hostname_port"`
	RequestsPerSecond float64      `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int          `mapstructure:"burst" validate:"gte=0"`
	Peers             []PeerConfig `mapstructure:"peers" validate:"dive"`
}

// PeerConfig is one address book entry.
type PeerConfig struct {
	// Identity is the hex encoded public key of the peer.
	Identity string `mapstructure:"identity" validate:"required,hexadecimal,len=64"`
	Address  string `mapstructure:"address" validate:"required,hostname_port"`
}

// LibraryConfig describes one library this node belongs to.
type LibraryConfig struct {
	ID   string `mapstructure:"id" validate:"required,uuid"`
	Name string `mapstructure:"name" validate:"required"`
	// PrivateKey is the hex encoded secret key of this node in the library.
	PrivateKey string `mapstructure:"private_key" validate:"required,hexadecimal,len=64"`
	// Members are hex encoded public keys of the other instances.
	Members []string `mapstructure:"members" validate:"dive,hexadecimal,len=64"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen" validate:"omitempty,hostname_port"`
}

// ThumbnailsDirectory is where generated thumbnails are stored.
func (c *Config) ThumbnailsDirectory() string {
	return filepath.Join(c.DataDirectory, "thumbnails")
}

// IndexDirectory is where the file index database lives.
func (c *Config) IndexDirectory() string {
	return filepath.Join(c.DataDirectory, "index")
}

// Load reads configuration from configPath (or the default location when
// empty), the environment and flags, which may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Scalar keys must be known to viper for environment variables to apply.
	for key, value := range defaultValues() {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "thumbshare")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "thumbshare")
}

// DefaultConfigPath is the file Load reads when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
