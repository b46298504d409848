package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/opd-ai/thumbshare/media"
)

const (
	DefaultSingleInterval    = time.Second
	DefaultGenerationTimeout = 60 * time.Second
	DefaultRequestsPerSecond = 50
	DefaultBurst             = 100
	DefaultListen            = ":7373"
	DefaultMetricsListen     = "127.0.0.1:9373"
)

func defaultValues() map[string]any {
	return map[string]any{
		"data_directory":                     defaultDataDirectory(),
		"logging.level":                      "INFO",
		"logging.format":                     "text",
		"thumbnails.single_interval":         DefaultSingleInterval,
		"thumbnails.generation_timeout":      DefaultGenerationTimeout,
		"thumbnails.workers":                 runtime.NumCPU(),
		"thumbnails.batch_concurrency":       runtime.NumCPU(),
		"thumbnails.video.enabled":           false,
		"thumbnails.video.ffmpeg_path":       "ffmpeg",
		"thumbnails.documents.enabled":       false,
		"thumbnails.documents.pdftoppm_path": "pdftoppm",
		"thumbnails.documents.dpi":           media.DefaultDPI,
		"p2p.listen":                         DefaultListen,
		"p2p.requests_per_second":            DefaultRequestsPerSecond,
		"p2p.burst":                          DefaultBurst,
		"metrics.enabled":                    false,
		"metrics.listen":                     DefaultMetricsListen,
	}
}

// ApplyDefaults fills zero values and normalizes the log level.
func ApplyDefaults(cfg *Config) {
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = defaultDataDirectory()
	}
	applyLoggingDefaults(&cfg.Logging)
	applyThumbnailsDefaults(&cfg.Thumbnails)
	applyP2PDefaults(&cfg.P2P)
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
}

func applyThumbnailsDefaults(cfg *ThumbnailsConfig) {
	if cfg.SingleInterval == 0 {
		cfg.SingleInterval = DefaultSingleInterval
	}
	if cfg.GenerationTimeout == 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchConcurrency == 0 {
		cfg.BatchConcurrency = runtime.NumCPU()
	}
	if cfg.Video.FFmpegPath == "" {
		cfg.Video.FFmpegPath = "ffmpeg"
	}
	if cfg.Documents.PdftoppmPath == "" {
		cfg.Documents.PdftoppmPath = "pdftoppm"
	}
	if cfg.Documents.DPI == 0 {
		cfg.Documents.DPI = media.DefaultDPI
	}
}

func applyP2PDefaults(cfg *P2PConfig) {
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst == 0 {
		cfg.Burst = DefaultBurst
	}
}

// defaultDataDirectory is $XDG_DATA_HOME/thumbshare or ~/.local/share/thumbshare.
func defaultDataDirectory() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "thumbshare")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "thumbshare-data"
	}
	return filepath.Join(home, ".local", "share", "thumbshare")
}

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{
		P2P:     P2PConfig{Listen: DefaultListen},
		Metrics: MetricsConfig{Listen: DefaultMetricsListen},
	}
	ApplyDefaults(cfg)
	return cfg
}
