package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3"
	testMember = "a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
data_directory: /var/lib/thumbshare
logging:
  level: debug
  format: json
thumbnails:
  single_interval: 2s
  workers: 3
  video:
    enabled: true
    ffmpeg_path: /usr/bin/ffmpeg
p2p:
  listen: 0.0.0.0:7000
  requests_per_second: 10
  burst: 20
  peers:
    - identity: `+testMember+`
      address: nas.local:7000
libraries:
  - id: 5b1e0c1a-7d2f-4e8b-9a41-0f6c3d2e1b00
    name: Photos
    private_key: `+testKey+`
    members: [`+testMember+`]
metrics:
  enabled: true
  listen: 127.0.0.1:9100
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/thumbshare", cfg.DataDirectory)
	assert.Equal(t, filepath.Join("/var/lib/thumbshare", "thumbnails"), cfg.ThumbnailsDirectory())
	assert.Equal(t, filepath.Join("/var/lib/thumbshare", "index"), cfg.IndexDirectory())
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 2*time.Second, cfg.Thumbnails.SingleInterval)
	assert.Equal(t, DefaultGenerationTimeout, cfg.Thumbnails.GenerationTimeout)
	assert.Equal(t, 3, cfg.Thumbnails.Workers)
	assert.Equal(t, runtime.NumCPU(), cfg.Thumbnails.BatchConcurrency)
	assert.True(t, cfg.Thumbnails.Video.Enabled)
	assert.Equal(t, "/usr/bin/ffmpeg", cfg.Thumbnails.Video.FFmpegPath)
	assert.Equal(t, "pdftoppm", cfg.Thumbnails.Documents.PdftoppmPath)
	assert.Equal(t, 10.0, cfg.P2P.RequestsPerSecond)
	assert.Equal(t, 20, cfg.P2P.Burst)
	require.Len(t, cfg.P2P.Peers, 1)
	assert.Equal(t, "nas.local:7000", cfg.P2P.Peers[0].Address)
	require.Len(t, cfg.Libraries, 1)
	assert.Equal(t, "Photos", cfg.Libraries[0].Name)
	assert.Equal(t, []string{testMember}, cfg.Libraries[0].Members)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
data_directory = "/data"

[thumbnails]
generation_timeout = "30s"
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/data", cfg.DataDirectory)
	assert.Equal(t, 30*time.Second, cfg.Thumbnails.GenerationTimeout)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", "/xdg/data")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/xdg/data", "thumbshare"), cfg.DataDirectory)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, DefaultSingleInterval, cfg.Thumbnails.SingleInterval)
	assert.Equal(t, float64(DefaultRequestsPerSecond), cfg.P2P.RequestsPerSecond)
	assert.Equal(t, DefaultBurst, cfg.P2P.Burst)
	assert.Equal(t, DefaultListen, cfg.P2P.Listen)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Libraries)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
data_directory: /from/file
logging:
  level: warn
p2p:
  listen: 0.0.0.0:7000
`)
	t.Setenv("THUMBSHARE_LOGGING_LEVEL", "error")
	t.Setenv("THUMBSHARE_P2P_LISTEN", "0.0.0.0:7001")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("p2p.listen", "", "")
	require.NoError(t, flags.Parse([]string{"--p2p.listen=0.0.0.0:7002"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "/from/file", cfg.DataDirectory)
	assert.Equal(t, "ERROR", cfg.Logging.Level, "environment beats file")
	assert.Equal(t, "0.0.0.0:7002", cfg.P2P.Listen, "flags beat environment")
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "logging: [unterminated")
	_, err := Load(path, nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := GetDefaultConfig()
		cfg.DataDirectory = "/data"
		cfg.Libraries = []LibraryConfig{{
			ID:         "5b1e0c1a-7d2f-4e8b-9a41-0f6c3d2e1b00",
			Name:       "Photos",
			PrivateKey: testKey,
		}}
		cfg.P2P.Peers = []PeerConfig{{Identity: testMember, Address: "peer:7000"}}
		return cfg
	}
	require.NoError(t, Validate(valid()))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Logging.Level = "TRACE" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"negative interval", func(c *Config) { c.Thumbnails.SingleInterval = -time.Second }},
		{"no workers", func(c *Config) { c.Thumbnails.Workers = -1 }},
		{"library id", func(c *Config) { c.Libraries[0].ID = "photos" }},
		{"library name", func(c *Config) { c.Libraries[0].Name = "" }},
		{"private key length", func(c *Config) { c.Libraries[0].PrivateKey = "abcd" }},
		{"member not hex", func(c *Config) { c.Libraries[0].Members = []string{"zz"} }},
		{"duplicate library", func(c *Config) { c.Libraries = append(c.Libraries, c.Libraries[0]) }},
		{"peer address", func(c *Config) { c.P2P.Peers[0].Address = "nowhere" }},
		{"duplicate peer", func(c *Config) { c.P2P.Peers = append(c.P2P.Peers, c.P2P.Peers[0]) }},
		{"metrics on p2p port", func(c *Config) {
			c.P2P.Listen = "0.0.0.0:7000"
			c.Metrics.Enabled = true
			c.Metrics.Listen = "0.0.0.0:7000"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
