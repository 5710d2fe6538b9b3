package config

// Config represents the complete boxhand configuration.
type Config struct {
	// Tool is the external orchestration binary to invoke.
	Tool string `yaml:"tool"`

	// UpFlags is appended verbatim to the `up` command line.
	UpFlags string `yaml:"up_flags,omitempty"`

	// FallbackDir is used when no Vagrantfile is found upward from the
	// working directory. Returned as-is, never verified.
	FallbackDir string `yaml:"fallback_dir,omitempty"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	History HistoryConfig `yaml:"history"`
	API     APIConfig     `yaml:"api,omitempty"`
	Viewer  ViewerConfig  `yaml:"viewer"`
}

// HistoryConfig defines dispatch log storage settings.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings for serve mode.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// Key is a single bearer token. Empty means the protected API
	// rejects everything, which is the safe default on loopback-only
	// deployments that never set a key.
	Key string `yaml:"key,omitempty"`
}

// ViewerConfig defines output viewer settings.
type ViewerConfig struct {
	// RingLines caps the number of output lines retained per viewer.
	RingLines int `yaml:"ring_lines"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Tool:      "vagrant",
		LogLevel:  "info",
		LogFormat: "json",
		History: HistoryConfig{
			Path: "~/.local/share/boxhand/history.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:7792",
		},
		Viewer: ViewerConfig{
			RingLines: 2000,
		},
	}
}
