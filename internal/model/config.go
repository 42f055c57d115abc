package model

import "time"

// Config holds the complete Virasat configuration
type Config struct {
	AI       AIConfig       `yaml:"ai" mapstructure:"ai"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Capture  CaptureConfig  `yaml:"capture" mapstructure:"capture"`
	Location LocationConfig `yaml:"location" mapstructure:"location"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	MQTT     MQTTConfig     `yaml:"mqtt" mapstructure:"mqtt"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// AIConfig configures the remote verification model
type AIConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // gemini, openai, anthropic, ollama
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`

	// Client-side pacing of verification requests (0 disables)
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`

	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig configures the verdict cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskDir   string        `yaml:"disk_dir" mapstructure:"disk_dir"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// StorageConfig selects the key-value backend for discoveries
type StorageConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // file, sqlite
	Path    string `yaml:"path" mapstructure:"path"`
}

// CaptureConfig configures image acquisition and encoding
type CaptureConfig struct {
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MaxBytes  int64         `yaml:"max_bytes" mapstructure:"max_bytes"`
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LocationConfig configures the geolocation provider used at claim time
type LocationConfig struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"` // none, static, ip
	Latitude  float64       `yaml:"latitude" mapstructure:"latitude"`
	Longitude float64       `yaml:"longitude" mapstructure:"longitude"`
	Endpoint  string        `yaml:"endpoint" mapstructure:"endpoint"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ServerConfig configures the map API
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// MQTTConfig configures claim notifications
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker"`
	Topic    string `yaml:"topic" mapstructure:"topic"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text, json
}

// DefaultConfig returns sensible defaults. Relative paths are resolved
// against the data directory by the caller.
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Provider:  "gemini",
			Model:     "gemini-2.5-flash-lite",
			Timeout:   30,
			MaxTokens: 1024,
			BurstSize: 1,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 1 * time.Hour,
			DiskDir:   "cache",
			DiskTTL:   7 * 24 * time.Hour,
		},
		Storage: StorageConfig{
			Backend: "file",
			Path:    "data",
		},
		Capture: CaptureConfig{
			Dir:       "captures",
			MaxBytes:  20 << 20,
			UserAgent: "Virasat/0.1 (+https://github.com/ppiankov/virasat)",
			Timeout:   30 * time.Second,
		},
		Location: LocationConfig{
			Provider: "none",
			Endpoint: "http://ip-api.com/json",
			Timeout:  10 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://localhost:1883",
			Topic:    "virasat/discoveries",
			ClientID: "virasat",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
