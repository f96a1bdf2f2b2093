package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	JWTRequired bool          `mapstructure:"jwt_required" yaml:"jwt_required"`

	// MaxMessageBytes caps a single websocket frame and a REST send body.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// WSRateLimit is inbound websocket frames per second per connection; 0 disables it.
	WSRateLimit float64 `mapstructure:"ws_rate_limit" yaml:"ws_rate_limit"`

	Assets AssetsConfig `mapstructure:"assets" yaml:"assets"`
}

// AssetsConfig configures S3-compatible image storage. Upload is disabled when Bucket is empty.
type AssetsConfig struct {
	Bucket        string `mapstructure:"bucket" yaml:"bucket"`
	Region        string `mapstructure:"region" yaml:"region"`
	Endpoint      string `mapstructure:"endpoint" yaml:"endpoint"`
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "duochat.db",
		JWTSecret:         "change-me-in-production",
		JWTIssuer:         "duochat",
		JWTAudience:       "duochat",
		JWTTTL:            7 * 24 * time.Hour,
		JWTRequired:       true,
		MaxMessageBytes:   5 << 20,
		WSRateLimit:       20,
		Assets: AssetsConfig{
			Region: "us-east-1",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// JWTRequired is a bool and is only ever switched off explicitly by callers.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.WSRateLimit != 0 {
		c.WSRateLimit = other.WSRateLimit
	}
	if other.Assets.Bucket != "" {
		c.Assets.Bucket = other.Assets.Bucket
	}
	if other.Assets.Region != "" {
		c.Assets.Region = other.Assets.Region
	}
	if other.Assets.Endpoint != "" {
		c.Assets.Endpoint = other.Assets.Endpoint
	}
	if other.Assets.PublicBaseURL != "" {
		c.Assets.PublicBaseURL = other.Assets.PublicBaseURL
	}
}
