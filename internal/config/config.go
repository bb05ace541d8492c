package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/viper"

	dbconfig "liveclass/pkg/database"
)

// EnvPrefix namespaces every environment override, e.g. LIVECLASS_HTTP_PORT
const EnvPrefix = "LIVECLASS"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *dbconfig.Config `mapstructure:"database"`
	HTTP      *HTTPConfig      `mapstructure:"http"`
	WebSocket *WebSocketConfig `mapstructure:"websocket"`
	Signaling *SignalingConfig `mapstructure:"signaling"`
	Auth      *AuthConfig      `mapstructure:"auth"`
	Redis     *RedisConfig     `mapstructure:"redis"`
	ICE       *ICEConfig       `mapstructure:"ice"`
	Log       *LogConfig       `mapstructure:"log"`
}

type HTTPConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// Addr returns the listen address
func (c *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type SignalingConfig struct {
	RateLimit       int           `mapstructure:"rate_limit"`
	RateWindow      time.Duration `mapstructure:"rate_window"`
	JoinGracePeriod time.Duration `mapstructure:"join_grace_period"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ICEServerConfig struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

// ICEConfig lists the STUN/TURN servers handed to browsers
type ICEConfig struct {
	Servers []ICEServerConfig `mapstructure:"servers"`
}

// WebRTCServers converts the configured servers to pion's representation
func (c *ICEConfig) WebRTCServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(c.Servers))
	for _, s := range c.Servers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	return servers
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// FUNCTIONAL DISCOVERY: Production-ready defaults based on classroom requirements
// Database on local filesystem, HTTP on standard port, WebSocket with 30s heartbeat
func DefaultConfig() *Config {
	return &Config{
		Database: dbconfig.DefaultConfig(),
		HTTP: &HTTPConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			AllowedOrigins: []string{},
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     100,
			MaxMessageSize: 128 * 1024,
		},
		Signaling: &SignalingConfig{
			RateLimit:       0,
			RateWindow:      time.Minute,
			JoinGracePeriod: 2 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Auth: &AuthConfig{},
		Redis: &RedisConfig{
			Addr: "localhost:6379",
		},
		ICE: &ICEConfig{
			Servers: []ICEServerConfig{
				{URLs: []string{"stun:stun.l.google.com:19302"}},
				{URLs: []string{"stun:stun1.l.google.com:19302"}},
			},
		},
		Log: &LogConfig{
			Level: "info",
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
// Critical for preventing runtime failures in production deployment
func (c *Config) Validate() error {
	if c.Database == nil || c.HTTP == nil || c.WebSocket == nil || c.Signaling == nil ||
		c.Auth == nil || c.Redis == nil || c.ICE == nil || c.Log == nil {
		return errors.New("every configuration section is required")
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Port 0 asks the kernel for a free port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("WebSocket max message size must be positive")
	}

	// A zero rate limit disables per-pair signal throttling
	if c.Signaling.RateLimit < 0 {
		return fmt.Errorf("signaling rate limit cannot be negative")
	}
	if c.Signaling.RateLimit > 0 && c.Signaling.RateWindow <= 0 {
		return fmt.Errorf("signaling rate window must be positive when limiting is enabled")
	}
	if c.Signaling.JoinGracePeriod < 0 {
		return fmt.Errorf("join grace period cannot be negative")
	}
	if c.Signaling.CleanupInterval <= 0 {
		return fmt.Errorf("signaling cleanup interval must be positive")
	}

	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required (set LIVECLASS_AUTH_SECRET)")
	}
	if len(c.Auth.Secret) < 16 {
		return fmt.Errorf("auth secret must be at least 16 characters")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address cannot be empty")
	}

	for i, s := range c.ICE.Servers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("ICE server %d has no URLs", i)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	return nil
}

// Load builds the configuration. Precedence: environment > file > defaults.
// path may be empty, in which case only defaults and environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	config := DefaultConfig()
	if v.IsSet("ice.servers") {
		// A configured list replaces the defaults instead of merging into them
		config.ICE.Servers = nil
	}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
// ICE servers are a list and are configured through the file only.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.path", d.Database.DatabasePath)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime)
	v.SetDefault("database.write_timeout", d.Database.WriteTimeout)

	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", d.HTTP.IdleTimeout)
	v.SetDefault("http.allowed_origins", d.HTTP.AllowedOrigins)

	v.SetDefault("websocket.ping_interval", d.WebSocket.PingInterval)
	v.SetDefault("websocket.read_timeout", d.WebSocket.ReadTimeout)
	v.SetDefault("websocket.write_timeout", d.WebSocket.WriteTimeout)
	v.SetDefault("websocket.buffer_size", d.WebSocket.BufferSize)
	v.SetDefault("websocket.max_message_size", d.WebSocket.MaxMessageSize)

	v.SetDefault("signaling.rate_limit", d.Signaling.RateLimit)
	v.SetDefault("signaling.rate_window", d.Signaling.RateWindow)
	v.SetDefault("signaling.join_grace_period", d.Signaling.JoinGracePeriod)
	v.SetDefault("signaling.cleanup_interval", d.Signaling.CleanupInterval)

	v.SetDefault("auth.secret", d.Auth.Secret)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
}
