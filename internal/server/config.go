// Package server provides configuration helpers that define runtime defaults,
// validation, and the file and environment layers for the chat service.
package server

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultPort            = ":8080"
	DefaultOrigin          = "http://localhost:8080"
	DefaultMaxMessageSize  = 4096
	DefaultSendBufferSize  = 256
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "INFO"
)

// Config holds the server configuration settings including security controls.
type Config struct {
	// Port is the listen address, e.g. ":8080".
	Port string `yaml:"port" validate:"required"`

	// AllowedOrigins lists the origins allowed to open a WebSocket. "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins" validate:"dive,origin"`

	// MaxMessageSize caps a single inbound frame in bytes.
	MaxMessageSize int64 `yaml:"max_message_size" validate:"gt=0"`

	// SendBufferSize is the number of outbound frames queued per connection
	// before the connection is treated as too slow and dropped.
	SendBufferSize int `yaml:"send_buffer_size" validate:"gt=0"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server and the hub.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `yaml:"log_level" validate:"oneof=DEBUG INFO WARN ERROR"`
}

// envOverrides maps environment variables onto Config. Unset variables leave
// the file or default value in place.
type envOverrides struct {
	Port            *string        `env:"SERVER_PORT"`
	AllowedOrigins  *string        `env:"ALLOWED_ORIGINS"`
	MaxMessageSize  *int64         `env:"MAX_MESSAGE_SIZE"`
	SendBufferSize  *int           `env:"SEND_BUFFER_SIZE"`
	ShutdownTimeout *time.Duration `env:"SHUTDOWN_TIMEOUT"`
	LogLevel        *string        `env:"LOG_LEVEL"`
}

var (
	configMu     sync.RWMutex
	activeConfig Config

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("origin", func(fl validator.FieldLevel) bool {
		entry := fl.Field().String()
		_, rejected := parseOriginPolicy([]string{entry})
		return strings.TrimSpace(entry) != "" && len(rejected) == 0
	}); err != nil {
		panic(err)
	}
	return v
}

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port:            DefaultPort,
		AllowedOrigins:  []string{DefaultOrigin},
		MaxMessageSize:  DefaultMaxMessageSize,
		SendBufferSize:  DefaultSendBufferSize,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        DefaultLogLevel,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = DefaultSendBufferSize
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	// Unvalidated configs may carry malformed origins; they are dropped.
	policy, _ := parseOriginPolicy(cfg.AllowedOrigins)
	cfg.AllowedOrigins = policy.origins()

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
// Settings that are read when a connection opens take effect for new
// connections only.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(sanitized)
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig builds a Config from defaults, then the YAML file at path (if
// path is not empty), then environment variables, and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks structural constraints on the configuration.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return err
	}

	if o.Port != nil {
		cfg.Port = *o.Port
	}
	if o.AllowedOrigins != nil {
		cfg.AllowedOrigins = parseOrigins(*o.AllowedOrigins)
	}
	if o.MaxMessageSize != nil {
		cfg.MaxMessageSize = *o.MaxMessageSize
	}
	if o.SendBufferSize != nil {
		cfg.SendBufferSize = *o.SendBufferSize
	}
	if o.ShutdownTimeout != nil {
		cfg.ShutdownTimeout = *o.ShutdownTimeout
	}
	if o.LogLevel != nil {
		cfg.LogLevel = *o.LogLevel
	}
	return nil
}

func parseOrigins(origins string) []string {
	parts := lo.Map(strings.Split(origins, ","), func(s string, _ int) string { return strings.TrimSpace(s) })
	return lo.Compact(parts)
}
