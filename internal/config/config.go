package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Egham-7/substreams-bridge/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// TokenEnvVar holds the API token required by stream calls
	TokenEnvVar = "SUBSTREAMS_API_TOKEN"
	// ConfigEnvVar optionally points at a YAML configuration file
	ConfigEnvVar = "SUBSTREAMS_BRIDGE_CONFIG"

	defaultRegistryCacheSize = 64
	defaultHTTPTimeout       = 30 * time.Second
	defaultHTTPRetries       = 3
	defaultHTTPRetryDelay    = time.Second
	defaultStreamMaxRetries  = 5
	defaultStreamBackoff     = 500 * time.Millisecond
)

// Config represents the complete bridge configuration
type Config struct {
	Server   models.ServerConfig    `yaml:"server"`
	Registry models.RegistryConfig  `yaml:"registry"`
	HTTP     models.HTTPConfig      `yaml:"http"`
	Stream   models.StreamConfig    `yaml:"stream"`
	Cursor   models.CursorConfig    `yaml:"cursor"`
	Sink     models.SinkConfig      `yaml:"sink"`
	Database *models.DatabaseConfig `yaml:"database,omitempty"`
}

// Default returns a configuration that works without any file: no-op cursor
// hooks, the public registry and conservative network settings.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads the file named by SUBSTREAMS_BRIDGE_CONFIG when set, and falls
// back to Default otherwise.
func Load() (*Config, error) {
	path := os.Getenv(ConfigEnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFromFile(path)
}

// LoadFromFile loads configuration from a YAML file with environment variable substitution
func LoadFromFile(configPath string) (*Config, error) {
	// Validate and clean the file path to prevent directory traversal
	cleanPath := filepath.Clean(configPath)

	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal not allowed")
	}

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration after substituting environment variables
func Parse(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadEnvFiles loads environment variables from .env files in order of precedence
// Loads files in the order provided (first has highest priority)
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err == nil {
				fiberlog.Debugf("Loaded environment variables from %s", envFile)
			}
		}
	}
}

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		submatches := re.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""

		if len(submatches) > 2 && submatches[2] != "" {
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// ApplyDefaults fills every unset field with its default
func (c *Config) ApplyDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.Host == "" {
		c.Server.Host = models.DefaultServerHost
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Registry.URL == "" {
		c.Registry.URL = models.DefaultRegistryURL
	}
	c.Registry.URL = strings.TrimRight(c.Registry.URL, "/")
	if c.Registry.CacheSize <= 0 {
		c.Registry.CacheSize = defaultRegistryCacheSize
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = defaultHTTPTimeout
	}
	if c.HTTP.Retries <= 0 {
		c.HTTP.Retries = defaultHTTPRetries
	}
	if c.HTTP.RetryDelay <= 0 {
		c.HTTP.RetryDelay = defaultHTTPRetryDelay
	}
	if c.Stream.MaxRetries <= 0 {
		c.Stream.MaxRetries = defaultStreamMaxRetries
	}
	if c.Stream.RetryBackoff <= 0 {
		c.Stream.RetryBackoff = defaultStreamBackoff
	}
	if c.Cursor.Backend == "" {
		c.Cursor.Backend = models.CursorBackendNone
	}
	if c.Cursor.KeyPrefix == "" {
		c.Cursor.KeyPrefix = "substreams:cursor:"
	}
}

// GetNormalizedLogLevel returns the log level in lowercase for consistent comparison
func (c *Config) GetNormalizedLogLevel() string {
	return strings.ToLower(c.Server.LogLevel)
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate checks that every backend has what it needs
func (c *Config) Validate() error {
	var missing []string

	switch c.Cursor.Backend {
	case models.CursorBackendNone, models.CursorBackendMemory:
	case models.CursorBackendDatabase:
		if c.Database == nil {
			missing = append(missing, "database")
		}
	case models.CursorBackendRedis:
		if c.Cursor.RedisURL == "" {
			missing = append(missing, "cursor.redis_url")
		}
	case models.CursorBackendLevelDB:
		if c.Cursor.Path == "" {
			missing = append(missing, "cursor.path")
		}
	default:
		return fmt.Errorf("unsupported cursor backend: %s (supported: none, memory, database, redis, leveldb)", c.Cursor.Backend)
	}

	if c.Sink.Enabled && c.Database == nil {
		missing = append(missing, "database")
	}

	if len(missing) > 0 {
		return &ValidationError{MissingFields: missing}
	}

	return nil
}

// APIToken returns the stream API token from the environment. A missing token
// and an expired JWT are both configuration errors.
func (c *Config) APIToken() (string, error) {
	token := strings.TrimSpace(os.Getenv(TokenEnvVar))
	if token == "" {
		return "", models.NewConfigurationError("missing API token", models.ErrMissingToken)
	}
	if err := checkTokenExpiry(token, time.Now()); err != nil {
		return "", err
	}
	return token, nil
}

// checkTokenExpiry rejects JWTs whose exp claim has passed. Tokens that are not
// JWTs are opaque API keys and pass through untouched.
func checkTokenExpiry(token string, now time.Time) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}

	if now.After(exp.Time) {
		return models.NewConfigurationError(
			fmt.Sprintf("token expired at %s", exp.Time.UTC().Format(time.RFC3339)),
			models.ErrTokenExpired,
		)
	}
	return nil
}

type ValidationError struct {
	MissingFields []string
}

func (e *ValidationError) Error() string {
	return "missing required configuration fields: " + strings.Join(e.MissingFields, ", ")
}
