package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration for workers, the admin surface and the CLI.
type Config struct {
	Temporal      TemporalConfig      `mapstructure:"temporal"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Tools         ToolsConfig         `mapstructure:"tools"`
	Policy        PolicyConfig        `mapstructure:"policy"`
	Approval      ApprovalConfig      `mapstructure:"approval"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type TemporalConfig struct {
	Host          string        `mapstructure:"host"`
	Namespace     string        `mapstructure:"namespace"`
	DefaultQueue  string        `mapstructure:"default_queue"`
	ClientTimeout time.Duration `mapstructure:"client_timeout"`
	DialAttempts  int           `mapstructure:"dial_attempts"`
}

// QueueConcurrency bounds one worker's pollers.
type QueueConcurrency struct {
	Activities int `mapstructure:"activities"`
	Workflows  int `mapstructure:"workflows"`
}

type WorkerConfig struct {
	Enabled bool                        `mapstructure:"enabled"`
	Queues  map[string]QueueConcurrency `mapstructure:"queues"`
}

type HTTPConfig struct {
	Port      int     `mapstructure:"port"`
	AuthToken string  `mapstructure:"auth_token"`
	JWTSecret string  `mapstructure:"jwt_secret"`
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	// Path is used by the sqlite3 driver.
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	StreamMaxLen int64  `mapstructure:"stream_max_len"`
}

type ToolsConfig struct {
	WorkspaceRoot     string        `mapstructure:"workspace_root"`
	SimulateProviders bool          `mapstructure:"simulate_providers"`
	BashTimeout       time.Duration `mapstructure:"bash_timeout"`
	Shell             string        `mapstructure:"shell"`
	TokenLimit        int           `mapstructure:"token_limit"`
}

type PolicyConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Mode        string `mapstructure:"mode"`
	Path        string `mapstructure:"path"`
	FailClosed  bool   `mapstructure:"fail_closed"`
	Environment string `mapstructure:"environment"`
}

type ApprovalConfig struct {
	RulesFile    string        `mapstructure:"rules_file"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxHistory   int           `mapstructure:"max_history"`
}

type ObservabilityConfig struct {
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
	Tracing struct {
		Enabled      bool   `mapstructure:"enabled"`
		ServiceName  string `mapstructure:"service_name"`
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"tracing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.default_queue", "chat-processing")
	v.SetDefault("temporal.client_timeout", 10*time.Second)
	v.SetDefault("temporal.dial_attempts", 30)

	v.SetDefault("worker.enabled", true)

	v.SetDefault("http.port", 8081)
	v.SetDefault("http.rate_limit", 20.0)
	v.SetDefault("http.rate_burst", 40)
	v.SetDefault("http.auth_token", "")
	v.SetDefault("http.jwt_secret", "")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "chatflow")
	v.SetDefault("database.name", "chatflow")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream_max_len", 1000)

	v.SetDefault("tools.workspace_root", "/workspace")
	v.SetDefault("tools.bash_timeout", 10*time.Minute)
	v.SetDefault("tools.shell", "/bin/sh")
	v.SetDefault("tools.simulate_providers", false)
	v.SetDefault("tools.token_limit", 0)

	v.SetDefault("policy.enabled", false)
	v.SetDefault("policy.fail_closed", false)
	v.SetDefault("policy.mode", "off")
	v.SetDefault("policy.path", "/app/config/opa/policies")
	v.SetDefault("policy.environment", "dev")

	v.SetDefault("approval.rules_file", "")
	v.SetDefault("approval.poll_interval", 30*time.Second)
	v.SetDefault("approval.max_history", 0)

	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 2112)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.service_name", "chatflow-orchestrator")
	v.SetDefault("observability.tracing.otlp_endpoint", "localhost:4317")
}

// Load reads CONFIG_PATH (default /app/config/chatflow.yaml) with CHATFLOW_* env overrides.
// A missing file is not an error; defaults apply.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "/app/config/chatflow.yaml"
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CHATFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite3", "":
	default:
		return fmt.Errorf("database.driver %q not supported", c.Database.Driver)
	}
	switch c.Policy.Mode {
	case "off", "dry-run", "enforce":
	default:
		return fmt.Errorf("policy.mode %q not supported", c.Policy.Mode)
	}
	if c.Temporal.ClientTimeout <= 0 {
		return fmt.Errorf("temporal.client_timeout must be positive")
	}
	return nil
}

// Concurrency returns the configured pollers for queue, or defaults.
func (c *Config) Concurrency(queue string) QueueConcurrency {
	qc := c.Worker.Queues[queue]
	if qc.Activities <= 0 {
		qc.Activities = 20
	}
	if qc.Workflows <= 0 {
		qc.Workflows = 10
	}
	return qc
}

// MetricsPort returns the port from METRICS_PORT, then config, then defaultPort.
func (c *Config) MetricsPort(defaultPort int) int {
	if p := os.Getenv("METRICS_PORT"); p != "" {
		var v int
		_, _ = fmt.Sscanf(p, "%d", &v)
		if v > 0 {
			return v
		}
	}
	if c != nil && c.Observability.Metrics.Port > 0 {
		return c.Observability.Metrics.Port
	}
	return defaultPort
}
