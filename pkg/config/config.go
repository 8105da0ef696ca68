package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ExchangeConfig holds per-venue credentials and quota settings.
type ExchangeConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	RateLimit struct {
		MaxRequests     int           `yaml:"max_requests"`
		Period          time.Duration `yaml:"period"`
		SecondaryMax    int           `yaml:"secondary_max"`
		SecondaryPeriod time.Duration `yaml:"secondary_period"`
		SymbolGap       time.Duration `yaml:"symbol_gap"`
		SymbolJitter    time.Duration `yaml:"symbol_jitter"`
		BackoffFactor   float64       `yaml:"backoff_factor"`
		BackoffMax      float64       `yaml:"backoff_max"`
		RecoveryStreak  int           `yaml:"recovery_streak"`
	} `yaml:"rate_limit"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`
	// Priority is the canonical preference order for symbols listed on
	// several venues.
	Priority  []string `yaml:"priority"`
	Scheduler struct {
		Concurrency int           `yaml:"concurrency"`
		Lookback    time.Duration `yaml:"lookback"`
		Timeframes  []string      `yaml:"timeframes"`
		Symbols     []string      `yaml:"symbols"`
		MaxAge      time.Duration `yaml:"max_age"`
		MinRows     int64         `yaml:"min_rows"`
		Force       bool          `yaml:"force"`
		CatalogTTL  time.Duration `yaml:"catalog_ttl"`
	} `yaml:"scheduler"`
	Retry struct {
		MaxAttempts int           `yaml:"max_attempts"`
		BaseDelay   time.Duration `yaml:"base_delay"`
		MaxDelay    time.Duration `yaml:"max_delay"`
		Jitter      float64       `yaml:"jitter"`
	} `yaml:"retry"`
	Proxies struct {
		URLs             []string      `yaml:"urls"`
		FailureThreshold int           `yaml:"failure_threshold"`
		BaseCooldown     time.Duration `yaml:"base_cooldown"`
		MaxCooldown      time.Duration `yaml:"max_cooldown"`
		BanAfterCycles   int           `yaml:"ban_after_cycles"`
	} `yaml:"proxies"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		MetaTTL  time.Duration `yaml:"meta_ttl"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		CandleTopic  string   `yaml:"candle_topic"`
		ReportTopic  string   `yaml:"report_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Scheduler.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("TIMEFRAMES"); v != "" {
		c.Scheduler.Timeframes = strings.Split(v, ",")
	}
	if v := os.Getenv("PROXY_URLS"); v != "" {
		c.Proxies.URLs = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("exchanges cannot be empty")
	}
	if len(c.Priority) == 0 {
		return fmt.Errorf("priority cannot be empty")
	}
	for _, ex := range c.Priority {
		if _, ok := c.Exchanges[ex]; !ok {
			return fmt.Errorf("priority lists unknown exchange '%s'", ex)
		}
	}
	if len(c.Scheduler.Timeframes) == 0 {
		return fmt.Errorf("scheduler.timeframes cannot be empty")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
