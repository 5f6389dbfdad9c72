package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/rl1809/marketplace/internal/core/domain"
)

// EnvPrefix scopes environment overrides, e.g. MARKET_MYSQL__DSN.
const EnvPrefix = "MARKET_"

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		Env      string `koanf:"env"`
		HTTPAddr string `koanf:"http_addr"`
		GRPCAddr string `koanf:"grpc_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout    time.Duration `koanf:"read_timeout"`
		WriteTimeout   time.Duration `koanf:"write_timeout"`
		IdleTimeout    time.Duration `koanf:"idle_timeout"`
		RequestTimeout time.Duration `koanf:"request_timeout"`
		AllowOrigins   []string      `koanf:"allow_origins"`
	} `koanf:"http"`

	Storage struct {
		Driver string `koanf:"driver"` // mysql | mongo | memory
	} `koanf:"storage"`

	MySQL struct {
		DSN             string        `koanf:"dsn"`
		MaxOpenConns    int           `koanf:"max_open_conns"`
		MaxIdleConns    int           `koanf:"max_idle_conns"`
		ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
		Migrate         bool          `koanf:"migrate"`
	} `koanf:"mysql"`

	Mongo struct {
		URI      string `koanf:"uri"`
		Database string `koanf:"database"`
	} `koanf:"mongo"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
		PoolSize int    `koanf:"pool_size"`
	} `koanf:"redis"`

	Idempotency struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"idempotency"`

	Checkout struct {
		CommissionRate string `koanf:"commission_rate"`
	} `koanf:"checkout"`

	Delivery struct {
		CodeTTL       time.Duration `koanf:"code_ttl"`
		MaxAttempts   int           `koanf:"max_attempts"`
		LockoutWindow time.Duration `koanf:"lockout_window"`
	} `koanf:"delivery"`

	Notify struct {
		Driver       string        `koanf:"driver"` // rabbitmq | mail | log
		Workers      int           `koanf:"workers"`
		QueueSize    int           `koanf:"queue_size"`
		MaxRetries   int           `koanf:"max_retries"`
		RetryBackoff time.Duration `koanf:"retry_backoff"`
		JobTimeout   time.Duration `koanf:"job_timeout"`
	} `koanf:"notify"`

	Rabbit struct {
		URL      string        `koanf:"url"`
		Exchange string        `koanf:"exchange"`
		Prefetch int           `koanf:"prefetch"`
		Timeout  time.Duration `koanf:"timeout"`
	} `koanf:"rabbitmq"`

	Mail struct {
		Host     string `koanf:"host"`
		Port     int    `koanf:"port"`
		Username string `koanf:"username"`
		Password string `koanf:"password"`
		From     string `koanf:"from"`
		TLS      bool   `koanf:"tls"`
	} `koanf:"mail"`

	Kafka struct {
		Enabled     bool     `koanf:"enabled"`
		Brokers     []string `koanf:"brokers"`
		TopicEvents string   `koanf:"topic_events"`
		GroupID     string   `koanf:"group_id"`
	} `koanf:"kafka"`

	Security struct {
		JWTSecret string `koanf:"jwt_secret"`
		Issuer    string `koanf:"issuer"`
		Audience  string `koanf:"audience"`
	} `koanf:"security"`
}

// Load layers <dir>/base.yaml, <dir>/<env>.yaml (optional) and MARKET_* variables.
// A .env file in the working directory is loaded into the process environment first.
func Load(dir, envName string) (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(file.Provider(filepath.Join(dir, "base.yaml")), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	if envName != "" {
		overlay := filepath.Join(dir, envName+".yaml")
		if _, err := os.Stat(overlay); err == nil {
			if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", envName, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if cfg.App.Env == "" {
		cfg.App.Env = envName
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.App.HTTPAddr == "" {
		errs = append(errs, errors.New("app.http_addr required"))
	}
	if c.Security.JWTSecret == "" {
		errs = append(errs, errors.New("security.jwt_secret required"))
	}

	switch c.Storage.Driver {
	case "mysql":
		if c.MySQL.DSN == "" {
			errs = append(errs, errors.New("mysql.dsn required"))
		}
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("mongo.uri and mongo.database required"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q not supported", c.Storage.Driver))
	}

	switch c.Notify.Driver {
	case "rabbitmq":
		if c.Rabbit.URL == "" {
			errs = append(errs, errors.New("rabbitmq.url required"))
		}
		if c.Mail.Host == "" {
			errs = append(errs, errors.New("mail.host required to consume notifications"))
		}
	case "mail":
		if c.Mail.Host == "" {
			errs = append(errs, errors.New("mail.host required"))
		}
	case "log":
	default:
		errs = append(errs, fmt.Errorf("notify.driver %q not supported", c.Notify.Driver))
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers required when kafka.enabled"))
	}
	if _, err := c.CommissionRate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CommissionRate parses checkout.commission_rate, defaulting to 3%.
func (c Config) CommissionRate() (decimal.Decimal, error) {
	if c.Checkout.CommissionRate == "" {
		return domain.DefaultCommissionRate, nil
	}
	rate, err := decimal.NewFromString(c.Checkout.CommissionRate)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("checkout.commission_rate: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, fmt.Errorf("checkout.commission_rate %s out of range [0,1)", rate)
	}
	return rate, nil
}
