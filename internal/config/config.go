// Package config carrega a configuração do serviço em camadas:
// defaults, arquivo YAML e variáveis PETITION_*.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"petition-gateway/middleware/cors"
	"petition-gateway/petition/domain"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "petition.config"

const EnvPrefix = "PETITION"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreBadger = "badger"
	StoreRedis  = "redis"

	LimiterMemory = "memory"
	LimiterRedis  = "redis"
)

type Config struct {
	Listen          string        `yaml:"listen"          envconfig:"LISTEN"`
	Debug           bool          `yaml:"debug"           envconfig:"DEBUG"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
	// Regions substitui o catálogo padrão (50 estados + DC).
	Regions        []string `yaml:"regions"        envconfig:"REGIONS"`
	AllowedOrigins []string `yaml:"allowedOrigins" split_words:"true"`

	Store       StoreConfig       `yaml:"store"       envconfig:"STORE"`
	Redis       RedisConfig       `yaml:"redis"       envconfig:"REDIS"`
	Verifier    VerifierConfig    `yaml:"verifier"    envconfig:"VERIFIER"`
	RateLimit   RateLimitConfig   `yaml:"rateLimit"   envconfig:"RATE"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" envconfig:"CONCURRENCY"`
	Counts      CountsConfig      `yaml:"counts"      envconfig:"COUNTS"`
	Metrics     MetricsConfig     `yaml:"metrics"     envconfig:"METRICS"`
	Tracing     TracingConfig     `yaml:"tracing"     envconfig:"TRACING"`
}

type StoreConfig struct {
	// Driver: memory, sqlite, badger ou redis.
	Driver string `yaml:"driver" envconfig:"DRIVER"`
	// DataDir vazio roda sqlite/badger em memória.
	DataDir string        `yaml:"dataDir" split_words:"true"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"     envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db"       envconfig:"DB"`
	Prefix   string `yaml:"prefix"   envconfig:"PREFIX"`
}

type VerifierConfig struct {
	URL     string        `yaml:"url"     envconfig:"URL"`
	Secret  string        `yaml:"secret"  envconfig:"SECRET"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	// Disabled troca o verificador por um que aprova tudo. Só para dev.
	Disabled bool `yaml:"disabled" envconfig:"DISABLED"`
}

type RateLimitConfig struct {
	// Backend do limite de escrita: memory (token bucket) ou redis (janela fixa).
	Backend     string        `yaml:"backend"     envconfig:"BACKEND"`
	SignLimit   int           `yaml:"signLimit"   split_words:"true"`
	SignWindow  time.Duration `yaml:"signWindow"  split_words:"true"`
	ReadEnabled bool          `yaml:"readEnabled" split_words:"true"`
	ReadRPS     float64       `yaml:"readRPS"     envconfig:"READ_RPS"`
	ReadBurst   int           `yaml:"readBurst"   split_words:"true"`
	RetryAfter  time.Duration `yaml:"retryAfter"  split_words:"true"`
	// KeyHeader tem prioridade sobre X-Forwarded-For e RemoteAddr.
	KeyHeader         string `yaml:"keyHeader"         split_words:"true"`
	TrustXFF          bool   `yaml:"trustXFF"          envconfig:"TRUST_XFF"`
	AddHeaders        bool   `yaml:"addHeaders"        split_words:"true"`
	FingerprintSecret string `yaml:"fingerprintSecret" split_words:"true"`

	Stats StatsConfig `yaml:"stats" envconfig:"STATS"`
}

// StatsConfig liga os contadores de decisão em Redis (além do Prometheus).
type StatsConfig struct {
	Redis     bool          `yaml:"redis"     envconfig:"REDIS"`
	Prefix    string        `yaml:"prefix"    envconfig:"PREFIX"`
	TTL       time.Duration `yaml:"ttl"       envconfig:"TTL"`
	Bucket    string        `yaml:"bucket"    envconfig:"BUCKET"`
	TrackKeys bool          `yaml:"trackKeys" split_words:"true"`
}

type ConcurrencyConfig struct {
	Max            int           `yaml:"max"            envconfig:"MAX"`
	AcquireTimeout time.Duration `yaml:"acquireTimeout" split_words:"true"`
}

type CountsConfig struct {
	TTL     time.Duration `yaml:"ttl"     envconfig:"TTL"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	// MaxStale limita a idade do snapshot servido com o store fora. Zero usa 4x TTL.
	MaxStale time.Duration `yaml:"maxStale" split_words:"true"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"     envconfig:"ENABLED"`
	Endpoint    string  `yaml:"endpoint"    envconfig:"ENDPOINT"`
	Insecure    bool    `yaml:"insecure"    envconfig:"INSECURE"`
	SampleRatio float64 `yaml:"sampleRatio" split_words:"true"`
}

// Default devolve uma cópia nova dos valores padrão.
func Default() *Config {
	return &Config{
		Listen:          ":8080",
		ShutdownTimeout: 10 * time.Second,
		Store: StoreConfig{
			Driver:  StoreSQLite,
			DataDir: ".petition",
			Timeout: 3 * time.Second,
		},
		Redis: RedisConfig{
			Prefix: "{petition}",
		},
		Verifier: VerifierConfig{
			Timeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Backend:     LimiterMemory,
			SignLimit:   5,
			SignWindow:  time.Minute,
			ReadEnabled: true,
			ReadRPS:     20,
			ReadBurst:   40,
			RetryAfter:  time.Second,
			Stats: StatsConfig{
				Prefix: "petition:ratelimit:stats",
				TTL:    24 * time.Hour,
				Bucket: "minute",
			},
		},
		Concurrency: ConcurrencyConfig{
			Max: 256,
		},
		Counts: CountsConfig{
			TTL:     30 * time.Second,
			Timeout: 3 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadConfig aplica o YAML (configFile, ou PETITION_CONFIG) e depois o
// ambiente sobre os defaults. Não valida; chame Validate depois das flags.
func LoadConfig(configFile string) (*Config, error) {
	cfg := Default()
	if configFile == "" {
		configFile = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	return cfg, nil
}

// UsesRedis diz se algum componente precisa do cliente Redis.
func (c *Config) UsesRedis() bool {
	return c.Store.Driver == StoreRedis ||
		c.RateLimit.Backend == LimiterRedis ||
		c.RateLimit.Stats.Redis
}

// Catalog monta o catálogo de regiões configurado.
func (c *Config) Catalog() (domain.Catalog, error) {
	if len(c.Regions) == 0 {
		return domain.NewCatalog(domain.DefaultRegions)
	}
	return domain.NewCatalog(c.Regions)
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite, StoreBadger, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.RateLimit.Backend {
	case LimiterMemory, LimiterRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend))
	}
	if c.RateLimit.SignLimit <= 0 {
		errs = append(errs, errors.New("rateLimit.signLimit must be > 0"))
	}
	if c.RateLimit.SignWindow <= 0 {
		errs = append(errs, errors.New("rateLimit.signWindow must be > 0"))
	}
	if c.RateLimit.ReadEnabled && (c.RateLimit.ReadRPS <= 0 || c.RateLimit.ReadBurst <= 0) {
		errs = append(errs, errors.New("rateLimit.readRPS and readBurst must be > 0"))
	}
	if c.Counts.MaxStale < 0 {
		errs = append(errs, errors.New("counts.maxStale must be >= 0"))
	}
	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("concurrency.max must be >= 0"))
	}
	if !c.Verifier.Disabled && c.Verifier.Secret == "" {
		errs = append(errs, errors.New("verifier.secret is required unless verifier.disabled is set"))
	}
	if c.UsesRedis() && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis.addr is required by the redis store, limiter or stats"))
	}
	for _, o := range c.AllowedOrigins {
		if _, err := cors.NormalizeOrigin(o); err != nil {
			errs = append(errs, fmt.Errorf("allowed origin %q: %w", o, err))
		}
	}
	if _, err := c.Catalog(); err != nil {
		errs = append(errs, fmt.Errorf("regions: %w", err))
	}
	return errors.Join(errs...)
}
