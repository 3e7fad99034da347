package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"PozzySearch/internal/source"
)

const (
	configPathEnv     = "POZZY_CONFIG"
	logLevelEnv       = "POZZY_LOG_LEVEL"
	logFormatEnv      = "POZZY_LOG_FORMAT"
	databaseDSNEnv    = "POZZY_DATABASE_DSN"
	databaseDriverEnv = "POZZY_DATABASE_DRIVER"
	searchTimeoutEnv  = "POZZY_SEARCH_TIMEOUT"
	proxyURLEnv       = "POZZY_PROXY_URL"
	serverAddrEnv     = "POZZY_SERVER_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Search   SearchConfig   `yaml:"search"`
	HTTP     HTTPConfig     `yaml:"http"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Sources  []SourceConfig `yaml:"sources"`
}

// LoggingConfig selects the slog level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SearchConfig tunes aggregation.
type SearchConfig struct {
	// Timeout bounds each source call.
	Timeout     time.Duration `yaml:"timeout"`
	Limit       int           `yaml:"limit"`
	Concurrency int           `yaml:"concurrency"`
}

// HTTPConfig is shared by every HTTP-based source.
type HTTPConfig struct {
	UserAgent     string        `yaml:"userAgent"`
	ProxyURL      string        `yaml:"proxyUrl"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	Burst         int           `yaml:"burst"`
}

// BreakerConfig controls the per-source circuit breaker; zero failures disables it.
type BreakerConfig struct {
	Failures uint32        `yaml:"failures"`
	Cooldown time.Duration `yaml:"cooldown"`
}

// DatabaseConfig describes where search history goes. An empty DSN disables it.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ServerConfig is used by the serve command.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SourceConfig describes a single retailer and the adapter kind serving it.
type SourceConfig struct {
	ID       string            `yaml:"id"`
	Name     string            `yaml:"name"`
	Kind     string            `yaml:"kind"`
	BaseURL  string            `yaml:"baseUrl"`
	Enabled  *bool             `yaml:"enabled"`
	Priority int               `yaml:"priority"`
	Options  map[string]string `yaml:"options"`
}

// Source converts the YAML entry into the registry configuration. Sources are
// enabled unless explicitly switched off.
func (s SourceConfig) Source() source.Config {
	enabled := s.Enabled == nil || *s.Enabled
	name := s.Name
	if name == "" {
		name = s.ID
	}
	return source.Config{
		ID:       strings.TrimSpace(s.ID),
		Name:     name,
		Kind:     strings.ToLower(strings.TrimSpace(s.Kind)),
		BaseURL:  strings.TrimSpace(s.BaseURL),
		Enabled:  enabled,
		Priority: s.Priority,
		Options:  s.Options,
	}
}

// SourceConfigs returns every configured source in file order.
func (c Config) SourceConfigs() []source.Config {
	out := make([]source.Config, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, s.Source())
	}
	return out
}

// Validate reports configuration errors that would prevent wiring.
func (c Config) Validate() error {
	seen := map[string]bool{}
	for i, s := range c.SourceConfigs() {
		if s.ID == "" {
			return fmt.Errorf("source #%d: id is required", i+1)
		}
		if seen[s.ID] {
			return fmt.Errorf("source %s: %w", s.ID, source.ErrDuplicateSource)
		}
		seen[s.ID] = true
		if s.Kind == "" {
			return fmt.Errorf("source %s: kind is required", s.ID)
		}
	}
	if c.Search.Limit < 0 {
		return fmt.Errorf("search limit must not be negative")
	}
	if c.Search.Limit > source.MaxLimit {
		return fmt.Errorf("search limit %d exceeds the per-source maximum of %d", c.Search.Limit, source.MaxLimit)
	}
	return nil
}

// Load reads YAML configuration from $POZZY_CONFIG (if set) and applies
// environment overrides.
func Load() Config {
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom is Load with an explicit file path; an empty path uses defaults only.
func LoadFrom(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(searchTimeoutEnv); v != "" {
		if d, err := time.ParseDuration(v); err != nil {
			log.Printf("config: invalid %s %q: %v", searchTimeoutEnv, v, err)
		} else {
			c.Search.Timeout = d
		}
	}

	if v := os.Getenv(proxyURLEnv); v != "" {
		c.HTTP.ProxyURL = v
	}

	if v := os.Getenv(serverAddrEnv); v != "" {
		c.Server.Addr = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Search.Timeout > 0 {
		base.Search.Timeout = override.Search.Timeout
	}
	if override.Search.Limit > 0 {
		base.Search.Limit = override.Search.Limit
	}
	if override.Search.Concurrency > 0 {
		base.Search.Concurrency = override.Search.Concurrency
	}

	if override.HTTP.UserAgent != "" {
		base.HTTP.UserAgent = override.HTTP.UserAgent
	}
	if override.HTTP.ProxyURL != "" {
		base.HTTP.ProxyURL = override.HTTP.ProxyURL
	}
	if override.HTTP.Timeout > 0 {
		base.HTTP.Timeout = override.HTTP.Timeout
	}
	if override.HTTP.RatePerSecond > 0 {
		base.HTTP.RatePerSecond = override.HTTP.RatePerSecond
	}
	if override.HTTP.Burst > 0 {
		base.HTTP.Burst = override.HTTP.Burst
	}

	if override.Breaker.Failures > 0 {
		base.Breaker.Failures = override.Breaker.Failures
	}
	if override.Breaker.Cooldown > 0 {
		base.Breaker.Cooldown = override.Breaker.Cooldown
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
		if base.Database.Driver == "" {
			base.Database.Driver = defaultConfig().Database.Driver
		}
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func enabled(v bool) *bool {
	return &v
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Search:  SearchConfig{Timeout: 8 * time.Second, Limit: source.DefaultLimit},
		HTTP: HTTPConfig{
			Timeout:       20 * time.Second,
			RatePerSecond: 2,
			Burst:         2,
		},
		Breaker:  BreakerConfig{Failures: 5, Cooldown: time.Minute},
		Database: DatabaseConfig{Driver: "sqlite3"},
		Server:   ServerConfig{Addr: ":8080"},
		Sources: []SourceConfig{
			{
				ID:       "mercadolivre",
				Name:     "Mercado Livre",
				Kind:     source.KindMercadoLivre,
				BaseURL:  "https://api.mercadolibre.com",
				Priority: 1,
				Options:  map[string]string{"site": "MLB"},
			},
			{
				ID:       "cea",
				Name:     "C&A",
				Kind:     source.KindVTEX,
				BaseURL:  "https://www.cea.com.br",
				Priority: 2,
			},
			{
				ID:       "farm",
				Name:     "FARM Rio",
				Kind:     source.KindVTEX,
				BaseURL:  "https://www.farmrio.com.br",
				Priority: 3,
				Options:  map[string]string{"brand": "FARM"},
			},
			{
				ID:       "dafiti",
				Name:     "Dafiti",
				Kind:     source.KindStorefront,
				BaseURL:  "https://www.dafiti.com.br",
				Enabled:  enabled(false),
				Priority: 4,
				Options: map[string]string{
					"searchPath":             "/catalog/",
					"queryParam":             "q",
					"pageParam":              "page",
					"selector.card":          ".product-box",
					"selector.name":          ".product-box-title",
					"selector.price":         ".product-box-price-to",
					"selector.originalPrice": ".product-box-price-from",
					"selector.brand":         ".product-box-brand",
					"selector.idAttr":        "data-product-sku",
				},
			},
		},
	}
}
