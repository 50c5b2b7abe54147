// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package config

import (
	"errors"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. BAYLEAF_LOCK_BACKEND.
const EnvPrefix = "BAYLEAF"

// Config is the top-level service configuration.
type Config struct {
	Env        string                    `mapstructure:"env"`
	Log        LogConfig                 `mapstructure:"log"`
	Networking NetworkingConfig          `mapstructure:"networking"`
	Auth       AuthConfig                `mapstructure:"auth"`
	Models     ModelsConfig              `mapstructure:"models"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Clinical   ClinicalConfig            `mapstructure:"clinical"`
	PHIFilter  PHIFilterConfig           `mapstructure:"phi_filter"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Agent      AgentConfig               `mapstructure:"agent"`
	Lock       LockConfig                `mapstructure:"lock"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NetworkingConfig controls the HTTP listener.
type NetworkingConfig struct {
	Listen         string   `mapstructure:"listen"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
}

// AuthConfig lists the scopes every caller token must carry.
type AuthConfig struct {
	RequiredScopes []string `mapstructure:"required_scopes"`
}

// ModelsConfig controls model selection.
type ModelsConfig struct {
	Default     string   `mapstructure:"default"`
	Failover    []string `mapstructure:"failover"`
	Temperature float64  `mapstructure:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens"`
}

// ProviderConfig holds credentials and endpoint for an LLM provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// ClinicalConfig points at the Bayleaf clinical backend.
type ClinicalConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	OnboardingPassword string        `mapstructure:"onboarding_password"`
}

// PHIFilterConfig points at the PHI detector.
type PHIFilterConfig struct {
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Entities []string      `mapstructure:"entities"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	Path        string `mapstructure:"path"`
	DatabaseURL string `mapstructure:"database_url"`
}

// AgentConfig tunes the turn loop.
type AgentConfig struct {
	HistoryLimit    int    `mapstructure:"history_limit"`
	DefaultLanguage string `mapstructure:"default_language"`
}

// LockConfig selects how turns on one conversation are serialized.
type LockConfig struct {
	Backend  string        `mapstructure:"backend"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KnownProviders lists the provider names the CLI can build.
var KnownProviders = []string{"anthropic", "google", "mock", "openai", "openrouter"}

// legacyEnv maps keys to the variable names the service has always read.
// The BAYLEAF_ form of each key is bound first and wins.
var legacyEnv = map[string]string{
	"env":                          "APP_ENV",
	"providers.openai.api_key":     "OPENAI_API_KEY",
	"providers.anthropic.api_key":  "ANTHROPIC_API_KEY",
	"providers.google.api_key":     "GEMINI_API_KEY",
	"providers.openrouter.api_key": "OPENROUTER_API_KEY",
	"storage.database_url":         "DATABASE_URL",
	"phi_filter.url":               "PHI_FILTER_URL",
	"phi_filter.entities":          "PHI_FILTER_ENTITIES",
	"clinical.base_url":            "BAYLEAF_BASE_URL",
	"lock.redis_url":               "REDIS_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("networking.listen", "0.0.0.0:8080")
	v.SetDefault("networking.cors_origins", []string{})
	v.SetDefault("networking.rate_limit_rps", 0)
	v.SetDefault("networking.rate_limit_burst", 0)
	v.SetDefault("auth.required_scopes", []string{})
	v.SetDefault("models.default", "mock/mock")
	v.SetDefault("models.failover", []string{})
	v.SetDefault("models.temperature", 0.2)
	v.SetDefault("models.max_tokens", 0)
	v.SetDefault("clinical.base_url", "http://localhost:8000")
	v.SetDefault("clinical.timeout", 15*time.Second)
	v.SetDefault("clinical.onboarding_password", "")
	v.SetDefault("phi_filter.url", "http://localhost:5002/analyze")
	v.SetDefault("phi_filter.timeout", 10*time.Second)
	v.SetDefault("phi_filter.entities", []string{"PERSON", "EMAIL_ADDRESS", "PHONE_NUMBER"})
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "./data/bayleaf-agents.db")
	v.SetDefault("storage.database_url", "")
	v.SetDefault("agent.history_limit", 20)
	v.SetDefault("agent.default_language", "pt-BR")
	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.redis_url", "")
	v.SetDefault("lock.ttl", 2*time.Minute)
}

// Load reads configuration from path (optional) with environment overrides,
// then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, name, legacy); err != nil {
			return nil, bayerr.Errorf(bayerr.CodeConfigLoadReadFailure, "binding %s: %w", legacy, err)
		}
	}
	// Map keys are invisible to AutomaticEnv until bound.
	for _, name := range KnownProviders {
		if err := v.BindEnv("providers." + name + ".endpoint"); err != nil {
			return nil, bayerr.Errorf(bayerr.CodeConfigLoadReadFailure, "binding %s endpoint: %w", name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, bayerr.Errorf(bayerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
		WarnInsecurePermissions(path)
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, bayerr.Errorf(bayerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	cfg.normalize()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, bayerr.Errorf(bayerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// normalize trims list entries read from comma-separated variables and
// drops providers that carry no settings at all.
func (c *Config) normalize() {
	c.PHIFilter.Entities = trimAll(c.PHIFilter.Entities)
	c.Networking.CORSOrigins = trimAll(c.Networking.CORSOrigins)
	c.Auth.RequiredScopes = trimAll(c.Auth.RequiredScopes)
	c.Models.Failover = trimAll(c.Models.Failover)
	for name, p := range c.Providers {
		if p == (ProviderConfig{}) {
			delete(c.Providers, name)
		}
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the configuration for logical errors.
// It returns every problem found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateLog()...)
	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateClinical()...)
	errs = append(errs, c.validatePHIFilter()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateAgent()...)
	errs = append(errs, c.validateLock()...)

	return errs
}

func invalid(format string, args ...any) error {
	return bayerr.Errorf(bayerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateLog() []error {
	var errs []error
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		errs = append(errs, invalid("log.level must be one of [debug, info, warn, error], got %q", c.Log.Level))
	}
	if !slices.Contains([]string{"json", "text"}, strings.ToLower(c.Log.Format)) {
		errs = append(errs, invalid("log.format must be one of [json, text], got %q", c.Log.Format))
	}
	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, invalid("networking.listen must not be empty"))
	} else if _, portStr, err := net.SplitHostPort(c.Networking.Listen); err != nil {
		errs = append(errs, invalid("networking.listen must be a valid host:port address, got %q: %w", c.Networking.Listen, err))
	} else if port, err := strconv.Atoi(portStr); err != nil {
		errs = append(errs, invalid("networking.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %d", port))
	}

	if c.Networking.RateLimitRPS < 0 {
		errs = append(errs, invalid("networking.rate_limit_rps must not be negative, got %g", c.Networking.RateLimitRPS))
	}
	if c.Networking.RateLimitRPS > 0 && c.Networking.RateLimitBurst <= 0 {
		errs = append(errs, invalid("networking.rate_limit_burst must be greater than 0 when a rate is set, got %d", c.Networking.RateLimitBurst))
	}
	return errs
}

func (c *Config) validateModels() []error {
	var errs []error

	check := func(field, ref string) {
		name, model, ok := strings.Cut(ref, "/")
		if !ok || name == "" || model == "" {
			errs = append(errs, invalid("%s must be in \"provider/model\" format, got %q", field, ref))
			return
		}
		if !slices.Contains(KnownProviders, name) {
			errs = append(errs, invalid("%s references unknown provider %q", field, name))
			return
		}
		if name != "mock" && c.Providers[name].APIKey == "" {
			errs = append(errs, invalid("%s references provider %q which has no api_key", field, name))
		}
	}

	if c.Models.Default == "" {
		errs = append(errs, invalid("models.default must not be empty"))
	} else {
		check("models.default", c.Models.Default)
	}
	for i, ref := range c.Models.Failover {
		check("models.failover["+strconv.Itoa(i)+"]", ref)
	}

	if c.Models.Temperature < 0 || c.Models.Temperature > 2 {
		errs = append(errs, invalid("models.temperature must be between 0 and 2, got %g", c.Models.Temperature))
	}
	if c.Models.MaxTokens < 0 {
		errs = append(errs, invalid("models.max_tokens must not be negative, got %d", c.Models.MaxTokens))
	}
	return errs
}

func (c *Config) validateClinical() []error {
	var errs []error
	if err := checkURL(c.Clinical.BaseURL); err != nil {
		errs = append(errs, invalid("clinical.base_url %v", err))
	}
	if c.Clinical.Timeout <= 0 {
		errs = append(errs, invalid("clinical.timeout must be greater than 0, got %s", c.Clinical.Timeout))
	}
	return errs
}

func (c *Config) validatePHIFilter() []error {
	var errs []error
	if err := checkURL(c.PHIFilter.URL); err != nil {
		errs = append(errs, invalid("phi_filter.url %v", err))
	}
	if c.PHIFilter.Timeout <= 0 {
		errs = append(errs, invalid("phi_filter.timeout must be greater than 0, got %s", c.PHIFilter.Timeout))
	}
	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, invalid("storage.path must not be empty for the sqlite backend"))
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, invalid("storage.database_url is required for the postgres backend"))
		}
	case "memory":
	default:
		errs = append(errs, invalid("storage.backend must be one of [sqlite, postgres, memory], got %q", c.Storage.Backend))
	}
	return errs
}

func (c *Config) validateAgent() []error {
	var errs []error
	if c.Agent.HistoryLimit <= 0 {
		errs = append(errs, invalid("agent.history_limit must be greater than 0, got %d", c.Agent.HistoryLimit))
	}
	if strings.TrimSpace(c.Agent.DefaultLanguage) == "" {
		errs = append(errs, invalid("agent.default_language must not be empty"))
	}
	return errs
}

func (c *Config) validateLock() []error {
	var errs []error
	switch c.Lock.Backend {
	case "local":
	case "redis":
		if c.Lock.RedisURL == "" {
			errs = append(errs, invalid("lock.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, invalid("lock.backend must be one of [local, redis], got %q", c.Lock.Backend))
	}
	if c.Lock.TTL <= 0 {
		errs = append(errs, invalid("lock.ttl must be greater than 0, got %s", c.Lock.TTL))
	}
	return errs
}

func checkURL(raw string) error {
	if raw == "" {
		return errors.New("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be an http or https URL, got " + strconv.Quote(raw))
	}
	if u.Host == "" {
		return errors.New("must include a host, got " + strconv.Quote(raw))
	}
	return nil
}

// ProviderNames returns the configured provider names, sorted.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
