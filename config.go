package fetchkit

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nyradev/fetchkit/cache"
)

// ZeroOr returns def when v is the zero value for T, otherwise v. Mirrors
// the default-filling helper the teacher's Options constructors lean on
// throughout the pack (e.g. fetch.Options -> fetcher field assignment).
func ZeroOr[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// EmptyOr returns def when v has zero length, otherwise v.
func EmptyOr[T any](v []T, def []T) []T {
	if len(v) == 0 {
		return def
	}
	return v
}

// FileConfig is the YAML-serializable subset of Options: everything that
// can't carry a func or interface value (Proxy, Middlewares, Hooks, Jar)
// stays Go-literal-only and is layered on top of a decoded FileConfig by
// the caller. Field names mirror Options; tags follow the teacher's
// kebab-case yaml convention (fetch.Options in the teacher repo).
type FileConfig struct {
	BaseURL           string            `yaml:"base-url"`
	Headers           map[string]string `yaml:"headers"`
	Params            map[string]string `yaml:"params"`
	Concurrency       int               `yaml:"concurrency"`
	RequestsPerSecond int               `yaml:"requests-per-second"`
	PerDomainPooling  bool              `yaml:"per-domain-pooling"`
	RunnerConcurrency int               `yaml:"runner-concurrency"`

	Retry *FileRetryConfig `yaml:"retry"`
	Cache *FileCacheConfig `yaml:"cache"`
	Dedup *bool            `yaml:"dedup"`
	XSRF  *FileXSRFConfig  `yaml:"xsrf"`
}

// FileRetryConfig is the YAML-serializable mirror of RetryPolicy.
type FileRetryConfig struct {
	MaxAttempts     int           `yaml:"max-attempts"`
	StatusCodes     []int         `yaml:"status-codes"`
	InitialInterval time.Duration `yaml:"initial-interval"`
	MaxInterval     time.Duration `yaml:"max-interval"`
	Multiplier      float64       `yaml:"multiplier"`
	RandomFactor    float64       `yaml:"random-factor"`
}

// FileCacheConfig is the YAML-serializable mirror of CacheConfig's
// scalar fields; Storage is a Go-literal-only field set by the caller
// after LoadConfig, since storage backends carry live connections
// (Redis clients, open diskv directories) that have no YAML form.
type FileCacheConfig struct {
	Strategy string `yaml:"strategy"`
}

// Resolve maps the config's strategy name to a cache.Strategy, per
// spec §6's `cache.strategy` option vocabulary. Unknown or empty names
// fall back to cache.RFCCompliant.
func (c *FileCacheConfig) Resolve() cache.Strategy {
	switch c.Strategy {
	case "cache-first":
		return cache.CacheFirst
	case "network-first":
		return cache.NetworkFirst
	case "network-only":
		return cache.NetworkOnly
	case "stale-while-revalidate":
		return cache.StaleWhileRevalidate
	default:
		return cache.RFCCompliant
	}
}

// FileXSRFConfig is the YAML-serializable mirror of XSRFOptions.
type FileXSRFConfig struct {
	CookieName string   `yaml:"cookie-name"`
	HeaderName string   `yaml:"header-name"`
	Methods    []string `yaml:"methods"`
}

// LoadConfig reads a FileConfig from a YAML file at path, per SPEC_FULL's
// ambient-stack config-loading requirement.
func LoadConfig(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Options builds an Options from the decoded FileConfig. Fields with no
// YAML representation (Jar, Proxy, Middlewares, Hooks, Logger, Cache.Storage)
// are left at their zero value for the caller to fill in afterward.
func (c *FileConfig) Options() Options {
	opt := Options{
		BaseURL:           c.BaseURL,
		Headers:           c.Headers,
		Params:            c.Params,
		Concurrency:       c.Concurrency,
		RequestsPerSecond: c.RequestsPerSecond,
		PerDomainPooling:  c.PerDomainPooling,
		RunnerConcurrency: c.RunnerConcurrency,
	}
	if c.Retry != nil {
		policy := DefaultRetryPolicy()
		policy.MaxAttempts = ZeroOr(c.Retry.MaxAttempts, policy.MaxAttempts)
		policy.InitialInterval = ZeroOr(c.Retry.InitialInterval, policy.InitialInterval)
		policy.MaxInterval = ZeroOr(c.Retry.MaxInterval, policy.MaxInterval)
		policy.Multiplier = ZeroOr(c.Retry.Multiplier, policy.Multiplier)
		policy.RandomFactor = ZeroOr(c.Retry.RandomFactor, policy.RandomFactor)
		if len(c.Retry.StatusCodes) > 0 {
			codes := make(map[int]bool, len(c.Retry.StatusCodes))
			for _, code := range c.Retry.StatusCodes {
				codes[code] = true
			}
			policy.StatusCodes = codes
		}
		opt.Retry = &policy
	}
	if c.Cache != nil {
		opt.Cache = &CacheConfig{Strategy: c.Cache.Resolve()}
	}
	if c.Dedup != nil {
		opt.Dedup = &DedupOptions{Enabled: *c.Dedup}
	}
	if c.XSRF != nil {
		xsrf := DefaultXSRFOptions()
		xsrf.CookieName = ZeroOr(c.XSRF.CookieName, xsrf.CookieName)
		xsrf.HeaderName = ZeroOr(c.XSRF.HeaderName, xsrf.HeaderName)
		if len(c.XSRF.Methods) > 0 {
			methods := make(map[string]bool, len(c.XSRF.Methods))
			for _, m := range c.XSRF.Methods {
				methods[m] = true
			}
			xsrf.Methods = methods
		}
		opt.XSRF = &xsrf
	}
	return opt
}
