package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aviate-labs/agent-go/principal"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is built once at startup and handed to every component that needs it.
type Config struct {
	// base URL of the ledger service, e.g. http://127.0.0.1:4943
	Host string `env:"HOST,required,notEmpty"`
	// service identity (canister id) of the minter
	CanisterID string `env:"CANISTER_ID,required,notEmpty"`
	// local deployments fetch their trust root from the replica on every mount
	IsLocal bool `env:"IS_LOCAL" envDefault:"true"`
	// hex encoded DER root key; a fetched key must match it, a non-local host is trusted with it
	RootKey string `env:"ROOT_KEY"`
	// check replica signatures on query replies
	VerifyQueries bool          `env:"VERIFY_QUERY_SIGNATURES" envDefault:"true"`
	PollDelay     time.Duration `env:"LEDGER_POLL_DELAY" envDefault:"1s"`

	ListenAddr     string        `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	RateLimit      float64       `env:"LEDGER_RATE_LIMIT" envDefault:"0"`
	PageSize       int           `env:"PAGE_SIZE" envDefault:"10"`
	ViewTTL        time.Duration `env:"VIEW_TTL" envDefault:"5m"`
	ParallelFetch  bool          `env:"PARALLEL_FETCH" envDefault:"false"`
	DisplayTZ      string        `env:"DISPLAY_TZ"`
}

// ConfigError reports a configuration that the service cannot start with.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	// a missing .env is fine, the variables may come from the environment
	_ = godotenv.Load()
	return LoadFrom(envMap(os.Environ()))
}

// LoadFrom builds a Config from the given variables only.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, &ConfigError{Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that struct tags cannot express.
func (c Config) Validate() error {
	u, err := url.Parse(c.Host)
	if err != nil {
		return &ConfigError{Key: "HOST", Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Key: "HOST", Err: fmt.Errorf("%q is not an absolute http(s) url", c.Host)}
	}
	p, err := principal.Decode(c.CanisterID)
	if err != nil {
		return &ConfigError{Key: "CANISTER_ID", Err: err}
	}
	if p.Encode() != c.CanisterID {
		return &ConfigError{Key: "CANISTER_ID", Err: fmt.Errorf("%q is not a canonical principal", c.CanisterID)}
	}
	if c.PageSize <= 0 {
		return &ConfigError{Key: "PAGE_SIZE", Err: errors.New("must be positive")}
	}
	if c.RateLimit < 0 {
		return &ConfigError{Key: "LEDGER_RATE_LIMIT", Err: errors.New("must not be negative")}
	}
	if _, err := c.Location(); err != nil {
		return &ConfigError{Key: "DISPLAY_TZ", Err: err}
	}
	return nil
}

// Location is the zone dates are rendered in. Empty DISPLAY_TZ means the process local zone.
func (c Config) Location() (*time.Location, error) {
	if c.DisplayTZ == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.DisplayTZ)
}

func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m[k] = v
	}
	return m
}
