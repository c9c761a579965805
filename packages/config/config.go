// Package config loads client profiles from YAML files and turns them into
// engine and transport options.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/httptask/packages/engine"
	"github.com/abdul-hamid-achik/httptask/packages/transport"
)

// Config is a client profile.
type Config struct {
	Timeout         int               `yaml:"timeout,omitempty"` // milliseconds
	FollowRedirects *bool             `yaml:"followRedirects,omitempty"`
	MaxRedirects    int               `yaml:"maxRedirects,omitempty"`
	ValidateSSL     *bool             `yaml:"validateSSL,omitempty"`
	Proxy           string            `yaml:"proxy,omitempty"`
	Headers         map[string]string `yaml:"headers,omitempty"` // default headers for all requests
	UserAgent       string            `yaml:"userAgent,omitempty"`
	Retries         int               `yaml:"retries,omitempty"`
	RetryDelay      int               `yaml:"retryDelay,omitempty"` // milliseconds, base backoff delay
	RateLimit       float64           `yaml:"rateLimit,omitempty"`  // attempts per second
	RateBurst       int               `yaml:"rateBurst,omitempty"`
	Auth            *AuthConfig       `yaml:"auth,omitempty"`
	HistoryPath     string            `yaml:"historyPath,omitempty"`
}

// AuthConfig selects and parameterizes an auth mechanism.
type AuthConfig struct {
	Type         string   `yaml:"type"` // basic | bearer | apikey | oauth2
	Username     string   `yaml:"username,omitempty"`
	Password     string   `yaml:"password,omitempty"`
	Token        string   `yaml:"token,omitempty"`
	Header       string   `yaml:"header,omitempty"`
	Value        string   `yaml:"value,omitempty"`
	TokenURL     string   `yaml:"tokenUrl,omitempty"`
	ClientID     string   `yaml:"clientId,omitempty"`
	ClientSecret string   `yaml:"clientSecret,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// Filenames contains the config file names searched in order.
var Filenames = []string{
	".httptask.yaml",
	".httptask.yml",
	"httptask.yaml",
}

// Load reads the config at path, or searches the current directory when path
// is empty. A missing config is not an error; the zero Config applies.
func Load(path string) (*Config, error) {
	if path != "" {
		return loadFile(path)
	}
	for _, name := range Filenames {
		p := filepath.Join(".", name)
		if _, err := os.Stat(p); err == nil {
			return loadFile(p)
		}
	}
	return &Config{}, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// GetFollowRedirects returns the redirect setting, defaulting to true.
func (c *Config) GetFollowRedirects() bool {
	if c.FollowRedirects == nil {
		return true
	}
	return *c.FollowRedirects
}

// GetValidateSSL returns the SSL validation setting, defaulting to true.
func (c *Config) GetValidateSSL() bool {
	if c.ValidateSSL == nil {
		return true
	}
	return *c.ValidateSSL
}

// TransportOptions converts the profile into transport options.
func (c *Config) TransportOptions() []transport.NetOption {
	opts := []transport.NetOption{
		transport.WithFollowRedirects(c.GetFollowRedirects()),
		transport.WithValidateSSL(c.GetValidateSSL()),
	}
	if c.Timeout > 0 {
		opts = append(opts, transport.WithTimeout(time.Duration(c.Timeout)*time.Millisecond))
	}
	if c.MaxRedirects > 0 {
		opts = append(opts, transport.WithMaxRedirects(c.MaxRedirects))
	}
	if c.Proxy != "" {
		opts = append(opts, transport.WithProxy(c.Proxy))
	}
	return opts
}

// ClientOptions converts the profile into engine options. The transport and
// retry policy are supplied by the caller, which knows how to build them.
func (c *Config) ClientOptions() []engine.ClientOption {
	var opts []engine.ClientOption
	if len(c.Headers) > 0 {
		opts = append(opts, engine.WithDefaultHeaders(c.Headers))
	}
	if c.UserAgent != "" {
		opts = append(opts, engine.WithUserAgent(c.UserAgent))
	}
	if c.RateLimit > 0 {
		burst := c.RateBurst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, engine.WithRateLimit(c.RateLimit, burst))
	}
	return opts
}
