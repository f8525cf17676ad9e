package nulproxyd

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIAddr    = "127.0.0.1:6630"
	DefaultListenAddr = "0.0.0.0:7777"

	defaultTickPeriod = time.Millisecond
)

// Config is the on-disk daemon configuration.
type Config struct {
	// ListenAddr is the host:port the proxy accepts inbound connections on.
	ListenAddr string `yaml:"listen_addr"`
	// UpstreamAddr is the host:port dialed once per inbound connection.
	UpstreamAddr string `yaml:"upstream_addr"`
	// TickPeriodMS is the event loop tick cadence in milliseconds.
	// Omitted means 1.
	TickPeriodMS *int `yaml:"tick_period_ms,omitempty"`
	// APIAddr is the host:port the admin HTTP API listens on.
	// Empty disables the API.
	APIAddr string `yaml:"api_addr"`
}

func (c Config) GetAPIAddr() string {
	if c.APIAddr == "" {
		return DefaultAPIAddr
	}
	return c.APIAddr
}

func MakeParams(configPath string, c Config) (*Params, error) {
	if c.ListenAddr == "" {
		return nil, errors.Errorf("config %q: listen_addr is required", configPath)
	}
	if c.UpstreamAddr == "" {
		return nil, errors.Errorf("config %q: upstream_addr is required", configPath)
	}
	tickPeriod := defaultTickPeriod
	if c.TickPeriodMS != nil {
		if *c.TickPeriodMS < 0 {
			return nil, errors.Errorf("config %q: tick_period_ms must be >= 0", configPath)
		}
		tickPeriod = time.Duration(*c.TickPeriodMS) * time.Millisecond
	}
	return &Params{
		ListenAddr:   c.ListenAddr,
		UpstreamAddr: c.UpstreamAddr,
		TickPeriod:   tickPeriod,
		APIAddr:      c.APIAddr,
	}, nil
}

func DefaultConfig() Config {
	return Config{
		ListenAddr: DefaultListenAddr,
		APIAddr:    DefaultAPIAddr,
	}
}

func LoadConfig(p string) (*Config, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

func SaveConfig(config Config, p string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}
