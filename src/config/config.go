// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

// Package config loads the netdiag configuration file.
//
// Values are resolved in this order, later ones winning:
//  1. built-in defaults
//  2. the YAML file given to [Load]
//  3. NETDIAG_* environment variables
//
// Command line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/connectivity"
	"gopkg.in/yaml.v3"
)

// Environment variables read by [Load].
const (
	EnvInterface  = "NETDIAG_INTERFACE"
	EnvDNSServers = "NETDIAG_DNS_SERVERS"
	EnvListen     = "NETDIAG_LISTEN"
	EnvLogDir     = "NETDIAG_LOG_DIR"
)

// Defaults applied to missing fields.
const (
	DefaultListen        = "127.0.0.1:9100"
	DefaultInterval      = 5 * time.Minute
	DefaultStatusTTL     = 15 * time.Minute
	DefaultTrialTimeout  = connectivity.DefaultTrialTimeout
	DefaultDNSTestHost   = connectivity.DefaultDNSTestHostname
	DefaultRetryInterval = connectivity.DefaultDNSTestRetryInterval
)

// ErrInvalid is returned by [Config.Validate].
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the netdiag configuration.
type Config struct {
	// Interface binds every probe to a device. Empty means any.
	Interface  string   `yaml:"interface"`
	IPv6       bool     `yaml:"ipv6"`
	DNSServers []string `yaml:"dns_servers,omitempty"`

	Listen    string        `yaml:"listen"`
	Interval  time.Duration `yaml:"interval"`
	StatusTTL time.Duration `yaml:"status_ttl"`
	LogDir    string        `yaml:"log_dir"`
	Debug     bool          `yaml:"debug"`

	Trial   TrialConfig   `yaml:"trial"`
	Health  HealthConfig  `yaml:"health"`
	DNSTest DNSTestConfig `yaml:"dns_test"`
}

// TrialConfig configures the captive portal trial.
type TrialConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig configures the connection health checker.
type HealthConfig struct {
	RemoteIPs  []string `yaml:"remote_ips,omitempty"`
	RemoteURLs []string `yaml:"remote_urls,omitempty"`
	// StateWait is how long to wait for the kernel socket table to
	// reflect a send.
	StateWait time.Duration `yaml:"state_wait"`
}

// DNSTestConfig configures the DNS server tester. Servers defaults to
// the top-level DNS servers.
type DNSTestConfig struct {
	Servers           []string      `yaml:"servers,omitempty"`
	Hostname          string        `yaml:"hostname"`
	RetryUntilSuccess bool          `yaml:"retry_until_success"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path, applies defaults and environment overrides. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvInterface); v != "" {
		c.Interface = v
	}
	if v := os.Getenv(EnvDNSServers); v != "" {
		c.DNSServers = splitList(v)
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvLogDir); v != "" {
		c.LogDir = v
	}
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = DefaultStatusTTL
	}
	if c.Trial.URL == "" {
		c.Trial.URL = connectivity.DefaultTrialURL
	}
	if c.Trial.Timeout <= 0 {
		c.Trial.Timeout = DefaultTrialTimeout
	}
	if c.Health.StateWait <= 0 {
		c.Health.StateWait = connectivity.DefaultTCPStateUpdateWait
	}
	if len(c.DNSTest.Servers) == 0 {
		c.DNSTest.Servers = c.DNSServers
	}
	if c.DNSTest.Hostname == "" {
		c.DNSTest.Hostname = DefaultDNSTestHost
	}
	if c.DNSTest.RetryInterval <= 0 {
		c.DNSTest.RetryInterval = DefaultRetryInterval
	}
	if c.DNSTest.Timeout <= 0 {
		c.DNSTest.Timeout = connectivity.DefaultDNSTimeout
	}
}

// Validate reports every malformed field at once.
func (c *Config) Validate() error {
	var problems []string
	if _, err := connectivity.ParseURL(c.Trial.URL); err != nil {
		problems = append(problems, fmt.Sprintf("trial.url %q", c.Trial.URL))
	}
	for _, raw := range c.Health.RemoteIPs {
		if _, err := netip.ParseAddr(raw); err != nil {
			problems = append(problems, fmt.Sprintf("health.remote_ips %q", raw))
		}
	}
	for _, raw := range c.Health.RemoteURLs {
		u, err := connectivity.ParseURL(raw)
		if err != nil || u.Port() != connectivity.RemotePort {
			problems = append(problems, fmt.Sprintf("health.remote_urls %q", raw))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, ", "))
	}
	return nil
}

// RemoteIPs returns the parsed health checker seed addresses, skipping
// malformed ones.
func (c *Config) RemoteIPs() []netip.Addr {
	out := make([]netip.Addr, 0, len(c.Health.RemoteIPs))
	for _, raw := range c.Health.RemoteIPs {
		if ip, err := netip.ParseAddr(raw); err == nil {
			out = append(out, ip)
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
