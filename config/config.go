// Package config loads the TOML files for bookingd and bookingctl.
//
// Durations are written as strings ("2s", "5m"). Missing values fall back to the
// defaults below; Load applies them and then validates.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"booking-rpc/faults"
	"booking-rpc/loadbalance"
	"booking-rpc/logging"
	"booking-rpc/schema"
	"booking-rpc/socket"
)

const (
	DefaultServerAddr   = ":12000"
	DefaultClientAddr   = ":11999"
	DefaultTarget       = "127.0.0.1:12000"
	DefaultTimeout      = 2 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultHistoryTTL   = 5 * time.Minute
	DefaultMaxResends   = 16
	DefaultSemantics    = "at-least-once"
	DefaultServiceName  = "booking"
	DefaultRegistryTTL  = 10
)

// Duration is a time.Duration read from a TOML string.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// FaultConfig arms a fault injector at startup.
type FaultConfig struct {
	Point string `toml:"point"` // none, client-to-server, server-to-client, ack
	Drops int    `toml:"drops"`
}

// Injector builds the configured injector.
func (f FaultConfig) Injector() (*faults.Injector, error) {
	p, err := faults.ParsePoint(f.Point)
	if err != nil {
		return nil, err
	}
	return faults.New(p, f.Drops), nil
}

// SchemaConfig points at JSON schema files. Both empty means the built-in
// booking tables.
type SchemaConfig struct {
	Interface string `toml:"interface"`
	Services  string `toml:"services"`
	Strict    bool   `toml:"strict"` // reject truncated or over-long payloads
}

// Load reads the files, or returns ok=false when none are configured.
func (s SchemaConfig) Load() (reg *schema.Registry, ok bool, err error) {
	if s.Interface == "" && s.Services == "" {
		return nil, false, nil
	}
	reg, err = schema.Load(s.Interface, s.Services)
	return reg, true, err
}

// RegistryConfig enables etcd discovery when Endpoints is non-empty.
type RegistryConfig struct {
	Endpoints   []string `toml:"endpoints"`
	Service     string   `toml:"service"`
	DialTimeout Duration `toml:"dial_timeout"`
	TTL         int64    `toml:"ttl"`       // lease seconds, server only
	Advertise   string   `toml:"advertise"` // server only
	Weight      int      `toml:"weight"`    // server only
	Version     string   `toml:"version"`   // server only
}

func (r RegistryConfig) Enabled() bool { return len(r.Endpoints) > 0 }

// MiddlewareConfig tunes the server handler chain. Zero disables a stage.
type MiddlewareConfig struct {
	Timeout Duration `toml:"timeout"`
	Rate    float64  `toml:"rate"`
	Burst   int      `toml:"burst"`
	Retries int      `toml:"retries"` // for idempotent services only
}

// ServerConfig is bookingd's configuration file.
type ServerConfig struct {
	Addr         string           `toml:"addr"`
	Semantics    string           `toml:"semantics"`
	PollInterval Duration         `toml:"poll_interval"`
	HistoryTTL   Duration         `toml:"history_ttl"`
	MaxResends   int              `toml:"max_resends"`
	Facilities   []string         `toml:"facilities"`
	Log          logging.Config   `toml:"log"`
	Faults       FaultConfig      `toml:"faults"`
	Schema       SchemaConfig     `toml:"schema"`
	Registry     RegistryConfig   `toml:"registry"`
	Middleware   MiddlewareConfig `toml:"middleware"`
}

// ClientConfig is bookingctl's configuration file.
type ClientConfig struct {
	LocalAddr string         `toml:"local_addr"`
	Server    string         `toml:"server"`
	Semantics string         `toml:"semantics"`
	Timeout   Duration       `toml:"timeout"`
	Balancer  string         `toml:"balancer"`
	Log       logging.Config `toml:"log"`
	Faults    FaultConfig    `toml:"faults"`
	Schema    SchemaConfig   `toml:"schema"`
	Registry  RegistryConfig `toml:"registry"`
}

// DefaultServerConfig returns the configuration used when no file is given.
func DefaultServerConfig() ServerConfig {
	var cfg ServerConfig
	cfg.applyDefaults()
	return cfg
}

// DefaultClientConfig returns the configuration used when no file is given.
func DefaultClientConfig() ClientConfig {
	var cfg ClientConfig
	cfg.applyDefaults()
	return cfg
}

// LoadServer decodes path, applies defaults and validates.
func LoadServer(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := decodeFile(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadClient decodes path, applies defaults and validates.
func LoadClient(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := decodeFile(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeFile(path string, out any) error {
	meta, err := toml.DecodeFile(path, out)
	if err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func (c *ServerConfig) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultServerAddr
	}
	if c.Semantics == "" {
		c.Semantics = DefaultSemantics
	}
	if c.PollInterval.Duration == 0 {
		c.PollInterval.Duration = DefaultPollInterval
	}
	if c.HistoryTTL.Duration == 0 {
		c.HistoryTTL.Duration = DefaultHistoryTTL
	}
	if c.MaxResends == 0 {
		c.MaxResends = DefaultMaxResends
	}
	c.Registry.applyDefaults()
}

func (c *ClientConfig) applyDefaults() {
	if c.LocalAddr == "" {
		c.LocalAddr = DefaultClientAddr
	}
	if c.Server == "" && !c.Registry.Enabled() {
		c.Server = DefaultTarget
	}
	if c.Semantics == "" {
		c.Semantics = DefaultSemantics
	}
	if c.Timeout.Duration == 0 {
		c.Timeout.Duration = DefaultTimeout
	}
	c.Registry.applyDefaults()
}

func (r *RegistryConfig) applyDefaults() {
	if r.Service == "" {
		r.Service = DefaultServiceName
	}
	if r.DialTimeout.Duration == 0 {
		r.DialTimeout.Duration = 5 * time.Second
	}
	if r.TTL == 0 {
		r.TTL = DefaultRegistryTTL
	}
}

// Validate reports the first invalid setting.
func (c ServerConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("server config missing addr")
	}
	if _, err := socket.ParseStrategy(c.Semantics); err != nil {
		return err
	}
	if c.PollInterval.Duration < 0 || c.HistoryTTL.Duration < 0 {
		return fmt.Errorf("poll_interval and history_ttl must be positive")
	}
	if c.MaxResends < 0 {
		return fmt.Errorf("max_resends must not be negative")
	}
	for i, name := range c.Facilities {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("facilities[%d] is empty", i)
		}
	}
	if c.Middleware.Rate < 0 || c.Middleware.Burst < 0 || c.Middleware.Retries < 0 || c.Middleware.Timeout.Duration < 0 {
		return fmt.Errorf("middleware settings must not be negative")
	}
	if c.Middleware.Rate > 0 && c.Middleware.Burst == 0 {
		return fmt.Errorf("middleware burst is required when rate is set")
	}
	if err := validateCommon(c.Log, c.Faults, c.Schema); err != nil {
		return err
	}
	return c.Registry.validate()
}

// Validate reports the first invalid setting.
func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.LocalAddr) == "" {
		return fmt.Errorf("client config missing local_addr")
	}
	if c.Server == "" && !c.Registry.Enabled() {
		return fmt.Errorf("client config needs a server address or registry endpoints")
	}
	if _, err := socket.ParseStrategy(c.Semantics); err != nil {
		return err
	}
	if c.Timeout.Duration <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if _, err := loadbalance.New(c.Balancer); err != nil {
		return err
	}
	if err := validateCommon(c.Log, c.Faults, c.Schema); err != nil {
		return err
	}
	return c.Registry.validate()
}

func validateCommon(log logging.Config, f FaultConfig, s SchemaConfig) error {
	if _, err := logging.ParseLevel(log.Level); err != nil {
		return err
	}
	if _, err := faults.ParsePoint(f.Point); err != nil {
		return err
	}
	if f.Drops < 0 {
		return fmt.Errorf("faults.drops must not be negative")
	}
	if (s.Interface == "") != (s.Services == "") {
		return fmt.Errorf("schema needs both interface and services files")
	}
	return nil
}

func (r RegistryConfig) validate() error {
	for i, ep := range r.Endpoints {
		if strings.TrimSpace(ep) == "" {
			return fmt.Errorf("registry.endpoints[%d] is empty", i)
		}
	}
	if r.TTL < 0 || r.Weight < 0 {
		return fmt.Errorf("registry ttl and weight must not be negative")
	}
	return nil
}
