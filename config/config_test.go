package config

import (
	"strings"
	"testing"
	"time"

	"booking-rpc/faults"
)

func TestLoadServer(t *testing.T) {
	cfg, err := LoadServer("testdata/server.toml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Semantics != "at-most-once" || cfg.PollInterval.Duration != 50*time.Millisecond {
		t.Fatalf("unexpected core settings %+v", cfg)
	}
	if cfg.HistoryTTL.Duration != 2*time.Minute || cfg.MaxResends != DefaultMaxResends {
		t.Fatalf("unexpected history settings ttl=%v resends=%d", cfg.HistoryTTL, cfg.MaxResends)
	}
	if len(cfg.Facilities) != 3 || cfg.Facilities[2] != "Meeting Room A" {
		t.Fatalf("unexpected facilities %v", cfg.Facilities)
	}
	if !cfg.Log.Development || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected log settings %+v", cfg.Log)
	}
	if cfg.Middleware.Timeout.Duration != time.Second || cfg.Middleware.Burst != 200 {
		t.Fatalf("unexpected middleware settings %+v", cfg.Middleware)
	}
	if !cfg.Registry.Enabled() || cfg.Registry.Service != DefaultServiceName || cfg.Registry.TTL != DefaultRegistryTTL {
		t.Fatalf("unexpected registry settings %+v", cfg.Registry)
	}

	inj, err := cfg.Faults.Injector()
	if err != nil {
		t.Fatal(err)
	}
	if inj.LossPoint() != faults.ServerToClient || inj.Remaining() != 2 {
		t.Fatalf("unexpected injector %v/%d", inj.LossPoint(), inj.Remaining())
	}
}

func TestLoadClient(t *testing.T) {
	cfg, err := LoadClient("testdata/client.toml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LocalAddr != DefaultClientAddr || cfg.Timeout.Duration != 500*time.Millisecond {
		t.Fatalf("unexpected client settings %+v", cfg)
	}
	inj, err := cfg.Faults.Injector()
	if err != nil {
		t.Fatal(err)
	}
	if inj.LossPoint() != faults.ClientToServer {
		t.Fatalf("expect client-to-server, got %v", inj.LossPoint())
	}
}

func TestUnknownKeysRejected(t *testing.T) {
	_, err := LoadServer("testdata/unknown_key.toml")
	if err == nil || !strings.Contains(err.Error(), "retries") {
		t.Fatalf("expect the unknown key to be reported, got %v", err)
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := LoadClient("testdata/nope.toml"); err == nil {
		t.Fatal("expect an error for a missing file")
	}
}

func TestDefaults(t *testing.T) {
	s := DefaultServerConfig()
	if s.Addr != DefaultServerAddr || s.Semantics != DefaultSemantics || s.HistoryTTL.Duration != DefaultHistoryTTL {
		t.Fatalf("unexpected server defaults %+v", s)
	}
	if err := s.Validate(); err != nil {
		t.Fatal(err)
	}

	c := DefaultClientConfig()
	if c.Server != DefaultTarget || c.Timeout.Duration != DefaultTimeout {
		t.Fatalf("unexpected client defaults %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidate(t *testing.T) {
	bad := []func(*ServerConfig){
		func(c *ServerConfig) { c.Semantics = "exactly-once" },
		func(c *ServerConfig) { c.Faults.Point = "sideways" },
		func(c *ServerConfig) { c.Faults.Drops = -1 },
		func(c *ServerConfig) { c.Facilities = []string{"Library", " "} },
		func(c *ServerConfig) { c.Middleware.Rate = 10 },
		func(c *ServerConfig) { c.Schema.Interface = "interface.json" },
		func(c *ServerConfig) { c.Log.Level = "chatty" },
	}
	for i, mutate := range bad {
		cfg := DefaultServerConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expect a validation error", i)
		}
	}

	c := DefaultClientConfig()
	c.Balancer = "random-ish"
	if err := c.Validate(); err == nil {
		t.Fatal("expect an unknown balancer to be rejected")
	}
}

func TestSchemaConfigBuiltin(t *testing.T) {
	reg, ok, err := SchemaConfig{}.Load()
	if reg != nil || ok || err != nil {
		t.Fatalf("expect no registry for an empty schema config, got %v %v %v", reg, ok, err)
	}
	reg, ok, err = SchemaConfig{Interface: "../schema/testdata/interface.json", Services: "../schema/testdata/services.json"}.Load()
	if err != nil || !ok || reg == nil {
		t.Fatalf("expect the files to load, got %v %v", ok, err)
	}
}
