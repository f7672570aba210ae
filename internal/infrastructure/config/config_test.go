package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable applyEnvOverrides reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"NDB_CONFIG", "NDB_DATABASE_PATH", "NDB_LOGGING_LEVEL", "NDB_LOGGING_FORMAT",
		"CIRCUITPY_WEB_API_PASSWORD", "NDB_MQTT_ENABLED", "NDB_MQTT_HOST",
		"NDB_MQTT_USERNAME", "NDB_MQTT_PASSWORD", "NDB_INFLUXDB_URL", "NDB_INFLUXDB_TOKEN",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ndb.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
discovery:
  timeout: 5s
  retries: 2
  mdns_duration: 1500ms
  category: esp
mqtt:
  enabled: true
  broker:
    host: "broker.lan"
    port: 1883
  topic_prefix: "lab/ndb"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Discovery.Timeout != 5*time.Second {
		t.Errorf("Discovery.Timeout = %v, want 5s", cfg.Discovery.Timeout)
	}
	if cfg.Discovery.MDNSDuration != 1500*time.Millisecond {
		t.Errorf("Discovery.MDNSDuration = %v, want 1.5s", cfg.Discovery.MDNSDuration)
	}
	if cfg.Discovery.Category != "esp" || cfg.Discovery.Retries != 2 {
		t.Errorf("Discovery = %+v", cfg.Discovery)
	}
	if cfg.MQTT.Broker.Host != "broker.lan" || cfg.MQTT.TopicPrefix != "lab/ndb" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}

	// Untouched sections keep their defaults.
	if cfg.Logging.Level != "warn" || len(cfg.Discovery.ServiceTypes) != 2 {
		t.Errorf("defaults lost: logging=%+v service_types=%v", cfg.Logging, cfg.Discovery.ServiceTypes)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load("/nonexistent/path/ndb.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)

	if _, err := Load(writeConfig(t, "invalid: [yaml: content")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
database:
  path: ""
mqtt:
  qos: 7
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	// Every problem is reported, not just the first.
	for _, want := range []string{"database.path", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadDefault(t *testing.T) {
	t.Run("no file uses defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("NDB_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

		cfg, err := LoadDefault()
		if err != nil {
			t.Fatalf("LoadDefault() error = %v", err)
		}
		if cfg.Database.Path != DefaultDatabasePath {
			t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, DefaultDatabasePath)
		}
	})

	t.Run("NDB_CONFIG names the file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("NDB_CONFIG", writeConfig(t, "database:\n  path: from-file.db\n"))

		cfg, err := LoadDefault()
		if err != nil {
			t.Fatalf("LoadDefault() error = %v", err)
		}
		if cfg.Database.Path != "from-file.db" {
			t.Errorf("Database.Path = %q, want from-file.db", cfg.Database.Path)
		}
	})
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NDB_CONFIG", writeConfig(t, "database:\n  path: from-file.db\n"))
	t.Setenv("NDB_DATABASE_PATH", "from-env.db")
	t.Setenv("CIRCUITPY_WEB_API_PASSWORD", "hunter2")
	t.Setenv("NDB_MQTT_ENABLED", "true")
	t.Setenv("NDB_MQTT_HOST", "mqtt.example")
	t.Setenv("NDB_LOGGING_LEVEL", "debug")

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if cfg.Database.Path != "from-env.db" {
		t.Errorf("Database.Path = %q, want from-env.db", cfg.Database.Path)
	}
	if cfg.Discovery.Password != "hunter2" {
		t.Errorf("Discovery.Password not taken from CIRCUITPY_WEB_API_PASSWORD")
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.Host != "mqtt.example" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: true},
		{name: "unknown log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Discovery.Timeout = 0 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.Discovery.Retries = -1 }, wantErr: true},
		{name: "no service types", mutate: func(c *Config) { c.Discovery.ServiceTypes = nil }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "disabled mqtt ignores broker", mutate: func(c *Config) { c.MQTT.Broker.Port = 0 }},
		{name: "enabled mqtt needs port", mutate: func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Broker.Port = 70000
		}, wantErr: true},
		{name: "wildcard topic prefix", mutate: func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.TopicPrefix = "ndb/#"
		}, wantErr: true},
		{name: "enabled influxdb needs org", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "enabled influxdb complete", mutate: func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.Org = "lab"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
