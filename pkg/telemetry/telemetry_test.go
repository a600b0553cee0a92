package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default is valid", func(c *Config) {}, false},
		{"production is valid", func(c *Config) { *c = *ProductionConfig() }, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "zipkin" }, true},
		{"bad sampling rate", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"metrics without address", func(c *Config) { c.Metrics.ListenAddress = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{
		Enabled:       true,
		ListenAddress: ":0",
		Namespace:     "cdev",
	})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordEvent("add", "udev", "allow", 2*time.Millisecond)
	m.RecordRuleSetEvaluation("filter", time.Millisecond)
	m.RecordGotoAbort("filter")
	m.RecordReload("ok")
	m.RecordCGroupUpdate("lxc", "allow")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, metric := range []string{
		"cdev_events_processed_total",
		"cdev_ruleset_evaluation_duration_seconds",
		"cdev_goto_aborts_total",
		"cdev_rules_reloads_total",
		"cdev_cgroup_updates_total",
	} {
		if !strings.Contains(string(body), metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	// Must not panic.
	m.RecordEvent("add", "udev", "allow", time.Millisecond)
	m.RecordEmit("change")
	m.RecordParseError("node")
	m.SetLoadedRuleSets("node", 3)
	m.RecordColdplugDevice()
}

func TestLoggerLevels(t *testing.T) {
	l, err := NewLogger(LoggingConfig{Level: "warn", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if l.Zerolog().GetLevel().String() != "warn" {
		t.Errorf("level = %s, want warn", l.Zerolog().GetLevel())
	}
}
