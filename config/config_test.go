package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `dexflow:
  name: "TestApp"
  version: "1.0"
chains:
  - sol
  - eth
data:
  database_path: "data/test.duckdb"
  parquet_root: "/tmp/parquet"
  reports_path: "reports"
time:
  daily_run_hour: 2
  daily_run_minute: 30
logging:
  level: "info"
  format: "json"
  output: "stdout"
exclusions:
  tokens:
    - "TOKENA"
init:
  enabled: true
  days: 3
  auto_generate_report: false
`
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Dexflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Dexflow.Name)
	}
	if len(cfg.Chains) != 2 || cfg.Chains[0] != "sol" {
		t.Errorf("unexpected chains: %v", cfg.Chains)
	}
	if got := cfg.Exclusions.Tokens; len(got) != 1 || got[0] != "TOKENA" {
		t.Errorf("unexpected exclusion tokens: %v", got)
	}
	if !cfg.Init.Enabled || cfg.Init.Days != 3 {
		t.Errorf("unexpected init config: %+v", cfg.Init)
	}
	if cfg.Path() != path {
		t.Errorf("unexpected source path: %s", cfg.Path())
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	content := `dexflow:
  name: "TestApp"
  version: "1.0"
chains: [sol]
data:
  database_path: "data/test.duckdb"
  parquet_root: "/tmp/parquet"
  reports_path: "reports"
`
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Init.Days != 7 {
		t.Errorf("expected default init.days 7, got %d", cfg.Init.Days)
	}
	if !cfg.Init.AutoGenerateReport {
		t.Errorf("expected auto_generate_report to default true")
	}
	if cfg.Report.Title != "DEX Analytics Dashboard" {
		t.Errorf("unexpected default report title: %s", cfg.Report.Title)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	valid := map[string]string{
		"dexflow": "dexflow:\n  name: \"TestApp\"\n  version: \"1.0\"",
		"chains":  "chains: [sol]",
		"data":    "data:\n  database_path: \"data/test.duckdb\"\n  parquet_root: \"/tmp/parquet\"\n  reports_path: \"reports\"",
		"time":    "",
		"init":    "",
	}

	cases := []struct {
		name     string
		section  string
		override string
		wantErr  string
	}{
		{"missing name", "dexflow", "dexflow:\n  version: \"1.0\"", "dexflow.name is required"},
		{"no chains", "chains", "chains: []", "chains must list"},
		{"missing db path", "data", "data:\n  parquet_root: \"/tmp/parquet\"\n  reports_path: \"reports\"", "data.database_path"},
		{"bad hour", "time", "time:\n  daily_run_hour: 25", "daily_run_hour"},
		{"init without days", "init", "init:\n  enabled: true\n  days: 0", "init.days"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sections := make(map[string]string, len(valid))
			for k, v := range valid {
				sections[k] = v
			}
			sections[c.section] = c.override

			var b strings.Builder
			for _, key := range []string{"dexflow", "chains", "data", "time", "init"} {
				if sections[key] == "" {
					continue
				}
				b.WriteString(sections[key])
				b.WriteString("\n")
			}

			path := filepath.Join(t.TempDir(), "config.yml")
			content := b.String()
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write temp config: %v", err)
			}
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatalf("expected validation error containing %q", c.wantErr)
			}
			if !strings.Contains(err.Error(), c.wantErr) {
				t.Errorf("error %q does not mention %q", err, c.wantErr)
			}
		})
	}
}

func TestDisableInitRewritesFile(t *testing.T) {
	path := writeTempConfig(t)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.Init.Enabled {
		t.Fatalf("fixture should start with init enabled")
	}

	if err := cfg.DisableInit(); err != nil {
		t.Fatalf("DisableInit failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rewritten config: %v", err)
	}
	var reloaded Config
	if err := yaml.Unmarshal(data, &reloaded); err != nil {
		t.Fatalf("parse rewritten config: %v", err)
	}
	if reloaded.Init.Enabled {
		t.Errorf("init.enabled still true after DisableInit")
	}
	if reloaded.Dexflow.Name != "TestApp" {
		t.Errorf("rewrite lost unrelated fields: %+v", reloaded.Dexflow)
	}
	if reloaded.Init.Days != 3 {
		t.Errorf("rewrite lost init.days: %d", reloaded.Init.Days)
	}
}
