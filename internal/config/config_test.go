package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeFile(t, "weaver.yaml", `
source:
  root: ./src
workers: 8
log:
  level: debug
rules:
  - provider: svcA
    unit: pkg/X
    action: publicize_field
    member: secret
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "./src", cfg.Source.Root)
	assert.Equal(t, "out", cfg.Output.Dir, "unset keys keep their defaults")
	assert.Equal(t, 8, cfg.Workers)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "secret", cfg.Rules[0].Member)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadConfig_TOML(t *testing.T) {
	path := writeFile(t, "weaver.toml", `
workers = 2

[output]
dir = "build"

[[rules]]
provider = "svcB"
unit = "pkg/Y"
action = "add_field"
member = "testfield"
descriptor = "string"
value = "CHEESE!"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "build", cfg.Output.Dir)
	assert.Equal(t, 2, cfg.Workers)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "CHEESE!", cfg.Rules[0].Value)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("WEAVER_SOURCE_DIR", "/env/src")
	t.Setenv("WEAVER_DEBUG_DUMP", "true")
	t.Setenv("WEAVER_DUMP_DIR", "/env/dump")
	t.Setenv("WEAVER_AUDIT_DB", "/env/audit.db")
	t.Setenv("WEAVER_OUTPUT_DIR", "/env/out")
	t.Setenv("WEAVER_LOG_LEVEL", "debug")
	t.Setenv("WEAVER_OTEL_ENDPOINT", "http://localhost:4318")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/env/src", cfg.Source.Root)
	assert.Equal(t, "/env/out", cfg.Output.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://localhost:4318", cfg.Trace.Endpoint)
	assert.True(t, cfg.Debug.Dump)
	assert.Equal(t, "/env/dump", cfg.Debug.DumpDir)
	assert.Equal(t, "/env/audit.db", cfg.Audit.DB)

	t.Setenv("WEAVER_DEBUG_DUMP", "maybe")
	_, err = LoadConfig("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"empty root", func(c *Config) { c.Source.Root = "" }},
		{"dump without dir", func(c *Config) { c.Debug.Dump = true; c.Debug.DumpDir = "" }},
		{"rule without unit", func(c *Config) { c.Rules = []Rule{{Provider: "svcA", Action: "publicize_field"}} }},
	}
	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
