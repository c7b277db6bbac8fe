package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/grind/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMinimal(t *testing.T) {
	cfg, err := config.Load("../../testdata/minimal.yaml")
	require.NoError(t, err)
	assert.Equal(t, "go test ./...", cfg.Command)
	assert.Equal(t, "sh", cfg.Shell)
	assert.Equal(t, 20, cfg.Policy.StallSeconds)
	assert.Equal(t, 10000, cfg.Policy.MaxSeverityCount)
	assert.Equal(t, 1200, cfg.Policy.IterationTimeoutSeconds)
	assert.Equal(t, "WARN", cfg.Markers.Warning)
	assert.Equal(t, "build and test completed", cfg.Markers.Completion)
	assert.Equal(t, "local", cfg.Launcher.Kind)
	assert.Equal(t, "results", cfg.Results.Dir)
}

func TestLoadFull(t *testing.T) {
	cfg, err := config.Load("../../testdata/full.yaml")
	require.NoError(t, err)
	assert.Equal(t, "bash", cfg.Shell)
	assert.Equal(t, "docker", cfg.Launcher.Kind)
	assert.Equal(t, "rust:1.79", cfg.Launcher.Image)
	assert.Equal(t, "127.0.0.1:8765", cfg.Telemetry.Addr)
	assert.Equal(t, "test result: ok", cfg.Markers.Completion)
	assert.False(t, cfg.Env.SkipSlow)

	p := cfg.MonitorPolicy()
	assert.Equal(t, 30*time.Second, p.StallTimeout)
	assert.Equal(t, 500, p.MaxSeverityCount)
	assert.Equal(t, 10*time.Minute, p.IterationTimeout)
	assert.Equal(t, 50*time.Millisecond, p.Tick)
	assert.Equal(t, 2*time.Second, p.ExitGrace)
	// Unset fields keep their defaults.
	assert.Equal(t, time.Second, cfg.LaunchRetry())
	assert.Equal(t, 250*time.Millisecond, cfg.Settle())
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load("nonexistent.yaml")
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	_, err := config.Load("../../testdata/invalid.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty command", func(c *config.Config) { c.Command = "" }},
		{"zero stall", func(c *config.Config) { c.Policy.StallSeconds = 0 }},
		{"zero ceiling", func(c *config.Config) { c.Policy.MaxSeverityCount = 0 }},
		{"zero timeout", func(c *config.Config) { c.Policy.IterationTimeoutSeconds = 0 }},
		{"zero tick", func(c *config.Config) { c.Policy.TickMillis = 0 }},
		{"negative grace", func(c *config.Config) { c.Policy.GraceMillis = -1 }},
		{"negative settle", func(c *config.Config) { c.Policy.SettleMillis = -1 }},
		{"missing completion marker", func(c *config.Config) { c.Markers.Completion = "" }},
		{"docker without image", func(c *config.Config) { c.Launcher.Kind = "docker" }},
		{"unknown launcher", func(c *config.Config) { c.Launcher.Kind = "ssh" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, config.Default().Validate())
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	content := "# comment\nexport TOKEN='abc'\n\nPLAIN=value\nnot a pair\nQUOTED=\"x y\"\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	e := config.Default().Env
	e.EnvFile = envFile
	e.Vars = map[string]string{"B": "2", "A": "1"}

	got, err := e.Overrides()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"TOKEN=abc",
		"PLAIN=value",
		"QUOTED=x y",
		"A=1",
		"B=2",
		"MC_LOG=debug",
		"SKIP_SLOW_TESTS=1",
		"RUST_BACKTRACE=full",
	}, got)
}

func TestEnvOverridesKnobsOff(t *testing.T) {
	e := config.Env{VerbosityVar: "MC_LOG", SkipSlowVar: "SKIP_SLOW_TESTS", BacktraceVar: "RUST_BACKTRACE"}
	got, err := e.Overrides()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChildEnvMissingEnvFile(t *testing.T) {
	cfg := config.Default()
	cfg.Env.EnvFile = filepath.Join(t.TempDir(), "missing.env")
	_, err := cfg.ChildEnv()
	assert.Error(t, err)
}

func TestChildEnvExtendsParent(t *testing.T) {
	t.Setenv("GRIND_PARENT_PROBE", "1")
	env, err := config.Default().ChildEnv()
	require.NoError(t, err)
	assert.Contains(t, env, "GRIND_PARENT_PROBE=1")
	assert.Equal(t, "RUST_BACKTRACE=full", env[len(env)-1])
}
