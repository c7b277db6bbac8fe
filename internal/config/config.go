package config

import (
	"fmt"
	"os"
	"time"

	"github.com/signalnine/grind/internal/classify"
	"github.com/signalnine/grind/internal/monitor"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "grind.yaml"

type Config struct {
	Command   string           `yaml:"command"`
	Shell     string           `yaml:"shell"`
	WorkDir   string           `yaml:"work_dir"`
	Env       Env              `yaml:"env"`
	Policy    Policy           `yaml:"policy"`
	Markers   classify.Markers `yaml:"markers"`
	Results   Results          `yaml:"results"`
	Launcher  Launcher         `yaml:"launcher"`
	Telemetry Telemetry        `yaml:"telemetry"`
	Logging   Logging          `yaml:"logging"`
}

// Env controls the child's environment. The three knobs map onto
// variables the test suite reads.
type Env struct {
	Verbosity    string            `yaml:"verbosity"`
	VerbosityVar string            `yaml:"verbosity_var"`
	SkipSlow     bool              `yaml:"skip_slow"`
	SkipSlowVar  string            `yaml:"skip_slow_var"`
	Backtrace    string            `yaml:"backtrace"`
	BacktraceVar string            `yaml:"backtrace_var"`
	Vars         map[string]string `yaml:"vars"`
	EnvFile      string            `yaml:"env_file"`
}

type Policy struct {
	StallSeconds            int `yaml:"stall_seconds"`
	MaxSeverityCount        int `yaml:"max_severity_count"`
	IterationTimeoutSeconds int `yaml:"iteration_timeout_seconds"`
	TickMillis              int `yaml:"tick_ms"`
	GraceMillis             int `yaml:"grace_ms"`
	LaunchRetryMillis       int `yaml:"launch_retry_ms"`
	// SettleMillis is the pause between a finished iteration and the next launch.
	SettleMillis            int `yaml:"settle_ms"`
	ChannelCapacity         int `yaml:"channel_capacity"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

// Launcher selects where the command runs: "local" or "docker".
type Launcher struct {
	Kind  string `yaml:"kind"`
	Image string `yaml:"image"`
}

type Telemetry struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present: the scp
// crate's release test suite, single-threaded, with debug statistics.
func Default() *Config {
	return &Config{
		Command: "cargo test --release --lib -- --test-threads=1 --nocapture",
		Shell:   "sh",
		Env: Env{
			Verbosity:    "debug",
			VerbosityVar: "MC_LOG",
			SkipSlow:     true,
			SkipSlowVar:  "SKIP_SLOW_TESTS",
			Backtrace:    "full",
			BacktraceVar: "RUST_BACKTRACE",
		},
		Policy: Policy{
			StallSeconds:            20,
			MaxSeverityCount:        10000,
			IterationTimeoutSeconds: 1200,
			TickMillis:              100,
			GraceMillis:             1000,
			LaunchRetryMillis:       1000,
			SettleMillis:            100,
			ChannelCapacity:         4096,
		},
		Markers:  classify.DefaultMarkers(),
		Results:  Results{Dir: "results"},
		Launcher: Launcher{Kind: "local"},
		Logging:  Logging{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.Command == "" {
		return fmt.Errorf("command is required")
	}
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	p := &cfg.Policy
	if p.StallSeconds < 1 {
		return fmt.Errorf("policy.stall_seconds must be at least 1")
	}
	if p.MaxSeverityCount < 1 {
		return fmt.Errorf("policy.max_severity_count must be at least 1")
	}
	if p.IterationTimeoutSeconds < 1 {
		return fmt.Errorf("policy.iteration_timeout_seconds must be at least 1")
	}
	if p.TickMillis < 1 {
		return fmt.Errorf("policy.tick_ms must be at least 1")
	}
	if p.GraceMillis < 0 || p.LaunchRetryMillis < 0 || p.SettleMillis < 0 {
		return fmt.Errorf("policy grace, retry and settle delays must not be negative")
	}
	if p.ChannelCapacity < 1 {
		p.ChannelCapacity = 4096
	}
	m := cfg.Markers
	if m.Warning == "" || m.Error == "" || m.Critical == "" || m.Completion == "" {
		return fmt.Errorf("markers: warning, error, critical and completion are required")
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	switch cfg.Launcher.Kind {
	case "", "local":
		cfg.Launcher.Kind = "local"
	case "docker":
		if cfg.Launcher.Image == "" {
			return fmt.Errorf("launcher.image is required for the docker launcher")
		}
	default:
		return fmt.Errorf("launcher.kind %q: must be local or docker", cfg.Launcher.Kind)
	}
	return nil
}

// MonitorPolicy converts the file's integer fields into monitor settings.
func (cfg *Config) MonitorPolicy() monitor.Policy {
	p := cfg.Policy
	return monitor.Policy{
		StallTimeout:     time.Duration(p.StallSeconds) * time.Second,
		MaxSeverityCount: p.MaxSeverityCount,
		IterationTimeout: time.Duration(p.IterationTimeoutSeconds) * time.Second,
		Tick:             time.Duration(p.TickMillis) * time.Millisecond,
		ExitGrace:        cfg.Grace(),
		ChannelCapacity:  p.ChannelCapacity,
	}
}

func (cfg *Config) Grace() time.Duration {
	return time.Duration(cfg.Policy.GraceMillis) * time.Millisecond
}

func (cfg *Config) LaunchRetry() time.Duration {
	return time.Duration(cfg.Policy.LaunchRetryMillis) * time.Millisecond
}

func (cfg *Config) Settle() time.Duration {
	return time.Duration(cfg.Policy.SettleMillis) * time.Millisecond
}
