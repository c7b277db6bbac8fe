package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// ChildEnv returns the environment for the test command: the parent's
// environment, then env_file entries, then vars, then the three knobs.
// Later entries win.
func (cfg *Config) ChildEnv() ([]string, error) {
	env := os.Environ()
	extra, err := cfg.Env.Overrides()
	if err != nil {
		return nil, err
	}
	return append(env, extra...), nil
}

// Overrides returns only the variables grind adds on top of the parent
// environment, in a stable order.
func (e Env) Overrides() ([]string, error) {
	var out []string
	if e.EnvFile != "" {
		vars, err := ParseEnvFile(e.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("reading env file: %w", err)
		}
		out = append(out, vars...)
	}
	keys := make([]string, 0, len(e.Vars))
	for k := range e.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+e.Vars[k])
	}
	if e.VerbosityVar != "" && e.Verbosity != "" {
		out = append(out, e.VerbosityVar+"="+e.Verbosity)
	}
	if e.SkipSlowVar != "" && e.SkipSlow {
		out = append(out, e.SkipSlowVar+"=1")
	}
	if e.BacktraceVar != "" && e.Backtrace != "" {
		out = append(out, e.BacktraceVar+"="+e.Backtrace)
	}
	return out, nil
}

// ParseEnvFile reads KEY=VALUE lines, skipping blanks and comments and
// accepting an optional "export " prefix and surrounding quotes.
func ParseEnvFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var envVars []string
	for _, line := range strings.Split(string(data), "\n") {
		s := strings.TrimSpace(line)
		if s == "" || s[0] == '#' {
			continue
		}
		s = strings.TrimPrefix(s, "export ")
		key, val, ok := strings.Cut(s, "=")
		if !ok {
			continue
		}
		envVars = append(envVars, strings.TrimSpace(key)+"="+stripQuotes(val))
	}
	return envVars, nil
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
