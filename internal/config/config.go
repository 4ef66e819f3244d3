// Package config loads process declarations from a TOML or JSON file into
// registry.ProcessConfig values, with environment-variable expansion
// applied to every field that takes a filesystem path or command argument.
// Grounded on the teacher's internal/config/config.go (viper-backed TOML
// loading into a FileConfig struct unmarshaled via mapstructure tags) and
// internal/env/env.go's ${VAR} expansion idiom, generalized to also accept
// $VAR (without braces) since spec.md section 5 names both forms.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/loykin/adasa/internal/registry"
)

// FileConfig is the top-level shape of a config file. A single process may
// be declared directly at the document root (Name/Script present), or
// multiple processes under "processes", per spec.md section 5.
type FileConfig struct {
	registry.ProcessConfig `mapstructure:",squash"`
	Processes              []registry.ProcessConfig `json:"processes" toml:"processes" mapstructure:"processes"`
}

// Load reads path (TOML or JSON, detected from its extension) and returns
// every declared ProcessConfig with environment variables expanded.
func Load(path string) ([]registry.ProcessConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	var cfgs []registry.ProcessConfig
	if len(fc.Processes) > 0 {
		cfgs = fc.Processes
	} else if fc.ProcessConfig.Name != "" {
		cfgs = []registry.ProcessConfig{fc.ProcessConfig}
	}

	for i := range cfgs {
		expandConfig(&cfgs[i])
		if cfgs[i].Name == "" {
			return nil, fmt.Errorf("config: process at index %d is missing a name", i)
		}
	}
	return cfgs, nil
}

var varRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expand substitutes $VAR and ${VAR} references in s using the process
// environment. An undefined reference expands to the empty string, per
// spec.md section 6, rather than being left in the output (no error,
// matching the teacher's no-recursion, best-effort env.expand behavior).
func expand(s string) string {
	if !strings.ContainsRune(s, '$') {
		return s
	}
	return varRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := varRef.FindStringSubmatch(ref)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		v, _ := os.LookupEnv(name)
		return v
	})
}

// expandConfig applies expand to every field of c that can carry a
// variable reference: script, cwd, args, and every env value. Env keys are
// left untouched.
func expandConfig(c *registry.ProcessConfig) {
	c.Script = expand(c.Script)
	c.Cwd = expand(c.Cwd)
	for i, a := range c.Args {
		c.Args[i] = expand(a)
	}
	for k, v := range c.Env {
		c.Env[k] = expand(v)
	}
}
