package config

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

const escapedDollar = "\x00ESCAPED_DOLLAR\x00"

// Loader reads configuration files.
type Loader struct {
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that reads the process environment.
func NewLoader() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

// Load builds the configuration: defaults, then the file at path (if any),
// then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Load builds the configuration from path and validates it. An empty path
// skips the file.
func (l *Loader) Load(path string) (*Config, error) {
	cfg, err := l.Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that do not talk to Vault.
func (l *Loader) Read(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		if err != nil {
			return nil, pkierr.ConfigurationFailed("failed to read config file "+path, err)
		}
		if err := l.decode(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(l.lookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes configuration from r over the defaults without
// applying environment overrides or validation.
func (l *Loader) LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, pkierr.ConfigurationFailed("failed to read config", err)
	}
	cfg := DefaultConfig()
	if err := l.decode(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) decode(data []byte, cfg *Config) error {
	content := l.substituteEnvVars(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(content)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return pkierr.ConfigurationFailed("failed to parse YAML", err)
	}
	return nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default}; $$ yields a literal $.
func (l *Loader) substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", escapedDollar)

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}
		if value, ok := l.lookupEnv(submatches[1]); ok {
			return value
		}
		if len(submatches) >= 3 {
			return submatches[2]
		}
		return ""
	})

	return strings.ReplaceAll(result, escapedDollar, "$")
}
