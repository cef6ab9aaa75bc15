// Package config loads tenexcore's static configuration document and
// resolves secrets kept out of it.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvPrefix is the app prefix for spec 6.5's environment variables:
// {PREFIX}_NSEC, {PREFIX}_BASE_DIR, {PREFIX}_DEBUG.
const EnvPrefix = "TENEXCORE"

// DefaultHTTPBindAddress is spec 4.8/6.3's ResponsesServer default.
const DefaultHTTPBindAddress = "127.0.0.1:3000"

// RelayConfig describes one configured relay connection.
type RelayConfig struct {
	URL   string `toml:"url"`
	Read  bool   `toml:"read"`
	Write bool   `toml:"write"`
}

// Config is tenexcore.toml: relay lists, HTTP bind address, and
// directories (spec 6.6's on-disk layout root). Secrets never live
// here: the nsec comes from {PREFIX}_NSEC (see Nsec), and ResolveSecret
// resolves "$ENV_VAR" references for any other secret-valued setting.
type Config struct {
	BaseDir         string        `toml:"base_dir"`
	HTTPBindAddress string        `toml:"http_bind_address"`
	Relays          []RelayConfig `toml:"relays"`
	Debug           bool          `toml:"debug"`

	// BlossomServers are tried in order when uploading a draft's image
	// attachments (spec 4.9's image_attachments[]); empty disables
	// uploads, leaving attach-image to fail with "no blossom servers
	// configured".
	BlossomServers []string `toml:"blossom_servers"`
}

// Default returns the configuration used when no tenexcore.toml is
// present: no relays configured, bind address and layout per spec
// defaults.
func Default() *Config {
	return &Config{
		BaseDir:         defaultBaseDir(),
		HTTPBindAddress: DefaultHTTPBindAddress,
	}
}

// Load reads and parses a tenexcore.toml document at path, then applies
// environment overrides (spec 6.5). A missing file is not an error;
// Load falls back to Default() and still applies overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv(EnvPrefix + "_BASE_DIR"); dir != "" {
		cfg.BaseDir = dir
	}
	if debug := os.Getenv(EnvPrefix + "_DEBUG"); debug != "" {
		cfg.Debug = isTruthy(debug)
	}
}

// Nsec returns the pre-populated signing key from {PREFIX}_NSEC, if
// set, so CoreRuntime can skip interactive login (spec 6.5).
func Nsec() (string, bool) {
	v := os.Getenv(EnvPrefix + "_NSEC")
	return v, v != ""
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func defaultBaseDir() string {
	if dir, err := os.UserHomeDir(); err == nil && dir != "" {
		return dir + "/.tenexcore"
	}
	return ".tenexcore"
}

// ResolveSecret resolves a config value that may name an environment
// variable instead of carrying a literal. Values prefixed with "$" read
// that variable (generalized from the teacher's resolveAPIKey
// convention); anything else is returned unchanged.
func ResolveSecret(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}
	if strings.HasPrefix(s, "$") {
		name := strings.TrimPrefix(s, "$")
		if name == "" {
			return "", fmt.Errorf("invalid secret reference: %q", raw)
		}
		return os.Getenv(name), nil
	}
	return s, nil
}
