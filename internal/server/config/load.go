package config

import "github.com/yndnr/usagestats-go/internal/infra/confloader"

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "USAGESTATS_"

// Load builds the configuration from the defaults, the optional file at path,
// the environment and overrides (dotted keys, e.g. "storage.root"). The
// result is verified.
func Load(path string, overrides map[string]any) (*Config, error) {
	l := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithEnvPrefix(EnvPrefix),
	)
	if err := l.LoadSources(); err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		if err := l.LoadMap(overrides); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	if err := l.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
