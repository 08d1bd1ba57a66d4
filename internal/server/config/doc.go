// Package config defines the usagestats configuration.
//
//   - spec.go: Config struct definition
//   - default.go: default values
//   - load.go: loading through internal/infra/confloader
//   - verify.go: validation
//   - sanitize.go: masking of key material for display
//
// Sources, lowest priority first: defaults, YAML file, USAGESTATS_*
// environment variables, command line overrides.
package config
