// Package confloader loads layered configuration with koanf and watches the
// configuration file for changes with fsnotify.
//
// Priority, highest first:
//
//  1. Maps loaded with LoadMap (command line overrides)
//  2. Environment variables
//  3. The YAML configuration file
//  4. Values already present in the unmarshal target (defaults)
//
// Environment variables use a double underscore between levels so that
// snake_case keys survive: USAGESTATS_STORAGE__SELECTION_LOG_RETENTION_DAYS
// maps to storage.selection_log_retention_days.
package confloader
