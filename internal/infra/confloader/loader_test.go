package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Storage struct {
		Root          string `koanf:"root"`
		RetentionDays int    `koanf:"selection_log_retention_days"`
	} `koanf:"storage"`
	Maintenance struct {
		PruneInterval time.Duration `koanf:"prune_interval"`
	} `koanf:"maintenance"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usagestats.yaml")
	if err := os.WriteFile(path, []byte(content), 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestNewLoader_Options(t *testing.T) {
	l := NewLoader()
	if l.envPrefix != DefaultEnvPrefix {
		t.Fatalf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}
	l = NewLoader(WithEnvPrefix("TEST_"), WithConfigFile("/etc/usagestats.yaml"))
	if l.envPrefix != "TEST_" || l.filePath != "/etc/usagestats.yaml" {
		t.Fatalf("options not applied: %+v", l)
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeFile(t, "storage:\n  root: /data\n  selection_log_retention_days: 30\n")
	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := l.Get("storage.root"); got != "/data" {
		t.Fatalf("storage.root = %v, want /data", got)
	}
	if l.Get("storage.missing") != nil {
		t.Fatal("Get(storage.missing) != nil")
	}

	if err := l.LoadFile(""); err != nil {
		t.Fatalf("LoadFile(\"\") = %v, want nil", err)
	}
	if err := l.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadFile(missing) should fail")
	}
}

func TestLoader_EnvKeys(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"USAGESTATS_STORAGE__ROOT", "storage.root"},
		{"USAGESTATS_STORAGE__SELECTION_LOG_RETENTION_DAYS", "storage.selection_log_retention_days"},
		{"USAGESTATS_LOG__LEVEL", "log.level"},
	}
	l := NewLoader()
	for _, tt := range tests {
		if got := l.envKey(tt.env); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestLoader_Priority(t *testing.T) {
	path := writeFile(t, `
storage:
  root: /from-file
  selection_log_retention_days: 30
log:
  level: warn
`)
	t.Setenv("USAGESTATS_STORAGE__SELECTION_LOG_RETENTION_DAYS", "21")
	t.Setenv("USAGESTATS_LOG__LEVEL", "error")

	l := NewLoader(WithConfigFile(path))
	if err := l.LoadSources(); err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if err := l.LoadMap(map[string]any{"log.level": "debug"}); err != nil {
		t.Fatalf("LoadMap: %v", err)
	}

	var cfg testConfig
	cfg.Maintenance.PruneInterval = time.Hour
	if err := l.Unmarshal(&cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if cfg.Storage.Root != "/from-file" {
		t.Errorf("root = %q, want /from-file", cfg.Storage.Root)
	}
	if cfg.Storage.RetentionDays != 21 {
		t.Errorf("retention = %d, want 21 (env over file)", cfg.Storage.RetentionDays)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q, want debug (map over env)", cfg.Log.Level)
	}
	if cfg.Maintenance.PruneInterval != time.Hour {
		t.Errorf("prune interval = %v, want the preset 1h", cfg.Maintenance.PruneInterval)
	}
}

func TestLoader_Load(t *testing.T) {
	path := writeFile(t, "maintenance:\n  prune_interval: 90m\n")
	l := NewLoader(WithConfigFile(path))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Maintenance.PruneInterval != 90*time.Minute {
		t.Fatalf("prune interval = %v, want 90m", cfg.Maintenance.PruneInterval)
	}
}

func TestMapProvider(t *testing.T) {
	m, err := mapProvider{"storage.root": "/x", "log.level": "info"}.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	storage, ok := m["storage"].(map[string]any)
	if !ok || storage["root"] != "/x" {
		t.Fatalf("Read = %v, want nested storage.root", m)
	}
	if _, err := (mapProvider{}).ReadBytes(); err != ErrReadBytesNotSupported {
		t.Fatalf("ReadBytes err = %v, want ErrReadBytesNotSupported", err)
	}
}
