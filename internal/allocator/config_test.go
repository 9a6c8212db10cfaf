package allocator

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.validate(); err != nil {
		t.Fatalf("defaultConfig() is invalid: %v", err)
	}
}

func TestNewConfigAppliesOptions(t *testing.T) {
	cfg, err := NewConfig(
		WithDrainThreshold(8192),
		WithIdleReserveTimeout(5*time.Second),
		WithAutoMemLimit(true),
	)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}

	if cfg.DrainThreshold != 8192 {
		t.Errorf("DrainThreshold = %d, want 8192", cfg.DrainThreshold)
	}

	if cfg.IdleReserveTimeout != 5*time.Second {
		t.Errorf("IdleReserveTimeout = %v, want 5s", cfg.IdleReserveTimeout)
	}

	if !cfg.EnableAutoMemLimit {
		t.Error("EnableAutoMemLimit = false, want true")
	}
}

func TestNewConfigRejectsInvalidDrainThreshold(t *testing.T) {
	_, err := NewConfig(WithMinChunk(64), WithDrainThreshold(32))
	if err == nil {
		t.Fatal("expected an error for DrainThreshold smaller than MinChunk")
	}
}

func TestNewConfigRejectsMisalignedMinChunk(t *testing.T) {
	_, err := NewConfig(WithMinChunk(33))
	if err == nil {
		t.Fatal("expected an error for a MinChunk not aligned to RoundTo")
	}
}

func TestNewConfigRejectsZeroMemoryLimit(t *testing.T) {
	_, err := NewConfig(WithMemoryLimit(0))
	if err == nil {
		t.Fatal("expected an error for a zero MemoryLimit")
	}
}

func TestLoadConfigFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parheap.toml")

	contents := "drain_threshold = 16384\nenable_auto_mem_limit = true\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.DrainThreshold != 16384 {
		t.Errorf("DrainThreshold = %d, want 16384", cfg.DrainThreshold)
	}

	if !cfg.EnableAutoMemLimit {
		t.Error("EnableAutoMemLimit = false, want true")
	}

	// Untouched fields keep their defaults.
	if cfg.MinChunk != MinChunk {
		t.Errorf("MinChunk = %d, want default %d", cfg.MinChunk, MinChunk)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error loading a nonexistent config file")
	}
}

func TestWatchConfigReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parheap.toml")

	if err := os.WriteFile(path, []byte("drain_threshold = 4096\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reloaded := make(chan *Config, 1)

	w, err := WatchConfig(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("WatchConfig: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("drain_threshold = 32768\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.DrainThreshold != 32768 {
			t.Errorf("reloaded DrainThreshold = %d, want 32768", cfg.DrainThreshold)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload notification")
	}
}
