package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	yml := "DATA_DIR: /tmp/toy-kv-test\nLISTEN_ADDR: 127.0.0.1:0\nHEARTBEAT_INTERVAL: 2\nSESSION_TIMEOUT: 20\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.DATA_DIR != "/tmp/toy-kv-test" {
		t.Errorf("DATA_DIR = %q, want %q", cfg.DATA_DIR, "/tmp/toy-kv-test")
	}
	if cfg.HEARTBEAT_INTERVAL != 2 || cfg.SESSION_TIMEOUT != 20 {
		t.Errorf("intervals = (%d, %d), want (2, 20)",
			cfg.HEARTBEAT_INTERVAL, cfg.SESSION_TIMEOUT)
	}
	// Unset fields keep their defaults.
	if cfg.BLOOM_CAPACITY != Default().BLOOM_CAPACITY {
		t.Errorf("BLOOM_CAPACITY = %d, want default %d",
			cfg.BLOOM_CAPACITY, Default().BLOOM_CAPACITY)
	}

	if got := GetConfig(); got != cfg {
		t.Error("GetConfig() did not return the loaded singleton")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty data dir",
			mutate:  func(c *Config) { c.DATA_DIR = "" },
			wantErr: true,
		},
		{
			name:    "empty listen addr",
			mutate:  func(c *Config) { c.LISTEN_ADDR = "" },
			wantErr: true,
		},
		{
			name:    "timeout equal to heartbeat",
			mutate:  func(c *Config) { c.SESSION_TIMEOUT = c.HEARTBEAT_INTERVAL },
			wantErr: true,
		},
		{
			name:    "bad bloom rate",
			mutate:  func(c *Config) { c.BLOOM_FP_RATE = 1.5 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
