package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MergesDefaultsAndEnv(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "orion-stream.json")
	data := `{
		"logging": {"level": "debug"},
		"segmenter": {"max_runes": 60},
		"synth": {"native_sample_rate": 22050}
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("ORION_LISTEN_ADDR", ":9999")
	t.Setenv("ORION_SYNTH_COMMAND", "python3 synth.py --voice a")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected LOG_LEVEL to override config, got %q", cfg.Logging.Level)
	}
	if cfg.Segmenter.MaxRunes != 60 {
		t.Fatalf("expected max_runes 60, got %d", cfg.Segmenter.MaxRunes)
	}
	if cfg.Segmenter.MinRunes != 20 || len(cfg.Segmenter.Abbreviations) == 0 {
		t.Fatalf("expected segmenter defaults to be preserved, got %+v", cfg.Segmenter)
	}
	if cfg.Synth.NativeSampleRate != 22050 {
		t.Fatalf("expected native rate 22050, got %d", cfg.Synth.NativeSampleRate)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Fatalf("expected listen addr from env, got %q", cfg.Server.ListenAddr)
	}
	if cfg.Synth.Mode != "exec" || cfg.Synth.Command == "" {
		t.Fatalf("expected exec synth from env, got %+v", cfg.Synth)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("expected LLM api key from env")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.WSPath != "/ws" || cfg.Synth.Mode != "mock" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"exec without command", func(c *AppConfig) { c.Synth.Mode = "exec" }},
		{"unknown synth mode", func(c *AppConfig) { c.Synth.Mode = "cloud" }},
		{"unknown resampler", func(c *AppConfig) { c.Synth.Resampler = "cubic" }},
		{"zero native rate", func(c *AppConfig) { c.Synth.NativeSampleRate = 0 }},
		{"min above max", func(c *AppConfig) { c.Segmenter.MinRunes = 200 }},
		{"bad ws path", func(c *AppConfig) { c.Server.WSPath = "ws" }},
		{"unknown client mode", func(c *AppConfig) { c.Client.Mode = "karaoke" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateLLM(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateLLM(); err == nil {
		t.Fatalf("expected error when key is missing")
	}
	cfg.LLM.APIKey = "key"
	if err := cfg.ValidateLLM(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSegmenterConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Segmenter.MaxRunes = 42
	sc := cfg.SegmenterConfig()
	if sc.MaxRunes != 42 || sc.MinRunes != cfg.Segmenter.MinRunes {
		t.Fatalf("unexpected segmenter config %+v", sc)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	data := "ORION_SERVER_URL=ws://dotenv.local:1/ws\nLOG_FORMAT=console\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	// registers restore, then leaves the variable unset for the loader
	t.Setenv("ORION_SERVER_URL", "")
	os.Unsetenv("ORION_SERVER_URL")
	t.Setenv("LOG_FORMAT", "json")

	loaded, err := LoadDotEnv(path)
	if err != nil || !loaded {
		t.Fatalf("LoadDotEnv() = %v, %v", loaded, err)
	}
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Client.ServerURL != "ws://dotenv.local:1/ws" {
		t.Fatalf("expected server url from env file, got %q", cfg.Client.ServerURL)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("env file must not override the process env, got %q", cfg.Logging.Format)
	}

	loaded, err = LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil || loaded {
		t.Fatalf("missing env file should be skipped, got %v, %v", loaded, err)
	}
}
