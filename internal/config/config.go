package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/liuscraft/orion-stream/internal/logging"
	"github.com/liuscraft/orion-stream/internal/text"
)

const (
	DefaultPath    = "config/orion-stream.json"
	DefaultEnvFile = ".env"
)

type AppConfig struct {
	Logging   LoggingConfig   `json:"logging"`
	Server    ServerConfig    `json:"server"`
	Segmenter SegmenterConfig `json:"segmenter"`
	Synth     SynthConfig     `json:"synth"`
	Client    ClientConfig    `json:"client"`
	LLM       LLMConfig       `json:"llm"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type ServerConfig struct {
	ListenAddr     string `json:"listen_addr"`
	WSPath         string `json:"ws_path"`
	ReadLimit      int64  `json:"read_limit"`
	WriteTimeoutMs int    `json:"write_timeout_ms"`
	OutboundBuffer int    `json:"outbound_buffer"`
	UnitQueueSize  int    `json:"unit_queue_size"`
}

type SegmenterConfig struct {
	MaxRunes      int      `json:"max_runes"`
	MinRunes      int      `json:"min_runes"`
	Abbreviations []string `json:"abbreviations"`
}

type SynthConfig struct {
	// Mode is "mock" or "exec".
	Mode             string `json:"mode"`
	Command          string `json:"command"`
	Voice            string `json:"voice"`
	NativeSampleRate int    `json:"native_sample_rate"`
	TimeoutMs        int    `json:"timeout_ms"`
	CacheSize        int    `json:"cache_size"`
	// Resampler is "sinc" or "linear".
	Resampler     string `json:"resampler"`
	NormalizeMath bool   `json:"normalize_math"`
}

type ClientConfig struct {
	ServerURL string `json:"server_url"`
	// Mode is "live" or "batch".
	Mode       string          `json:"mode"`
	ChunkGapMs int             `json:"chunk_gap_ms"`
	Reconnect  ReconnectConfig `json:"reconnect"`
	Speaker    bool            `json:"speaker"`
	WAVOutput  string          `json:"wav_output"`
}

type ReconnectConfig struct {
	MaxTries          uint `json:"max_tries"`
	InitialIntervalMs int  `json:"initial_interval_ms"`
	MaxIntervalMs     int  `json:"max_interval_ms"`
}

type LLMConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

func DefaultConfig() *AppConfig {
	return &AppConfig{
		Logging: LoggingConfig{},
		Server: ServerConfig{
			ListenAddr:     ":8765",
			WSPath:         "/ws",
			ReadLimit:      1 << 20,
			WriteTimeoutMs: 10000,
			OutboundBuffer: 16,
			UnitQueueSize:  64,
		},
		Segmenter: SegmenterConfig{
			MaxRunes:      text.DefaultMaxRunes,
			MinRunes:      text.DefaultMinRunes,
			Abbreviations: append([]string(nil), text.DefaultAbbreviations...),
		},
		Synth: SynthConfig{
			Mode:             "mock",
			Voice:            "default",
			NativeSampleRate: 24000,
			TimeoutMs:        30000,
			CacheSize:        256,
			Resampler:        "sinc",
			NormalizeMath:    true,
		},
		Client: ClientConfig{
			ServerURL:  "ws://127.0.0.1:8765/ws",
			Mode:       "live",
			ChunkGapMs: 30,
			Reconnect: ReconnectConfig{
				MaxTries:          5,
				InitialIntervalMs: 500,
				MaxIntervalMs:     5000,
			},
		},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
	}
}

func Load(path string) (*AppConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// LoadDotEnv exports variables from an env file without overriding the
// process environment. A missing file is not an error; the bool reports
// whether one was read.
func LoadDotEnv(path string) (bool, error) {
	if path == "" {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("load env file %s: %w", path, err)
	}
	return true, nil
}

func (c *AppConfig) ApplyEnv() {
	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		c.Logging.Level = level
	}
	if format := strings.TrimSpace(os.Getenv("LOG_FORMAT")); format != "" {
		c.Logging.Format = format
	}
	if addr := strings.TrimSpace(os.Getenv("ORION_LISTEN_ADDR")); addr != "" {
		c.Server.ListenAddr = addr
	}
	if cmd := strings.TrimSpace(os.Getenv("ORION_SYNTH_COMMAND")); cmd != "" {
		c.Synth.Command = cmd
		c.Synth.Mode = "exec"
	}
	if url := strings.TrimSpace(os.Getenv("ORION_SERVER_URL")); url != "" {
		c.Client.ServerURL = url
	}
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		c.LLM.APIKey = key
	}
	if base := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); base != "" {
		c.LLM.BaseURL = base
	}
}

func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return errors.New("server.listen_addr is required")
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("server.ws_path must start with '/': %q", c.Server.WSPath)
	}
	if c.Server.ReadLimit <= 0 {
		return errors.New("server.read_limit must be positive")
	}
	if c.Server.OutboundBuffer < 0 || c.Server.UnitQueueSize < 0 {
		return errors.New("server buffers must be non-negative")
	}

	if c.Segmenter.MinRunes < 0 {
		return errors.New("segmenter.min_runes must be non-negative")
	}
	if c.Segmenter.MaxRunes > 0 && c.Segmenter.MinRunes > c.Segmenter.MaxRunes {
		return errors.New("segmenter.min_runes must not exceed max_runes")
	}

	switch strings.ToLower(c.Synth.Mode) {
	case "mock":
	case "exec":
		if strings.TrimSpace(c.Synth.Command) == "" {
			return errors.New("synth.command is required in exec mode")
		}
	default:
		return fmt.Errorf("invalid synth.mode: %s", c.Synth.Mode)
	}
	if c.Synth.NativeSampleRate <= 0 {
		return errors.New("synth.native_sample_rate must be positive")
	}
	if c.Synth.TimeoutMs <= 0 {
		return errors.New("synth.timeout_ms must be positive")
	}
	switch strings.ToLower(c.Synth.Resampler) {
	case "", "sinc", "linear":
	default:
		return fmt.Errorf("invalid synth.resampler: %s", c.Synth.Resampler)
	}

	switch strings.ToLower(c.Client.Mode) {
	case "live", "batch":
	default:
		return fmt.Errorf("invalid client.mode: %s", c.Client.Mode)
	}
	if c.Client.ChunkGapMs < 0 {
		return errors.New("client.chunk_gap_ms must be non-negative")
	}
	return nil
}

// ValidateLLM reports whether the LLM text source can be used.
func (c *AppConfig) ValidateLLM() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return errors.New("llm api_key is required")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm model is required")
	}
	return nil
}

func (c *AppConfig) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}

func (c *AppConfig) SegmenterConfig() text.SegmenterConfig {
	return text.SegmenterConfig{
		MaxRunes:      c.Segmenter.MaxRunes,
		MinRunes:      c.Segmenter.MinRunes,
		Abbreviations: c.Segmenter.Abbreviations,
	}
}
