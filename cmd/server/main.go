package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/liuscraft/orion-stream/internal/audio"
	"github.com/liuscraft/orion-stream/internal/config"
	"github.com/liuscraft/orion-stream/internal/logging"
	"github.com/liuscraft/orion-stream/internal/metrics"
	"github.com/liuscraft/orion-stream/internal/server"
	"github.com/liuscraft/orion-stream/internal/session"
	"github.com/liuscraft/orion-stream/internal/synth"
	"github.com/liuscraft/orion-stream/internal/text"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file path")
	envFile := flag.String("env-file", config.DefaultEnvFile, "optional env file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	envLoaded, err := config.LoadDotEnv(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}
	appConfig, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(appConfig.LoggingConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()
	logging.SetTraceID(logging.NewTraceID())
	if envLoaded {
		logging.Infof("Loaded environment variables from %s", *envFile)
	}

	adapter, err := buildAdapter(appConfig.Synth)
	if err != nil {
		logging.Fatalf("Failed to create synthesizer: %v", err)
	}
	logging.Infof("Synthesizer ready: mode=%s voice=%s ready=%v", appConfig.Synth.Mode, appConfig.Synth.Voice, adapter.Ready())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	srv := server.New(server.Config{
		WSPath:       appConfig.Server.WSPath,
		ReadLimit:    appConfig.Server.ReadLimit,
		WriteTimeout: time.Duration(appConfig.Server.WriteTimeoutMs) * time.Millisecond,
		Session: session.Config{
			Segmenter:      appConfig.SegmenterConfig(),
			QueueSize:      appConfig.Server.UnitQueueSize,
			OutboundBuffer: appConfig.Server.OutboundBuffer,
		},
	}, adapter, m, reg)

	listen := appConfig.Server.ListenAddr
	if *addr != "" {
		listen = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Infof("Listening on %s (ws path %s)", listen, appConfig.Server.WSPath)
	if err := srv.ListenAndServe(ctx, listen); err != nil {
		logging.Fatalf("Server failed: %v", err)
	}
	logging.Infof("Server stopped")
}

func buildAdapter(cfg config.SynthConfig) (*synth.Adapter, error) {
	var s synth.Synthesizer
	switch cfg.Mode {
	case "exec":
		e, err := synth.NewExecSynthesizer(cfg.Command, cfg.Voice, cfg.NativeSampleRate)
		if err != nil {
			return nil, err
		}
		s = e
	default:
		s = synth.NewMockSynthesizer()
	}

	resampler, err := audio.NewResampler(cfg.Resampler)
	if err != nil {
		return nil, err
	}
	cache, err := synth.NewCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	var normalizer text.Normalizer = text.Passthrough
	if cfg.NormalizeMath {
		normalizer = text.MathNormalizer{}
	}

	return synth.NewAdapter(s, synth.AdapterConfig{
		Timeout:    time.Duration(cfg.TimeoutMs) * time.Millisecond,
		Voice:      cfg.Voice,
		Normalizer: normalizer,
		Resampler:  resampler,
		Cache:      cache,
	}), nil
}
