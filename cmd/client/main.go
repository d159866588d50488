package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/liuscraft/orion-stream/internal/client"
	"github.com/liuscraft/orion-stream/internal/config"
	"github.com/liuscraft/orion-stream/internal/llmsource"
	"github.com/liuscraft/orion-stream/internal/logging"
	"github.com/liuscraft/orion-stream/internal/playback"
	"github.com/liuscraft/orion-stream/internal/protocol"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file path")
	envFile := flag.String("env-file", config.DefaultEnvFile, "optional env file")
	inputText := flag.String("text", "Tell me how to cook tomato and egg stir-fry. Dr. Smith says it takes 15 minutes.", "Text to speak")
	ask := flag.String("ask", "", "Ask the LLM and speak its answer instead of -text")
	chunkSize := flag.Int("chunk-size", 12, "Chunk size in runes for fake streaming")
	chunkDelay := flag.Duration("chunk-delay", 120*time.Millisecond, "Delay between chunks")
	serverURL := flag.String("server", "", "Server websocket URL (overrides config)")
	mode := flag.String("mode", "", "Highlight mode: live or batch (overrides config)")
	output := flag.String("output", "", "Also write received audio to this WAV file")
	speaker := flag.Bool("speaker", false, "Play through the default audio device")
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

	cc := appConfig.Client
	if *serverURL != "" {
		cc.ServerURL = *serverURL
	}
	if *mode != "" {
		cc.Mode = *mode
	}
	if *output != "" {
		cc.WAVOutput = *output
	}
	if *speaker {
		cc.Speaker = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := buildSink(cc)
	if err != nil {
		logging.Fatalf("Failed to open audio output: %v", err)
	}

	view := &captionView{}
	engine := playback.NewEngine(playback.EngineConfig{
		Mode:    playback.ParseMode(cc.Mode),
		Sink:    sink,
		Gap:     time.Duration(cc.ChunkGapMs) * time.Millisecond,
		OnEvent: view.render,
	})
	defer engine.Close()

	ccfg := client.DefaultConfig(cc.ServerURL)
	ccfg.MaxTries = cc.Reconnect.MaxTries
	ccfg.InitialInterval = time.Duration(cc.Reconnect.InitialIntervalMs) * time.Millisecond
	ccfg.MaxInterval = time.Duration(cc.Reconnect.MaxIntervalMs) * time.Millisecond
	conn := client.New(ccfg, func(msg protocol.Outbound) {
		if err := engine.Accept(msg); err != nil && !errors.Is(err, playback.ErrStaleGeneration) {
			logging.Warnf("Server message rejected: %v", err)
		}
	})
	conn.OnReconnect(engine.Restart)

	if err := conn.Connect(ctx); err != nil {
		logging.Fatalf("Connect failed: %v", err)
	}

	playCtx, stopPlay := context.WithCancel(ctx)
	defer stopPlay()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(playCtx); err != nil {
			logging.Errorf("Playback error: %v", err)
		}
	}()
	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run(ctx) }()

	engine.StartHighlighting()

	if *ask != "" {
		err = streamAnswer(ctx, appConfig, *ask, conn)
	} else {
		err = streamText(ctx, *inputText, *chunkSize, *chunkDelay, conn)
	}
	if err != nil {
		logging.Errorf("Sending text failed: %v", err)
	}

	if err := conn.Close(); err != nil {
		logging.Errorf("Close failed: %v", err)
	}
	if err := <-runErr; err != nil {
		logging.Errorf("Connection ended: %v", err)
	}

	waitDrained(ctx, engine)
	engine.StopHighlighting()
	stopPlay()
	wg.Wait()
	view.finish()
}

func buildSink(cc config.ClientConfig) (playback.Sink, error) {
	var sinks playback.MultiSink
	if cc.Speaker {
		s, err := playback.NewSpeakerSink(playback.DefaultSpeakerFrames)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cc.WAVOutput != "" {
		w, err := playback.NewWAVSink(cc.WAVOutput)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, w)
	}
	if !cc.Speaker {
		// keep real-time pacing so captions line up
		sinks = append(sinks, playback.PacedSink{})
	}
	return sinks, nil
}

func streamText(ctx context.Context, input string, size int, delay time.Duration, conn *client.Client) error {
	for _, chunk := range chunkText(input, size) {
		if err := conn.SendText(chunk); err != nil {
			return err
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return conn.Flush("")
}

func streamAnswer(ctx context.Context, appConfig *config.AppConfig, question string, conn *client.Client) error {
	if err := appConfig.ValidateLLM(); err != nil {
		return err
	}
	src, err := llmsource.NewOpenAI(ctx, llmsource.Config{
		APIKey:  appConfig.LLM.APIKey,
		BaseURL: appConfig.LLM.BaseURL,
		Model:   appConfig.LLM.Model,
	})
	if err != nil {
		return err
	}
	if err := src.Stream(ctx, question, conn.SendText); err != nil {
		return err
	}
	return conn.Flush("")
}

// chunkText splits text into fixed-size rune chunks. Whitespace is kept so
// the server sees the text exactly as typed.
func chunkText(text string, size int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

func waitDrained(ctx context.Context, engine *playback.Engine) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if engine.Pending() == 0 && engine.State() == playback.StateQueueEmpty {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// captionView prints each word as it becomes active.
type captionView struct {
	mu      sync.Mutex
	printed int
}

func (v *captionView) render(ev playback.Event) {
	if ev.Mark != playback.MarkActive {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if ev.Index < v.printed {
		return
	}
	fmt.Print(ev.Word, " ")
	v.printed = ev.Index + 1
}

func (v *captionView) finish() {
	fmt.Println()
}
