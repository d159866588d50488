package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/liuscraft/orion-stream/internal/audio"
	"github.com/liuscraft/orion-stream/internal/logging"
	"github.com/liuscraft/orion-stream/internal/protocol"
	"github.com/liuscraft/orion-stream/internal/timeline"
)

var (
	// ErrStaleGeneration marks a server message produced before the latest
	// reset. Callers drop it silently.
	ErrStaleGeneration = errors.New("stale generation")
	// ErrServer wraps an error message reported by the server.
	ErrServer = errors.New("server error")
)

type EngineConfig struct {
	Mode    Mode
	Sink    Sink
	Gap     time.Duration
	FrameMs int
	Clock   Clock
	// OnEvent runs on timer goroutines and inside Accept; it must not call
	// Accept, Reset or Restart.
	OnEvent func(Event)
	OnChunk func(Entry)
}

// Engine is the client-side receiver: it validates server messages
// against the current generation, queues audio for the player and feeds
// word timings to the highlighter.
type Engine struct {
	queue       *Queue
	vclock      *VirtualClock
	player      *Player
	highlighter *Highlighter
	sink        Sink
	clock       Clock
	log         *zap.SugaredLogger

	mu         sync.Mutex
	generation uint64
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Sink == nil {
		cfg.Sink = PacedSink{}
	}
	q := NewQueue()
	vclock := NewVirtualClock()
	player := NewPlayer(q, cfg.Sink, vclock, PlayerConfig{Gap: cfg.Gap, FrameMs: cfg.FrameMs, Clock: cfg.Clock})
	h := NewHighlighter(cfg.Mode, vclock, cfg.Clock, cfg.OnEvent)
	player.OnClockChange(h.Resync)
	if cfg.OnChunk != nil {
		player.OnChunkStart(cfg.OnChunk)
	}
	return &Engine{
		queue:       q,
		vclock:      vclock,
		player:      player,
		highlighter: h,
		sink:        cfg.Sink,
		clock:       cfg.Clock,
		log:         logging.Component("playback"),
	}
}

// Run drives playback until ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	err := e.player.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Accept applies one server message. Stale messages return
// ErrStaleGeneration and change nothing.
func (e *Engine) Accept(msg protocol.Outbound) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if msg.Generation != e.generation {
		return fmt.Errorf("%w: got %d, current %d", ErrStaleGeneration, msg.Generation, e.generation)
	}
	if msg.IsError() {
		return fmt.Errorf("%w: %s", ErrServer, msg.Error)
	}
	if !msg.IsAudio() {
		return fmt.Errorf("%w: neither audio nor error", protocol.ErrProtocolViolation)
	}

	pcm, err := audio.DecodeBase64(*msg.Audio)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrProtocolViolation, err)
	}
	words := messageWords(msg)
	duration := msg.DurationMs
	if duration <= 0 {
		duration = audio.DurationMs(len(pcm)/audio.BytesPerSample, audio.TargetSampleRate)
	}
	offset, ok := msg.Offset()
	if !ok && msg.Alignment != nil && len(msg.Alignment.CharStartTimesMs) > 0 {
		// servers without offset_ms: start times are still session-global
		offset = msg.Alignment.CharStartTimesMs[0]
	}

	e.highlighter.AddWords(words)
	e.queue.Push(Entry{
		Generation: e.generation,
		OffsetMs:   offset,
		DurationMs: duration,
		PCM:        pcm,
		Text:       msg.OriginalText,
	})
	e.log.Debugw("chunk queued",
		"generation", e.generation,
		"offset_ms", offset,
		"duration_ms", duration,
		"words", len(words),
		"queued", e.queue.Len(),
	)
	return nil
}

// Reset starts a new generation: queued audio is dropped, the clock
// rewinds and every highlight timer is cancelled. It returns the new
// generation, which the caller must mirror with a reset message.
func (e *Engine) Reset() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.highlighter.Reset()
	e.player.Reset(e.generation)
	return e.generation
}

// Restart clears everything for a brand new server session, whose
// generations count from zero again.
func (e *Engine) Restart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation = 0
	e.highlighter.Reset()
	e.player.Reset(0)
}

func (e *Engine) StartHighlighting() { e.highlighter.Start() }
func (e *Engine) StopHighlighting()  { e.highlighter.Stop() }
func (e *Engine) SetMode(m Mode)     { e.highlighter.SetMode(m) }
func (e *Engine) Pause()             { e.player.Pause() }
func (e *Engine) Resume()            { e.player.Resume() }
func (e *Engine) State() State       { return e.player.State() }
func (e *Engine) Cursor() Cursor     { return e.highlighter.Cursor() }
func (e *Engine) Words() []Word      { return e.highlighter.Words() }
func (e *Engine) Pending() int       { return e.queue.Len() }

// PositionMs is the timeline position currently playing.
func (e *Engine) PositionMs() float64 {
	return e.vclock.PositionMs(e.clock.Now())
}

func (e *Engine) Close() error {
	return e.sink.Close()
}

func messageWords(msg protocol.Outbound) []Word {
	if wa := msg.WordAlignment; wa != nil && len(wa.Words) == len(wa.WordStartTimesMs) && len(wa.Words) == len(wa.WordDurationsMs) {
		words := make([]Word, len(wa.Words))
		for i := range wa.Words {
			words[i] = Word{Text: wa.Words[i], StartMs: wa.WordStartTimesMs[i], DurationMs: wa.WordDurationsMs[i]}
		}
		return words
	}
	if msg.Alignment == nil {
		return nil
	}
	a := msg.Alignment
	records := make([]timeline.Record, 0, len(a.Chars))
	for i, ch := range a.Chars {
		if !utf8.ValidString(ch) || i >= len(a.CharStartTimesMs) || i >= len(a.CharDurationsMs) {
			break
		}
		records = append(records, timeline.Record{Char: ch, StartMs: a.CharStartTimesMs[i], DurationMs: a.CharDurationsMs[i]})
	}
	tw := timeline.Words(records)
	words := make([]Word, len(tw))
	for i, w := range tw {
		words[i] = Word{Text: w.Text, StartMs: w.StartMs, DurationMs: w.DurationMs}
	}
	return words
}
