package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/liuscraft/orion-stream/internal/logging"
	"github.com/liuscraft/orion-stream/internal/metrics"
	"github.com/liuscraft/orion-stream/internal/protocol"
	"github.com/liuscraft/orion-stream/internal/synth"
	"github.com/liuscraft/orion-stream/internal/text"
	"github.com/liuscraft/orion-stream/internal/timeline"
)

var (
	ErrClosed          = errors.New("session closed")
	ErrStaleGeneration = errors.New("stale session generation")
)

// SynthesisErrorMessage is sent to the client when a unit fails.
const SynthesisErrorMessage = "TTS processing failed"

// UnitSynthesizer renders one text unit into a wire-ready chunk.
type UnitSynthesizer interface {
	Synthesize(ctx context.Context, unit string) (synth.Chunk, error)
}

type Config struct {
	Segmenter text.SegmenterConfig
	// QueueSize bounds units waiting for synthesis; Handle blocks when full.
	QueueSize int
	// OutboundBuffer is the frame buffer between the worker and the writer.
	OutboundBuffer int
}

func DefaultConfig() Config {
	return Config{
		Segmenter:      text.DefaultSegmenterConfig(),
		QueueSize:      64,
		OutboundBuffer: 16,
	}
}

// Frame is one outbound item. Close asks the writer to end the connection
// with a normal closure after everything before it has been sent.
type Frame struct {
	Generation uint64
	Message    protocol.Outbound
	Close      bool
}

// Stats is a point-in-time view of a session.
type Stats struct {
	State      State
	Generation uint64
	SentRunes  int
	OffsetMs   float64
	Segments   int
	Pending    string
}

type job struct {
	unit       text.Unit
	generation uint64
	ctx        context.Context
	close      bool
}

// Session owns the streaming state of one connection: the text buffer,
// the timeline and the generation counter. Handle must be called from a
// single goroutine; synthesis runs on the session's own worker, one unit
// at a time, in extraction order.
type Session struct {
	id      string
	synth   UnitSynthesizer
	cfg     Config
	metrics *metrics.Metrics
	log     *zap.SugaredLogger

	mu         sync.Mutex
	sm         *StateMachine
	segmenter  *text.Segmenter
	timeline   *timeline.Accumulator
	generation uint64
	genCtx     context.Context
	genCancel  context.CancelFunc
	sentRunes  int
	closing    bool

	units  chan job
	out    chan Frame
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	start  sync.Once
}

func New(id string, s UnitSynthesizer, cfg Config, m *metrics.Metrics) *Session {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.OutboundBuffer <= 0 {
		cfg.OutboundBuffer = DefaultConfig().OutboundBuffer
	}
	return &Session{
		id:        id,
		synth:     s,
		cfg:       cfg,
		metrics:   m,
		log:       logging.Session(id),
		sm:        NewStateMachine(),
		segmenter: text.NewSegmenter(cfg.Segmenter),
		timeline:  timeline.NewAccumulator(),
		units:     make(chan job, cfg.QueueSize),
		out:       make(chan Frame, cfg.OutboundBuffer),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Start launches the synthesis worker. The session stops when ctx ends.
func (s *Session) Start(ctx context.Context) {
	s.start.Do(func() {
		s.mu.Lock()
		s.ctx, s.cancel = context.WithCancel(ctx)
		s.genCtx, s.genCancel = context.WithCancel(s.ctx)
		s.mu.Unlock()
		go s.worker()
	})
}

// Stop abandons pending work and waits for the worker to exit.
func (s *Session) Stop() {
	s.mu.Lock()
	started := s.cancel != nil
	if started {
		s.cancel()
	}
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// Outbound yields frames in emission order. It is closed when the worker
// exits, after a close frame or Stop.
func (s *Session) Outbound() <-chan Frame { return s.out }

// Done is closed when the worker has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Stale reports whether a frame was produced before the latest reset.
func (s *Session) Stale(f Frame) bool {
	if f.Close {
		return false
	}
	return f.Generation != s.Generation()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sm.GetCurrentState()
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		State:      s.sm.GetCurrentState(),
		Generation: s.generation,
		SentRunes:  s.sentRunes,
		OffsetMs:   s.timeline.OffsetMs(),
		Segments:   s.timeline.Len(),
		Pending:    s.segmenter.Pending(),
	}
}

// Handle applies one inbound message. Messages must arrive in order from
// a single reader. Units produced are queued for the worker; Handle only
// blocks when the unit queue is full.
func (s *Session) Handle(msg protocol.Inbound) error {
	jobs, err := s.apply(msg)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		select {
		case s.units <- j:
		case <-s.ctx.Done():
			return ErrClosed
		}
	}
	return nil
}

// apply mutates session state under the lock and returns the jobs to
// enqueue once the lock is released.
func (s *Session) apply(msg protocol.Inbound) ([]job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return nil, errors.New("session not started")
	}
	if s.closing || s.sm.GetCurrentState() == StateClosed {
		return nil, ErrClosed
	}

	if msg.Reset {
		s.resetLocked()
	}
	if !msg.HasText() && !msg.Flush {
		return nil, nil
	}

	chunk := msg.TextValue()
	var jobs []job

	switch {
	case msg.Flush:
		s.enterBufferingLocked()
		s.segmenter.Feed(chunk)
		unit, _ := s.segmenter.TryExtract(text.ModeFlush)
		jobs = append(jobs, s.jobLocked(unit))

	case msg.IsClose():
		s.closing = true
		if unit, _ := s.segmenter.TryExtract(text.ModeFlush); !unit.Empty() {
			jobs = append(jobs, s.jobLocked(unit))
		}
		jobs = append(jobs, job{generation: s.generation, ctx: s.genCtx, close: true})
		s.log.Infow("session closing", "generation", s.generation, "final_units", len(jobs)-1)

	case s.sm.GetCurrentState() == StateIdle && strings.TrimSpace(chunk) == "":
		s.enterBufferingLocked()
		s.log.Debugw("handshake", "generation", s.generation)

	default:
		s.enterBufferingLocked()
		s.segmenter.Feed(chunk)
		for {
			unit, ok := s.segmenter.TryExtract(text.ModeNatural)
			if !ok {
				break
			}
			jobs = append(jobs, s.jobLocked(unit))
		}
	}
	return jobs, nil
}

func (s *Session) jobLocked(unit text.Unit) job {
	s.metrics.UnitExtracted(unit.Trigger.String())
	return job{unit: unit, generation: s.generation, ctx: s.genCtx}
}

func (s *Session) enterBufferingLocked() {
	if s.sm.GetCurrentState() == StateIdle {
		s.sm.Transition(StateBuffering)
	}
}

// resetLocked starts a new generation: in-flight synthesis is cancelled,
// queued units become stale, and buffer, timeline and cursor are cleared
// together.
func (s *Session) resetLocked() {
	s.generation++
	s.genCancel()
	s.genCtx, s.genCancel = context.WithCancel(s.ctx)
	s.segmenter.Reset()
	s.timeline.Reset()
	s.sentRunes = 0
	s.sm.Reset()
	s.metrics.Reset()
	s.log.Infow("session reset", "generation", s.generation)
}

func (s *Session) worker() {
	defer close(s.done)
	defer close(s.out)
	defer func() {
		s.mu.Lock()
		s.genCancel()
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case j := <-s.units:
			if j.close {
				s.mu.Lock()
				s.sm.Transition(StateClosed)
				s.mu.Unlock()
				s.emit(Frame{Generation: j.generation, Close: true})
				return
			}
			if frame, ok := s.process(j); ok {
				s.emit(frame)
			}
		}
	}
}

// process synthesizes one unit and places it on the timeline. It returns
// false when the unit's generation was superseded before or during
// synthesis.
func (s *Session) process(j job) (Frame, bool) {
	s.mu.Lock()
	if j.generation != s.generation {
		s.mu.Unlock()
		s.discard(j)
		return Frame{}, false
	}
	s.sm.Transition(StateSynthesizing)
	s.mu.Unlock()

	started := time.Now()
	chunk, err := s.synth.Synthesize(j.ctx, j.unit.Text)
	elapsed := time.Since(started)

	s.mu.Lock()
	defer s.mu.Unlock()
	if j.generation != s.generation {
		s.discard(j)
		return Frame{}, false
	}
	if s.sm.GetCurrentState() == StateSynthesizing {
		s.sm.Transition(StateBuffering)
	}

	if err != nil {
		kind := synth.Kind(err)
		s.metrics.SynthesisFailed(kind)
		s.log.Warnw("unit synthesis failed", "generation", j.generation, "kind", kind, "error", err)
		return Frame{Generation: j.generation, Message: protocol.NewError(j.generation, SynthesisErrorMessage)}, true
	}

	seg := s.timeline.Append(chunk.Records, chunk.DurationMs)
	s.sentRunes += utf8.RuneCountInString(j.unit.Text)
	s.metrics.Synthesized(elapsed, len(chunk.PCM), chunk.DurationMs, chunk.Cached)
	s.log.Debugw("unit emitted",
		"generation", j.generation,
		"segment", seg.Index,
		"trigger", j.unit.Trigger.String(),
		"offset_ms", seg.OffsetMs,
		"duration_ms", seg.DurationMs,
		"chars", len(seg.Records),
		"elapsed", elapsed,
	)
	return Frame{Generation: j.generation, Message: protocol.NewAudio(j.generation, seg, chunk)}, true
}

func (s *Session) discard(j job) {
	s.metrics.StaleDiscard()
	s.log.Debugw("unit discarded", "generation", j.generation, "error", ErrStaleGeneration)
}

func (s *Session) emit(f Frame) {
	select {
	case s.out <- f:
	case <-s.ctx.Done():
	}
}
