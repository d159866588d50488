package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/liuscraft/orion-stream/internal/audio"
	"github.com/liuscraft/orion-stream/internal/logging"
)

// State 播放器状态
type State int

const (
	StateQueueEmpty State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateQueueEmpty:
		return "QueueEmpty"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

const DefaultFrameMs = 20

type PlayerConfig struct {
	// Gap is the fixed pause between consecutive chunks.
	Gap time.Duration
	// FrameMs is how much audio is handed to the sink per write; pause takes
	// effect on frame boundaries.
	FrameMs int
	Clock   Clock
}

// Player drains the queue into a sink, one chunk after another, and keeps
// the virtual clock anchored to what is actually playing.
type Player struct {
	queue  *Queue
	sink   Sink
	vclock *VirtualClock
	clock  Clock
	cfg    PlayerConfig
	log    *zap.SugaredLogger

	mu          sync.Mutex
	state       State
	paused      bool
	resume      chan struct{}
	generation  uint64
	chunkCancel context.CancelFunc

	onChunk func(Entry)
	onClock func()
}

func NewPlayer(q *Queue, sink Sink, vclock *VirtualClock, cfg PlayerConfig) *Player {
	if cfg.FrameMs <= 0 {
		cfg.FrameMs = DefaultFrameMs
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if sink == nil {
		sink = NullSink{}
	}
	return &Player{
		queue:  q,
		sink:   sink,
		vclock: vclock,
		clock:  cfg.Clock,
		cfg:    cfg,
		log:    logging.Component("player"),
	}
}

// OnChunkStart registers a callback run as each chunk begins.
func (p *Player) OnChunkStart(f func(Entry)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChunk = f
}

// OnClockChange registers a callback run whenever the virtual clock is
// anchored, frozen or reset.
func (p *Player) OnClockChange(f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClock = f
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run plays chunks in queue order until ctx ends.
func (p *Player) Run(ctx context.Context) error {
	for {
		e, err := p.queue.Pop(ctx)
		if err != nil {
			return err
		}
		if err := p.play(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Warnw("chunk playback failed", "offset_ms", e.OffsetMs, "error", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.sleep(ctx, p.cfg.Gap); err != nil {
			return err
		}
	}
}

func (p *Player) play(ctx context.Context, e Entry) error {
	if err := p.waitResumed(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	if e.Generation != p.generation {
		p.mu.Unlock()
		p.log.Debugw("stale chunk skipped", "generation", e.Generation)
		return nil
	}
	chunkCtx, cancel := context.WithCancel(ctx)
	p.chunkCancel = cancel
	p.state = StatePlaying
	onChunk := p.onChunk
	p.mu.Unlock()
	defer cancel()

	p.vclock.Anchor(p.clock.Now(), e.OffsetMs)
	p.clockChanged()
	if onChunk != nil {
		onChunk(e)
	}

	frameBytes := audio.TargetSampleRate * p.cfg.FrameMs / 1000 * audio.BytesPerSample
	var err error
	for off := 0; off < len(e.PCM) && err == nil; off += frameBytes {
		if err = p.waitResumed(chunkCtx); err != nil {
			break
		}
		end := min(off+frameBytes, len(e.PCM))
		err = p.sink.Write(chunkCtx, e.PCM[off:end])
	}

	p.mu.Lock()
	current := e.Generation == p.generation
	if current {
		p.chunkCancel = nil
		if !p.paused {
			p.state = StateQueueEmpty
			if p.queue.Len() > 0 {
				p.state = StatePlaying
			}
		}
	}
	p.mu.Unlock()

	// Hold the clock at the chunk end until the next chunk anchors it, so
	// gaps and slow arrivals never run the captions ahead of the audio.
	if current && err == nil {
		p.vclock.Hold(e.EndMs())
		p.clockChanged()
	}
	return err
}

func (p *Player) waitResumed(ctx context.Context) error {
	for {
		p.mu.Lock()
		if !p.paused {
			p.mu.Unlock()
			return nil
		}
		ch := p.resume
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (p *Player) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	done := make(chan struct{})
	t := p.clock.AfterFunc(d, func() { close(done) })
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Pause holds playback at the next frame boundary and freezes the clock.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.paused {
		p.mu.Unlock()
		return
	}
	p.paused = true
	p.resume = make(chan struct{})
	p.state = StatePaused
	p.mu.Unlock()

	p.vclock.Freeze(p.clock.Now())
	p.clockChanged()
}

func (p *Player) Resume() {
	p.mu.Lock()
	if !p.paused {
		p.mu.Unlock()
		return
	}
	p.paused = false
	close(p.resume)
	playing := p.chunkCancel != nil
	if playing || p.queue.Len() > 0 {
		p.state = StatePlaying
	} else {
		p.state = StateQueueEmpty
	}
	p.mu.Unlock()

	if playing {
		now := p.clock.Now()
		p.vclock.Anchor(now, p.vclock.PositionMs(now))
		p.clockChanged()
	}
}

// Reset drops queued audio, interrupts the current chunk and rewinds the
// clock. Only chunks tagged with generation play afterwards.
func (p *Player) Reset(generation uint64) {
	p.mu.Lock()
	p.generation = generation
	if p.chunkCancel != nil {
		p.chunkCancel()
		p.chunkCancel = nil
	}
	if p.paused {
		p.paused = false
		close(p.resume)
	}
	p.state = StateQueueEmpty
	dropped := p.queue.Clear()
	p.mu.Unlock()

	p.vclock.Reset()
	p.clockChanged()
	p.log.Debugw("player reset", "generation", generation, "dropped", dropped)
}

func (p *Player) clockChanged() {
	p.mu.Lock()
	f := p.onClock
	p.mu.Unlock()
	if f != nil {
		f()
	}
}
