package playback

import (
	"sync"
	"time"
)

// Mode selects the highlight continuation policy.
type Mode int

const (
	// ModeLive treats the whole growing transcript as one stream: starting
	// resumes at the first word not yet spoken and stopping keeps history.
	ModeLive Mode = iota
	// ModeBatch treats every start as a fresh stream from word 0.
	ModeBatch
)

func (m Mode) String() string {
	if m == ModeBatch {
		return "batch"
	}
	return "live"
}

func ParseMode(s string) Mode {
	if s == "batch" {
		return ModeBatch
	}
	return ModeLive
}

type Mark int

const (
	MarkPending Mark = iota
	MarkActive
	MarkSpoken
)

func (m Mark) String() string {
	switch m {
	case MarkActive:
		return "active"
	case MarkSpoken:
		return "spoken"
	default:
		return "pending"
	}
}

// Word is a caption word on the session timeline.
type Word struct {
	Text       string
	StartMs    float64
	DurationMs float64
	Mark       Mark
}

func (w Word) EndMs() float64 { return w.StartMs + w.DurationMs }

// Event reports one mark change.
type Event struct {
	Index int
	Word  string
	Mark  Mark
}

// Cursor is what the caption view renders.
type Cursor struct {
	// Index is the active word, or the next word to speak when none is
	// active.
	Index     int
	Spoken    int
	Active    bool
	StartedAt time.Time
}

// Highlighter maps word timings onto the virtual clock with cancellable
// timers. All mutations go through Start, Stop, Reset, AddWords and Resync.
type Highlighter struct {
	clock   Clock
	vclock  *VirtualClock
	onEvent func(Event)

	mu        sync.Mutex
	mode      Mode
	words     []Word
	active    bool
	epoch     uint64
	timers    []Timer
	freeStart time.Time
}

func NewHighlighter(mode Mode, vclock *VirtualClock, clock Clock, onEvent func(Event)) *Highlighter {
	if clock == nil {
		clock = RealClock()
	}
	return &Highlighter{
		clock:   clock,
		vclock:  vclock,
		onEvent: onEvent,
		mode:    mode,
	}
}

func (h *Highlighter) Mode() Mode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}

// SetMode switches policy; it applies from the next Start or Stop.
func (h *Highlighter) SetMode(m Mode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mode = m
}

// AddWords appends words arriving with a new chunk.
func (h *Highlighter) AddWords(words []Word) {
	if len(words) == 0 {
		return
	}
	var events []Event
	h.mu.Lock()
	from := len(h.words)
	for _, w := range words {
		w.Mark = MarkPending
		h.words = append(h.words, w)
	}
	if h.active {
		h.planLocked(from, &events)
	}
	h.mu.Unlock()
	h.emit(events)
}

// Start begins highlighting. Live mode resumes at the first word not yet
// spoken; batch mode clears every mark and begins at word 0.
func (h *Highlighter) Start() {
	var events []Event
	h.mu.Lock()
	h.cancelLocked()
	if h.mode == ModeBatch {
		for i := range h.words {
			h.setLocked(i, MarkPending, &events)
		}
	}
	h.active = true

	resume := h.resumeLocked()
	anchor := h.lastEndLocked()
	if resume < len(h.words) {
		anchor = h.words[resume].StartMs
	}
	now := h.clock.Now()
	h.freeStart = now.Add(-time.Duration(anchor * float64(time.Millisecond)))
	h.planLocked(resume, &events)
	h.mu.Unlock()
	h.emit(events)
}

// Stop cancels pending transitions. Live mode keeps spoken marks; batch
// mode clears them.
func (h *Highlighter) Stop() {
	var events []Event
	h.mu.Lock()
	h.cancelLocked()
	h.active = false
	h.freeStart = time.Time{}
	for i, w := range h.words {
		if h.mode == ModeBatch || w.Mark == MarkActive {
			h.setLocked(i, MarkPending, &events)
		}
	}
	h.mu.Unlock()
	h.emit(events)
}

// Reset cancels every timer and forgets all words.
func (h *Highlighter) Reset() {
	h.mu.Lock()
	h.cancelLocked()
	h.active = false
	h.freeStart = time.Time{}
	h.words = nil
	h.mu.Unlock()
}

// Resync reschedules against the virtual clock. The player calls it when
// the clock is anchored, frozen or reset.
func (h *Highlighter) Resync() {
	var events []Event
	h.mu.Lock()
	if h.active {
		h.cancelLocked()
		h.planLocked(h.resumeLocked(), &events)
	}
	h.mu.Unlock()
	h.emit(events)
}

func (h *Highlighter) Cursor() Cursor {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := Cursor{Index: -1, Active: h.active, StartedAt: h.vclock.StartedAt()}
	if c.StartedAt.IsZero() {
		c.StartedAt = h.freeStart
	}
	for i, w := range h.words {
		switch w.Mark {
		case MarkSpoken:
			c.Spoken++
		case MarkActive:
			c.Index = i
		}
	}
	if c.Index < 0 {
		c.Index = h.resumeLocked()
	}
	return c
}

func (h *Highlighter) Words() []Word {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Word(nil), h.words...)
}

// position is the timeline position now, and whether it is advancing.
// Once audio has started the virtual clock is authoritative; before that
// the highlighter free-runs from the moment Start was called.
func (h *Highlighter) positionLocked(now time.Time) (float64, bool) {
	if !h.vclock.StartedAt().IsZero() {
		return h.vclock.PositionMs(now), h.vclock.Running()
	}
	if h.freeStart.IsZero() {
		return 0, false
	}
	return float64(now.Sub(h.freeStart)) / float64(time.Millisecond), true
}

// planLocked settles words[from:] against the current position and
// schedules their future transitions.
func (h *Highlighter) planLocked(from int, events *[]Event) {
	now := h.clock.Now()
	pos, running := h.positionLocked(now)
	epoch := h.epoch

	for i := from; i < len(h.words); i++ {
		w := h.words[i]
		if w.Mark == MarkSpoken {
			continue
		}
		switch {
		case w.EndMs() <= pos:
			h.setLocked(i, MarkSpoken, events)
		case w.StartMs <= pos:
			h.setLocked(i, MarkActive, events)
			if running {
				h.scheduleLocked(epoch, i, MarkSpoken, w.EndMs()-pos)
			}
		default:
			h.setLocked(i, MarkPending, events)
			if running {
				h.scheduleLocked(epoch, i, MarkActive, w.StartMs-pos)
				h.scheduleLocked(epoch, i, MarkSpoken, w.EndMs()-pos)
			}
		}
	}
}

func (h *Highlighter) scheduleLocked(epoch uint64, index int, mark Mark, inMs float64) {
	d := time.Duration(inMs * float64(time.Millisecond))
	h.timers = append(h.timers, h.clock.AfterFunc(d, func() { h.fire(epoch, index, mark) }))
}

func (h *Highlighter) fire(epoch uint64, index int, mark Mark) {
	var events []Event
	h.mu.Lock()
	if epoch != h.epoch || !h.active || index >= len(h.words) {
		h.mu.Unlock()
		return
	}
	if cur := h.words[index].Mark; cur != MarkSpoken && cur != mark {
		h.setLocked(index, mark, &events)
	}
	h.mu.Unlock()
	h.emit(events)
}

// cancelLocked stops every outstanding timer and invalidates callbacks
// that already started.
func (h *Highlighter) cancelLocked() {
	h.epoch++
	for _, t := range h.timers {
		t.Stop()
	}
	h.timers = nil
}

func (h *Highlighter) setLocked(index int, mark Mark, events *[]Event) {
	if h.words[index].Mark == mark {
		return
	}
	h.words[index].Mark = mark
	*events = append(*events, Event{Index: index, Word: h.words[index].Text, Mark: mark})
}

func (h *Highlighter) resumeLocked() int {
	for i, w := range h.words {
		if w.Mark != MarkSpoken {
			return i
		}
	}
	return len(h.words)
}

func (h *Highlighter) lastEndLocked() float64 {
	if len(h.words) == 0 {
		return 0
	}
	return h.words[len(h.words)-1].EndMs()
}

func (h *Highlighter) emit(events []Event) {
	if h.onEvent == nil {
		return
	}
	for _, e := range events {
		h.onEvent(e)
	}
}
