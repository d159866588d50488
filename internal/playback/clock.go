package playback

import (
	"sync"
	"time"
)

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock is the wall-time source for scheduling. Tests substitute a manual
// clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock returns a Clock backed by package time.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// VirtualClock maps wall time onto the session timeline. Only the player
// writes it: Anchor when a chunk begins, Freeze on pause. Everyone else
// reads PositionMs.
type VirtualClock struct {
	mu        sync.RWMutex
	anchorAt  time.Time
	anchorPos float64
	running   bool
	startedAt time.Time
}

func NewVirtualClock() *VirtualClock {
	return &VirtualClock{}
}

// Anchor declares that timeline position posMs is playing at now.
func (c *VirtualClock) Anchor(now time.Time, posMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorAt = now
	c.anchorPos = posMs
	c.running = true
	if c.startedAt.IsZero() {
		c.startedAt = now
	}
}

// Freeze stops the clock at its current position.
func (c *VirtualClock) Freeze(now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorPos = c.positionLocked(now)
	c.anchorAt = now
	c.running = false
	return c.anchorPos
}

// Hold stops the clock at posMs.
func (c *VirtualClock) Hold(posMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorPos = posMs
	c.running = false
}

// PositionMs is the timeline position playing at now.
func (c *VirtualClock) PositionMs(now time.Time) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positionLocked(now)
}

func (c *VirtualClock) positionLocked(now time.Time) float64 {
	if !c.running {
		return c.anchorPos
	}
	return c.anchorPos + float64(now.Sub(c.anchorAt))/float64(time.Millisecond)
}

func (c *VirtualClock) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// StartedAt is the wall time the first chunk began, zero before that.
func (c *VirtualClock) StartedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startedAt
}

func (c *VirtualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorAt = time.Time{}
	c.anchorPos = 0
	c.running = false
	c.startedAt = time.Time{}
}
