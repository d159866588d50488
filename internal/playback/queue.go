package playback

import (
	"context"
	"sync"
)

// Entry is one decoded chunk waiting to be played.
type Entry struct {
	Generation uint64
	OffsetMs   float64
	DurationMs float64
	PCM        []byte
	Text       string
}

func (e Entry) EndMs() float64 { return e.OffsetMs + e.DurationMs }

// Queue is the FIFO between the network reader and the playback driver.
type Queue struct {
	mu     sync.Mutex
	items  []Entry
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

func (q *Queue) Push(e Entry) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop blocks until an entry is available or ctx ends.
func (q *Queue) Pop(ctx context.Context) (Entry, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = Entry{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return e, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Clear drops every queued entry and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
