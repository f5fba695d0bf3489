package store

import "sync"

// Key identifies one isolated scrollback: a chat plus an optional
// forum-topic thread. HasTopic distinguishes "no thread" from a real
// thread whose id happens to be zero.
type Key struct {
	Chat     int64
	Topic    int64
	HasTopic bool
}

// Message is one retained chat message. Immutable once stored.
type Message struct {
	ID      int64
	Author  string // display name; empty when the sender could not be resolved
	ReplyTo int64  // message ID this replies to; 0 means no reply target
	Text    string
	Date    int64
}

// Stats is an aggregate view over all buffers. ApproxBytes is a rough
// footprint estimate for diagnostics, not an accounting of allocations.
type Stats struct {
	Buffers     int
	Messages    int
	ApproxBytes int64
}

// perMessageOverhead is the fixed bookkeeping cost counted per retained
// message when estimating the footprint.
const perMessageOverhead = 96

// ring is a fixed-capacity FIFO of messages.
type ring struct {
	buf   []Message
	head  int // index of the oldest element
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Message, capacity)}
}

// push appends m, discarding the oldest element when full.
// Reports whether an eviction happened.
func (r *ring) push(m Message) bool {
	if r.count == len(r.buf) {
		r.buf[r.head] = m
		r.head = (r.head + 1) % len(r.buf)
		return true
	}
	r.buf[(r.head+r.count)%len(r.buf)] = m
	r.count++
	return false
}

// tail copies the newest min(n, count) elements in insertion order.
func (r *ring) tail(n int) []Message {
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]Message, n)
	start := r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+start+i)%len(r.buf)]
	}
	return out
}

// Store keeps one bounded FIFO buffer per conversation key. Buffers are
// created lazily on first append and live for the process lifetime.
// All operations take the store lock for their own duration only; the
// lock is never held across I/O.
type Store struct {
	mu       sync.Mutex
	capacity int
	chats    map[Key]*ring
}

// New creates a store whose buffers hold up to capacity messages each.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Store{
		capacity: capacity,
		chats:    make(map[Key]*ring),
	}
}

// Capacity returns the fixed per-buffer capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Append stores m as the newest message for key, creating the buffer on
// first use and evicting the oldest message when the buffer is full.
// Reports whether an eviction happened.
func (s *Store) Append(key Key, m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.chats[key]
	if !ok {
		r = newRing(s.capacity)
		s.chats[key] = r
	}
	return r.push(m)
}

// Tail returns the newest min(n, Count(key)) messages for key in
// insertion order. The result is a point-in-time copy; later appends do
// not affect it. Unknown keys and n <= 0 yield an empty result.
func (s *Store) Tail(key Key, n int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.chats[key]
	if !ok {
		return nil
	}
	return r.tail(n)
}

// Count returns the number of messages currently retained for key.
func (s *Store) Count(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.chats[key]; ok {
		return r.count
	}
	return 0
}

// Stats returns aggregate counts across all buffers.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Buffers: len(s.chats)}
	for _, r := range s.chats {
		st.Messages += r.count
		for i := 0; i < r.count; i++ {
			st.ApproxBytes += int64(len(r.buf[(r.head+i)%len(r.buf)].Text)) + perMessageOverhead
		}
	}
	return st
}
