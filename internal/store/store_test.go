package store

import (
	"fmt"
	"sync"
	"testing"
)

func msg(id int64, text string) Message {
	return Message{ID: id, Author: "user", Text: text}
}

func ids(msgs []Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestAppend_BoundedFIFO(t *testing.T) {
	s := New(3)
	key := Key{Chat: 1}

	for i := int64(1); i <= 5; i++ {
		evicted := s.Append(key, msg(i, "m"))
		wantEvict := i > 3
		if evicted != wantEvict {
			t.Errorf("append %d: evicted=%v, want %v", i, evicted, wantEvict)
		}
		if got := s.Count(key); got > 3 {
			t.Fatalf("count exceeded capacity after append %d: %d", i, got)
		}
	}

	got := ids(s.Tail(key, s.Count(key)))
	want := []int64{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestTail_WindowSizes(t *testing.T) {
	s := New(10)
	key := Key{Chat: 7}
	for i := int64(1); i <= 4; i++ {
		s.Append(key, msg(i, "m"))
	}

	if got := s.Tail(key, 0); len(got) != 0 {
		t.Errorf("Tail(0) should be empty, got %d messages", len(got))
	}
	if got := ids(s.Tail(key, 2)); len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("Tail(2) = %v, want [3 4]", got)
	}
	if got := ids(s.Tail(key, 100)); len(got) != 4 || got[0] != 1 || got[3] != 4 {
		t.Errorf("Tail(100) = %v, want [1 2 3 4]", got)
	}
}

func TestTail_UnknownKey(t *testing.T) {
	s := New(10)
	if got := s.Tail(Key{Chat: 42}, 5); len(got) != 0 {
		t.Errorf("expected empty tail for unknown key, got %d messages", len(got))
	}
	if got := s.Count(Key{Chat: 42}); got != 0 {
		t.Errorf("expected count 0 for unknown key, got %d", got)
	}
}

func TestTail_SnapshotIsACopy(t *testing.T) {
	s := New(2)
	key := Key{Chat: 1}
	s.Append(key, msg(1, "one"))
	s.Append(key, msg(2, "two"))

	snap := s.Tail(key, 2)

	// Force evictions after the snapshot was taken.
	s.Append(key, msg(3, "three"))
	s.Append(key, msg(4, "four"))

	if snap[0].ID != 1 || snap[1].ID != 2 {
		t.Errorf("snapshot mutated by later appends: %v", ids(snap))
	}
}

func TestAppend_PerKeyIsolation(t *testing.T) {
	s := New(5)
	a := Key{Chat: 1}
	b := Key{Chat: 2}
	topic := Key{Chat: 1, Topic: 9, HasTopic: true}
	mainLine := Key{Chat: 1, Topic: 0, HasTopic: false}
	topicZero := Key{Chat: 1, Topic: 0, HasTopic: true}

	s.Append(a, msg(1, "a"))
	s.Append(topic, msg(2, "t"))
	s.Append(topicZero, msg(3, "t0"))

	if got := s.Count(b); got != 0 {
		t.Errorf("key B affected by appends to A: count=%d", got)
	}
	if got := s.Count(a); got != 1 {
		t.Errorf("main line count = %d, want 1", got)
	}
	if got := s.Count(mainLine); got != 1 {
		t.Errorf("explicit main-line key should equal zero-value key, count=%d", got)
	}
	if got := s.Count(topic); got != 1 {
		t.Errorf("topic count = %d, want 1", got)
	}
	// Topic id 0 is a real thread, distinct from "no thread".
	if got := s.Count(topicZero); got != 1 {
		t.Errorf("topic-zero count = %d, want 1", got)
	}
}

func TestStats(t *testing.T) {
	s := New(10)
	s.Append(Key{Chat: 1}, msg(1, "hello"))
	s.Append(Key{Chat: 1}, msg(2, "world!"))
	s.Append(Key{Chat: 2}, msg(1, "hey"))

	st := s.Stats()
	if st.Buffers != 2 {
		t.Errorf("buffers = %d, want 2", st.Buffers)
	}
	if st.Messages != 3 {
		t.Errorf("messages = %d, want 3", st.Messages)
	}
	wantBytes := int64(len("hello")+len("world!")+len("hey")) + 3*perMessageOverhead
	if st.ApproxBytes != wantBytes {
		t.Errorf("approx bytes = %d, want %d", st.ApproxBytes, wantBytes)
	}
}

func TestNew_DefaultCapacity(t *testing.T) {
	s := New(0)
	if s.Capacity() != 1000 {
		t.Errorf("default capacity = %d, want 1000", s.Capacity())
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New(50)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			key := Key{Chat: int64(p % 2)}
			for i := 0; i < 200; i++ {
				s.Append(key, Message{ID: int64(i), Author: "u", Text: fmt.Sprintf("m%d", i)})
				if i%10 == 0 {
					snap := s.Tail(key, 25)
					if len(snap) > 50 {
						t.Errorf("snapshot larger than capacity: %d", len(snap))
					}
				}
			}
		}(p)
	}
	wg.Wait()

	for _, chat := range []int64{0, 1} {
		if got := s.Count(Key{Chat: chat}); got != 50 {
			t.Errorf("chat %d count = %d, want full buffer of 50", chat, got)
		}
	}
	st := s.Stats()
	if st.Buffers != 2 || st.Messages != 100 {
		t.Errorf("stats = %+v, want 2 buffers / 100 messages", st)
	}
}
