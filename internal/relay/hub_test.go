package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

type memConn struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *memConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(b)
}

func (c *memConn) messages(t *testing.T) []PushMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []PushMessage
	dec := json.NewDecoder(bytes.NewReader(c.buf.Bytes()))
	for dec.More() {
		var m PushMessage
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("decode pushed frame: %v", err)
		}
		out = append(out, m)
	}
	return out
}

type brokenConn struct{}

func (brokenConn) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestBroadcastReachesGroupMembers(t *testing.T) {
	hub := NewHub()
	a, b := &memConn{}, &memConn{}
	hub.Add("S1:R1", NewPeer(a))
	hub.Add("S1:R1", NewPeer(b))

	msg := PushMessage{Type: "append", VisitSessionID: "v-1", EnlisteeName: "Alice", PackLocation: "Locker-7"}
	if err := hub.Broadcast("S1:R1", msg); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	for _, conn := range []*memConn{a, b} {
		got := conn.messages(t)
		if len(got) != 1 || got[0] != msg {
			t.Fatalf("member got %v, want %v", got, msg)
		}
	}
}

func TestBroadcastIsolationBetweenGroups(t *testing.T) {
	hub := NewHub()
	r1, r2 := &memConn{}, &memConn{}
	hub.Add("S1:R1", NewPeer(r1))
	hub.Add("S1:R2", NewPeer(r2))

	if err := hub.Broadcast("S1:R1", PushMessage{Type: "remove", VisitSessionID: "v-1"}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if len(r1.messages(t)) != 1 {
		t.Fatal("S1:R1 member missed its broadcast")
	}
	if len(r2.messages(t)) != 0 {
		t.Fatal("broadcast leaked into S1:R2")
	}
}

func TestBroadcastSurvivesBrokenConnection(t *testing.T) {
	hub := NewHub()
	ok1, ok2 := &memConn{}, &memConn{}
	hub.Add("S1:R1", NewPeer(ok1))
	hub.Add("S1:R1", NewPeer(brokenConn{}))
	hub.Add("S1:R1", NewPeer(ok2))

	if err := hub.Broadcast("S1:R1", PushMessage{Type: "remove", VisitSessionID: "v-1"}); err != nil {
		t.Fatalf("broadcast must not surface per-connection failures, got %v", err)
	}
	if len(ok1.messages(t)) != 1 || len(ok2.messages(t)) != 1 {
		t.Fatal("healthy connections must still receive the message")
	}
}

func TestAddIsIdempotentAndRemoveTolerant(t *testing.T) {
	hub := NewHub()
	p := NewPeer(&memConn{})

	hub.Add("S1:R1", p)
	hub.Add("S1:R1", p)
	if hub.Size("S1:R1") != 1 {
		t.Fatalf("size = %d after double add, want 1", hub.Size("S1:R1"))
	}

	hub.Remove("S1:R1", p)
	hub.Remove("S1:R1", p) // absent: no-op
	hub.Remove("S9:R9", p) // unknown group: no-op
	if hub.Size("S1:R1") != 0 {
		t.Fatalf("size = %d after remove, want 0", hub.Size("S1:R1"))
	}
}

func TestConcurrentMembershipAndBroadcast(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := NewPeer(&memConn{})
			for j := 0; j < 100; j++ {
				hub.Add("S1:R1", p)
				_ = hub.Broadcast("S1:R1", PushMessage{Type: "remove", VisitSessionID: "v"})
				hub.Remove("S1:R1", p)
			}
		}()
	}
	wg.Wait()
}
