package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"cronwatch/models"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster(4)
	defer b.Close()

	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()
	if b.Observers() != 2 {
		t.Fatalf("observers = %d, want 2", b.Observers())
	}

	b.Publish(models.Event{Type: models.EventJobUpdate, JobID: "a"})
	for _, ch := range []<-chan models.Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.JobID != "a" {
				t.Fatalf("event = %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	unsub1()
	unsub1() // idempotent
	if _, ok := <-ch1; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	if b.Observers() != 1 {
		t.Fatalf("observers = %d, want 1", b.Observers())
	}
}

func TestBroadcasterSlowObserverNeverBlocks(t *testing.T) {
	b := NewBroadcaster(2)
	defer b.Close()
	slow, unsub := b.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(models.Event{Type: models.EventRefresh})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full observer")
	}
	if n := len(slow); n != 2 {
		t.Fatalf("buffered events = %d, want 2", n)
	}
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster(1)
	ch, unsub := b.Subscribe()
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatal("channel open after Close")
	}
	unsub()
	b.Close()

	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscribe after Close returned an open channel")
	}
}

func TestNATSBridgeDropsOwnEvents(t *testing.T) {
	local := &eventRecorder{}
	bridge := NewNATSBridge(nil, "cronwatch.events", "node-a", local)

	own, _ := json.Marshal(models.Event{Type: models.EventRefresh, Origin: "node-a"})
	bridge.handle(&nats.Msg{Subject: "cronwatch.events", Data: own})
	if n := len(local.reasons()); n != 0 {
		t.Fatalf("own event relayed %d times", n)
	}

	remote, _ := json.Marshal(models.Event{Type: models.EventJobStatus, JobID: "x", Reason: "run_started", Origin: "node-b"})
	bridge.handle(&nats.Msg{Subject: "cronwatch.events", Data: remote})
	bridge.handle(&nats.Msg{Subject: "cronwatch.events", Data: []byte("not json")})
	if got := local.reasons(); len(got) != 1 || got[0] != "run_started" {
		t.Fatalf("relayed = %v", got)
	}
}

func TestJobLocksSerializeAndRelease(t *testing.T) {
	l := newJobLocks()
	unlock := l.Lock("a")

	acquired := make(chan struct{})
	go func() {
		u := l.Lock("a")
		u()
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatal("second Lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	// Other keys are independent.
	l.Lock("b")()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
	if n := l.size(); n != 0 {
		t.Fatalf("locks retained = %d, want 0", n)
	}
}
