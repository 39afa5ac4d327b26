package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvEvent(t *testing.T, ch <-chan Event, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestHubOrderingAndReconnect(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	channel := uuid.New().String()

	clientA := hub.NewClient()
	hub.Subscribe(clientA, channel)

	hub.Broadcast(Event{Channel: channel, Type: EventTaskStarted, Data: map[string]any{"seq": 1}})
	hub.Broadcast(Event{Channel: channel, Type: EventChunkGenerated, Data: map[string]any{"seq": 2}})

	if got := recvEvent(t, clientA.Outbound, time.Second); got.Type != EventTaskStarted {
		t.Fatalf("first event: want=%s got=%s", EventTaskStarted, got.Type)
	}
	if got := recvEvent(t, clientA.Outbound, time.Second); got.Type != EventChunkGenerated {
		t.Fatalf("second event: want=%s got=%s", EventChunkGenerated, got.Type)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	select {
	case _, ok := <-clientA.Outbound:
		if ok {
			t.Fatalf("clientA outbound should be closed after disconnect")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for clientA channel close")
	}

	clientB := hub.NewClient()
	hub.Subscribe(clientB, channel)
	hub.Broadcast(Event{Channel: channel, Type: EventTaskCompleted})
	if got := recvEvent(t, clientB.Outbound, time.Second); got.Type != EventTaskCompleted {
		t.Fatalf("reconnect event: want=%s got=%s", EventTaskCompleted, got.Type)
	}
	if n := hub.ClientCount(); n != 1 {
		t.Fatalf("clients=%d want=1", n)
	}
}

func TestHubChannelIsolation(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	a, b := hub.NewClient(), hub.NewClient()
	hub.Subscribe(a, "job-a")
	hub.Subscribe(b, "job-b")

	hub.Broadcast(Event{Channel: "job-a", Type: EventChunkFallback})
	if got := recvEvent(t, a.Outbound, time.Second); got.Type != EventChunkFallback {
		t.Fatalf("a got=%s", got.Type)
	}
	select {
	case ev := <-b.Outbound:
		t.Fatalf("b received foreign event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	c := hub.NewClient()
	hub.Subscribe(c, "job")
	for i := 0; i < clientBuffer+10; i++ {
		hub.Broadcast(Event{Channel: "job", Type: EventChunkGenerated})
	}
	if n := len(c.Outbound); n != clientBuffer {
		t.Fatalf("buffered=%d want=%d", n, clientBuffer)
	}
}
