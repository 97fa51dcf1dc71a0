package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/readsession-backend/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubDeliversInOrderAndSurvivesReconnect(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	userID := uuid.New()
	channel := UserChannel(userID)

	clientA := hub.NewSSEClient(userID)
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventSessionStarted})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventSessionEventRecorded})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventSessionStarted {
		t.Fatalf("first event: want=%s got=%s", SSEEventSessionStarted, got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventSessionEventRecorded {
		t.Fatalf("second event: want=%s got=%s", SSEEventSessionEventRecorded, got.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("clientA outbound should be closed after disconnect")
	}
	if n := hub.Subscribers(channel); n != 0 {
		t.Fatalf("subscribers after close: want=0 got=%d", n)
	}

	clientB := hub.NewSSEClient(userID)
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventSessionFinished})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != SSEEventSessionFinished {
		t.Fatalf("reconnect event: want=%s got=%s", SSEEventSessionFinished, got.Event)
	}
}

func TestSSEHubIsolatesUsers(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	alice, bob := uuid.New(), uuid.New()
	a := hub.NewSSEClient(alice)
	b := hub.NewSSEClient(bob)
	hub.AddChannel(a, UserChannel(alice))
	hub.AddChannel(b, UserChannel(bob))

	hub.Broadcast(SSEMessage{Channel: UserChannel(alice), Event: SSEEventSessionArchived})
	recvMessage(t, a.Outbound, time.Second)
	select {
	case msg := <-b.Outbound:
		t.Fatalf("bob received alice's message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	c := hub.NewSSEClient(uuid.New())
	hub.AddChannel(c, "ch")
	for i := 0; i < outboundBuffer+5; i++ {
		hub.Broadcast(SSEMessage{Channel: "ch", Event: SSEEventSessionEventRecorded})
	}
	if got := len(c.Outbound); got != outboundBuffer {
		t.Fatalf("buffered: want=%d got=%d", outboundBuffer, got)
	}
}

func TestSSEHubServeHTTPWritesEvents(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	userID := uuid.New()
	client := hub.NewSSEClient(userID)
	hub.AddChannel(client, UserChannel(userID))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		hub.ServeHTTP(rec, req, client)
		close(done)
	}()

	hub.Broadcast(SSEMessage{Channel: UserChannel(userID), Event: SSEEventSessionPhaseChanged, Data: map[string]string{"phase": "DURING"}})
	deadline := time.Now().Add(time.Second)
	for len(client.Outbound) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: ReadingSessionPhaseChanged") {
		t.Fatalf("missing event line in %q", body)
	}
	if !strings.Contains(body, `"phase":"DURING"`) {
		t.Fatalf("missing data in %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type: got=%q", ct)
	}
}
