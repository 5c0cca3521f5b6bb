package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/questline/internal/models"
	"github.com/starford/questline/internal/plugin"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestSendUsesMessageTypeAsEventName(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Send(context.Background(), plugin.NewScanResult(&models.ScanResult{QuestlineID: "summer"}))

	select {
	case frame := <-ch:
		s := string(frame.Bytes())
		if !strings.HasPrefix(s, "event: SCAN_RESULT\ndata: ") || !strings.HasSuffix(s, "\n\n") {
			t.Errorf("frame = %q", s)
		}
		if !strings.Contains(s, `"type":"SCAN_RESULT"`) || !strings.Contains(s, `"questlineId":"summer"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan Frame) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case f := <-ch:
			out = append(out, string(f.Data))
		default:
			return out
		}
	}
}

func TestProgressThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for _, p := range []int{10, 30, 50, 70, 100} {
		b.Send(context.Background(), plugin.NewScanProgress(p))
	}
	got := drain(ch)
	if len(got) != 2 || !strings.Contains(got[0], `"progress":10`) || !strings.Contains(got[1], `"progress":100`) {
		t.Errorf("frames = %v", got)
	}

	// A new run passes its first value even inside the throttle window.
	b.Send(context.Background(), plugin.NewScanProgress(0))
	b.Send(context.Background(), plugin.NewScanProgress(40))
	got = drain(ch)
	if len(got) != 1 || !strings.Contains(got[0], `"progress":0`) {
		t.Errorf("frames = %v", got)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Send(context.Background(), plugin.NewExportResult(models.ExportResult{}))
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: EXPORT_RESULT") {
		t.Errorf("handler output missing event: %q", body)
	}
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Send(context.Background(), plugin.NewScanProgress(50))
	b.Send(context.Background(), plugin.NewScanResult(nil))
}

func TestLateSubscriberGetsLastScanResult(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	b.Send(context.Background(), plugin.NewScanResult(&models.ScanResult{QuestlineID: "old"}))
	b.Send(context.Background(), plugin.NewScanResult(&models.ScanResult{QuestlineID: "new"}))
	b.Send(context.Background(), plugin.NewExportResult(models.ExportResult{}))
	time.Sleep(50 * time.Millisecond)

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)
	got := drain(ch)
	if len(got) != 1 || !strings.Contains(got[0], `"questlineId":"new"`) {
		t.Errorf("replayed = %v", got)
	}
}

func TestRetainedNothingBeforeFirstEvent(t *testing.T) {
	b := NewBroker(100*time.Millisecond, WithRetained("SCAN_RESULT", "EXPORT_RESULT"))
	defer b.Close()

	b.Send(context.Background(), plugin.NewExportResult(models.ExportResult{}))
	time.Sleep(50 * time.Millisecond)

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)
	got := drain(ch)
	if len(got) != 1 || !strings.Contains(got[0], `"EXPORT_RESULT"`) {
		t.Errorf("replayed = %v", got)
	}
}

func TestSSEHeartbeat(t *testing.T) {
	b := NewBroker(100*time.Millisecond, WithHeartbeat(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), ": ping\n\n") {
		t.Errorf("no heartbeat in %q", w.Body.String())
	}
}
