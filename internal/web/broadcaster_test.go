package web

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cjeanneret/ScanGo/internal/hw/clock"
	"github.com/cjeanneret/ScanGo/internal/logic/telemetry"
)

func receive(t *testing.T, ch <-chan string) StatusEvent {
	t.Helper()
	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
	return StatusEvent{}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Broadcast("warn", "carriage near end stop")

	for _, ch := range []<-chan string{ch1, ch2} {
		evt := receive(t, ch)
		if evt.Msg != "carriage near end stop" || evt.Level != "warn" {
			t.Errorf("event = %+v", evt)
		}
	}
}

func TestBroadcaster_Timestamp(t *testing.T) {
	b := NewStatusBroadcaster()
	b.clock = clock.NewFake(time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC))
	ch, unsub := b.Subscribe()
	defer unsub()

	b.BroadcastMsg("hello")
	evt := receive(t, ch)
	if evt.Time != "2026-05-04T10:30:00Z" {
		t.Errorf("Time = %q", evt.Time)
	}
	if evt.Level != "info" {
		t.Errorf("Level = %q, want info", evt.Level)
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()
	unsub() // idempotent

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	b.Broadcast("info", "after unsub") // must not panic
}

func TestBroadcaster_FullChannelDropsMessage(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 64; i++ {
		b.Broadcast("info", "fill")
	}
	b.Broadcast("info", "overflow")

	if got := len(ch); got != 64 {
		t.Errorf("expected 64 buffered messages, got %d", got)
	}
}

func TestBroadcastWriter(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	in := "  [ScanGo] [INFO] trimmed  \n"
	n, err := w.Write([]byte(in))
	if err != nil || n != len(in) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if evt := receive(t, ch); evt.Msg != "[ScanGo] [INFO] trimmed" {
		t.Errorf("msg = %q", evt.Msg)
	}

	w.Write([]byte("   \n"))
	select {
	case <-ch:
		t.Error("expected no message for whitespace-only write")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_WatchStatus(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	shared := telemetry.NewShared(telemetry.Settings{})
	shared.SetStatus(telemetry.Wait, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.WatchStatus(ctx, shared, time.Millisecond)

	if evt := receive(t, ch); evt.Status != "wait" || evt.Level != "status" {
		t.Fatalf("first event = %+v, want wait status", evt)
	}

	shared.SetStatus(telemetry.Safe, "stall")
	evt := receive(t, ch)
	if evt.Status != "safe" || evt.Msg != "stall" {
		t.Errorf("event = %+v, want safe/stall", evt)
	}

	select {
	case msg := <-ch:
		t.Errorf("unchanged status re-broadcast: %s", msg)
	case <-time.After(20 * time.Millisecond):
	}
}
