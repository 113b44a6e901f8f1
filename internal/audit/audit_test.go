package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for _, activity := range []string{"REGISTER", "LOGIN", "LOGOUT"} {
		d.Emit(context.Background(), Event{Activity: activity})
	}
	d.Close()

	for _, want := range []string{"REGISTER", "LOGIN", "LOGOUT"} {
		select {
		case ev := <-sink.Events():
			if ev.Activity != want {
				t.Fatalf("expected %s, got %s", want, ev.Activity)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Emit(context.Context, Event) { <-s.release }

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Activity: "LOGIN"})
	}
	close(sink.release)
	d.Close()

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a full buffer")
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher should report zero drops")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{Activity: "REGISTER", Email: "a@x.com", Success: true})
	sink.Emit(context.Background(), Event{Activity: "LOGIN", Email: "a@x.com"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Activity != "REGISTER" || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSinkKeysByEmail(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, time.Second, nil)

	sink.Emit(context.Background(), Event{Activity: "LOGIN", Email: "a@x.com", Timestamp: time.Unix(100, 0)})

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "a@x.com" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "LOGIN" {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}
	if err := sink.Close(); err != nil || !w.closed {
		t.Fatalf("close: err=%v closed=%v", err, w.closed)
	}
}

func TestKafkaSinkSwallowsWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	sink := newKafkaSink(w, time.Second, nil)

	sink.Emit(context.Background(), Event{Activity: "LOGIN"})
	if len(w.msgs) != 0 {
		t.Fatal("no message should be recorded on failure")
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := NewChannelSink(1), NewChannelSink(1)
	MultiSink{a, nil, b}.Emit(context.Background(), Event{Activity: "LOGOUT"})

	if (<-a.Events()).Activity != "LOGOUT" || (<-b.Events()).Activity != "LOGOUT" {
		t.Fatal("expected both sinks to receive the event")
	}
}

func TestDispatcherIgnoresEmitAfterClose(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()
	d.Close()

	d.Emit(context.Background(), Event{Activity: "LOGIN"})
	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected event after close: %+v", ev)
	default:
	}
}

func TestDispatcherBlockingEmitHonorsContext(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	var dropped int
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, OnDrop: func(Event) { dropped++ }}, sink)

	d.Emit(context.Background(), Event{Activity: "LOGIN"})
	d.Emit(context.Background(), Event{Activity: "LOGIN"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Emit(ctx, Event{Activity: "LOGIN"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit did not return after ctx ended")
	}

	close(sink.release)
	d.Close()
	if d.Dropped() != 0 || dropped != 0 {
		t.Fatalf("blocking mode must not drop, got %d", d.Dropped())
	}
}
