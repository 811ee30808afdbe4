package recognizer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/cockpit/internal/recognizer"
	"github.com/MrWong99/cockpit/internal/recognizer/mock"
)

type fakeMonitor struct {
	mu     sync.Mutex
	faults []string
	alive  int
}

func (m *fakeMonitor) Fault(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, reason)
}

func (m *fakeMonitor) Alive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive++
}

func (m *fakeMonitor) snapshot() ([]string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.faults), m.alive
}

func startHub(t *testing.T, hub *recognizer.Hub) string {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) recognizer.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var f recognizer.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return f
}

func TestHub_DispatchesFrames(t *testing.T) {
	t.Parallel()
	sink := &mock.Sink{}
	mon := &fakeMonitor{}
	hub := recognizer.NewHub(sink, recognizer.WithMonitor(mon))
	conn := dial(t, startHub(t, hub))

	send(t, conn, `{"type":"result","text":"Il TTD è di 45 giorni","isFinal":true,"confidence":0.92}`)
	send(t, conn, `{"type":"result","text":"Il TTD","isFinal":false,"confidence":0.4}`)
	send(t, conn, `not json`)
	send(t, conn, `{"type":"error","code":"network"}`)
	send(t, conn, `{"type":"error","code":"no-speech"}`)
	send(t, conn, `{"type":"end"}`)

	waitFor(t, "end frame", func() bool { return sink.Ends() == 1 })

	results := sink.Results()
	want := []mock.Result{
		{Text: "Il TTD è di 45 giorni", IsFinal: true, Confidence: 0.92},
		{Text: "Il TTD", IsFinal: false, Confidence: 0.4},
	}
	if !slices.Equal(results, want) {
		t.Errorf("results = %+v, want %+v", results, want)
	}
	if got := sink.Errors(); !slices.Equal(got, []string{"network", "no-speech"}) {
		t.Errorf("errors = %v", got)
	}
	faults, alive := mon.snapshot()
	if !slices.Equal(faults, []string{recognizer.CodeNoSpeech, recognizer.FrameEnd}) {
		t.Errorf("faults = %v, want only no-speech and end", faults)
	}
	if alive != 2 {
		t.Errorf("alive = %d, want 2", alive)
	}
}

func TestHub_StartStopFrames(t *testing.T) {
	t.Parallel()
	hub := recognizer.NewHub(&mock.Sink{})
	ctx := context.Background()

	if err := hub.Start(ctx); !errors.Is(err, recognizer.ErrNotConnected) {
		t.Fatalf("Start without client = %v, want ErrNotConnected", err)
	}

	conn := dial(t, startHub(t, hub))
	waitFor(t, "client attached", hub.Connected)

	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if f := readFrame(t, conn); f.Type != recognizer.FrameStart {
		t.Errorf("frame = %+v, want start", f)
	}
	if err := hub.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if f := readFrame(t, conn); f.Type != recognizer.FrameStop {
		t.Errorf("frame = %+v, want stop", f)
	}
}

func TestHub_StartsClientThatJoinsWhileListening(t *testing.T) {
	t.Parallel()
	hub := recognizer.NewHub(&mock.Sink{Listening: true})
	conn := dial(t, startHub(t, hub))

	if f := readFrame(t, conn); f.Type != recognizer.FrameStart {
		t.Errorf("frame = %+v, want start on connect", f)
	}
}

func TestHub_NewClientReplacesOld(t *testing.T) {
	t.Parallel()
	sink := &mock.Sink{}
	hub := recognizer.NewHub(sink)
	url := startHub(t, hub)

	first := dial(t, url)
	waitFor(t, "first client", hub.Connected)
	second := dial(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, _, err := first.Read(ctx); websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Errorf("first client read err = %v, want policy violation close", err)
	}

	send(t, second, `{"type":"end"}`)
	waitFor(t, "end from second client", func() bool { return sink.Ends() == 1 })
	if !hub.Connected() {
		t.Error("second client should stay attached")
	}
}

func TestHub_DisconnectDetaches(t *testing.T) {
	t.Parallel()
	hub := recognizer.NewHub(&mock.Sink{})
	conn := dial(t, startHub(t, hub))
	waitFor(t, "client attached", hub.Connected)

	conn.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, "client detached", func() bool { return !hub.Connected() })
}
