package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhasspy/wyoming-porcupine1/internal/detector"
	"github.com/rhasspy/wyoming-porcupine1/internal/engine"
	"github.com/rhasspy/wyoming-porcupine1/internal/keywords"
	"github.com/rhasspy/wyoming-porcupine1/internal/metrics"
	"github.com/rhasspy/wyoming-porcupine1/internal/session"
	"github.com/rhasspy/wyoming-porcupine1/internal/wyoming"
)

const testFrameLength = 4

// matchFirstEngine matches on its very first frame and never again
type matchFirstEngine struct {
	frames atomic.Int32
}

func (e *matchFirstEngine) FrameLength() int { return testFrameLength }
func (e *matchFirstEngine) SampleRate() int  { return 16000 }
func (e *matchFirstEngine) Close() error     { return nil }

func (e *matchFirstEngine) Process(frame []int16) (bool, error) {
	return e.frames.Add(1) == 1, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	factory := func(cfg engine.Config, kw keywords.Keyword, sensitivity float32) (engine.Engine, error) {
		return &matchFirstEngine{}, nil
	}
	catalog := keywords.NewCatalog(
		[]keywords.Keyword{{Name: "porcupine", Language: "en", ModelPath: "/models/porcupine_linux.ppn"}},
		map[string]string{"en": "/models/porcupine_params.pv"},
	)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appMetrics := metrics.NewMetrics(prometheus.NewRegistry())
	pool := detector.NewPool(engine.Config{Catalog: catalog}, factory, logger, appMetrics)

	infoEvent, err := (&wyoming.Info{Wake: []wyoming.WakeProgram{{Name: "porcupine1"}}}).Event()
	if err != nil {
		t.Fatalf("building info event: %v", err)
	}

	return New("tcp://127.0.0.1:0", session.Config{
		Pool:           pool,
		InfoEvent:      infoEvent,
		DefaultKeyword: "porcupine",
		Sensitivity:    0.5,
		Metrics:        appMetrics,
		Logger:         logger,
	}, logger)
}

func TestSplitURI(t *testing.T) {
	tests := []struct {
		uri         string
		wantScheme  string
		wantAddress string
		wantErr     bool
	}{
		{"tcp://0.0.0.0:10400", "tcp", "0.0.0.0:10400", false},
		{"unix:///run/wakeword.sock", "unix", "/run/wakeword.sock", false},
		{"stdio://", "stdio", "", false},
		{"0.0.0.0:10400", "", "", true},
		{"://addr", "", "", true},
	}

	for _, tt := range tests {
		scheme, address, err := splitURI(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("splitURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if scheme != tt.wantScheme || address != tt.wantAddress {
			t.Errorf("splitURI(%q) = (%q, %q), want (%q, %q)",
				tt.uri, scheme, address, tt.wantScheme, tt.wantAddress)
		}
	}
}

func TestRunRejectsUnknownScheme(t *testing.T) {
	srv := newTestServer(t)
	srv.uri = "udp://0.0.0.0:10400"

	if err := srv.Run(context.Background()); err == nil {
		t.Error("expected error for unsupported URI scheme")
	}
}

// roundTrip writes an event and reads the next event from the server
func roundTrip(t *testing.T, conn io.ReadWriter, reader *bufio.Reader, event *wyoming.Event) *wyoming.Event {
	t.Helper()
	if err := wyoming.WriteEvent(conn, event); err != nil {
		t.Fatalf("writing %s: %v", event.Type, err)
	}
	reply, err := wyoming.ReadEvent(reader)
	if err != nil {
		t.Fatalf("reading reply to %s: %v", event.Type, err)
	}
	return reply
}

func send(t *testing.T, conn io.Writer, event *wyoming.Event, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("building %v event: %v", event, err)
	}
	if e := wyoming.WriteEvent(conn, event); e != nil {
		t.Fatalf("writing %s: %v", event.Type, e)
	}
}

func TestServeStreamSession(t *testing.T) {
	srv := newTestServer(t)

	serverConn, clientConn := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- srv.serveStream(context.Background(), serverConn)
	}()

	reader := bufio.NewReader(clientConn)

	// describe -> info
	reply := roundTrip(t, clientConn, reader, wyoming.DescribeEvent())
	if reply.Type != wyoming.TypeInfo {
		t.Fatalf("expected info reply, got %s", reply.Type)
	}
	info, err := wyoming.InfoFromEvent(reply)
	if err != nil {
		t.Fatalf("parsing info: %v", err)
	}
	if len(info.Wake) != 1 || info.Wake[0].Name != "porcupine1" {
		t.Errorf("unexpected capabilities report: %+v", info)
	}

	// Select keyword and stream one matching frame
	detectEvent, err := (&wyoming.Detect{Names: []string{"porcupine"}}).Event()
	send(t, clientConn, detectEvent, err)

	startEvent, err := (&wyoming.AudioStart{Rate: 16000, Width: 2, Channels: 1}).Event()
	send(t, clientConn, startEvent, err)

	chunkEvent, err := (&wyoming.AudioChunk{Rate: 16000, Width: 2, Channels: 1, Timestamp: 40}).Event(
		make([]byte, testFrameLength*2))
	send(t, clientConn, chunkEvent, err)

	reply, err = wyoming.ReadEvent(reader)
	if err != nil {
		t.Fatalf("reading detection: %v", err)
	}
	detection, err := wyoming.DetectionFromEvent(reply)
	if err != nil {
		t.Fatalf("parsing detection: %v", err)
	}
	if detection.Name != "porcupine" || detection.Timestamp != 40 {
		t.Errorf("unexpected detection: %+v", detection)
	}

	// Second utterance with no match ends in not-detected
	startEvent, err = (&wyoming.AudioStart{Rate: 16000, Width: 2, Channels: 1}).Event()
	send(t, clientConn, startEvent, err)

	chunkEvent, err = (&wyoming.AudioChunk{Rate: 16000, Width: 2, Channels: 1}).Event(
		make([]byte, testFrameLength*2))
	send(t, clientConn, chunkEvent, err)

	stopEvent, err := (&wyoming.AudioStop{}).Event()
	send(t, clientConn, stopEvent, err)

	reply, err = wyoming.ReadEvent(reader)
	if err != nil {
		t.Fatalf("reading not-detected: %v", err)
	}
	if reply.Type != wyoming.TypeNotDetected {
		t.Fatalf("expected not-detected, got %s", reply.Type)
	}

	// Peer close terminates the session cleanly
	clientConn.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serveStream returned error on clean close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serveStream did not return after peer close")
	}

	if srv.ActiveSessionCount() != 0 {
		t.Errorf("expected session to be unregistered, got %d active", srv.ActiveSessionCount())
	}
}

func TestServeStreamTracksSessions(t *testing.T) {
	srv := newTestServer(t)

	serverConn, clientConn := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- srv.serveStream(context.Background(), serverConn)
	}()

	reader := bufio.NewReader(clientConn)
	roundTrip(t, clientConn, reader, wyoming.DescribeEvent())

	if srv.ActiveSessionCount() != 1 {
		t.Errorf("expected 1 active session, got %d", srv.ActiveSessionCount())
	}
	sessions := srv.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session snapshot, got %d", len(sessions))
	}
	if sessions[0].State == "" {
		t.Error("expected session snapshot to carry a state")
	}

	clientConn.Close()
	<-done
}

func TestServeListenerShutdown(t *testing.T) {
	srv := newTestServer(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.serveListener(ctx, listener)
	}()

	conn, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	reply := roundTrip(t, conn, reader, wyoming.DescribeEvent())
	if reply.Type != wyoming.TypeInfo {
		t.Fatalf("expected info reply, got %s", reply.Type)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serveListener returned error on shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serveListener did not stop after cancel")
	}
}
