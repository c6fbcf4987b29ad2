package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/muurk/openbci/internal/bus"
	"github.com/muurk/openbci/internal/device"
	"github.com/muurk/openbci/internal/monitor"
	"github.com/muurk/openbci/internal/protocol"
)

// fakeDevice records commands and publishes samples on demand
type fakeDevice struct {
	mu       sync.Mutex
	bus      *bus.Bus
	err      error // returned by every command when set
	commands []string
	debug    bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{bus: bus.New(nil)}
}

func (d *fakeDevice) record(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.commands = append(d.commands, name)
	return nil
}

func (d *fakeDevice) StartStream() error { return d.record("start") }
func (d *fakeDevice) StopStream() error  { return d.record("stop") }
func (d *fakeDevice) Reset() error       { return d.record("reset") }

func (d *fakeDevice) SetDebug(enabled bool) error {
	if err := d.record(fmt.Sprintf("debug=%t", enabled)); err != nil {
		return err
	}
	d.mu.Lock()
	d.debug = enabled
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Subscribe(fn bus.Subscriber) (bus.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bus.Subscribe(fn), nil
}

func (d *fakeDevice) Unsubscribe(h bus.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bus.Unsubscribe(h)
	return nil
}

func (d *fakeDevice) Status() (device.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return device.Status{}, d.err
	}
	return device.Status{
		State:       device.ConnectedStreaming.String(),
		Mode:        "sample_stream",
		Endpoint:    "sim",
		Subscribers: d.bus.Len(),
		Strategy:    "portable",
	}, nil
}

func (d *fakeDevice) publish(s protocol.Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bus.Publish(s)
}

func (d *fakeDevice) subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bus.Len()
}

func (d *fakeDevice) history() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// waitFor polls cond until it holds or the test times out
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var testSample = protocol.Sample{
	Counter:       42,
	EEG:           [protocol.EEGChannels]int32{1, 2, 3, 4, 5, 6, 7, 8},
	Accelerometer: [protocol.AccelAxes]int32{-1, 0, 1},
}

func newTestServer(dev Device) *Server {
	return New(&Config{Host: "127.0.0.1", SubscriberBuffer: 16}, dev)
}

func TestControl(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
		wantCmd    string
	}{
		{"start", "/control/start", nil, http.StatusAccepted, "start"},
		{"stop", "/control/stop", nil, http.StatusAccepted, "stop"},
		{"reset", "/control/reset", nil, http.StatusAccepted, "reset"},
		{"unknown command", "/control/launch", nil, http.StatusNotFound, ""},
		{"invalid state", "/control/start", device.ErrInvalidState, http.StatusConflict, ""},
		{"not connected", "/control/reset", device.ErrNotConnected, http.StatusConflict, ""},
		{"stopped", "/control/stop", device.ErrStopped, http.StatusServiceUnavailable, ""},
		{"transport", "/control/start",
			&device.TransportError{Op: "write", Endpoint: "sim", Err: errors.New("broken pipe")},
			http.StatusBadGateway, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			dev.err = tt.err
			s := newTestServer(dev)

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			got := dev.history()
			if tt.wantCmd == "" {
				if len(got) != 0 {
					t.Errorf("commands = %v, want none", got)
				}
				return
			}
			if len(got) != 1 || got[0] != tt.wantCmd {
				t.Errorf("commands = %v, want [%s]", got, tt.wantCmd)
			}
		})
	}
}

func TestControlRequiresPost(t *testing.T) {
	s := newTestServer(newFakeDevice())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/control/start", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /control/start status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestDebug(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		err        error
		wantStatus int
		wantDebug  bool
	}{
		{"enable", "?enabled=true", nil, http.StatusAccepted, true},
		{"disable", "?enabled=false", nil, http.StatusAccepted, false},
		{"missing parameter", "", nil, http.StatusBadRequest, false},
		{"bad parameter", "?enabled=maybe", nil, http.StatusBadRequest, false},
		{"while streaming", "?enabled=true", device.ErrInvalidState, http.StatusConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			dev.err = tt.err
			s := newTestServer(dev)

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control/debug"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			dev.mu.Lock()
			debug := dev.debug
			dev.mu.Unlock()
			if debug != tt.wantDebug {
				t.Errorf("debug = %v, want %v", debug, tt.wantDebug)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	s := newTestServer(newFakeDevice())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if got["state"] != "connected_streaming" {
		t.Errorf("state = %v, want connected_streaming", got["state"])
	}
	if got["decode_strategy"] != "portable" {
		t.Errorf("decode_strategy = %v, want portable", got["decode_strategy"])
	}
	if _, ok := got["watchdog"]; !ok {
		t.Error("status has no watchdog section")
	}
}

func TestMetricsAndIndex(t *testing.T) {
	s := newTestServer(newFakeDevice())
	monitor.SamplesDecoded.Add(0)

	tests := []struct {
		path string
		want string
	}{
		{"/metrics", "openbci_samples_decoded_total"},
		{"/", "<title>OpenBCI stream</title>"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body does not contain %q", tt.want)
			}
		})
	}
}

// readEvent reads one server-sent event
func readEvent(t *testing.T, r *bufio.Reader) (name, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return name, data
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStream(t *testing.T) {
	dev := newFakeDevice()
	ts := httptest.NewServer(newTestServer(dev).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stream")
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	r := bufio.NewReader(resp.Body)
	if name, data := readEvent(t, r); name != "keepalive" || data != `"hello"` {
		t.Errorf("first event = %s %s, want keepalive \"hello\"", name, data)
	}

	// Subscribed before headers were written
	if n := dev.subscribers(); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}
	dev.publish(testSample)

	name, data := readEvent(t, r)
	if name != "sensorData" {
		t.Errorf("event = %q, want sensorData", name)
	}
	if want := `[42,[1,2,3,4,5,6,7,8],[-1,0,1]]`; data != want {
		t.Errorf("data = %s, want %s", data, want)
	}

	resp.Body.Close()
	waitFor(t, "unsubscribe", func() bool { return dev.subscribers() == 0 })
}

func TestWebSocket(t *testing.T) {
	dev := newFakeDevice()
	ts := httptest.NewServer(newTestServer(dev).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	waitFor(t, "subscribe", func() bool { return dev.subscribers() == 1 })
	for i := 0; i < 3; i++ {
		s := testSample
		s.Counter = uint8(i)
		dev.publish(s)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 3; i++ {
		var got protocol.Sample
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		want := testSample
		want.Counter = uint8(i)
		if got != want {
			t.Errorf("sample %d = %v, want %v", i, got, want)
		}
	}

	conn.Close()
	waitFor(t, "unsubscribe", func() bool { return dev.subscribers() == 0 })
}

func TestSampleQueueDropsWhenFull(t *testing.T) {
	drops := monitor.ConsumerDrops.WithLabelValues("test")
	before := testutil.ToFloat64(drops)

	q := newSampleQueue("test", 2)
	for i := 0; i < 5; i++ {
		q.push(testSample)
	}

	if got := len(q.ch); got != 2 {
		t.Errorf("queued = %d, want 2", got)
	}
	if got := testutil.ToFloat64(drops) - before; got != 3 {
		t.Errorf("drops = %v, want 3", got)
	}
}

func TestSSEMsg(t *testing.T) {
	tests := []struct {
		name  string
		data  any
		event string
		want  string
	}{
		{"named", "hello", "keepalive", "event: keepalive\ndata: \"hello\"\n\n"},
		{"unnamed", 3, "", "data: 3\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sseMsg(tt.data, tt.event)
			if err != nil {
				t.Fatalf("sseMsg() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("sseMsg() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := sseMsg(make(chan int), "bad"); err == nil {
		t.Error("sseMsg() with unencodable data returned nil error")
	}
}

func TestShutdownEndsStreams(t *testing.T) {
	dev := newFakeDevice()
	s := newTestServer(dev)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	served := make(chan error, 1)
	go func() { served <- s.httpServer.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/stream")
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()
	r := bufio.NewReader(resp.Body)
	readEvent(t, r)

	if got := s.ActiveStreams(); got != 1 {
		t.Errorf("ActiveStreams() = %d, want 1", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown() took %v with an open stream", elapsed)
	}

	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Serve() = %v, want ErrServerClosed", err)
	}
	waitFor(t, "unsubscribe", func() bool { return dev.subscribers() == 0 })
	if got := s.ActiveStreams(); got != 0 {
		t.Errorf("ActiveStreams() after shutdown = %d, want 0", got)
	}
}
