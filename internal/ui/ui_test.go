package ui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/muurk/openbci/internal/device"
	"github.com/muurk/openbci/internal/discovery"
	"github.com/muurk/openbci/internal/protocol"
	"github.com/muurk/openbci/internal/watchdog"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		raw        string
		wantBase   string
		wantStream string
		wantErr    bool
	}{
		{"pi.local:8080", "http://pi.local:8080", "ws://pi.local:8080/ws", false},
		{"http://10.0.0.2:8080", "http://10.0.0.2:8080", "ws://10.0.0.2:8080/ws", false},
		{"ws://10.0.0.2:8080/ws", "http://10.0.0.2:8080", "ws://10.0.0.2:8080/ws", false},
		{"https://bci.example.com", "https://bci.example.com", "wss://bci.example.com/ws", false},
		{"ftp://host", "", "", true},
		{"http://", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseTarget(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTarget() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.BaseURL != tt.wantBase || got.StreamURL != tt.wantStream {
				t.Errorf("ParseTarget() = %+v, want base %s stream %s", got, tt.wantBase, tt.wantStream)
			}
		})
	}
}

// fakeServer serves /ws, /status and /control/ like the real server
type fakeServer struct {
	samples []protocol.Sample
	status  device.Status
	refuse  bool // control answers 409
	agents  chan string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case f.agents <- r.UserAgent():
	default:
	}

	switch {
	case r.URL.Path == "/ws":
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, s := range f.samples {
			if err := conn.WriteJSON(s); err != nil {
				return
			}
		}
		// Wait for the client to hang up
		_, _, _ = conn.ReadMessage()

	case r.URL.Path == "/status":
		_ = json.NewEncoder(w).Encode(f.status)

	case strings.HasPrefix(r.URL.Path, "/control/") && r.Method == http.MethodPost:
		if f.refuse {
			http.Error(w, "invalid state", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)

	default:
		http.NotFound(w, r)
	}
}

func newFakeServer(t *testing.T, f *fakeServer) Target {
	t.Helper()
	f.agents = make(chan string, 16)
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)

	target, err := ParseTarget(ts.URL)
	if err != nil {
		t.Fatalf("ParseTarget(%s) error = %v", ts.URL, err)
	}
	return target
}

func testSample(counter uint8) protocol.Sample {
	return protocol.Sample{
		Counter:       counter,
		EEG:           [protocol.EEGChannels]int32{200, -200, 0, 0, 0, 0, 0, 0},
		Accelerometer: [protocol.AccelAxes]int32{0, 0, 500},
	}
}

func TestStreamClient(t *testing.T) {
	f := &fakeServer{samples: []protocol.Sample{testSample(1), testSample(2)}}
	target := newFakeServer(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := DialStream(ctx, target)
	if err != nil {
		t.Fatalf("DialStream() error = %v", err)
	}
	defer c.Close()

	if ua := <-f.agents; !strings.HasPrefix(ua, "openbci-monitor/") {
		t.Errorf("User-Agent = %q", ua)
	}

	for _, want := range f.samples {
		got, err := c.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if got != want {
			t.Errorf("Next() = %v, want %v", got, want)
		}
	}
}

func TestDialStreamRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()
	target, _ := ParseTarget(ts.URL)

	if _, err := DialStream(context.Background(), target); err == nil {
		t.Error("DialStream() against a non-WebSocket endpoint returned nil error")
	}
}

func TestControlClient(t *testing.T) {
	f := &fakeServer{status: device.Status{State: "connected_idle", Mode: "idle", Strategy: "word"}}
	target := newFakeServer(t, f)
	c := NewControlClient(target)
	ctx := context.Background()

	if err := c.Command(ctx, "start"); err != nil {
		t.Errorf("Command(start) error = %v", err)
	}

	f.refuse = true
	err := c.Command(ctx, "start")
	if err == nil || !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "invalid state") {
		t.Errorf("Command(start) refused error = %v", err)
	}

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.State != "connected_idle" || st.Strategy != "word" {
		t.Errorf("Status() = %+v", st)
	}
}

func TestMonitorSamples(t *testing.T) {
	f := &fakeServer{}
	target := newFakeServer(t, f)
	ctx := context.Background()

	client, err := DialStream(ctx, target)
	if err != nil {
		t.Fatalf("DialStream() error = %v", err)
	}

	// 10 ms between samples so a full window takes 2.5 s (100 Hz)
	now := time.Unix(0, 0)
	m := NewMonitorModel(ctx, target)
	m.wd = watchdog.New(nil, watchdog.WithClock(func() time.Time {
		now = now.Add(10 * time.Millisecond)
		return now
	}))

	if v := m.View(); !strings.Contains(v, "Connecting to") {
		t.Errorf("View() before connect = %q", v)
	}

	model, cmd := m.Update(connectedMsg{client: client})
	if cmd == nil {
		t.Fatal("connectedMsg returned no read command")
	}

	// Counter 3 is missing. The timing window closes on the next counter
	// 0 once every slot has a delta, which takes one wrap.
	counters := []uint8{0, 1, 2}
	for c := 4; c <= 256; c++ {
		counters = append(counters, uint8(c))
	}
	for _, c := range counters {
		model, _ = model.Update(sampleMsg{sample: testSample(c)})
	}

	m = model.(MonitorModel)
	st := m.wd.Stats()
	if st.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", st.Dropped)
	}
	if rate := m.Rate(); rate < 99 || rate > 101 {
		t.Errorf("Rate() = %v, want about 100", rate)
	}

	view := m.View()
	for _, want := range []string{"EEG 1", "4.47 µV", "-4.47 µV", "Accel Z", "1.000 g", "100.0 Hz"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}

	// q closes the stream and quits
	model, cmd = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
	if model.(MonitorModel).client != nil {
		t.Error("q left the stream open")
	}
}

func TestMonitorStreamError(t *testing.T) {
	m := NewMonitorModel(context.Background(), Target{StreamURL: "ws://x/ws"})
	streamErr := errors.New("connection reset")

	model, cmd := m.Update(streamErrMsg{err: streamErr})
	if cmd == nil {
		t.Fatal("streamErrMsg returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("stream error did not quit")
	}

	got := model.(MonitorModel)
	if !errors.Is(got.Err(), streamErr) {
		t.Errorf("Err() = %v, want %v", got.Err(), streamErr)
	}
	if v := got.View(); !strings.Contains(v, "connection reset") {
		t.Errorf("View() does not show the error: %q", v)
	}
}

func TestMonitorStatusAndCommands(t *testing.T) {
	m := NewMonitorModel(context.Background(), Target{StreamURL: "ws://x/ws"})

	st := device.Status{State: "connected_streaming", Mode: "sample_stream", Strategy: "word", Endpoint: "/dev/ttyUSB0"}
	model, cmd := m.Update(statusMsg{status: st})
	if cmd == nil {
		t.Error("statusMsg did not schedule the next poll")
	}
	view := model.View()
	for _, want := range []string{"connected_streaming", "/dev/ttyUSB0", "word"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}

	tests := []struct {
		name string
		msg  commandMsg
		want string
	}{
		{"accepted", commandMsg{name: "start"}, "start accepted"},
		{"refused", commandMsg{name: "start", err: errors.New("start: 409 Conflict")}, "409 Conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, _ := model.Update(tt.msg)
			if got := next.(MonitorModel).notice; !strings.Contains(got, tt.want) {
				t.Errorf("notice = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestHeaderParamsSorted(t *testing.T) {
	out := NewHeader("OpenBCI Monitor", "ws://x/ws", map[string]string{
		"State":   "connected_idle",
		"Board":   "sim",
		"Decoder": "word",
	}).SetWidth(80).Render()

	b, d, s := strings.Index(out, "Board:"), strings.Index(out, "Decoder:"), strings.Index(out, "State:")
	if b < 0 || d < 0 || s < 0 || !(b < d && d < s) {
		t.Errorf("params not rendered in key order:\n%s", out)
	}
	if !strings.Contains(out, "OPENBCI MONITOR") {
		t.Error("title not upper-cased")
	}
}

func TestRenderServices(t *testing.T) {
	tests := []struct {
		name     string
		services []*discovery.Service
		want     []string
	}{
		{
			name: "none",
			want: []string{"No OpenBCI servers found", discovery.ServiceType},
		},
		{
			name: "two",
			services: []*discovery.Service{
				{Instance: "lab-pi", IP: "10.0.0.5", Port: 8080, Metadata: map[string]string{"version": "v1.0.0", "endpoint": "/dev/ttyUSB0"}},
				{Instance: "bench", IP: "10.0.0.6", Port: 9000},
			},
			want: []string{"Found 2 OpenBCI server(s)", "lab-pi", "ws://10.0.0.5:8080/ws", "v1.0.0", "/dev/ttyUSB0", "bench", "10.0.0.6:9000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RenderServices(tt.services, 90)
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("RenderServices() missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestResultRender(t *testing.T) {
	out := NewFailureResult("Stream ended", errors.New("boom"), []string{"Is the server running?"}).SetWidth(80).Render()
	for _, want := range []string{"FAILED", "Stream ended", "Error: boom", "Troubleshooting:", "Is the server running?"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q", want)
		}
	}
}
