package serialport

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.bug.st/serial"
)

// fakePort implements only what the dialer touches
type fakePort struct {
	serial.Port
	timeout time.Duration
	closed  bool
}

func (p *fakePort) SetReadTimeout(d time.Duration) error {
	p.timeout = d
	return nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestSelectPort(t *testing.T) {
	tests := []struct {
		name    string
		ports   []Port
		want    string
		wantErr bool
	}{
		{
			name: "prefers ftdi",
			ports: []Port{
				{Name: "/dev/ttyS0"},
				{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341"},
				{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6015"},
			},
			want: "/dev/ttyUSB0",
		},
		{
			name: "falls back to usb",
			ports: []Port{
				{Name: "/dev/ttyS0"},
				{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341"},
			},
			want: "/dev/ttyACM0",
		},
		{
			name:    "no usb ports",
			ports:   []Port{{Name: "/dev/ttyS0"}},
			wantErr: true,
		},
		{
			name:    "empty",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectPort(tt.ports)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SelectPort() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SelectPort() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDialAuto(t *testing.T) {
	port := &fakePort{}
	var opened string
	var gotMode serial.Mode
	d := &Dialer{
		BaudRate:    115200,
		ReadTimeout: 100 * time.Millisecond,
		list: func() ([]Port, error) {
			return []Port{{Name: "/dev/ttyUSB3", IsUSB: true, VID: "0403"}}, nil
		},
		open: func(name string, mode *serial.Mode) (serial.Port, error) {
			opened = name
			gotMode = *mode
			return port, nil
		},
	}

	tr, err := d.Dial(context.Background(), AutoEndpoint)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if tr != port {
		t.Error("Dial() did not return the opened port")
	}
	if opened != "/dev/ttyUSB3" {
		t.Errorf("opened %q, want /dev/ttyUSB3", opened)
	}
	if gotMode.BaudRate != 115200 || gotMode.DataBits != 8 {
		t.Errorf("mode = %+v", gotMode)
	}
	if port.timeout != 100*time.Millisecond {
		t.Errorf("read timeout = %v", port.timeout)
	}
}

func TestDialOpenError(t *testing.T) {
	boom := errors.New("permission denied")
	d := &Dialer{
		open: func(name string, mode *serial.Mode) (serial.Port, error) {
			return nil, boom
		},
	}
	if _, err := d.Dial(context.Background(), "/dev/ttyUSB0"); !errors.Is(err, boom) {
		t.Errorf("Dial() error = %v, want %v", err, boom)
	}
}

func TestDialCancelled(t *testing.T) {
	release := make(chan struct{})
	closed := make(chan struct{})
	port := &closeNotifyPort{closed: closed}
	d := &Dialer{
		open: func(name string, mode *serial.Mode) (serial.Port, error) {
			<-release
			return port, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Dial(ctx, "/dev/ttyUSB0"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Dial() error = %v, want context.Canceled", err)
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("port opened after cancel was not closed")
	}
}

type closeNotifyPort struct {
	serial.Port
	closed chan struct{}
}

func (p *closeNotifyPort) Close() error {
	close(p.closed)
	return nil
}
