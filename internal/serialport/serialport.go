// Package serialport opens OpenBCI USB dongles as device transports.
//
// The dongle is an FTDI USB serial bridge running at 115200 baud, 8N1.
// The endpoint "auto" picks the first FTDI port, then the first USB port.
package serialport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"github.com/muurk/openbci/internal/device"
	"github.com/muurk/openbci/internal/logging"
	"github.com/muurk/openbci/internal/protocol"
)

// AutoEndpoint selects a port by enumerating USB devices
const AutoEndpoint = "auto"

// ftdiVID is the USB vendor ID of the dongle's FTDI bridge
const ftdiVID = "0403"

// Port describes one serial port found on the host
type Port struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// Likely reports whether the port looks like an OpenBCI dongle
func (p Port) Likely() bool {
	return p.IsUSB && strings.EqualFold(p.VID, ftdiVID)
}

// ListPorts enumerates the host's serial ports
func ListPorts() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}
	ports := make([]Port, 0, len(details))
	for _, d := range details {
		ports = append(ports, Port{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}

// SelectPort picks the best candidate from ports
func SelectPort(ports []Port) (string, error) {
	for _, p := range ports {
		if p.Likely() {
			return p.Name, nil
		}
	}
	for _, p := range ports {
		if p.IsUSB {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("no USB serial ports found")
}

// Dialer opens serial ports
type Dialer struct {
	BaudRate int
	// ReadTimeout bounds each read. Zero blocks until data or close.
	ReadTimeout time.Duration

	open func(name string, mode *serial.Mode) (serial.Port, error)
	list func() ([]Port, error)
}

// NewDialer creates a dialer at the board's default baud rate
func NewDialer() *Dialer {
	return &Dialer{BaudRate: protocol.BaudRate}
}

// Dial opens endpoint. Opening cannot be interrupted, so if ctx is done
// first Dial returns ctx.Err() and the port is closed once it opens.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (device.Transport, error) {
	name := endpoint
	if name == AutoEndpoint {
		list := d.list
		if list == nil {
			list = ListPorts
		}
		ports, err := list()
		if err != nil {
			return nil, err
		}
		if name, err = SelectPort(ports); err != nil {
			return nil, err
		}
		logging.Info("Selected serial port", zap.String("port", name))
	}

	type result struct {
		port serial.Port
		err  error
	}
	done := make(chan result, 1)
	go func() {
		p, err := d.openPort(name)
		done <- result{p, err}
	}()

	select {
	case r := <-done:
		return r.port, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				_ = r.port.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (d *Dialer) openPort(name string) (serial.Port, error) {
	baud := d.BaudRate
	if baud == 0 {
		baud = protocol.BaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	open := d.open
	if open == nil {
		open = serial.Open
	}
	port, err := open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if d.ReadTimeout > 0 {
		if err := port.SetReadTimeout(d.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
		}
	}
	logging.Debug("Serial port open", zap.String("port", name), zap.Int("baud", baud))
	return port, nil
}
