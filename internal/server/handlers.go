package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/muurk/openbci/internal/device"
	"github.com/muurk/openbci/internal/logging"
)

// handleControl runs start, stop or reset
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("command")

	var command func() error
	switch name {
	case "start":
		command = s.device.StartStream
	case "stop":
		command = s.device.StopStream
	case "reset":
		command = s.device.Reset
	default:
		http.Error(w, fmt.Sprintf("Command %s not found.", name), http.StatusNotFound)
		return
	}

	if err := command(); err != nil {
		writeDeviceError(w, name, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleDebug toggles raw byte mode: POST /control/debug?enabled=true
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		http.Error(w, "enabled must be true or false", http.StatusBadRequest)
		return
	}
	if err := s.device.SetDebug(enabled); err != nil {
		writeDeviceError(w, "debug", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.device.Status()
	if err != nil {
		writeDeviceError(w, "status", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		logging.Debug("Status write failed", zap.Error(err))
	}
}

// writeDeviceError maps commander errors to HTTP status codes
func writeDeviceError(w http.ResponseWriter, command string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, device.ErrInvalidState),
		errors.Is(err, device.ErrNotConnected),
		errors.Is(err, device.ErrAlreadyConnected),
		errors.Is(err, device.ErrConnectionInProgress):
		status = http.StatusConflict
	case errors.Is(err, device.ErrStopped):
		status = http.StatusServiceUnavailable
	case device.IsTransportError(err):
		status = http.StatusBadGateway
	}

	logging.Warn("Command failed",
		zap.String("command", command),
		zap.Int("status", status),
		zap.Error(err),
	)
	http.Error(w, err.Error(), status)
}

// statusRecorder captures the response status for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Flush supports server-sent events through the recorder
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack supports WebSocket upgrades through the recorder
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status)
	})
}
