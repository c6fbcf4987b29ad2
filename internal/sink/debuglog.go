package sink

import (
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/openbci/internal/logging"
)

// DebugLog records raw bytes received while the parser is in debug mode.
// The log file is opened on the first byte and closed when the session
// ends.
type DebugLog struct {
	path string

	mu     sync.Mutex
	logger *zap.Logger
	close  func()
	failed bool
	count  int
}

// NewDebugLog creates a sink writing JSON lines to path
func NewDebugLog(path string) *DebugLog {
	return &DebugLog{path: path}
}

// DebugByte implements device.DebugSink
func (d *DebugLog) DebugByte(b byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failed {
		return
	}
	if d.logger == nil {
		l, closeFn, err := logging.NewFileLogger(d.path)
		if err != nil {
			d.failed = true
			logging.Error("Debug log unavailable", zap.String("path", d.path), zap.Error(err))
			return
		}
		d.logger, d.close = l, closeFn
		logging.Info("Debug log opened", zap.String("path", d.path))
	}

	d.count++
	d.logger.Debug("byte",
		zap.Uint8("value", b),
		zap.String("char", logging.ASCIIDump([]byte{b})),
		zap.Int("index", d.count),
	)
}

// SessionEnded implements device.DebugSink
func (d *DebugLog) SessionEnded() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.close != nil {
		d.close()
		logging.Debug("Debug log closed", zap.String("path", d.path), zap.Int("bytes", d.count))
	}
	d.logger, d.close = nil, nil
	d.failed = false
	d.count = 0
}
