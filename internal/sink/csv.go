package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/openbci/internal/logging"
	"github.com/muurk/openbci/internal/protocol"
)

var csvHeader = []string{
	"count",
	"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8",
	"x", "y", "z",
	"clock",
}

// CSVLogger writes every sample to a CSV file. The file is created on the
// first sample and named after the process id and start time.
type CSVLogger struct {
	dir string
	now func() time.Time

	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	path   string
	start  time.Time
	row    []string
	failed bool
}

// NewCSVLogger creates a logger that writes into dir
func NewCSVLogger(dir string) *CSVLogger {
	return &CSVLogger{
		dir: dir,
		now: time.Now,
		row: make([]string, len(csvHeader)),
	}
}

// HandleSample appends one row. It is a bus subscriber.
func (l *CSVLogger) HandleSample(s protocol.Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failed {
		return
	}
	if l.writer == nil {
		if err := l.open(); err != nil {
			// Stop trying; one error per session is enough
			l.failed = true
			logging.Error("CSV log unavailable", zap.String("dir", l.dir), zap.Error(err))
			return
		}
	}

	l.row[0] = strconv.Itoa(int(s.Counter))
	for i, v := range s.EEG {
		l.row[1+i] = strconv.Itoa(int(v))
	}
	for i, v := range s.Accelerometer {
		l.row[1+protocol.EEGChannels+i] = strconv.Itoa(int(v))
	}
	l.row[len(l.row)-1] = strconv.FormatFloat(l.now().Sub(l.start).Seconds(), 'f', 6, 64)

	if err := l.writer.Write(l.row); err != nil {
		l.failed = true
		logging.Error("CSV write failed", zap.String("path", l.path), zap.Error(err))
	}
}

func (l *CSVLogger) open() error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	l.start = l.now()
	name := fmt.Sprintf("sensor.%x.%x.csv", os.Getpid(), l.start.Unix())
	path := filepath.Join(l.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return fmt.Errorf("write header: %w", err)
	}

	l.file, l.writer, l.path = f, w, path
	logging.Info("CSV log opened", zap.String("path", path))
	return nil
}

// Path returns the file being written, or "" before the first sample
func (l *CSVLogger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Flush writes buffered rows to the file
func (l *CSVLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return nil
	}
	l.writer.Flush()
	return l.writer.Error()
}

// Close flushes and closes the file. The next sample opens a new one.
func (l *CSVLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}

	l.writer.Flush()
	err := l.writer.Error()
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file, l.writer = nil, nil
	l.failed = false
	return err
}
