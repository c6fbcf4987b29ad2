//go:build ignore

// Replays debug-log captures through the stream parser.
//
// In debug mode openbci-server writes every received byte to a JSON lines
// file (one {"value": N, ...} record per byte). A capture taken while the
// board was streaming can be fed back through the frame parser to see how
// many frames it holds, how much garbage sits between them and where the
// counter skips.
//
//	go run tools/replay_debuglog.go openbci-debug.jsonl
//	go run tools/replay_debuglog.go captures/
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/muurk/openbci/internal/protocol"
	"github.com/muurk/openbci/internal/watchdog"
)

// debugRecord matches the fields the debug-log sink writes
type debugRecord struct {
	Value *int `json:"value"`
	Index int  `json:"index"`
}

// Statistics tracks replay results
type Statistics struct {
	TotalFiles    int
	TotalBytes    int
	BadLines      int
	Frames        int
	TextResponses int
	DesyncEvents  int
	DesyncBytes   int
	Drops         map[string]int // "from->to" -> lost samples
}

type dropReporter struct {
	stats *Statistics
}

func (r dropReporter) DroppedSamples(count int, from, to uint8) {
	r.stats.Drops[fmt.Sprintf("%d->%d", from, to)] += count
}

func (r dropReporter) Throughput(time.Duration) {}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: replay_debuglog <directory-or-file>")
		fmt.Println("Example: replay_debuglog openbci-debug.jsonl")
		fmt.Println("         replay_debuglog captures/")
		os.Exit(1)
	}

	path := os.Args[1]
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Error accessing path: %v\n", err)
		os.Exit(1)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.jsonl"))
		if err != nil || len(files) == 0 {
			fmt.Printf("No JSONL files found in %s\n", path)
			os.Exit(1)
		}
	}

	stats := Statistics{Drops: make(map[string]int)}

	fmt.Printf("=== OpenBCI Debug Log Replay ===\n")
	fmt.Printf("Files to process: %d\n\n", len(files))

	for _, file := range files {
		processFile(file, &stats)
	}

	printStatistics(&stats)
}

func processFile(filename string, stats *Statistics) {
	stats.TotalFiles++

	f, err := os.Open(filename)
	if err != nil {
		fmt.Printf("Error opening file %s: %v\n", filename, err)
		return
	}
	defer f.Close()

	// Each capture is replayed as its own stream
	wd := watchdog.New(dropReporter{stats: stats})
	parser := protocol.NewParser(func(ev protocol.Event) {
		switch e := ev.(type) {
		case protocol.SampleFrame:
			stats.Frames++
			wd.HandleSample(protocol.Sample{Counter: e.Counter})
		case protocol.TextResponse:
			stats.TextResponses++
		case protocol.Desync:
			stats.DesyncEvents++
			stats.DesyncBytes += e.Skipped
		}
	})
	parser.SetMode(protocol.ModeSampleStream)

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec debugRecord
		if err := json.Unmarshal(line, &rec); err != nil || rec.Value == nil || *rec.Value < 0 || *rec.Value > 255 {
			stats.BadLines++
			continue
		}
		stats.TotalBytes++
		_ = parser.Feed([]byte{byte(*rec.Value)})
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading %s at line %d: %v\n", filename, lineNum, err)
	}

	parser.Close(nil)
}

func printStatistics(stats *Statistics) {
	fmt.Printf("Files:          %d\n", stats.TotalFiles)
	fmt.Printf("Bytes:          %d\n", stats.TotalBytes)
	fmt.Printf("Bad lines:      %d\n", stats.BadLines)
	fmt.Printf("Frames:         %d\n", stats.Frames)
	fmt.Printf("Text responses: %d\n", stats.TextResponses)
	fmt.Printf("Desync events:  %d (%d bytes)\n", stats.DesyncEvents, stats.DesyncBytes)

	if stats.TotalBytes > 0 {
		framed := stats.Frames * protocol.FrameSize
		fmt.Printf("Framed bytes:   %.1f%%\n", 100*float64(framed)/float64(stats.TotalBytes))
	}

	if len(stats.Drops) == 0 {
		fmt.Println("\nNo counter gaps")
		return
	}

	keys := make([]string, 0, len(stats.Drops))
	total := 0
	for k, n := range stats.Drops {
		keys = append(keys, k)
		total += n
	}
	sort.Strings(keys)

	fmt.Printf("\nCounter gaps (%d samples lost):\n", total)
	for _, k := range keys {
		fmt.Printf("  %-10s %d\n", k, stats.Drops[k])
	}
}
