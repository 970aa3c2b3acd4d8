package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"bluebear.game/internal/command"
)

type Direction string

const (
	ToDisplay Direction = "engine->display"
	ToEngine  Direction = "display->engine"
)

var ErrUnknownDirection = errors.New("command log: unknown direction")

// directions lists every direction in read order.
var directions = []Direction{ToDisplay, ToEngine}

// filePrefix names a direction's log files.
func (d Direction) filePrefix() (string, bool) {
	switch d {
	case ToDisplay:
		return "to-display", true
	case ToEngine:
		return "to-engine", true
	}
	return "", false
}

// BatchEntry is one consumed command batch. Seq is the consumer's tick or
// frame number.
type BatchEntry struct {
	At        time.Time      `json:"at"`
	Direction Direction      `json:"direction"`
	Seq       uint64         `json:"seq"`
	Kinds     []command.Kind `json:"kinds"`
}

// hourFile is one direction's log, split into zstd JSONL files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst by the hour of each entry.
type hourFile struct {
	dir    string
	prefix string

	hour string
	f    *os.File
	enc  *zstd.Encoder
	w    *bufio.Writer
}

func (h *hourFile) append(at time.Time, line []byte) error {
	if hour := at.UTC().Format("2006-01-02-15"); hour != h.hour {
		if err := h.open(hour); err != nil {
			return err
		}
	}
	if _, err := h.w.Write(line); err != nil {
		return err
	}
	if err := h.w.WriteByte('\n'); err != nil {
		return err
	}
	return h.w.Flush()
}

func (h *hourFile) open(hour string) error {
	if err := h.close(); err != nil {
		return err
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(h.dir, fmt.Sprintf("%s-%s.jsonl.zst", h.prefix, hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	h.f, h.enc, h.w, h.hour = f, enc, bufio.NewWriterSize(enc, 64*1024), hour
	return nil
}

// close ends the current zstd frame. Appending to the same hour later starts
// a new frame in the same file, which readers decode as one stream.
func (h *hourFile) close() error {
	var err error
	if h.w != nil {
		err = h.w.Flush()
	}
	if h.enc != nil {
		if cerr := h.enc.Close(); err == nil {
			err = cerr
		}
	}
	if h.f != nil {
		if cerr := h.f.Close(); err == nil {
			err = cerr
		}
	}
	h.f, h.enc, h.w, h.hour = nil, nil, nil, ""
	return err
}

// CommandLogger records every consumed batch, one file set per direction,
// under <data_dir>/commands.
type CommandLogger struct {
	now func() time.Time

	mu    sync.Mutex
	files map[Direction]*hourFile
}

func NewCommandLogger(dataDir string) *CommandLogger {
	dir := filepath.Join(dataDir, "commands")
	files := make(map[Direction]*hourFile, len(directions))
	for _, d := range directions {
		prefix, _ := d.filePrefix()
		files[d] = &hourFile{dir: dir, prefix: prefix}
	}
	return &CommandLogger{now: time.Now, files: files}
}

// WriteBatch appends e to its direction's log. A zero At is stamped with
// the current time.
func (l *CommandLogger) WriteBatch(e BatchEntry) error {
	if e.At.IsZero() {
		e.At = l.now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.files[e.Direction]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDirection, e.Direction)
	}
	return h.append(e.At, b)
}

// Close flushes both directions. The logger may be written to again
// afterwards.
func (l *CommandLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, d := range directions {
		errs = append(errs, l.files[d].close())
	}
	return errors.Join(errs...)
}
