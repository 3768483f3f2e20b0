// Package activitylog appends session activity as JSON lines to a file. It
// is an audit trail separate from operational logging: one record per
// protocol-level action, written by a background goroutine so command
// handling never blocks on disk.
package activitylog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Mateyclick/tactics-live/internal/obslog"
)

// Entry is one activity record.
type Entry struct {
	Time      time.Time      `json:"time"`
	SessionID string         `json:"sessionId,omitempty"`
	ConnID    string         `json:"connId,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	Action    string         `json:"action"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Logger writes entries in the background. A nil Logger discards records, so
// callers never need to branch on whether the log is configured.
type Logger struct {
	ch     chan Entry
	closed chan struct{}
	wg     sync.WaitGroup
	f      *os.File
}

// New opens (or creates) the JSONL file at path and starts the writer
// goroutine. An empty path disables the log and returns nil.
func New(path string) (*Logger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create activity log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}

	l := &Logger{
		ch:     make(chan Entry, 256),
		closed: make(chan struct{}),
		f:      f,
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Record queues one entry. When the queue is full the entry is dropped; the
// activity log must never stall the command path.
func (l *Logger) Record(e Entry) {
	if l == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	select {
	case l.ch <- e:
	default:
		obslog.L().Warn("activity log queue full, dropping entry", zap.String("action", e.Action))
	}
}

// Close stops the writer, drains queued entries and closes the file.
// Entries recorded after Close may be silently discarded.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	close(l.closed)
	l.wg.Wait()
	return l.f.Close()
}

func (l *Logger) run() {
	defer l.wg.Done()
	enc := json.NewEncoder(l.f)
	write := func(e Entry) {
		if err := enc.Encode(e); err != nil {
			obslog.L().Warn("write activity entry", zap.Error(err))
		}
	}
	for {
		select {
		case e := <-l.ch:
			write(e)
		case <-l.closed:
			for {
				select {
				case e := <-l.ch:
					write(e)
				default:
					return
				}
			}
		}
	}
}
