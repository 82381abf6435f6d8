// Package payloadlog implements the per-service rotating record of inbound
// webhook payloads: every accepted request is appended as one JSON line to
// that service's log file, with size-based rotation into numbered backups
// and a recent-entries query spanning the active file and its backups.
package payloadlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	defaultMaxBytes    = 10 * 1024 * 1024
	defaultBackupCount = 5
	defaultFileName    = "payload.log"
)

// Logger appends and queries per-service payload records under baseDir,
// one subdirectory per service.
type Logger struct {
	baseDir     string
	fileName    string
	maxBytes    int64
	backupCount int

	mu        sync.Mutex
	serviceMu map[string]*sync.Mutex
}

// Option configures a Logger at construction time.
type Option func(*Logger)

func WithMaxBytes(n int64) Option       { return func(l *Logger) { l.maxBytes = n } }
func WithBackupCount(n int) Option      { return func(l *Logger) { l.backupCount = n } }
func WithFileName(name string) Option   { return func(l *Logger) { l.fileName = name } }

// New returns a Logger rooted at baseDir.
func New(baseDir string, opts ...Option) *Logger {
	l := &Logger{
		baseDir:     baseDir,
		fileName:    defaultFileName,
		maxBytes:    defaultMaxBytes,
		backupCount: defaultBackupCount,
		serviceMu:   map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Logger) lockFor(service string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.serviceMu[service]
	if !ok {
		m = &sync.Mutex{}
		l.serviceMu[service] = m
	}
	return m
}

func (l *Logger) dir(service string) string {
	return filepath.Join(l.baseDir, service)
}

func (l *Logger) activePath(service string) string {
	return filepath.Join(l.dir(service), l.fileName)
}

func (l *Logger) backupPath(service string, n int) string {
	return fmt.Sprintf("%s.%d", l.activePath(service), n)
}

// Append records one entry for service, assigning it a fresh sortable ID if
// it doesn't already have one. Append never fails the caller's intent
// silently: I/O errors are returned so the caller can decide whether to log
// and continue, but a failure here must never be treated as a reason to
// reject the webhook request itself.
func (l *Logger) Append(ctx context.Context, service string, entry Entry) error {
	entry = stamp(entry, ulid.Make().String(), time.Now().UTC())

	mu := l.lockFor(service)
	mu.Lock()
	defer mu.Unlock()

	dir := l.dir(service)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	line = append(line, '\n')

	active := l.activePath(service)
	if info, err := os.Stat(active); err == nil && info.Size()+int64(len(line)) > l.maxBytes {
		if err := l.rotate(service); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(active, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", active, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", active, err)
	}
	return nil
}

// rotate shifts existing backups up by one slot, dropping the oldest past
// backupCount, then moves the active file into slot 1. Caller must hold the
// service's mutex.
func (l *Logger) rotate(service string) error {
	oldest := l.backupPath(service, l.backupCount)
	os.Remove(oldest)

	for n := l.backupCount - 1; n >= 1; n-- {
		src := l.backupPath(service, n)
		dst := l.backupPath(service, n+1)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("rotate %s to %s: %w", src, dst, err)
			}
		}
	}

	active := l.activePath(service)
	if _, err := os.Stat(active); err == nil {
		if err := os.Rename(active, l.backupPath(service, 1)); err != nil {
			return fmt.Errorf("rotate %s: %w", active, err)
		}
	}
	return nil
}

// Recent returns up to limit entries for service, newest first, spanning
// the active file and its rotated backups.
func (l *Logger) Recent(ctx context.Context, service string, limit int) ([]Entry, error) {
	mu := l.lockFor(service)
	mu.Lock()
	defer mu.Unlock()

	var out []Entry

	paths := make([]string, 0, l.backupCount+1)
	paths = append(paths, l.activePath(service))
	for n := 1; n <= l.backupCount; n++ {
		paths = append(paths, l.backupPath(service, n))
	}

	for _, path := range paths {
		if len(out) >= limit {
			break
		}
		entries, err := readEntriesNewestFirst(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}

	return out, nil
}

// Remove deletes every logged payload for service, used when the
// configuration store's last record referencing that service is deleted.
func (l *Logger) Remove(ctx context.Context, service string) error {
	mu := l.lockFor(service)
	mu.Lock()
	defer mu.Unlock()

	if err := os.RemoveAll(l.dir(service)); err != nil {
		return fmt.Errorf("remove %s: %w", l.dir(service), err)
	}
	return nil
}

func readEntriesNewestFirst(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
