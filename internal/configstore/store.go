// Package configstore implements the flat-file webhook configuration store:
// parsing and serializing the on-disk record format (current and both
// legacy shapes), resolving a (service, token) pair to a record, and
// mutating the store with atomic, backed-up rewrites.
package configstore

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Locker is the distributed write-lock a multi-instance deployment plugs in
// so that concurrent admin writes across instances still serialize. A nil
// Locker means writes are serialized locally only.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock() error
}

// Store is a flat-file backed collection of webhook configuration records.
// It is safe for concurrent use; reads re-read the file fresh each call and
// writes are serialized through mu (and, if configured, Locker).
type Store struct {
	path      string
	backupDir string
	locker    Locker

	mu sync.Mutex
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithBackupDir overrides where timestamped pre-write backups are kept.
// Defaults to the directory containing the store's file.
func WithBackupDir(dir string) Option {
	return func(s *Store) { s.backupDir = dir }
}

// WithLocker installs a distributed write lock, taken around every mutating
// operation in addition to the in-process mutex.
func WithLocker(l Locker) Option {
	return func(s *Store) { s.locker = l }
}

// New returns a Store backed by the file at path. The file need not exist
// yet; it is created on the first write.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:      path,
		backupDir: filepath.Dir(path),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the record matching service and token.
func (s *Store) Resolve(ctx context.Context, service, token string) (*Record, error) {
	records, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Service == service && records[i].Token == token {
			rec := records[i]
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

// List returns every record, sorted by service then token for stable
// output.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	records, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Service != records[j].Service {
			return records[i].Service < records[j].Service
		}
		return records[i].Token < records[j].Token
	})
	return records, nil
}

// MintToken returns a token guaranteed not to collide with any token
// currently in the store. It does not reserve or persist the token; a
// concurrent Create could still take it first, in which case Create returns
// ErrTokenCollision.
func (s *Store) MintToken(ctx context.Context) (string, error) {
	records, err := s.load()
	if err != nil {
		return "", err
	}
	inUse := make(map[string]bool, len(records))
	for _, r := range records {
		if r.format != formatLegacyNoToken {
			inUse[r.Token] = true
		}
	}
	return mintToken(func(t string) bool { return inUse[t] })
}

// Create mints a fresh token (unless rec.Token is already set by the
// caller), validates the record and appends it to the store.
func (s *Store) Create(ctx context.Context, rec Record) (*Record, error) {
	return s.mutate(ctx, func(records []Record) ([]Record, *Record, error) {
		inUse := make(map[string]bool, len(records))
		for _, r := range records {
			if r.format != formatLegacyNoToken {
				inUse[r.Token] = true
			}
		}

		if rec.Token == "" {
			token, err := mintToken(func(t string) bool { return inUse[t] })
			if err != nil {
				return nil, nil, err
			}
			rec.Token = token
		} else if inUse[rec.Token] {
			return nil, nil, ErrTokenCollision
		}

		rec.format = formatCurrent
		if err := validate(rec); err != nil {
			return nil, nil, err
		}

		out := rec
		return append(records, rec), &out, nil
	})
}

// Update replaces the fields, template and alignment of the record matching
// service and token, preserving its on-disk format and identity.
func (s *Store) Update(ctx context.Context, service, token string, fields, template, alignment string) (*Record, error) {
	return s.mutate(ctx, func(records []Record) ([]Record, *Record, error) {
		idx := indexOf(records, service, token)
		if idx < 0 {
			return nil, nil, ErrNotFound
		}

		updated := records[idx]
		updated.Fields = fields
		updated.Template = template
		if updated.format != formatLegacyNoToken {
			updated.Alignment = alignment
		}

		if err := validate(updated); err != nil {
			return nil, nil, err
		}

		records[idx] = updated
		out := updated
		return records, &out, nil
	})
}

// Delete removes the record matching service and token.
func (s *Store) Delete(ctx context.Context, service, token string) error {
	_, err := s.mutate(ctx, func(records []Record) ([]Record, *Record, error) {
		idx := indexOf(records, service, token)
		if idx < 0 {
			return nil, nil, ErrNotFound
		}
		records = append(records[:idx], records[idx+1:]...)
		return records, nil, nil
	})
	return err
}

func indexOf(records []Record, service, token string) int {
	for i := range records {
		if records[i].Service == service && records[i].Token == token {
			return i
		}
	}
	return -1
}

// mutate loads the store, applies fn, validates token uniqueness across the
// resulting set and writes it back atomically. fn's returned record (if
// any) is handed back to the caller unchanged.
func (s *Store) mutate(ctx context.Context, fn func([]Record) ([]Record, *Record, error)) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locker != nil {
		if err := s.locker.Lock(ctx); err != nil {
			return nil, fmt.Errorf("acquire distributed write lock: %w", err)
		}
		defer s.locker.Unlock()
	}

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	next, out, err := fn(records)
	if err != nil {
		return nil, err
	}

	if err := checkUniqueTokens(next); err != nil {
		return nil, err
	}

	if err := s.save(next); err != nil {
		return nil, err
	}
	return out, nil
}

func checkUniqueTokens(records []Record) error {
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.format == formatLegacyNoToken {
			continue
		}
		if seen[r.Token] {
			return fmt.Errorf("%w: token %q used more than once", ErrBadConfig, r.Token)
		}
		seen[r.Token] = true
	}
	return nil
}

// load reads and parses the configuration file. A missing file loads as an
// empty store.
func (s *Store) load() ([]Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	var records []Record
	legacySeen := map[string]bool{}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "[") {
			continue
		}

		rec, ok := parseLine(line)
		if !ok {
			continue
		}

		if rec.format == formatLegacyNoToken {
			if legacySeen[rec.Service] {
				return nil, fmt.Errorf("%w: duplicate legacy line for service %q", ErrBadConfig, rec.Service)
			}
			legacySeen[rec.Service] = true
		}

		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	return records, nil
}

// save backs up the current file (if any), then atomically replaces it with
// the serialized records via a tempfile-then-rename.
func (s *Store) save(records []Record) error {
	if err := s.backup(); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("[webhooks]\n")
	for _, r := range records {
		b.WriteString(r.serialize())
		b.WriteByte('\n')
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmp, s.path, err)
	}
	return nil
}

// backup copies the existing file, if any, to a timestamped name in
// backupDir before it is overwritten.
func (s *Store) backup() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s for backup: %w", s.path, err)
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir %s: %w", s.backupDir, err)
	}

	name := fmt.Sprintf("%s.%s.bak", filepath.Base(s.path), time.Now().UTC().Format("20060102T150405.000000000Z"))
	dst := filepath.Join(s.backupDir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write backup %s: %w", dst, err)
	}
	return nil
}
