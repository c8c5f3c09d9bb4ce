package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// IDField is the report key holding the stats identifier.
	IDField = "stats_id"
	// TimestampField is injected into every stored report.
	TimestampField = "timestamp_received_by_bot"

	defaultDirPerm     = 0o750
	defaultFilePerm    = 0o640
	defaultLockTimeout = 10 * time.Second
	lockDirName        = ".locks"
	recordIndent       = "    "
)

// Report is one statistics submission. Keys other than IDField and
// TimestampField are supplied by the sender and stored as received.
type Report map[string]any

// Options configures a Store. Zero values select defaults.
type Options struct {
	Dir         string
	LockTimeout time.Duration
	DirPerm     os.FileMode
	FilePerm    os.FileMode
}

// Store keeps one JSON array of reports per stats identifier under Dir.
// Appends to the same identifier are serialized with a file lock, so several
// processes may share one directory.
type Store struct {
	dir         string
	lockDir     string
	lockTimeout time.Duration
	dirPerm     os.FileMode
	filePerm    os.FileMode
	logger      *slog.Logger
}

// NewStore returns a Store rooted at opts.Dir. The directory is created on
// the first append.
func NewStore(opts Options, logger *slog.Logger) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("report store directory cannot be empty")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.DirPerm == 0 {
		opts.DirPerm = defaultDirPerm
	}
	if opts.FilePerm == 0 {
		opts.FilePerm = defaultFilePerm
	}
	dir := filepath.Clean(opts.Dir)
	return &Store{
		dir:         dir,
		lockDir:     filepath.Join(dir, lockDirName),
		lockTimeout: opts.LockTimeout,
		dirPerm:     opts.DirPerm,
		filePerm:    opts.FilePerm,
		logger:      logger.With("component", "report_store"),
	}, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string { return s.dir }

// Path returns the file holding the record of statsID.
func (s *Store) Path(statsID string) string {
	return filepath.Join(s.dir, statsID)
}

// Append adds r to the record of statsID and returns the number of reports
// in the record afterwards. An existing record that is not an array of
// objects yields ErrCorrupt and is left untouched.
func (s *Store) Append(ctx context.Context, statsID string, r Report) (int, error) {
	if err := ValidateID(statsID); err != nil {
		return 0, err
	}
	if r == nil {
		return 0, errors.New("cannot append nil report")
	}
	encoded, err := encodeReport(r)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(s.dir, s.dirPerm); err != nil {
		return 0, fmt.Errorf("create report dir %s: %w", s.dir, err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	var entries int
	lockPath := filepath.Join(s.lockDir, statsID+".lck")
	err = withLock(lockCtx, lockPath, s.dirPerm, func() error {
		records, err := s.Load(statsID)
		if err != nil {
			return err
		}
		records = append(records, encoded)

		data, err := encodeRecord(records)
		if err != nil {
			return err
		}
		if err := writeAtomic(s.Path(statsID), data, s.filePerm); err != nil {
			return err
		}
		entries = len(records)
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to append report", "stats_id", statsID, "error", err)
		return 0, err
	}

	s.logger.DebugContext(ctx, "Report appended", "stats_id", statsID, "entries", entries)
	return entries, nil
}

// Load returns the stored reports of statsID in submission order. A missing
// or empty file is an empty record.
func (s *Store) Load(statsID string) ([]json.RawMessage, error) {
	if err := ValidateID(statsID); err != nil {
		return nil, err
	}
	path := s.Path(statsID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read record %s: %w", path, err)
	}
	return decodeRecord(path, data)
}

// IDs lists the identifiers that have a stored record, sorted.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list report dir %s: %w", s.dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ValidateID(e.Name()) != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

func decodeRecord(path string, data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: %s: not a JSON array", ErrCorrupt, path)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	for i, rec := range records {
		rec = bytes.TrimSpace(rec)
		if len(rec) == 0 || rec[0] != '{' {
			return nil, fmt.Errorf("%w: %s: entry %d is not an object", ErrCorrupt, path, i)
		}
	}
	return records, nil
}

func encodeReport(r Report) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func encodeRecord(records []json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", recordIndent)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}
