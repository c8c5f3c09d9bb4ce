package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AuditResult summarizes a Verify pass.
type AuditResult struct {
	Records int
	Reports int
	Corrupt map[string]error
}

// Verify parses every stored record and collects the ones that fail to
// decode. Unreadable records other than corrupt ones abort the pass.
func (s *Store) Verify(ctx context.Context) (AuditResult, error) {
	res := AuditResult{Corrupt: make(map[string]error)}
	ids, err := s.IDs()
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		records, err := s.Load(id)
		if err != nil {
			if errors.Is(err, ErrCorrupt) {
				res.Corrupt[id] = err
				s.logger.WarnContext(ctx, "Corrupt report record", "stats_id", id, "error", err)
				continue
			}
			return res, err
		}
		res.Records++
		res.Reports += len(records)
	}
	return res, nil
}

// SweepTemp removes temp files older than maxAge that an interrupted write
// left behind, returning how many were removed.
func (s *Store) SweepTemp(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("list report dir %s: %w", s.dir, err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.Contains(e.Name(), tempInfix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to remove stale temp file", "file", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
