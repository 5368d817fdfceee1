package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const snapshotPrefix = "syncd_"

// Snapshotter writes point-in-time copies of the live database and prunes old ones.
type Snapshotter struct {
	db        *DB
	dir       string
	retention time.Duration
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewSnapshotter(db *DB, dir string, retentionDays int, logger *zerolog.Logger) *Snapshotter {
	if logger == nil {
		logger = db.logger
	}
	return &Snapshotter{
		db:        db,
		dir:       dir,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       time.Now,
	}
}

// Snapshot copies the database with VACUUM INTO and returns the file path.
func (s *Snapshotter) Snapshot(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	name := snapshotPrefix + s.now().UTC().Format("20060102_150405") + ".db"
	path := filepath.Join(s.dir, name)

	// VACUUM INTO не принимает параметры, экранируем кавычки вручную
	quoted := strings.ReplaceAll(path, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", path, err)
	}

	s.logger.Info().Str("path", path).Msg("database snapshot written")
	return path, nil
}

// Prune removes snapshots older than the retention window and returns how many were deleted.
func (s *Snapshotter) Prune() (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	cutoff := s.now().Add(-s.retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), snapshotPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("failed to delete old snapshot")
			continue
		}
		removed++
	}
	return removed, nil
}

// Run takes a snapshot and prunes old ones. Errors are logged.
func (s *Snapshotter) Run(ctx context.Context) {
	if _, err := s.Snapshot(ctx); err != nil {
		s.logger.Error().Err(err).Msg("database snapshot failed")
		return
	}
	if n, err := s.Prune(); err != nil {
		s.logger.Error().Err(err).Msg("snapshot prune failed")
	} else if n > 0 {
		s.logger.Info().Int("removed", n).Msg("old snapshots pruned")
	}
}
