// Package spool implements the edge device's crash-durable FIFO buffer of
// not-yet-delivered samples, backed by a SQLite file in WAL mode.
//
// The spool is the no-data-loss anchor of the pipeline: a sample is written
// here before any upload attempt and deleted only after the server has
// acknowledged it. Peek is non-destructive, so a crash between peek and ack
// simply causes the same entries to be re-sent; the server side deduplicates.
//
// All operations go through a single mutex. The producer loop and the
// delivery agent share one Spool instance and never touch its internals.
package spool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gridpulse/p1-telemetry/internal/domain"
)

// Entry is a peeked spool row: the sample plus the rowid the delivery
// agent must name when acknowledging it.
type Entry struct {
	ID     uint64
	Sample domain.Sample
}

// Spool is a durable local FIFO queue. Safe for concurrent use.
type Spool struct {
	mu sync.Mutex
	db *gorm.DB
}

// Open opens (or creates) the spool database at path, applies PRAGMAs and
// the schema, and returns a ready Spool.
func Open(path string) (*Spool, error) {
	// Fail early if parent directory does not exist (instead of a cryptic
	// sqlite "out of memory (14)").
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// WAL keeps concurrent enqueue/peek safe and makes commits durable
	// across a hard process kill. synchronous=FULL because a successful
	// Enqueue return must guarantee the entry survives.
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=FULL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if err := domain.AutoMigrateSpool(db); err != nil {
		return nil, fmt.Errorf("migrate spool schema: %w", err)
	}
	return &Spool{db: db}, nil
}

// Enqueue appends one sample and returns its assigned entry ID. A nil
// error means the entry is committed to disk and will survive a crash.
func (s *Spool) Enqueue(ctx context.Context, sample domain.Sample) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := domain.NewSpoolEntry(sample)
	e.CreatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return 0, err
	}
	return e.ID, nil
}

// Peek returns up to n oldest pending entries in enqueue order without
// removing them. An empty spool yields an empty slice, not an error.
func (s *Spool) Peek(ctx context.Context, n int) ([]Entry, error) {
	if n < 1 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []domain.SpoolEntry
	err := s.db.WithContext(ctx).
		Order("id ASC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{ID: r.ID, Sample: r.Sample()})
	}
	return out, nil
}

// Ack deletes exactly the named entries and reports how many rows were
// removed. IDs that are no longer present are ignored, which makes a
// repeated ack after a crash harmless. Entries not named are never
// touched, even older ones.
func (s *Spool) Ack(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&domain.SpoolEntry{})
	return res.RowsAffected, res.Error
}

// Pending returns the number of entries not yet acknowledged.
func (s *Spool) Pending(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.db.WithContext(ctx).Model(&domain.SpoolEntry{}).Count(&n).Error
	return n, err
}

// Close releases the underlying database handle. The spool must not be
// used afterwards.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
