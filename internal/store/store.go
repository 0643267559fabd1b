// Package store keeps the most recently published leaderboard snapshot.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/github-champion/internal/report"
)

// ErrNoSnapshot is returned when nothing has been published or the last snapshot expired.
var ErrNoSnapshot = errors.New("no snapshot published")

// Snapshot is one complete pipeline output.
type Snapshot struct {
	Organization string                   `json:"organization"`
	GeneratedAt  time.Time                `json:"generatedAt"`
	Repositories []string                 `json:"repositories"`
	Leaderboard  report.LeaderboardReport `json:"leaderboard"`
	Detailed     []report.DetailedMetric  `json:"detailed"`
}

// Validate checks the fields every published snapshot needs.
func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.Organization) == "" {
		return fmt.Errorf("snapshot organization is required")
	}
	if s.GeneratedAt.IsZero() {
		return fmt.Errorf("snapshot generated time is required")
	}
	return nil
}

// SnapshotStore publishes and reads the latest snapshot.
type SnapshotStore interface {
	Publish(ctx context.Context, snapshot Snapshot) error
	Latest(ctx context.Context) (Snapshot, error)
	AcquireRefreshLock(ctx context.Context, ttl time.Duration, now time.Time) (bool, error)
	Close() error
}

// MemoryStore is an in-process snapshot store.
type MemoryStore struct {
	mu          sync.RWMutex
	retention   time.Duration
	now         func() time.Time
	latest      *Snapshot
	lockExpires time.Time
}

// NewMemoryStore creates a memory store. Snapshots older than retention are treated as absent.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{retention: retention, now: time.Now}
}

// Publish replaces the latest snapshot.
func (s *MemoryStore) Publish(_ context.Context, snapshot Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest != nil && snapshot.GeneratedAt.Before(s.latest.GeneratedAt) {
		return fmt.Errorf("snapshot generated at %s is older than the published one", snapshot.GeneratedAt.UTC().Format(time.RFC3339))
	}
	cloned := cloneSnapshot(snapshot)
	s.latest = &cloned
	return nil
}

// Latest returns a copy of the latest unexpired snapshot.
func (s *MemoryStore) Latest(_ context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return Snapshot{}, ErrNoSnapshot
	}
	if s.retention > 0 && s.now().Sub(s.latest.GeneratedAt) > s.retention {
		return Snapshot{}, ErrNoSnapshot
	}
	return cloneSnapshot(*s.latest), nil
}

// AcquireRefreshLock grants the refresh lock until now+ttl.
func (s *MemoryStore) AcquireRefreshLock(_ context.Context, ttl time.Duration, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		return true, nil
	}
	if now.Before(s.lockExpires) {
		return false, nil
	}
	s.lockExpires = now.Add(ttl)
	return true, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func cloneSnapshot(snapshot Snapshot) Snapshot {
	cloned := snapshot
	cloned.Repositories = append([]string(nil), snapshot.Repositories...)
	cloned.Detailed = append([]report.DetailedMetric(nil), snapshot.Detailed...)
	sections := make([]report.Section, len(snapshot.Leaderboard.Sections))
	for i, section := range snapshot.Leaderboard.Sections {
		sections[i] = report.Section{Name: section.Name, Entries: append(section.Entries[:0:0], section.Entries...)}
	}
	cloned.Leaderboard.Sections = sections
	return cloned
}
