// Package bans maintains the process-wide ban list consulted by every
// connector before a connection attempt is accepted.
package bans

import (
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dcrodman/warpsync/internal/core/data"
)

var ErrInvalidPattern = errors.New("invalid ban pattern")

// Entry is a single ban. Patterns use shell glob syntax (see path.Match) so
// that "10.0.0.*" bans a whole address range.
type Entry struct {
	Pattern   string
	Reason    string
	ExpiresAt time.Time
}

// IsExpired reports whether a temporary ban no longer applies at now.
func (e Entry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// List is a concurrency-safe ban list. Connectors consult it from their
// accept policy while operator commands mutate it.
type List struct {
	Logger logrus.FieldLogger
	// DB is optional; without it the list only lives in memory.
	DB *gorm.DB

	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewList returns an empty list backed by db (which may be nil).
func NewList(db *gorm.DB, logger logrus.FieldLogger) *List {
	return &List{DB: db, Logger: logger, now: time.Now}
}

// Load replaces the in-memory entries with the persisted ones, discarding
// any bans that already expired.
func (l *List) Load() error {
	if l.DB == nil {
		return nil
	}
	if err := data.DeleteExpiredBans(l.DB, l.now()); err != nil {
		return fmt.Errorf("error pruning expired bans: %w", err)
	}
	rows, err := data.FindBans(l.DB)
	if err != nil {
		return fmt.Errorf("error loading bans: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry := Entry{Pattern: row.Pattern, Reason: row.Reason}
		if row.ExpiresAt != nil {
			entry.ExpiresAt = *row.ExpiresAt
		}
		entries = append(entries, entry)
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()

	l.Logger.Infof("loaded %d ban entries", len(entries))
	return nil
}

// Add bans pattern for duration (0 for a permanent ban). Adding a pattern that
// is already banned replaces its reason and expiry.
func (l *List) Add(pattern, reason string, duration time.Duration) (Entry, error) {
	if _, err := path.Match(pattern, ""); err != nil || pattern == "" {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}

	entry := Entry{Pattern: pattern, Reason: reason}
	if duration > 0 {
		entry.ExpiresAt = l.now().Add(duration)
	}

	if l.DB != nil {
		row := &data.Ban{Pattern: pattern, Reason: reason}
		if !entry.ExpiresAt.IsZero() {
			row.ExpiresAt = &entry.ExpiresAt
		}
		if err := data.SaveBan(l.DB, row); err != nil {
			return Entry{}, fmt.Errorf("error persisting ban: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].Pattern == pattern {
			l.entries[i] = entry
			return entry, nil
		}
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

// Remove lifts the ban with exactly this pattern, returning whether it existed.
func (l *List) Remove(pattern string) (bool, error) {
	if l.DB != nil {
		if err := data.DeleteBan(l.DB, pattern); err != nil {
			return false, fmt.Errorf("error deleting ban: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i, entry := range l.entries {
		if entry.Pattern == pattern {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Entries returns a copy of the active entries.
func (l *List) Entries() []Entry {
	now := l.now()
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]Entry, 0, len(l.entries))
	for _, entry := range l.entries {
		if !entry.IsExpired(now) {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Match returns the first active entry matching any of the identities.
func (l *List) Match(identities ...string) (Entry, bool) {
	now := l.now()
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, entry := range l.entries {
		if entry.IsExpired(now) {
			continue
		}
		for _, identity := range identities {
			if identity == "" {
				continue
			}
			if ok, _ := path.Match(entry.Pattern, identity); ok {
				return entry, true
			}
		}
	}
	return Entry{}, false
}
