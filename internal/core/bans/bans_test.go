package bans

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/dcrodman/warpsync/internal/core"
	"github.com/dcrodman/warpsync/internal/core/data"
)

func setUpDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "bans.db")))
	if err != nil {
		t.Fatalf("error initializing test database: %s", err)
	}
	if err := data.Migrate(db); err != nil {
		t.Fatalf("error migrating test database: %s", err)
	}
	return db
}

func TestList_Match(t *testing.T) {
	list := NewList(nil, core.NewDiscardLogger())
	if _, err := list.Add("10.0.0.*", "range ban", 0); err != nil {
		t.Fatalf("Add() returned an unexpected error: %v", err)
	}
	if _, err := list.Add("griefer", "griefing", 0); err != nil {
		t.Fatalf("Add() returned an unexpected error: %v", err)
	}

	tests := map[string]struct {
		identities []string
		wantMatch  bool
		wantReason string
	}{
		"address_in_range":   {identities: []string{"peer-1", "10.0.0.42"}, wantMatch: true, wantReason: "range ban"},
		"address_not_banned": {identities: []string{"peer-1", "10.0.1.42"}, wantMatch: false},
		"identity_banned":    {identities: []string{"griefer", "192.168.0.1"}, wantMatch: true, wantReason: "griefing"},
		"empty_identity":     {identities: []string{""}, wantMatch: false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			entry, ok := list.Match(tt.identities...)
			if ok != tt.wantMatch {
				t.Fatalf("Match() want = %v, got = %v", tt.wantMatch, ok)
			}
			if ok && entry.Reason != tt.wantReason {
				t.Errorf("Match() reason want = %s, got = %s", tt.wantReason, entry.Reason)
			}
		})
	}
}

func TestList_AddInvalidPattern(t *testing.T) {
	list := NewList(nil, core.NewDiscardLogger())
	for _, pattern := range []string{"", "[unterminated"} {
		if _, err := list.Add(pattern, "", 0); !errors.Is(err, ErrInvalidPattern) {
			t.Errorf("Add(%q) want = %v, got = %v", pattern, ErrInvalidPattern, err)
		}
	}
}

func TestList_TemporaryBanExpires(t *testing.T) {
	now := time.Now()
	list := NewList(nil, core.NewDiscardLogger())
	list.now = func() time.Time { return now }

	if _, err := list.Add("temp", "cool off", time.Minute); err != nil {
		t.Fatalf("Add() returned an unexpected error: %v", err)
	}
	if _, ok := list.Match("temp"); !ok {
		t.Fatal("expected temporary ban to match before expiring")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := list.Match("temp"); ok {
		t.Fatal("expected temporary ban to stop matching after expiring")
	}
	if len(list.Entries()) != 0 {
		t.Errorf("expected expired bans to be hidden from Entries(), got %v", list.Entries())
	}
}

func TestList_Persistence(t *testing.T) {
	db := setUpDatabase(t)

	list := NewList(db, core.NewDiscardLogger())
	if _, err := list.Add("cheater", "aimbot", 0); err != nil {
		t.Fatalf("Add() returned an unexpected error: %v", err)
	}
	if _, err := list.Add("10.*", "range", 0); err != nil {
		t.Fatalf("Add() returned an unexpected error: %v", err)
	}
	if removed, err := list.Remove("10.*"); err != nil || !removed {
		t.Fatalf("Remove() want = true, got = %v (err = %v)", removed, err)
	}

	reloaded := NewList(db, core.NewDiscardLogger())
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}
	entries := reloaded.Entries()
	if len(entries) != 1 || entries[0].Pattern != "cheater" || entries[0].Reason != "aimbot" {
		t.Fatalf("reloaded entries did not match expected: %v", entries)
	}
}
