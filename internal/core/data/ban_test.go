package data

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gorm.io/gorm"
)

func assertBansMatch(t *testing.T, expected *Ban, got *Ban) {
	t.Helper()
	if diff := cmp.Diff(expected, got, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("ban did not match expected; diff:\n%s", diff)
	}
}

func TestFindBanByPattern(t *testing.T) {
	db := setUpDatabase(t)

	testBan := &Ban{Pattern: "10.0.0.*", Reason: "griefing"}
	tests := []struct {
		name     string
		seedData func(db *gorm.DB)
		want     *Ban
		wantErr  bool
	}{
		{
			name:     "ban does not exist",
			seedData: func(db *gorm.DB) {},
			want:     nil,
			wantErr:  false,
		},
		{
			name: "ban exists",
			seedData: func(db *gorm.DB) {
				if err := SaveBan(db, testBan); err != nil {
					t.Fatalf("error creating test ban: %s", err)
				}
			},
			want:    testBan,
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.seedData(db)

			ban, err := FindBanByPattern(db, testBan.Pattern)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindBanByPattern() wantErr = %v, error = %v", tt.wantErr, err)
			}
			assertBansMatch(t, tt.want, ban)
		})
	}
}

func TestSaveBan_ReplacesExistingPattern(t *testing.T) {
	db := setUpDatabase(t)

	if err := SaveBan(db, &Ban{Pattern: "cheater", Reason: "first"}); err != nil {
		t.Fatalf("SaveBan() returned an unexpected error: %v", err)
	}
	if err := SaveBan(db, &Ban{Pattern: "cheater", Reason: "second"}); err != nil {
		t.Fatalf("SaveBan() returned an unexpected error: %v", err)
	}

	bans, err := FindBans(db)
	if err != nil {
		t.Fatalf("FindBans() returned an unexpected error: %v", err)
	}
	if len(bans) != 1 {
		t.Fatalf("expected 1 ban, got %d", len(bans))
	}
	if bans[0].Reason != "second" {
		t.Errorf("expected reason to be replaced, got %s", bans[0].Reason)
	}
}

func TestDeleteBan(t *testing.T) {
	db := setUpDatabase(t)

	if err := SaveBan(db, &Ban{Pattern: "cheater"}); err != nil {
		t.Fatalf("SaveBan() returned an unexpected error: %v", err)
	}
	if err := DeleteBan(db, "cheater"); err != nil {
		t.Fatalf("DeleteBan() returned an unexpected error: %v", err)
	}

	ban, err := FindBanByPattern(db, "cheater")
	if err != nil {
		t.Fatalf("FindBanByPattern() returned an unexpected error: %v", err)
	}
	if ban != nil {
		t.Fatalf("FindBanByPattern() returned a deleted ban: %v", ban)
	}
}

func TestDeleteExpiredBans(t *testing.T) {
	db := setUpDatabase(t)

	now := time.Now()
	past, future := now.Add(-time.Hour), now.Add(time.Hour)
	for _, ban := range []*Ban{
		{Pattern: "expired", ExpiresAt: &past},
		{Pattern: "active", ExpiresAt: &future},
		{Pattern: "permanent"},
	} {
		if err := SaveBan(db, ban); err != nil {
			t.Fatalf("SaveBan() returned an unexpected error: %v", err)
		}
	}

	if err := DeleteExpiredBans(db, now); err != nil {
		t.Fatalf("DeleteExpiredBans() returned an unexpected error: %v", err)
	}

	bans, err := FindBans(db)
	if err != nil {
		t.Fatalf("FindBans() returned an unexpected error: %v", err)
	}
	var patterns []string
	for _, ban := range bans {
		patterns = append(patterns, ban.Pattern)
	}
	if diff := cmp.Diff([]string{"active", "permanent"}, patterns); diff != "" {
		t.Errorf("remaining bans did not match expected; diff:\n%s", diff)
	}
}
