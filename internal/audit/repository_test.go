package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgefleet/forge-core/internal/infrastructure/database"
)

// newTestRepo opens a fresh SQLite database with the schema applied.
func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrapping schema: %v", err)
	}

	return NewSQLiteRepository(db.DB)
}

func TestRecord_GeneratesIDAndTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entry := Entry{
		TeamID:   "team-a",
		Target:   TargetDevice,
		TargetID: "dev-1",
		Actor:    "ops@example.com",
		Command:  "restart",
		Outcome:  OutcomeSent,
		Details:  map[string]any{"await_reply": false},
	}
	if err := repo.Record(ctx, &entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if entry.ID == "" {
		t.Error("Record() did not assign an ID")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("Record() did not stamp CreatedAt")
	}

	result, err := repo.List(ctx, "team-a", Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("List() total = %d, entries = %d, want 1 each", result.Total, len(result.Entries))
	}

	got := result.Entries[0]
	if got.Command != "restart" || got.Outcome != OutcomeSent || got.Actor != "ops@example.com" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.Details["await_reply"] != false {
		t.Errorf("Details = %v, want await_reply=false", got.Details)
	}
}

func TestList_ScopedToTeam(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, teamID := range []string{"team-a", "team-a", "team-b"} {
		entry := Entry{TeamID: teamID, Target: TargetDevice, TargetID: "dev-1", Command: "status", Outcome: OutcomeSent}
		if err := repo.Record(ctx, &entry); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	result, err := repo.List(ctx, "team-a", Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("List(team-a) total = %d, want 2", result.Total)
	}

	result, err = repo.List(ctx, "team-c", Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 0 || len(result.Entries) != 0 {
		t.Errorf("List(team-c) = %d entries, want empty slice", len(result.Entries))
	}
	if result.Entries == nil {
		t.Error("List() returned nil slice, want empty")
	}
}

func TestList_Filters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seed := []Entry{
		{TeamID: "team-a", Target: TargetDevice, TargetID: "dev-1", Command: "restart", Outcome: OutcomeSent},
		{TeamID: "team-a", Target: TargetDevice, TargetID: "dev-2", Command: "restart", Outcome: OutcomeTimedOut},
		{TeamID: "team-a", Target: TargetProject, TargetID: "proj-1", Command: "update", Outcome: OutcomeSent},
	}
	for i := range seed {
		if err := repo.Record(ctx, &seed[i]); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by target class", Filter{Target: TargetProject}, 1},
		{"by target id", Filter{TargetID: "dev-2"}, 1},
		{"by command", Filter{Command: "restart"}, 2},
		{"combined", Filter{Target: TargetDevice, Command: "update"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, "team-a", tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if result.Total != tt.want {
				t.Errorf("List(%+v) total = %d, want %d", tt.filter, result.Total, tt.want)
			}
		})
	}
}

func TestList_PaginationAndOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := Entry{
			TeamID:    "team-a",
			Target:    TargetDevice,
			TargetID:  "dev-1",
			Command:   "ping",
			Outcome:   OutcomeSent,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Record(ctx, &entry); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	result, err := repo.List(ctx, "team-a", Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 5 {
		t.Errorf("Total = %d, want 5", result.Total)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("page size = %d, want 2", len(result.Entries))
	}
	// Most recent first; offset 1 skips the newest.
	if !result.Entries[0].CreatedAt.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("first entry CreatedAt = %v, want %v", result.Entries[0].CreatedAt, base.Add(3*time.Minute))
	}
	if !result.Entries[0].CreatedAt.After(result.Entries[1].CreatedAt) {
		t.Error("entries not ordered most recent first")
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := newTestRepo(t)

	result, err := repo.List(context.Background(), "team-a", Filter{Limit: 1000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 200 {
		t.Errorf("Limit = %d, want clamped to 200", result.Limit)
	}
	if result.Offset != 0 {
		t.Errorf("Offset = %d, want clamped to 0", result.Offset)
	}
}
