package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/unikmhz/npui-sub001/pkg/access"
	"github.com/unikmhz/npui-sub001/pkg/logger"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	db, err := NewDB(Config{Path: filepath.Join(t.TempDir(), "billing.db")}, log)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDB(t *testing.T) {
	db := openTestDB(t)
	if db.GetDB() == nil {
		t.Error("Expected non-nil database connection")
	}
}

func TestNewDB_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "billing.db")
	db, err := NewDB(Config{Driver: DriverSQLite, Path: path}, nil)
	if err != nil {
		t.Fatalf("Failed to create database in nested directory: %v", err)
	}
	defer func() { _ = db.Close() }()
}

func TestNewDB_BadDriver(t *testing.T) {
	if _, err := NewDB(Config{Driver: "oracle"}, nil); err == nil {
		t.Error("Expected error for unsupported driver")
	}
	if _, err := NewDB(Config{Driver: DriverPostgres}, nil); err == nil {
		t.Error("Expected error for postgres without DSN")
	}
}

func TestSyncRun_BeforeCreate(t *testing.T) {
	db := openTestDB(t)

	run := &SyncRun{RunID: "run-1", Result: "ok"}
	if err := db.GetDB().Create(run).Error; err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
	if run.ID == 0 {
		t.Error("Expected non-zero ID after creation")
	}
	if run.CreatedAt.IsZero() || run.StartTime.IsZero() || run.EndTime.IsZero() {
		t.Error("Expected timestamps to be set by hook")
	}
}

func TestSyncRunRepository_SaveRun(t *testing.T) {
	db := openTestDB(t)
	repo := NewSyncRunRepository(db.GetDB())

	start := time.Now().Add(-3 * time.Second)
	status := access.RunStatus{
		RunID:    "6f1c2b7e-0000-4000-8000-000000000001",
		Started:  start,
		Finished: start.Add(2 * time.Second),
		Result:   "partial",
		Error:    "entity 2: card 7: rejected",
		Summary:  access.Summary{Entities: 3, Updated: 2, Failed: 1, Cards: 4},
	}
	if err := repo.SaveRun(context.Background(), status); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	got, err := repo.GetByRunID(status.RunID)
	if err != nil {
		t.Fatalf("Failed to load run: %v", err)
	}
	if got.Result != "partial" || got.Failed != 1 || got.Cards != 4 {
		t.Errorf("Unexpected run: %+v", got)
	}
	if got.Duration < 1.9 || got.Duration > 2.1 {
		t.Errorf("Expected duration about 2s, got %v", got.Duration)
	}
}

func TestSyncRunRepository_GetRecentPaginated(t *testing.T) {
	db := openTestDB(t)
	repo := NewSyncRunRepository(db.GetDB())

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		run := &SyncRun{
			RunID:     "run-" + string(rune('a'+i)),
			Result:    "ok",
			StartTime: base.Add(time.Duration(i) * time.Minute),
			EndTime:   base.Add(time.Duration(i)*time.Minute + time.Second),
		}
		if i == 2 {
			run.Result = "error"
		}
		if err := db.GetDB().Create(run).Error; err != nil {
			t.Fatalf("Failed to create run: %v", err)
		}
	}

	recent, err := repo.GetRecent(2)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].RunID != "run-e" {
		t.Errorf("Expected newest run first, got %+v", recent)
	}

	page, total, err := repo.GetRecentPaginated(2, 2)
	if err != nil {
		t.Fatalf("GetRecentPaginated failed: %v", err)
	}
	if total != 5 {
		t.Errorf("Expected total 5, got %d", total)
	}
	if len(page) != 2 || page[0].RunID != "run-c" {
		t.Errorf("Unexpected second page: %+v", page)
	}

	failed, err := repo.GetByResult("error", 10)
	if err != nil {
		t.Fatalf("GetByResult failed: %v", err)
	}
	if len(failed) != 1 || failed[0].RunID != "run-c" {
		t.Errorf("Unexpected failed runs: %+v", failed)
	}

	deleted, err := repo.DeleteOlderThan(base.Add(150 * time.Second))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Expected 3 deleted runs, got %d", deleted)
	}
}

func TestSyncRunRepository_SaveRunPrunesHistory(t *testing.T) {
	db := openTestDB(t)
	repo := NewSyncRunRepository(db.GetDB())
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	if err := repo.SaveRun(ctx, access.RunStatus{RunID: "old", Result: "ok", Started: old, Finished: old.Add(time.Second)}); err != nil {
		t.Fatalf("Failed to save old run: %v", err)
	}

	repo.SetRetention(24 * time.Hour)
	now := time.Now()
	if err := repo.SaveRun(ctx, access.RunStatus{RunID: "new", Result: "ok", Started: now, Finished: now.Add(time.Second)}); err != nil {
		t.Fatalf("Failed to save new run: %v", err)
	}

	runs, err := repo.GetRecent(10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "new" {
		t.Errorf("Expected only the new run to survive, got %+v", runs)
	}
	if _, err := repo.GetByRunID("old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected old run to be pruned, got %v", err)
	}
}
