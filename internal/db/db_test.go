package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chmdznr/music-dir-sync/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "musync.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateAndGetRun(t *testing.T) {
	db := openTestDB(t)

	run := &models.Run{
		SourcePath:  "/music/src",
		Destination: "/music/dst",
		Execute:     true,
		Check:       true,
	}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("CreateRun did not assign an ID")
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.SourcePath != run.SourcePath || got.Destination != run.Destination {
		t.Errorf("GetRun = %+v; want paths of %+v", got, run)
	}
	if !got.Execute || !got.Check {
		t.Errorf("GetRun flags = execute %v check %v; want true true", got.Execute, got.Check)
	}
	if !got.FinishedAt.IsZero() {
		t.Errorf("unfinished run has FinishedAt %v", got.FinishedAt)
	}

	if _, err := db.GetRun("missing"); err == nil {
		t.Error("GetRun(missing) should fail")
	}
}

func TestSaveReportAndStats(t *testing.T) {
	db := openTestDB(t)

	run := &models.Run{SourcePath: "/src", Destination: "/dst", Execute: true, Check: true}
	if err := db.CreateRun(run); err != nil {
		t.Fatal(err)
	}

	var report models.Report
	report.Add(models.Event{Kind: models.EventSync, Mode: models.ModeArtistDir, SourcePath: "/src/A"})
	report.Add(models.Event{Kind: models.EventCopy, Mode: models.ModeArtistDir, SourcePath: "/src/A", Files: 2, Size: 2048})
	report.Add(models.Event{Kind: models.EventSync, Mode: models.ModeSkipped, SourcePath: "/src/B/X"})
	report.Add(models.Event{Kind: models.EventCheckFailed, SourcePath: "/src/B/X/1.flac", TargetPath: "/dst/B/X/1.flac"})
	report.Add(models.Event{Kind: models.EventCheckFailed, SourcePath: "/src/B/X/2.flac", TargetPath: "/dst/B/X/2.flac", Message: "no such file"})
	report.Stats.CheckedFiles = 5

	if err := db.SaveReport(run, &report); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	stats, err := db.GetStats(run.ID)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if *stats != report.Stats {
		t.Errorf("GetStats = %+v; want %+v", *stats, report.Stats)
	}

	failures, err := db.GetFailures(run.ID)
	if err != nil {
		t.Fatalf("GetFailures: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("GetFailures returned %d events; want 2", len(failures))
	}
	if failures[0].SourcePath != "/src/B/X/1.flac" || failures[1].Message != "no such file" {
		t.Errorf("GetFailures = %+v", failures)
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FinishedAt.IsZero() || got.CheckedFiles != 5 {
		t.Errorf("finished run = %+v", got)
	}
}

func TestSaveEventsBatchAppends(t *testing.T) {
	db := openTestDB(t)

	run := &models.Run{SourcePath: "/src", Destination: "/dst"}
	if err := db.CreateRun(run); err != nil {
		t.Fatal(err)
	}

	first := []models.Event{{Kind: models.EventCheckFailed, SourcePath: "a"}}
	second := []models.Event{{Kind: models.EventCheckFailed, SourcePath: "b"}}
	if err := db.SaveEventsBatch(run.ID, first); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveEventsBatch(run.ID, second); err != nil {
		t.Fatal(err)
	}

	failures, err := db.GetFailures(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 2 || failures[0].SourcePath != "a" || failures[1].SourcePath != "b" {
		t.Errorf("GetFailures = %+v; want a then b", failures)
	}
}

func TestStatsForRunWithoutEvents(t *testing.T) {
	db := openTestDB(t)

	run := &models.Run{SourcePath: "/src", Destination: "/dst"}
	if err := db.CreateRun(run); err != nil {
		t.Fatal(err)
	}

	stats, err := db.GetStats(run.ID)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if *stats != (models.Stats{}) {
		t.Errorf("GetStats = %+v; want zero stats", *stats)
	}
}

func TestListRuns(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, src := range []string{"/first", "/second", "/third"} {
		run := &models.Run{SourcePath: src, Destination: "/dst", StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := db.CreateRun(run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns returned %d runs; want 2", len(runs))
	}
	if runs[0].SourcePath != "/third" || runs[1].SourcePath != "/second" {
		t.Errorf("ListRuns order = %s, %s; want /third, /second", runs[0].SourcePath, runs[1].SourcePath)
	}
	if !runs[0].StartedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("StartedAt = %v; want %v", runs[0].StartedAt, base.Add(2*time.Hour))
	}
}

func TestFinishUnknownRun(t *testing.T) {
	db := openTestDB(t)
	if err := db.FinishRun("nope", time.Now(), 0); err == nil {
		t.Error("FinishRun(unknown) should fail")
	}
}
