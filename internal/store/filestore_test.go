package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trinity-cloud/drost/internal/gwerr"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSaveThenLoad_Roundtrip(t *testing.T) {
	s := newTestStore(t)
	rec := &Record{
		SessionID:        "sess_1",
		ActiveProviderID: "anthropic",
		History:          []Message{{Role: RoleUser, Content: "hi"}},
	}

	saved, _, err := s.Save(rec)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Revision != 1 {
		t.Fatalf("first save should set Revision=1, got %d", saved.Revision)
	}
	if saved.Version != CurrentVersion {
		t.Fatalf("Save should stamp CurrentVersion, got %d", saved.Version)
	}

	loaded, diag, err := s.Load("sess_1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diag != nil {
		t.Fatalf("unexpected diagnostic: %+v", diag)
	}
	if loaded.SessionID != "sess_1" || len(loaded.History) != 1 {
		t.Fatalf("unexpected loaded record: %+v", loaded)
	}
}

func TestSave_IgnoresCallerRevisionAndIncrementsMonotonically(t *testing.T) {
	s := newTestStore(t)
	rec := &Record{SessionID: "sess_1", Revision: 999}

	first, _, err := s.Save(rec)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if first.Revision != 1 {
		t.Fatalf("Save should ignore the caller's Revision and write 1, got %d", first.Revision)
	}

	second, _, err := s.Save(first)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if second.Revision != 2 {
		t.Fatalf("second Save should increment to 2, got %d", second.Revision)
	}
}

func TestLoad_MissingSessionReturnsNilWithoutError(t *testing.T) {
	s := newTestStore(t)
	rec, diag, err := s.Load("does-not-exist")
	if err != nil || rec != nil || diag != nil {
		t.Fatalf("expected (nil, nil, nil) for a missing session, got (%v, %v, %v)", rec, diag, err)
	}
}

func TestLoad_QuarantinesCorruptJSON(t *testing.T) {
	s := newTestStore(t)
	path := s.recordPath("broken")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	rec, diag, err := s.Load("broken")
	if err != nil {
		t.Fatalf("Load should not return a Go error for corrupt JSON: %v", err)
	}
	if rec != nil {
		t.Fatal("expected nil record for quarantined session")
	}
	if diag == nil || diag.Code != "corrupt_json" {
		t.Fatalf("expected corrupt_json diagnostic, got %+v", diag)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("corrupt record should have been moved out of place")
	}
	if _, err := os.Stat(diag.QuarantinedPath); err != nil {
		t.Fatalf("quarantined file should exist at reported path: %v", err)
	}
}

func TestLoad_QuarantinesInvalidShape(t *testing.T) {
	s := newTestStore(t)

	// Write a structurally-valid-JSON but semantically-invalid record
	// directly, bypassing Save's own invariants.
	path := s.recordPath("bad-shape")
	if err := os.WriteFile(path, []byte(`{"version":2,"sessionId":"bad-shape","history":[{"role":"bogus"}]}`), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, diag, err := s.Load("bad-shape")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diag == nil || diag.Code != "invalid_shape" {
		t.Fatalf("expected invalid_shape diagnostic, got %+v", diag)
	}
}

func TestDelete_RemovesRecordAndIndexEntry(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Save(&Record{SessionID: "sess_1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete("sess_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := os.Stat(s.recordPath("sess_1")); !os.IsNotExist(err) {
		t.Fatal("record file should be gone after Delete")
	}
	entries, err := s.ListIndex()
	if err != nil {
		t.Fatalf("ListIndex: %v", err)
	}
	for _, e := range entries {
		if e.SessionID == "sess_1" {
			t.Fatal("deleted session should not remain in the index")
		}
	}
}

func TestRename_MovesRecordAndRejectsExistingTarget(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Save(&Record{SessionID: "old", History: []Message{{Role: RoleUser, Content: "x"}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	renamed, err := s.Rename("old", "new")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.SessionID != "new" {
		t.Fatalf("renamed record should carry the new id, got %q", renamed.SessionID)
	}
	if _, err := os.Stat(s.recordPath("old")); !os.IsNotExist(err) {
		t.Fatal("old record path should no longer exist")
	}

	if _, _, err := s.Save(&Record{SessionID: "other"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Rename("new", "other"); gwerr.KindOf(err) != gwerr.KindConflict {
		t.Fatalf("renaming onto an existing session should fail with KindConflict, got %v", err)
	}
}

func TestRename_UnknownSource(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Rename("missing", "target")
	if gwerr.KindOf(err) != gwerr.KindUnknownSession {
		t.Fatalf("expected KindUnknownSession, got %v", err)
	}
}

func TestArchive_RemovesFromIndexButKeepsTranscript(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Save(&Record{SessionID: "sess_1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.AppendTranscript("sess_1", "hello"); err != nil {
		t.Fatalf("AppendTranscript: %v", err)
	}

	if err := s.Archive("sess_1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := os.Stat(s.recordPath("sess_1")); !os.IsNotExist(err) {
		t.Fatal("archived record should be gone from its canonical path")
	}
	if _, err := os.Stat(s.transcriptPath("sess_1")); err != nil {
		t.Fatalf("transcript log should survive archiving: %v", err)
	}
	entries, _ := s.ListIndex()
	for _, e := range entries {
		if e.SessionID == "sess_1" {
			t.Fatal("archived session should not remain in the index")
		}
	}
}

func TestExportImport_Roundtrip(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Save(&Record{SessionID: "sess_1", History: []Message{{Role: RoleAssistant, Content: "hi"}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := s.Export("sess_1")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if _, err := s.Import("sess_2", data, false); err != nil {
		t.Fatalf("Import: %v", err)
	}
	loaded, _, err := s.Load("sess_2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SessionID != "sess_2" || len(loaded.History) != 1 {
		t.Fatalf("unexpected imported record: %+v", loaded)
	}

	if _, err := s.Import("sess_2", data, false); gwerr.KindOf(err) != gwerr.KindConflict {
		t.Fatalf("re-importing without overwrite should fail with KindConflict, got %v", err)
	}
	if _, err := s.Import("sess_2", data, true); err != nil {
		t.Fatalf("overwrite import should succeed, got %v", err)
	}
}

func TestSave_AppliesHistoryBudgetAndFiresDegradeHook(t *testing.T) {
	var reason string
	s, err := New(t.TempDir(),
		WithHistoryBudget(HistoryBudget{MaxMessages: 1}),
		WithDegradeHook(func(r string) { reason = r }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := &Record{SessionID: "sess_1", History: []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleUser, Content: "second"},
	}}
	saved, report, err := s.Save(rec)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(saved.History) != 1 || saved.History[0].Content != "second" {
		t.Fatalf("expected only the most recent message to survive trimming, got %+v", saved.History)
	}
	if !report.Trimmed || report.DroppedMessages != 1 {
		t.Fatalf("unexpected trim report: %+v", report)
	}
	if reason == "" {
		t.Fatal("expected degrade hook to fire when history was trimmed")
	}
}

func TestListIndex_SortsByRecencyDescending(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	for id, age := range map[string]time.Duration{"old": 2 * time.Hour, "new": 0, "mid": time.Hour} {
		rec := &Record{SessionID: id, Metadata: Metadata{LastActivityAt: now.Add(-age)}}
		if _, _, err := s.Save(rec); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}

	entries, err := s.ListIndex()
	if err != nil {
		t.Fatalf("ListIndex: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	order := []string{entries[0].SessionID, entries[1].SessionID, entries[2].SessionID}
	want := []string{"new", "mid", "old"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected recency order: %v, want %v", order, want)
		}
	}
}

func TestNew_CreatesSubdirectories(t *testing.T) {
	dir := t.TempDir()
	if _, err := New(dir); err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, sub := range []string{corruptDirName, archiveDirName} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Fatalf("expected subdirectory %q to exist", sub)
		}
	}
}
