package store

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/trinity-cloud/drost/internal/gwerr"
	"github.com/trinity-cloud/drost/internal/sessionkey"
)

const (
	corruptDirName = ".drost-sessions-corrupt"
	archiveDirName = ".drost-sessions-archive"
	// imageRefThumbnailMaxDim bounds the longest edge of any imageRef
	// persisted into a session record, keeping record files small.
	imageRefThumbnailMaxDim = 1024
)

// Diagnostic describes a recoverable load failure (corruption, schema
// mismatch). It is never returned as a Go error for the caller to bubble —
// load recovers by quarantining and reporting it instead (spec.md §7:
// "locally recovered").
type Diagnostic struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	QuarantinedPath string `json:"quarantinedPath,omitempty"`
}

// FileStore is the on-disk, lock-file-guarded session record store.
type FileStore struct {
	dir     string
	locks   lockConfig
	budget  HistoryBudget
	degrade func(reason string)
}

// Option configures a FileStore at construction.
type Option func(*FileStore)

// WithHistoryBudget sets the trim policy applied on every Save.
func WithHistoryBudget(b HistoryBudget) Option {
	return func(s *FileStore) { s.budget = b }
}

// WithDegradeHook registers a callback invoked when Save trims a non-empty
// history drop, so the gateway can append a degradation note.
func WithDegradeHook(fn func(reason string)) Option {
	return func(s *FileStore) { s.degrade = fn }
}

// New constructs a FileStore rooted at dir, creating the corrupt/archive
// subdirectories if absent.
func New(dir string, opts ...Option) (*FileStore, error) {
	s := &FileStore{dir: dir, locks: defaultLockConfig()}
	for _, o := range opts {
		o(s)
	}
	for _, sub := range []string{"", corruptDirName, archiveDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, gwerr.Wrap(gwerr.KindCorrupt, "create session store directories", err)
		}
	}
	return s, nil
}

func sanitizeFilename(sessionID string) string {
	return sessionkey.Sanitize(sessionID)
}

func (s *FileStore) recordPath(sessionID string) string {
	return filepath.Join(s.dir, sanitizeFilename(sessionID)+".json")
}

func (s *FileStore) lockPath(sessionID string) string {
	return filepath.Join(s.dir, sanitizeFilename(sessionID)+".lock")
}

func (s *FileStore) transcriptPath(sessionID string) string {
	return filepath.Join(s.dir, sanitizeFilename(sessionID)+".jsonl")
}

func (s *FileStore) eventLogPath(sessionID string) string {
	return filepath.Join(s.dir, sanitizeFilename(sessionID)+".full.jsonl")
}

// Load reads a session record. A JSON parse failure or schema validation
// failure quarantines the file and returns (nil, diagnostic, nil) — this is
// not a Go error, per spec.md §7's "locally recovered" policy.
func (s *FileStore) Load(sessionID string) (*Record, *Diagnostic, error) {
	lock, err := acquireLock(s.lockPath(sessionID), s.locks)
	if err != nil {
		return nil, nil, err
	}
	defer lock.unlock()

	path := s.recordPath(sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, gwerr.Wrap(gwerr.KindCorrupt, "read session record", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		diag, qerr := s.quarantine(sessionID, path, "corrupt_json")
		if qerr != nil {
			return nil, nil, qerr
		}
		return nil, diag, nil
	}

	if diag := validateShape(&rec); diag != nil {
		d, qerr := s.quarantine(sessionID, path, diag.Code)
		if qerr != nil {
			return nil, nil, qerr
		}
		return nil, d, nil
	}

	if rec.Version < CurrentVersion {
		rec.Version = CurrentVersion // upgraded on next Save
	}
	return &rec, nil, nil
}

func validateShape(rec *Record) *Diagnostic {
	if rec.SessionID == "" {
		return &Diagnostic{Code: "invalid_shape", Message: "sessionId is empty"}
	}
	if rec.Version < 1 {
		return &Diagnostic{Code: "invalid_shape", Message: "missing version"}
	}
	for i, m := range rec.History {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			return &Diagnostic{Code: "invalid_shape", Message: fmt.Sprintf("history[%d] has unknown role %q", i, m.Role)}
		}
	}
	return nil
}

func (s *FileStore) quarantine(sessionID, path, code string) (*Diagnostic, error) {
	dest := filepath.Join(s.dir, corruptDirName, fmt.Sprintf("%s.%d.json", sanitizeFilename(sessionID), time.Now().UnixNano()))
	if err := os.Rename(path, dest); err != nil && !os.IsNotExist(err) {
		return nil, gwerr.Wrap(gwerr.KindCorrupt, "quarantine corrupt record", err)
	}
	if err := s.updateIndex(func(idx *indexFile) { delete(idx.Entries, sessionID) }); err != nil {
		return nil, err
	}
	return &Diagnostic{Code: code, Message: "session record failed validation and was quarantined", QuarantinedPath: dest}, nil
}

// Save atomically persists rec: it acquires the per-session lock, trims
// history per the configured budget, writes the record to a temp sibling,
// fsyncs, renames over the target, updates the index, then releases the
// lock. The caller-supplied rec.Revision is ignored; Save always writes
// rec.Revision+1 and returns the written copy.
func (s *FileStore) Save(rec *Record) (*Record, TrimResult, error) {
	lock, err := acquireLock(s.lockPath(rec.SessionID), s.locks)
	if err != nil {
		return nil, TrimResult{}, err
	}
	defer lock.unlock()

	out := rec.Clone()
	out.Version = CurrentVersion
	out.UpdatedAt = time.Now().UTC()
	out.Revision = rec.Revision + 1
	out.History = shrinkImageRefs(out.History)

	trimmed, report := s.budget.Apply(out.History)
	out.History = trimmed
	if report.Trimmed && s.degrade != nil {
		s.degrade(fmt.Sprintf("session %s history trimmed: dropped %d messages, %d characters", rec.SessionID, report.DroppedMessages, report.DroppedCharacters))
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, TrimResult{}, err
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*.tmp")
	if err != nil {
		return nil, TrimResult{}, gwerr.Wrap(gwerr.KindCorrupt, "create temp record", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, TrimResult{}, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, TrimResult{}, err
	}
	if err := tmp.Close(); err != nil {
		return nil, TrimResult{}, err
	}
	if err := os.Rename(tmpPath, s.recordPath(rec.SessionID)); err != nil {
		return nil, TrimResult{}, gwerr.Wrap(gwerr.KindCorrupt, "rename record into place", err)
	}

	if err := s.updateIndex(func(idx *indexFile) { idx.Entries[out.SessionID] = entryFromRecord(out) }); err != nil {
		return nil, TrimResult{}, err
	}
	return out, report, nil
}

// shrinkImageRefs downsizes any imageRef that is itself a readable local
// image file path, bounding record size. Refs that are not decodable
// images (URLs, opaque handles) pass through unchanged.
func shrinkImageRefs(history []Message) []Message {
	for i := range history {
		for j, ref := range history[i].ImageRefs {
			if shrunk, ok := thumbnail(ref); ok {
				history[i].ImageRefs[j] = shrunk
			}
		}
	}
	return history
}

func thumbnail(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return "", false
	}
	if cfg.Width <= imageRefThumbnailMaxDim && cfg.Height <= imageRefThumbnailMaxDim {
		return path, true
	}

	img, err := imaging.Open(path)
	if err != nil {
		return "", false
	}
	resized := imaging.Fit(img, imageRefThumbnailMaxDim, imageRefThumbnailMaxDim, imaging.Lanczos)
	thumbPath := path + ".thumb.jpg"
	if err := imaging.Save(resized, thumbPath, imaging.JPEGQuality(85)); err != nil {
		return "", false
	}
	return thumbPath, true
}

// Delete removes a session's record and lock file (transcript/event logs
// are left in place — see DESIGN.md open-question decision #3).
func (s *FileStore) Delete(sessionID string) error {
	lock, err := acquireLock(s.lockPath(sessionID), s.locks)
	if err != nil {
		return err
	}
	defer lock.unlock()

	if err := os.Remove(s.recordPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return s.updateIndex(func(idx *indexFile) { delete(idx.Entries, sessionID) })
}

// Rename moves a session record from oldID to newID, acquiring both locks
// in path-sorted order to avoid deadlocking against a concurrent reverse
// rename. Fails with KindConflict if newID already has a record.
func (s *FileStore) Rename(oldID, newID string) (*Record, error) {
	locks, err := acquireSorted([]string{s.lockPath(oldID), s.lockPath(newID)}, s.locks)
	if err != nil {
		return nil, err
	}
	defer unlockAll(locks)

	if _, err := os.Stat(s.recordPath(newID)); err == nil {
		return nil, gwerr.New(gwerr.KindConflict, fmt.Sprintf("session %q already exists", newID))
	}

	data, err := os.ReadFile(s.recordPath(oldID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gwerr.New(gwerr.KindUnknownSession, oldID)
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, gwerr.Wrap(gwerr.KindCorrupt, "parse record during rename", err)
	}
	rec.SessionID = newID

	out, err := json.MarshalIndent(&rec, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.recordPath(newID), out, 0o644); err != nil {
		return nil, err
	}
	if err := os.Remove(s.recordPath(oldID)); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if err := s.updateIndex(func(idx *indexFile) {
		delete(idx.Entries, oldID)
		idx.Entries[newID] = entryFromRecord(&rec)
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Archive moves a session's canonical record into the archive directory
// and removes its index entry. Transcript/event logs are left in place.
func (s *FileStore) Archive(sessionID string) error {
	lock, err := acquireLock(s.lockPath(sessionID), s.locks)
	if err != nil {
		return err
	}
	defer lock.unlock()

	src := s.recordPath(sessionID)
	dest := filepath.Join(s.dir, archiveDirName, fmt.Sprintf("%s.%d.json", sanitizeFilename(sessionID), time.Now().Unix()))
	if err := os.Rename(src, dest); err != nil {
		if os.IsNotExist(err) {
			return gwerr.New(gwerr.KindUnknownSession, sessionID)
		}
		return err
	}
	return s.updateIndex(func(idx *indexFile) { delete(idx.Entries, sessionID) })
}

// Export returns the raw canonical-record bytes for sessionID.
func (s *FileStore) Export(sessionID string) ([]byte, error) {
	lock, err := acquireLock(s.lockPath(sessionID), s.locks)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	data, err := os.ReadFile(s.recordPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gwerr.New(gwerr.KindUnknownSession, sessionID)
		}
		return nil, err
	}
	return data, nil
}

// Import writes raw canonical-record bytes as sessionID's record. Fails
// with KindConflict if a record already exists and overwrite is false.
func (s *FileStore) Import(sessionID string, data []byte, overwrite bool) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, gwerr.Wrap(gwerr.KindValidationError, "import payload is not a valid session record", err)
	}
	rec.SessionID = sessionID

	lock, err := acquireLock(s.lockPath(sessionID), s.locks)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	if !overwrite {
		if _, statErr := os.Stat(s.recordPath(sessionID)); statErr == nil {
			return nil, gwerr.New(gwerr.KindConflict, fmt.Sprintf("session %q already exists", sessionID))
		}
	}

	out, err := json.MarshalIndent(&rec, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.recordPath(sessionID), out, 0o644); err != nil {
		return nil, err
	}
	if err := s.updateIndex(func(idx *indexFile) { idx.Entries[sessionID] = entryFromRecord(&rec) }); err != nil {
		return nil, err
	}
	return &rec, nil
}

// AppendTranscript appends a line to the session's append-only transcript
// log (human-readable turn record).
func (s *FileStore) AppendTranscript(sessionID, line string) error {
	return appendLine(s.transcriptPath(sessionID), line)
}

// AppendEvent appends a line to the session's append-only full event log
// (every stream event, for replay/debugging).
func (s *FileStore) AppendEvent(sessionID, line string) error {
	return appendLine(s.eventLogPath(sessionID), line)
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, err = f.WriteString(line)
	return err
}
