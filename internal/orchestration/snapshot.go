package orchestration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const snapshotVersion = 1

// LaneSnapshot mirrors one lane's persisted shape (spec.md §6):
// `{sessionId, mode, cap, dropPolicy, collectDebounceMs, queuedInputs, activeInput?}`.
type LaneSnapshot struct {
	SessionID         string     `json:"sessionId"`
	Mode              Mode       `json:"mode"`
	Cap               int        `json:"cap"`
	DropPolicy        DropPolicy `json:"dropPolicy"`
	CollectDebounceMs int        `json:"collectDebounceMs"`
	QueuedInputs      []string   `json:"queuedInputs"`
	ActiveInput       *string    `json:"activeInput,omitempty"`
}

// laneSnapshotFile is the on-disk document: `{version, updatedAt, lanes}`.
type laneSnapshotFile struct {
	Version   int            `json:"version"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Lanes     []LaneSnapshot `json:"lanes"`
}

// SnapshotStore persists the lane snapshot file under the gateway
// process's sole ownership (spec.md §5 "Shared-resource policy"): no
// locking beyond atomic rename, since only one gateway process writes it.
type SnapshotStore struct {
	path string
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Write atomically replaces the snapshot file with the given lanes.
func (s *SnapshotStore) Write(lanes []LaneSnapshot) error {
	doc := laneSnapshotFile{Version: snapshotVersion, UpdatedAt: time.Now().UTC(), Lanes: lanes}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".lanes-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Read loads the snapshot file, returning an empty document if it does
// not yet exist.
func (s *SnapshotStore) Read() (*laneSnapshotFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &laneSnapshotFile{Version: snapshotVersion}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc laneSnapshotFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
