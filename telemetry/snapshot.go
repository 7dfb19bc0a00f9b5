package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot records the group composition of a population at one round.
type Snapshot struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id,omitempty"`
	Seed    uint64 `json:"seed"`
	Round   int    `json:"round"`

	Params RunParams    `json:"params"`
	Groups []GroupState `json:"groups"`
}

// GroupState holds one group's composition.
type GroupState struct {
	Index     int            `json:"index"`
	Size      int            `json:"size"`
	Prosocial int            `json:"prosocial"`
	Genotypes map[string]int `json:"genotypes"`
}

// SaveSnapshot writes snapshot_<round>.json under dir and returns its path.
func SaveSnapshot(snapshot *Snapshot, dir string) (path string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path = filepath.Join(dir, fmt.Sprintf("snapshot_%d.json", snapshot.Round))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close snapshot: %w", cerr)
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot. Files from another
// format version are rejected.
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	snapshot := &Snapshot{}
	if err := json.NewDecoder(f).Decode(snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot %s: version %d, want %d", path, snapshot.Version, SnapshotVersion)
	}
	return snapshot, nil
}
