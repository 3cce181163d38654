package runs

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/agiopen-org/lux-desktop/internal/events"
	"github.com/agiopen-org/lux-desktop/internal/storage/dirstore"
)

const historyFile = "history.jsonl"

// FileStore persists runs as directories with meta.json + history.jsonl.
type FileStore struct {
	ds *dirstore.DirStore
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{ds: dirstore.New(baseDir, "run")}
}

// Create writes the initial record of r. r.ID must be set.
func (fs *FileStore) Create(r *Run) error {
	if r.ID == "" {
		return fmt.Errorf("create run: empty id")
	}

	fs.ds.Lock()
	defer fs.ds.Unlock()

	now := time.Now()
	if r.StartedAt.IsZero() {
		r.StartedAt = now
	}
	r.UpdatedAt = now

	if err := fs.ds.EnsureDir(r.ID); err != nil {
		return err
	}
	return fs.ds.WriteMeta(r.ID, r)
}

// Get reads run metadata by ID.
func (fs *FileStore) Get(id string) (*Run, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	return fs.read(id)
}

// List returns all runs, most recently started first.
func (fs *FileStore) List() ([]*Run, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	ids, err := fs.ds.ListDirs()
	if err != nil {
		return nil, err
	}

	var out []*Run
	for _, id := range ids {
		r, err := fs.read(id)
		if err != nil {
			continue // skip corrupted runs
		}
		out = append(out, r)
	}

	slices.SortFunc(out, func(a, b *Run) int {
		return cmp.Compare(b.StartedAt.UnixNano(), a.StartedAt.UnixNano())
	})
	return out, nil
}

// UpdateMeta atomically rewrites a run's meta.json.
func (fs *FileStore) UpdateMeta(r *Run) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	if !fs.ds.Exists(r.ID) {
		return fmt.Errorf("run %s: %w", r.ID, ErrNotFound)
	}
	r.UpdatedAt = time.Now()
	return fs.ds.WriteMeta(r.ID, r)
}

// AppendEntries appends timeline entries to the run's history and bumps its
// entry count.
func (fs *FileStore) AppendEntries(id string, entries []events.TimelineEntry) error {
	if len(entries) == 0 {
		return nil
	}

	fs.ds.Lock()
	defer fs.ds.Unlock()

	r, err := fs.read(id)
	if err != nil {
		return err
	}
	if err := dirstore.AppendJSONL(fs.ds, id, historyFile, entries); err != nil {
		return err
	}

	r.EntryCount += len(entries)
	r.UpdatedAt = time.Now()
	return fs.ds.WriteMeta(id, r)
}

// LoadHistory reads the full timeline of a run.
func (fs *FileStore) LoadHistory(id string) ([]events.TimelineEntry, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	if !fs.ds.Exists(id) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return dirstore.LoadJSONL[events.TimelineEntry](fs.ds, id, historyFile)
}

// Delete removes a run and its history.
func (fs *FileStore) Delete(id string) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	return fs.ds.RemoveDir(id)
}

func (fs *FileStore) read(id string) (*Run, error) {
	var r Run
	if err := fs.ds.ReadMeta(id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
