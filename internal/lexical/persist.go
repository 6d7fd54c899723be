package lexical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"codeberg.org/crawlsearch/server/internal/logger"
	"github.com/gofrs/flock"
)

const (
	lockTimeout    = 5 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

var errNoSnapshot = errors.New("no bm25 snapshot on disk")

// Save writes the current state to disk. Memory stays authoritative when it fails.
func (idx *Index) Save() error {
	if idx.opts.Path == "" {
		return nil
	}

	idx.ensureLoaded()

	// held through the write so an older snapshot never lands after a newer one
	idx.saveMu.Lock()
	defer idx.saveMu.Unlock()

	idx.mu.Lock()
	snap := snapshot{
		Version:   schemaVersion,
		K1:        idx.opts.K1,
		B:         idx.opts.B,
		SavedAt:   time.Now().UTC(),
		Documents: make([]*entry, 0, len(idx.docs)),
	}

	// entries are replaced, never mutated, so they can be encoded outside the lock
	for _, e := range idx.docs {
		snap.Documents = append(snap.Documents, e)
	}
	idx.dirty = false
	idx.mu.Unlock()

	data, err := json.Marshal(snap)

	if err != nil {
		idx.markDirty()
		return fmt.Errorf("failed to encode bm25 index: %w", err)
	}

	if err := writeAtomic(idx.opts.Path, data); err != nil {
		idx.markDirty()
		return err
	}

	logger.Debug("bm25 index saved", "path", idx.opts.Path, "documents", len(snap.Documents))
	return nil
}

func (idx *Index) markDirty() {
	idx.mu.Lock()
	idx.dirty = true
	idx.mu.Unlock()
}

func (idx *Index) isDirty() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.dirty
}

// saves now unless a Flusher owns persistence
func (idx *Index) persist() {
	if idx.opts.PersistInterval > 0 {
		return
	}

	if err := idx.Save(); err != nil {
		logger.ErrorErr(err, "failed to persist bm25 index", "path", idx.opts.Path)
	}
}

func readSnapshot(path string) (*snapshot, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, errNoSnapshot
	}

	lock := flock.New(path + ".lock")

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return nil, fmt.Errorf("failed to lock %s for reading: %w", path, err)
	}
	defer lock.Unlock() //nolint:errcheck // released on process exit anyway

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNoSnapshot
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupt bm25 index %s: %w", path, err)
	}

	if snap.Version != schemaVersion {
		return nil, fmt.Errorf("unsupported bm25 index version %d in %s", snap.Version, path)
	}

	// stable order keeps rebuilds deterministic
	sort.Slice(snap.Documents, func(i, j int) bool {
		if snap.Documents[i] == nil || snap.Documents[j] == nil {
			return snap.Documents[j] == nil
		}

		return snap.Documents[i].ID < snap.Documents[j].ID
	})

	return &snap, nil
}

// writes through a temp file and rename under an exclusive file lock
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	lock := flock.New(path + ".lock")

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return fmt.Errorf("failed to lock %s for writing: %w", path, err)
	}
	defer lock.Unlock() //nolint:errcheck // released on process exit anyway

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // error path cleanup
		return fmt.Errorf("failed to write bm25 index: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // error path cleanup
		return fmt.Errorf("failed to sync bm25 index: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close bm25 index: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace bm25 index: %w", err)
	}

	return nil
}

// Flusher saves a dirty index on an interval and once more on Stop
type Flusher struct {
	index    *Index
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewFlusher(index *Index, interval time.Duration) *Flusher {
	return &Flusher{
		index:    index,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// begins the background save loop
func (f *Flusher) Start() {
	f.wg.Add(1)
	go f.run()
	logger.Info("bm25 flusher started", "interval", f.interval.String())
}

// stops the loop after a final save
func (f *Flusher) Stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
		f.wg.Wait()
		logger.Info("bm25 flusher stopped")
	})
}

func (f *Flusher) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flush()
		case <-f.stopCh:
			f.flush()
			return
		}
	}
}

func (f *Flusher) flush() {
	if !f.index.isDirty() {
		return
	}

	if err := f.index.Save(); err != nil {
		logger.ErrorErr(err, "failed to flush bm25 index")
	}
}
