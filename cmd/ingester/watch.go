package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/crawlsearch/server/internal/document"
	"codeberg.org/crawlsearch/server/internal/indexer"
	"codeberg.org/crawlsearch/server/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// changes to the same file inside this window are indexed once
const debounceWindow = 500 * time.Millisecond

type docIndexer interface {
	IndexDocument(ctx context.Context, doc *document.Record, ref indexer.Ref) indexer.Result
	DeleteDocument(ctx context.Context, url string) (*indexer.DeleteResult, error)
}

type docFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*document.Record, error)
}

// docWatcher re-indexes markdown files under root as they change
type docWatcher struct {
	root    string
	index   docIndexer
	fetch   docFetcher
	pending map[string]struct{}
}

func newDocWatcher(root string, index docIndexer, fetch docFetcher) *docWatcher {
	return &docWatcher{
		root:    root,
		index:   index,
		fetch:   fetch,
		pending: make(map[string]struct{}),
	}
}

// Run blocks until ctx ends
func (w *docWatcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := w.addDirs(fsw, w.root); err != nil {
		return err
	}

	logger.Info("watching for changes", "path", w.root)

	timer := time.NewTimer(debounceWindow)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addDirs(fsw, event.Name); err != nil {
						logger.Warn("failed to watch directory", "path", event.Name, "error", err)
					}
					continue
				}
			}

			if event.Op == fsnotify.Chmod || !isMarkdown(event.Name) {
				continue
			}

			w.pending[event.Name] = struct{}{}
			timer.Reset(debounceWindow)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)

		case <-timer.C:
			w.flush(ctx)
		}
	}
}

// indexes files that still exist and removes the ones that are gone
func (w *docWatcher) flush(ctx context.Context) {
	for path := range w.pending {
		delete(w.pending, path)

		url := "file://" + filepath.ToSlash(path)

		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			res, err := w.index.DeleteDocument(ctx, url)
			if err != nil {
				logger.Warn("failed to remove deleted file", "url", url, "error", err)
				continue
			}
			logger.Info("removed deleted file", "url", url, "vectors", res.VectorsRemoved, "postings", res.PostingsRemoved)
			continue
		}

		rec, err := w.fetch.Fetch(ctx, url)
		if err != nil {
			logger.Warn("failed to read changed file", "path", path, "error", err)
			continue
		}

		res := w.index.IndexDocument(ctx, rec, indexer.Ref{})
		if !res.Success {
			logger.Warn("failed to index changed file", "url", url, "code", res.ErrorCode, "error", res.Error)
			continue
		}

		logger.Info("re-indexed changed file", "url", url, "chunks", res.ChunksIndexed)
	}
}

func (w *docWatcher) addDirs(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}

		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		return fsw.Add(path)
	})
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".mdx", ".markdown", ".txt":
		return true
	}

	return false
}
