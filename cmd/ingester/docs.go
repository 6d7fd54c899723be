package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"codeberg.org/crawlsearch/server/internal/document"
	"codeberg.org/crawlsearch/server/internal/indexer"
	"codeberg.org/crawlsearch/server/internal/logger"
	"codeberg.org/crawlsearch/server/internal/sources"
	"github.com/spf13/cobra"
)

type docsOptions struct {
	path      string
	clear     bool
	batchSize int
	watch     bool
}

func newDocsCmd() *cobra.Command {
	var opts docsOptions

	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Index markdown files from a directory",
		Long: `Walks a directory for .md, .mdx, .markdown and .txt files and
indexes each one through the ingestion pipeline. Files are indexed
under file:// urls, so re-running replaces earlier chunks.

Examples:
  ingester docs --path ./docs
  ingester docs --path ./docs --clear
  ingester docs --path ./docs --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDocs(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.path, "path", "p", "./docs", "Directory to index")
	cmd.Flags().BoolVar(&opts.clear, "clear", false, "Delete each document before re-indexing it")
	cmd.Flags().IntVar(&opts.batchSize, "batch", 16, "Documents per pipeline batch")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep running and re-index files as they change")

	return cmd
}

func runDocs(cmd *cobra.Command, opts docsOptions) error {
	ctx := cmd.Context()

	root, err := filepath.Abs(opts.path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	files, err := markdownFiles(root)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no markdown files under %s", root)
	}

	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger.Info("starting docs ingestion", "path", root, "files", len(files), "clear", opts.clear)

	source := sources.NewFileSource(root)
	batch := make([]document.Record, 0, opts.batchSize)

	var indexed, failed, chunks int

	flush := func() {
		for _, res := range pool.Pipeline.IndexBatch(ctx, batch, indexer.Ref{}) {
			if !res.Success {
				failed++
				logger.Warn("failed to index file", "url", res.URL, "code", res.ErrorCode, "error", res.Error)
				continue
			}

			indexed++
			chunks += res.ChunksIndexed
		}

		batch = batch[:0]
	}

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}

		rec, err := source.Fetch(ctx, "file://"+filepath.ToSlash(path))
		if err != nil {
			failed++
			logger.Warn("failed to read file", "path", path, "error", err)
			continue
		}

		if opts.clear {
			if _, err := pool.Pipeline.DeleteDocument(ctx, rec.URL); err != nil {
				logger.Warn("failed to clear document", "url", rec.URL, "error", err)
			}
		}

		batch = append(batch, *rec)
		if len(batch) >= max(opts.batchSize, 1) {
			flush()
		}
	}

	if len(batch) > 0 {
		flush()
	}

	logger.Info("docs ingestion finished", "indexed", indexed, "failed", failed, "chunks", chunks)

	if indexed == 0 {
		return fmt.Errorf("no documents indexed")
	}

	if opts.watch {
		return newDocWatcher(root, pool.Pipeline, source).Run(ctx)
	}

	return ctx.Err()
}

func markdownFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if isMarkdown(path) {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	return files, nil
}
