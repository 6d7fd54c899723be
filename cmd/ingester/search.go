package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"codeberg.org/crawlsearch/server/internal/document"
	"codeberg.org/crawlsearch/server/internal/retriever"
	"github.com/spf13/cobra"
)

type searchOptions struct {
	mode     string
	limit    int
	offset   int
	domain   string
	language string
	chunks   bool
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Runs a query against the index the way the HTTP API does.

Examples:
  ingester search "tomato watering"
  ingester search "goroutines" --mode keyword --limit 5
  ingester search "install" --domain docs.example.com --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", string(retriever.ModeHybrid), "hybrid, semantic or keyword")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", retriever.DefaultLimit, "Maximum number of results")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Results to skip")
	cmd.Flags().StringVar(&opts.domain, "domain", "", "Only results from this domain")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Only results in this language")
	cmd.Flags().BoolVar(&opts.chunks, "chunks", false, "Return every matching chunk instead of one per url")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "text or json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx := cmd.Context()

	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	req := retriever.Request{
		Query:      query,
		Mode:       retriever.Mode(opts.mode),
		Limit:      opts.limit,
		Offset:     opts.offset,
		ChunkLevel: opts.chunks,
	}

	if opts.domain != "" || opts.language != "" {
		req.Filters = &document.Filter{Domain: opts.domain, Language: opts.language}
	}

	resp, err := pool.Retriever.Search(ctx, req)
	if resp == nil {
		return err
	}

	out := cmd.OutOrStdout()

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(resp); encErr != nil {
			return encErr
		}
		return err
	}

	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%d results (%s, %.1fms)", resp.Total, resp.Mode, resp.TookMS)
	if resp.Degraded {
		fmt.Fprintf(out, " degraded: %v", resp.DegradedModes)
	}
	fmt.Fprintln(out)

	for i, r := range resp.Results {
		title := r.Title
		if title == "" {
			title = r.URL
		}

		fmt.Fprintf(out, "\n%d. %s  [%.4f]\n   %s#%d\n", opts.offset+i+1, title, r.Score, r.URL, r.ChunkIndex)
		fmt.Fprintf(out, "   %s\n", snippet(r.Text, 160))
	}

	return nil
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) <= n {
		return text
	}

	return string(runes[:n]) + "..."
}
