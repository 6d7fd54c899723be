package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	_ "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	_ "github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/registry"
)

func DefaultOptions() Options {
	return Options{
		MaxTokens:     DefaultMaxTokens,
		OverlapTokens: DefaultOverlapTokens,
		Tokenizer:     DefaultTokenizer,
	}
}

// Chunker splits text into overlapping token windows.
// A Chunker is safe for concurrent use.
type Chunker struct {
	opts      Options
	tokenizer analysis.Tokenizer
}

// resolves the tokenizer and validates window sizes up front
func New(opts Options) (*Chunker, error) {
	if opts.Tokenizer == "" {
		opts.Tokenizer = DefaultTokenizer
	}

	if err := validate(opts.MaxTokens, opts.OverlapTokens); err != nil {
		return nil, err
	}

	tokenizer, err := registry.NewCache().TokenizerNamed(opts.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %q: %w", opts.Tokenizer, err)
	}

	return &Chunker{opts: opts, tokenizer: tokenizer}, nil
}

func (c *Chunker) Options() Options {
	return c.opts
}

// splits text with the configured window sizes
func (c *Chunker) Chunk(text string, metadata map[string]any) []Chunk {
	return c.split(text, c.opts.MaxTokens, c.opts.OverlapTokens, metadata)
}

// splits text with per-call window sizes
func (c *Chunker) Split(text string, maxTokens, overlapTokens int, metadata map[string]any) ([]Chunk, error) {
	if err := validate(maxTokens, overlapTokens); err != nil {
		return nil, err
	}

	return c.split(text, maxTokens, overlapTokens, metadata), nil
}

// number of tokens the chunker sees in text
func (c *Chunker) CountTokens(text string) int {
	return len(c.tokenizer.Tokenize([]byte(text)))
}

func (c *Chunker) split(text string, maxTokens, overlapTokens int, metadata map[string]any) []Chunk {
	if strings.TrimSpace(text) == "" {
		return []Chunk{}
	}

	tokens := c.tokenizer.Tokenize([]byte(text))
	if len(tokens) == 0 {
		return []Chunk{}
	}

	step := maxTokens - overlapTokens
	chunks := make([]Chunk, 0, len(tokens)/step+1)

	for start := 0; ; start += step {
		end := min(start+maxTokens, len(tokens))

		// decode the window back to the original bytes between its first and last token;
		// the outer windows also keep the leading and trailing punctuation of the text
		startByte := tokens[start].Start
		endByte := tokens[end-1].End

		if start == 0 {
			startByte = len(text) - len(strings.TrimLeftFunc(text, unicode.IsSpace))
		}

		if end == len(tokens) {
			endByte = len(strings.TrimRightFunc(text, unicode.IsSpace))
		}

		chunks = append(chunks, Chunk{
			Text:       text[startByte:endByte],
			ChunkIndex: len(chunks),
			TokenCount: end - start,
			StartByte:  startByte,
			EndByte:    endByte,
			Metadata:   copyMetadata(metadata),
		})

		if end == len(tokens) {
			break
		}
	}

	return chunks
}

func validate(maxTokens, overlapTokens int) error {
	if maxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidOptions, maxTokens)
	}

	if overlapTokens < 0 {
		return fmt.Errorf("%w: overlap tokens must not be negative, got %d", ErrInvalidOptions, overlapTokens)
	}

	if overlapTokens >= maxTokens {
		return fmt.Errorf("%w: overlap tokens (%d) must be smaller than max tokens (%d)",
			ErrInvalidOptions, overlapTokens, maxTokens)
	}

	return nil
}

// shallow copy so chunks never share a map
func copyMetadata(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}

	return out
}
