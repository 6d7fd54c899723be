package chunker

import "errors"

var ErrInvalidOptions = errors.New("invalid chunk options")

const (
	DefaultMaxTokens     = 512
	DefaultOverlapTokens = 50
	DefaultTokenizer     = "unicode"
)

type Options struct {
	MaxTokens     int
	OverlapTokens int
	// bleve tokenizer name ("unicode", "whitespace")
	Tokenizer string
}

// Chunk is one token window of a document
type Chunk struct {
	Text       string         `json:"text"`
	ChunkIndex int            `json:"chunk_index"`
	TokenCount int            `json:"token_count"`
	StartByte  int            `json:"start_byte"`
	EndByte    int            `json:"end_byte"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Page is a markdown file split into its frontmatter, title and body
type Page struct {
	Title       string
	Body        string
	Frontmatter map[string]any
}
