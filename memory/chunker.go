package memory

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Chunker splits redacted text into token-bounded chunks on word
// boundaries. Token counting uses the cl100k_base BPE when the encoding
// asset is available and falls back to a whitespace heuristic offline.
type Chunker struct {
	chunkTokens int
	encoder     *tiktoken.Tiktoken
}

// NewChunker creates a chunker with the given token budget per chunk.
func NewChunker(chunkTokens int) *Chunker {
	if chunkTokens <= 0 {
		chunkTokens = 256
	}
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		encoder = nil
	}
	return &Chunker{chunkTokens: chunkTokens, encoder: encoder}
}

// CountTokens returns the token count of a text.
func (c *Chunker) CountTokens(text string) int {
	if c.encoder != nil {
		return len(c.encoder.Encode(text, nil, nil))
	}
	// Heuristic: ~0.75 words per token.
	return len(strings.Fields(text)) * 4 / 3
}

// Split breaks text into 1..N chunks, each within the token budget.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if c.CountTokens(text) <= c.chunkTokens {
		return []string{text}
	}

	words := strings.Fields(text)
	var chunks []string
	var current []string
	for _, word := range words {
		candidate := strings.Join(append(current, word), " ")
		if c.CountTokens(candidate) > c.chunkTokens && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = []string{word}
			continue
		}
		current = append(current, word)
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
