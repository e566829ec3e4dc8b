// Package chunker splits documents into overlapping token-bounded chunks.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/omoide/internal/models"
)

// ErrOverlapTooLarge is returned when the configured overlap does not leave
// room for new content in each chunk.
var ErrOverlapTooLarge = errors.New("chunk overlap must be smaller than chunk size")

// Chunker splits text into chunks of at most maxTokens tokens, seeding each
// chunk after the first with the trailing overlapTokens tokens of its
// predecessor. Chunk boundaries fall on paragraph breaks when possible; a
// paragraph that cannot fit a chunk is hard-split at token boundaries.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// New creates a chunker. overlapTokens must be non-negative and strictly
// smaller than maxTokens.
func New(maxTokens, overlapTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", maxTokens)
	}
	if overlapTokens < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d", overlapTokens)
	}
	if overlapTokens >= maxTokens {
		return nil, fmt.Errorf("%w: overlap %d, size %d", ErrOverlapTooLarge, overlapTokens, maxTokens)
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

// Chunk splits text into ordered chunks for documentID. An empty or
// whitespace-only document yields no chunks. Tokens are whitespace-separated
// fields; chunk text joins them with single spaces, so token counting is
// deterministic across runs.
func (c *Chunker) Chunk(documentID, text string) []*models.Chunk {
	paras := paragraphs(text)
	if len(paras) == 0 {
		return nil
	}

	var chunks []*models.Chunk
	var cur []string
	seedLen := 0

	// emit closes the current chunk and reseeds the buffer with its
	// trailing overlapTokens tokens.
	emit := func() {
		chunks = append(chunks, &models.Chunk{
			DocumentID: documentID,
			ChunkIndex: len(chunks),
			Text:       strings.Join(cur, " "),
			TokenCount: len(cur),
		})
		seed := cur
		if len(seed) > c.overlapTokens {
			seed = seed[len(seed)-c.overlapTokens:]
		}
		cur = append([]string(nil), seed...)
		seedLen = len(cur)
	}

	for _, p := range paras {
		if len(cur)+len(p) <= c.maxTokens {
			cur = append(cur, p...)
			continue
		}
		if len(cur) > seedLen {
			emit()
		}
		if len(cur)+len(p) <= c.maxTokens {
			cur = append(cur, p...)
			continue
		}
		// Paragraph does not fit even a freshly seeded chunk: hard-split
		// at token boundaries, keeping the overlap contract intact.
		rest := p
		for len(cur)+len(rest) > c.maxTokens {
			take := c.maxTokens - len(cur)
			cur = append(cur, rest[:take]...)
			rest = rest[take:]
			emit()
		}
		cur = append(cur, rest...)
	}
	if len(cur) > seedLen {
		emit()
	}
	return chunks
}

// CountTokens returns the number of whitespace-separated tokens in text,
// using the same rule Chunk uses for budgets.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// paragraphs splits text on blank-line boundaries and tokenizes each
// paragraph into whitespace-separated fields. Empty paragraphs are dropped.
func paragraphs(text string) [][]string {
	var paras [][]string
	var buf []string
	flush := func() {
		if len(buf) > 0 {
			paras = append(paras, buf)
			buf = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		buf = append(buf, strings.Fields(line)...)
	}
	flush()
	return paras
}
