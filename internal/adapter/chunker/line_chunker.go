package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"finrag/internal/adapter/analyzer"
	"finrag/internal/domain"
)

const (
	DefaultMaxTokens = 512
	DefaultOverlap   = 50
)

// LineChunker packs whole lines into chunks of at most maxTokens, repeating
// roughly overlap tokens of trailing lines at the start of the next chunk.
// A single line longer than the budget becomes its own chunk.
type LineChunker struct {
	maxTokens int
	overlap   int
	tokenizer *analyzer.Tokenizer
}

func NewLineChunker(maxTokens, overlap int, tokenizer *analyzer.Tokenizer) *LineChunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlap < 0 || overlap >= maxTokens {
		overlap = 0
	}
	return &LineChunker{
		maxTokens: maxTokens,
		overlap:   overlap,
		tokenizer: tokenizer,
	}
}

// Chunk splits doc.Text. Every chunk inherits the document metadata plus its
// chunk_index. Blank-only documents produce no chunks.
func (c *LineChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}
	lines := strings.Split(doc.Text, "\n")

	var chunks []domain.Chunk
	startLine := 0

	for startLine < len(lines) {
		endLine := startLine
		currentTokens := 0
		var chunkText strings.Builder

		for endLine < len(lines) {
			lineText := lines[endLine]
			lineTokens := c.tokenizer.CountTokens(lineText)

			if currentTokens > 0 && currentTokens+lineTokens > c.maxTokens {
				break
			}

			if chunkText.Len() > 0 {
				chunkText.WriteString("\n")
			}
			chunkText.WriteString(lineText)
			currentTokens += lineTokens
			endLine++
		}

		if endLine == startLine {
			chunkText.WriteString(lines[endLine])
			endLine++
		}

		text := strings.TrimSpace(chunkText.String())
		if text != "" {
			index := len(chunks)
			chunks = append(chunks, domain.Chunk{
				ID:       generateChunkID(doc.ID, startLine, endLine),
				DocID:    doc.ID,
				Index:    index,
				Text:     text,
				Metadata: chunkMetadata(doc.Metadata, index),
			})
		}

		if endLine >= len(lines) {
			break
		}

		newStart := endLine - c.calculateOverlapLines(lines, startLine, endLine)
		if newStart <= startLine {
			newStart = startLine + 1
		}
		startLine = newStart
	}

	return chunks, nil
}

func (c *LineChunker) calculateOverlapLines(lines []string, start, end int) int {
	if c.overlap == 0 {
		return 0
	}

	overlapLines := 0
	tokens := 0

	for i := end - 1; i > start && tokens < c.overlap; i-- {
		tokens += c.tokenizer.CountTokens(lines[i])
		overlapLines++
	}

	return overlapLines
}

func chunkMetadata(docMeta map[string]string, index int) map[string]string {
	meta := make(map[string]string, len(docMeta)+1)
	for k, v := range docMeta {
		meta[k] = v
	}
	meta[domain.MetaChunkIndex] = strconv.Itoa(index)
	return meta
}

func generateChunkID(docID string, startLine, endLine int) string {
	data := fmt.Sprintf("%s:%d-%d", docID, startLine, endLine)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
