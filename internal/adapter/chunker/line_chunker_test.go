package chunker

import (
	"strings"
	"testing"

	"finrag/internal/adapter/analyzer"
	"finrag/internal/domain"
)

func testDoc(text string) domain.Document {
	return domain.Document{
		ID:   "doc1",
		Text: text,
		Metadata: map[string]string{
			domain.MetaReportName: "acme-2023.pdf",
			domain.MetaReportID:   "report_0",
			domain.MetaFilePath:   "/data/reports/acme-2023.pdf",
			domain.MetaSource:     "/data/parsed/acme-2023.md",
		},
	}
}

func TestLineChunkerBasic(t *testing.T) {
	chunker := NewLineChunker(50, 10, analyzer.NewTokenizer())

	content := `# ACME Corp Annual Report 2023

## Highlights

Revenue grew 10% year over year to $1.2 billion.
Operating costs fell 5% after the restructuring.

## Outlook

Management expects continued growth in the services segment.`

	chunks, err := chunker.Chunk(testDoc(content))
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}

	for i, chunk := range chunks {
		if chunk.ID == "" {
			t.Error("chunk has empty ID")
		}
		if chunk.DocID != "doc1" {
			t.Errorf("expected DocID 'doc1', got '%s'", chunk.DocID)
		}
		if chunk.Index != i {
			t.Errorf("expected Index %d, got %d", i, chunk.Index)
		}
		if chunk.Text == "" {
			t.Error("chunk has empty text")
		}
		if chunk.Metadata[domain.MetaReportName] != "acme-2023.pdf" {
			t.Errorf("report_name not inherited: %v", chunk.Metadata)
		}
		if chunk.Metadata[domain.MetaSource] != "/data/parsed/acme-2023.md" {
			t.Errorf("source not inherited: %v", chunk.Metadata)
		}
	}
}

func TestLineChunkerMetadataIsCopied(t *testing.T) {
	chunker := NewLineChunker(5, 0, analyzer.NewTokenizer())
	doc := testDoc("Line one here\nLine two here\nLine three here")

	chunks, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	chunks[0].Metadata["report_name"] = "changed"
	if doc.Metadata[domain.MetaReportName] != "acme-2023.pdf" {
		t.Error("chunk metadata aliases the document metadata")
	}
	if chunks[1].Metadata[domain.MetaReportName] != "acme-2023.pdf" {
		t.Error("chunks share one metadata map")
	}
	if chunks[1].Metadata[domain.MetaChunkIndex] != "1" {
		t.Errorf("expected chunk_index 1, got %q", chunks[1].Metadata[domain.MetaChunkIndex])
	}
}

func TestLineChunkerBoundaries(t *testing.T) {
	chunker := NewLineChunker(10, 2, analyzer.NewTokenizer())

	lines := []string{
		"Line one",
		"Line two",
		"Line three",
		"Line four",
		"Line five",
		"Line six",
		"Line seven",
		"Line eight",
	}

	chunks, err := chunker.Chunk(testDoc(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatal(err)
	}

	for _, line := range lines {
		found := false
		for _, chunk := range chunks {
			if strings.Contains(chunk.Text, line) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("line '%s' not found in any chunk", line)
		}
	}
}

func TestLineChunkerOverlap(t *testing.T) {
	chunker := NewLineChunker(6, 2, analyzer.NewTokenizer())

	chunks, err := chunker.Chunk(testDoc("Line one\nLine two\nLine three\nLine four\nLine five"))
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}

	for i := 0; i < len(chunks)-1; i++ {
		prevLines := strings.Split(chunks[i].Text, "\n")
		last := prevLines[len(prevLines)-1]
		if !strings.HasPrefix(chunks[i+1].Text, last) {
			t.Errorf("chunk %d does not start with the last line of chunk %d (%q)", i+1, i, last)
		}
	}
}

func TestLineChunkerEmptyContent(t *testing.T) {
	chunker := NewLineChunker(50, 10, analyzer.NewTokenizer())

	for _, content := range []string{"", "\n\n   \n"} {
		chunks, err := chunker.Chunk(testDoc(content))
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != 0 {
			t.Errorf("expected 0 chunks for blank content %q, got %d", content, len(chunks))
		}
	}
}

func TestLineChunkerSingleLine(t *testing.T) {
	chunker := NewLineChunker(50, 10, analyzer.NewTokenizer())

	content := "Revenue grew 10%."

	chunks, err := chunker.Chunk(testDoc(content))
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for single line, got %d", len(chunks))
	}
	if chunks[0].Text != content {
		t.Errorf("expected chunk text to match content")
	}
	if chunks[0].Metadata[domain.MetaChunkIndex] != "0" {
		t.Errorf("expected chunk_index 0, got %q", chunks[0].Metadata[domain.MetaChunkIndex])
	}
}

func TestLineChunkerLongLine(t *testing.T) {
	chunker := NewLineChunker(5, 0, analyzer.NewTokenizer())

	content := "This is a very long line with many many words that will exceed the token limit"

	chunks, err := chunker.Chunk(testDoc(content))
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 1 {
		t.Fatalf("expected exactly one chunk for an oversized line, got %d", len(chunks))
	}
	if chunks[0].Text != content {
		t.Error("chunk should contain the full oversized line")
	}
}

func TestChunkIDUniqueness(t *testing.T) {
	chunker := NewLineChunker(10, 2, analyzer.NewTokenizer())

	chunks, err := chunker.Chunk(testDoc("Line1\nLine2\nLine3\nLine4\nLine5\nLine6\nLine7\nLine8"))
	if err != nil {
		t.Fatal(err)
	}

	ids := make(map[string]bool)
	for _, chunk := range chunks {
		if ids[chunk.ID] {
			t.Errorf("duplicate chunk ID: %s", chunk.ID)
		}
		ids[chunk.ID] = true
	}
}
