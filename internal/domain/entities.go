package domain

import "time"

// Metadata keys attached to every document and carried into each chunk.
const (
	MetaReportName = "report_name"
	MetaReportID   = "report_id"
	MetaFilePath   = "file_path"
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
)

// Document is the parsed text of one report.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Chunk is a unit of a document that gets embedded and indexed.
type Chunk struct {
	ID       string
	DocID    string
	Index    int
	Text     string
	Metadata map[string]string
}

// RetrievedChunk is the canonical retrieval result. Every index backend
// normalizes its hits into this shape.
type RetrievedChunk struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// ReportName returns the source report of the chunk, or "Unknown".
func (c RetrievedChunk) ReportName() string {
	if name, ok := c.Metadata[MetaReportName]; ok && name != "" {
		return name
	}
	return "Unknown"
}

// ScoredChunk is a chunk with a judge-assigned relevance in [0,10].
type ScoredChunk struct {
	Chunk     RetrievedChunk `json:"chunk"`
	Relevance float64        `json:"relevance"`
}

// AnswerResult is a synthesized answer with the chunks that back it.
type AnswerResult struct {
	Answer  string           `json:"answer"`
	Sources []RetrievedChunk `json:"sources"`
}

// QueryResult holds either plain chunks or an answer.
type QueryResult struct {
	Chunks []RetrievedChunk `json:"chunks,omitempty"`
	Answer *AnswerResult    `json:"answer,omitempty"`
}

// DocumentRecord is what the document cache remembers about a parsed report.
type DocumentRecord struct {
	ID         string    `json:"id"`
	ReportName string    `json:"report_name"`
	ReportID   string    `json:"report_id"`
	FilePath   string    `json:"file_path"`
	ParsedPath string    `json:"parsed_path"`
	ParsedAt   time.Time `json:"parsed_at"`
}
