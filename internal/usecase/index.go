package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"finrag/internal/adapter/fs"
	"finrag/internal/domain"
	"finrag/internal/metrics"
	"finrag/internal/port"
)

const DefaultParseWorkers = 4

// DocumentCache remembers parsed reports between runs.
type DocumentCache interface {
	GetDocument(ctx context.Context, id string) (domain.DocumentRecord, bool)
	PutDocument(ctx context.Context, rec domain.DocumentRecord)
}

// Indexer turns report files into a vector index.
type Indexer struct {
	parser  port.DocumentParser
	chunker port.Chunker
	builder port.IndexBuilder
	docs    DocumentCache
	workers int
	logger  *slog.Logger

	// OnParsed, when set, is called once per report after it has been parsed
	// or found in the document cache. Calls may come from several goroutines.
	OnParsed func(report string)
}

// NewIndexer wires the ingestion steps. docs may be nil.
func NewIndexer(parser port.DocumentParser, chunker port.Chunker, builder port.IndexBuilder, docs DocumentCache, workers int, logger *slog.Logger) *Indexer {
	if workers <= 0 {
		workers = DefaultParseWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		parser:  parser,
		chunker: chunker,
		builder: builder,
		docs:    docs,
		workers: workers,
		logger:  logger,
	}
}

// Builder returns the index builder used by Index.
func (ix *Indexer) Builder() port.IndexBuilder {
	return ix.builder
}

// Index parses reports, chunks them and builds the index called name. Reports
// are tagged report_0, report_1, ... in the order given.
func (ix *Indexer) Index(ctx context.Context, reports []fs.ReportFile, name string) (port.VectorIndex, error) {
	if len(reports) == 0 {
		return nil, domain.ErrNoValidInputs
	}

	records := make([]domain.DocumentRecord, len(reports))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i, r := range reports {
		g.Go(func() error {
			rec, err := ix.parse(gctx, r, fmt.Sprintf("report_%d", i))
			if err != nil {
				return err
			}
			records[i] = rec
			if ix.OnParsed != nil {
				ix.OnParsed(r.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var chunks []domain.Chunk
	for _, rec := range records {
		doc, err := loadDocument(rec)
		if err != nil {
			return nil, err
		}
		docChunks, err := ix.chunker.Chunk(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk %s: %w", rec.ReportName, err)
		}
		chunks = append(chunks, docChunks...)
	}

	ix.logger.Info("building index", "index", name, "reports", len(records), "chunks", len(chunks))

	idx, err := ix.builder.Build(ctx, name, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to build index %s: %w", name, err)
	}
	return idx, nil
}

func (ix *Indexer) parse(ctx context.Context, r fs.ReportFile, reportID string) (domain.DocumentRecord, error) {
	id := ContentID(r)

	if ix.docs != nil {
		if rec, ok := ix.docs.GetDocument(ctx, id); ok && fileExists(rec.ParsedPath) {
			metrics.ParsedReports.WithLabelValues("cached").Inc()
			ix.logger.Debug("reusing parsed report", "report", r.Name, "parsed", rec.ParsedPath)
			rec.ReportName = r.Name
			rec.ReportID = reportID
			rec.FilePath = r.Path
			return rec, nil
		}
	}

	parsed, err := ix.parser.Parse(ctx, r.Path)
	if err != nil {
		metrics.ParsedReports.WithLabelValues("error").Inc()
		return domain.DocumentRecord{}, fmt.Errorf("failed to parse %s: %w", r.Name, err)
	}
	metrics.ParsedReports.WithLabelValues("parsed").Inc()
	ix.logger.Info("parsed report", "report", r.Name, "parsed", parsed)

	rec := domain.DocumentRecord{
		ID:         id,
		ReportName: r.Name,
		ReportID:   reportID,
		FilePath:   r.Path,
		ParsedPath: parsed,
		ParsedAt:   time.Now().UTC(),
	}
	if ix.docs != nil {
		ix.docs.PutDocument(ctx, rec)
	}
	return rec, nil
}

func loadDocument(rec domain.DocumentRecord) (domain.Document, error) {
	text, err := os.ReadFile(rec.ParsedPath)
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to read parsed report %s: %w", rec.ParsedPath, err)
	}
	return domain.Document{
		ID:   rec.ID,
		Text: string(text),
		Metadata: map[string]string{
			domain.MetaReportName: rec.ReportName,
			domain.MetaReportID:   rec.ReportID,
			domain.MetaFilePath:   rec.FilePath,
			domain.MetaSource:     rec.ParsedPath,
		},
	}, nil
}

// ContentID identifies a report by path, size and modification time, so an
// edited file gets a new id.
func ContentID(r fs.ReportFile) string {
	h := sha256.New()
	h.Write([]byte(r.Path))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(r.Size, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(r.ModTime, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
