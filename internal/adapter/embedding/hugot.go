package embedding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
)

// HugotEmbedder runs a sentence-transformer model locally through hugot.
type HugotEmbedder struct {
	mu        sync.Mutex
	session   *hugot.Session
	run       func(texts []string) ([][]float32, error)
	model     string
	dimension int
	batchSize int
}

type HugotConfig struct {
	Model     string
	ModelDir  string
	Dimension int
	BatchSize int
}

// PrepareModel downloads the model into dir unless it is already there and
// returns its local path.
func PrepareModel(modelName, dir string) (string, error) {
	modelPath := filepath.Join(dir, strings.ReplaceAll(modelName, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat model directory: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	downloadOptions := hugot.NewDownloadOptions()
	downloadOptions.OnnxFilePath = "onnx/model.onnx"
	downloadedPath, err := hugot.DownloadModel(modelName, dir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return downloadedPath, nil
}

func NewHugotEmbedder(cfg HugotConfig) (*HugotEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = "./models"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 384
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	modelPath, err := PrepareModel(cfg.Model, cfg.ModelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "finrag-embedder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create embedding pipeline: %w", err)
	}

	run := func(texts []string) ([][]float32, error) {
		result, err := pipeline.RunPipeline(texts)
		if err != nil {
			return nil, err
		}
		return result.Embeddings, nil
	}

	return &HugotEmbedder{
		session:   session,
		run:       run,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
	}, nil
}

// Embed runs batches sequentially; the pipeline is not safe for concurrent use.
func (e *HugotEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedInBatches(ctx, e.model, texts, e.batchSize, 1, e.embedBatch)
}

func (e *HugotEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *HugotEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	embeddings, err := e.run(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("no embedding generated for %d of %d inputs", len(texts)-len(embeddings), len(texts))
	}
	return embeddings, nil
}

func (e *HugotEmbedder) Dimension() int {
	return e.dimension
}

func (e *HugotEmbedder) ModelName() string {
	return e.model
}

func (e *HugotEmbedder) Close() error {
	return e.session.Destroy()
}
