package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"finrag/internal/adapter/fs"
)

var ingestIndexName string

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Parse PDF reports and build the vector index",
	Long: `Parse PDF reports, chunk and embed them, and build a named vector index.
Paths may be files, directories (searched recursively) or glob patterns.
Without arguments the configured reports directory is used.

Examples:
  finrag ingest                               # Index data/reports
  finrag ingest annual-2023.pdf q1-2024.pdf   # Index specific reports
  finrag ingest "archive/**/*.pdf" --index archive`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestIndexName, "index", "", "index name (default from config)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	paths := args
	if len(paths) == 0 {
		paths = []string{cfg.ReportsDir()}
	}
	name := ingestIndexName
	if name == "" {
		name = cfg.Index.Name
	}

	reports, err := fs.ResolveReports(paths)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, needs{parser: true})
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Ingesting %d report(s) into %q...\n", len(reports), name)

	var barMu sync.Mutex
	bar := progressbar.NewOptions(len(reports),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Parsing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
	a.pipeline.Indexer().OnParsed = func(string) {
		barMu.Lock()
		defer barMu.Unlock()
		_ = bar.Add(1)
	}

	start := time.Now()
	idx, err := a.pipeline.IngestAndIndex(ctx, paths, name)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("\nIngestion complete:\n")
	fmt.Printf("  Reports: %d\n", len(reports))
	fmt.Printf("  Index:   %s\n", idx.Name())
	fmt.Printf("  Backend: %s\n", cfg.Index.Backend)
	fmt.Printf("  Took:    %s\n", formatDuration(time.Since(start)))
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
