package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"finrag/internal/domain"
	"finrag/internal/usecase"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Interactive question loop over the indexed reports",
	Long: `Load the configured index (ingesting the reports directory if it does not
exist yet) and answer questions typed at the prompt. Type "exit" to quit.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	a, err := buildApp(ctx, cfg, needs{parser: true, judge: cfg.Query.Rerank, answer: true})
	if err != nil {
		return err
	}
	defer a.Close()

	_, found, err := a.pipeline.LoadExistingIndex(ctx, cfg.Index.Name)
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("No index %q yet, ingesting %s...\n", cfg.Index.Name, cfg.ReportsDir())
		if _, err := a.pipeline.IngestAndIndex(ctx, []string{cfg.ReportsDir()}, cfg.Index.Name); err != nil {
			if errors.Is(err, domain.ErrNoValidInputs) {
				return fmt.Errorf("put PDF reports into %s and run again: %w", cfg.ReportsDir(), err)
			}
			return err
		}
	}

	opts := usecase.QueryOptions{
		TopK:           cfg.Query.TopK,
		Rerank:         cfg.Query.Rerank,
		GenerateAnswer: true,
		AnswerTopK:     cfg.Query.AnswerTopK,
	}

	prompt := color.New(color.FgCyan, color.Bold).Sprint("question> ")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		q := strings.TrimSpace(scanner.Text())
		switch q {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		res, err := a.pipeline.Query(ctx, q, opts)
		if err != nil {
			if !errors.Is(err, domain.ErrAnswerGenerationFailed) {
				return err
			}
			fmt.Println(color.YellowString("Answer generation failed: %v", err))
		}
		printResult(os.Stdout, res)
	}
}
