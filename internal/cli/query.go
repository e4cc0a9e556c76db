package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"finrag/internal/domain"
	"finrag/internal/usecase"
)

var (
	queryText      string
	queryTopK      int
	queryAnswerTop int
	queryIndexName string
	queryJSON      bool
	queryNoRerank  bool
	queryAnswer    bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search the indexed reports",
	Long: `Retrieve the passages most relevant to a question, rerank them with the
judge model and optionally synthesize an answer.

Examples:
  finrag query -q "revenue growth in 2023"
  finrag query -q "operating margin" --no-rerank --top-k 5 --json
  finrag query -q "how did costs develop?" --answer`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "question to ask (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of passages (default from config)")
	queryCmd.Flags().IntVar(&queryAnswerTop, "answer-top-k", 0, "passages given to the answer model (default from config)")
	queryCmd.Flags().StringVar(&queryIndexName, "index", "", "index name (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryNoRerank, "no-rerank", false, "skip LLM reranking")
	queryCmd.Flags().BoolVar(&queryAnswer, "answer", false, "generate an answer from the passages")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	opts := usecase.QueryOptions{
		TopK:           cfg.Query.TopK,
		Rerank:         cfg.Query.Rerank && !queryNoRerank,
		GenerateAnswer: queryAnswer,
		AnswerTopK:     cfg.Query.AnswerTopK,
	}
	if queryTopK > 0 {
		opts.TopK = queryTopK
	}
	if queryAnswerTop > 0 {
		opts.AnswerTopK = queryAnswerTop
	}
	name := queryIndexName
	if name == "" {
		name = cfg.Index.Name
	}

	a, err := buildApp(ctx, cfg, needs{judge: opts.Rerank, answer: opts.GenerateAnswer})
	if err != nil {
		return err
	}
	defer a.Close()

	if _, found, err := a.pipeline.LoadExistingIndex(ctx, name); err != nil {
		return err
	} else if !found {
		return fmt.Errorf("no index named %q found. Run 'finrag ingest' first", name)
	}

	res, err := a.pipeline.Query(ctx, queryText, opts)
	if err != nil && !errors.Is(err, domain.ErrAnswerGenerationFailed) {
		return err
	}

	if queryJSON {
		if jerr := writeJSON(os.Stdout, res); jerr != nil {
			return jerr
		}
	} else {
		printResult(os.Stdout, res)
	}
	return err
}

func writeJSON(w io.Writer, res domain.QueryResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func printResult(w io.Writer, res domain.QueryResult) {
	chunks := res.Chunks
	if res.Answer != nil {
		fmt.Fprintf(w, "%s\n%s\n\n", color.New(color.Bold).Sprint("Answer:"), res.Answer.Answer)
		fmt.Fprintln(w, color.New(color.Bold).Sprint("Sources:"))
		chunks = res.Answer.Sources
	}

	if len(chunks) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	for i, c := range chunks {
		fmt.Fprintf(w, "%s %s %s\n",
			color.CyanString("[%d]", i+1),
			color.GreenString(c.ReportName()),
			color.HiBlackString("(score: %.3f)", c.Score))
		fmt.Fprintln(w, indent(truncate(c.Text, 400), "    "))
		fmt.Fprintln(w)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
