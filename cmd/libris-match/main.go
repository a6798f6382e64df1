// Command libris-match runs a batch of bibliographic query records
// against a prebuilt reference corpus and reports a match outcome for
// each one (spec.md §6).
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/nblibris/libris-match/internal/diagnostics"
	"github.com/nblibris/libris-match/internal/engine"
	"github.com/nblibris/libris-match/internal/logging"
	"github.com/nblibris/libris-match/pkg/archive"
	"github.com/nblibris/libris-match/pkg/report"
)

var (
	datasetDir   string
	sourcePrefix string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "libris-match",
	Short: "Match bibliographic query records against a reference corpus",
	Long:  `libris-match scores batches of source bibliographic records against a prebuilt vocabulary and corpus, classifying each as a unique match, multiple candidate matches, or no match.`,
}

var runCmd = &cobra.Command{
	Use:   "run <archive.zip>",
	Short: "Score every record in a query archive against the corpus",
	Args:  cobra.ExactArgs(1),
	RunE:  runMatch,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&datasetDir, "dataset-dir", ".", "Directory holding the vocabulary and corpus files")
	rootCmd.PersistentFlags().StringVar(&sourcePrefix, "source-prefix", "libris", "Filename prefix of the vocab/vectors/source-data files")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	runCmd.Flags().String("out", "", "Output NDJSON report path (default stdout)")
	runCmd.Flags().String("weights-file", "", "JSON field-weight overrides (default built-in weights)")
	runCmd.Flags().Bool("add-author-to-title", false, "Fold the author field into the title field before encoding")
	runCmd.Flags().Float64("similarity-threshold", 0.5, "Minimum raw cosine similarity to keep a candidate")
	runCmd.Flags().Float64("z-threshold", 3.0, "Minimum z-score for a candidate to count as an outlier")
	runCmd.Flags().Float64("min-single-similarity", 0.7, "Minimum adjusted score required for a UniqueMatch verdict")
	runCmd.Flags().Float64("min-multiple-similarity", 0.7, "Minimum top adjusted score required for a MultipleMatches verdict")
	runCmd.Flags().Bool("force-year", false, "Apply the year policy: drop candidates with a null query or reference year or a year difference beyond year-tolerance")
	runCmd.Flags().Int("year-tolerance", 0, "Allowed absolute difference between query and reference year")
	runCmd.Flags().Float64("year-tolerance-penalty", 0.25, "Score penalty per year of difference within year-tolerance")
	runCmd.Flags().Int("overlap-adjustment", 1, "K parameter for the token-overlap score adjustment")
	runCmd.Flags().Bool("jaro-winkler-adjustment", false, "Apply a Jaro-Winkler title-similarity adjustment")
	runCmd.Flags().String("exclude-file", "", "Reference IDs to exclude from matching, one per line")
	runCmd.Flags().String("input-exclude-file", "", "Second reference-ID exclusion list, merged with exclude-file")
	runCmd.Flags().Int("top-k", 10, "Maximum candidates reported per query")
	runCmd.Flags().Float64("cluster-epsilon", 0.01, "Fractional tolerance for grouping near-tied top candidates")
	runCmd.Flags().Int("json-schema-version", 1, "Query archive JSON schema version (1: nested editions, 2: flattened)")
	runCmd.Flags().String("diagnostics-db", "", "SQLite path to record per-query diagnostics (default disabled)")

	rootCmd.AddCommand(runCmd)
}

func buildConfig(cmd *cobra.Command) (engine.Config, error) {
	cfg := engine.DefaultConfig(datasetDir)
	cfg.SourcePrefix = sourcePrefix

	var err error
	get := func(name string, dst *float64) {
		if err == nil {
			*dst, err = cmd.Flags().GetFloat64(name)
		}
	}
	getInt := func(name string, dst *int) {
		if err == nil {
			*dst, err = cmd.Flags().GetInt(name)
		}
	}
	getStr := func(name string, dst *string) {
		if err == nil {
			*dst, err = cmd.Flags().GetString(name)
		}
	}
	getBool := func(name string, dst *bool) {
		if err == nil {
			*dst, err = cmd.Flags().GetBool(name)
		}
	}

	getStr("weights-file", &cfg.WeightsFile)
	getBool("add-author-to-title", &cfg.AddAuthorToTitle)
	get("similarity-threshold", &cfg.SimilarityThreshold)
	get("z-threshold", &cfg.ZThreshold)
	get("min-single-similarity", &cfg.MinSingleSimilarity)
	get("min-multiple-similarity", &cfg.MinMultipleSimilarity)
	getBool("force-year", &cfg.ForceYear)
	getInt("year-tolerance", &cfg.YearTolerance)
	get("year-tolerance-penalty", &cfg.YearTolerancePenalty)
	getInt("overlap-adjustment", &cfg.OverlapAdjustment)
	getBool("jaro-winkler-adjustment", &cfg.JaroWinklerAdjustment)
	getStr("exclude-file", &cfg.ExcludeFile)
	getStr("input-exclude-file", &cfg.InputExcludeFile)
	getInt("top-k", &cfg.TopK)
	get("cluster-epsilon", &cfg.ClusterEpsilon)
	getInt("json-schema-version", &cfg.JSONSchemaVersion)

	return cfg, err
}

func runMatch(cmd *cobra.Command, args []string) error {
	archivePath := args[0]

	cfg, err := buildConfig(cmd)
	if err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	minLevel := logging.LevelInfo
	if verbose {
		minLevel = logging.LevelDebug
	}
	logger := logging.NewStd(minLevel)

	ctx := context.Background()

	diagPath, _ := cmd.Flags().GetString("diagnostics-db")
	var sink *diagnostics.Sink
	if diagPath != "" {
		sink, err = diagnostics.Open(ctx, diagPath)
		if err != nil {
			return fmt.Errorf("open diagnostics db: %w", err)
		}
		defer sink.Close()
		logger.Info("diagnostics enabled", "path", diagPath, "runId", sink.RunID())
	}

	eng, err := engine.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer eng.Close()
	if sink != nil {
		eng.SetDiagnostics(sink)
	}

	var reader archive.ArchiveReader = archive.NewReader(cfg.JSONSchemaVersion, archivePath)
	records, err := reader.Records(ctx)
	if err != nil {
		return fmt.Errorf("read query archive: %w", err)
	}

	out := os.Stdout
	if outPath, _ := cmd.Flags().GetString("out"); outPath != "" {
		out, err = os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
	}
	var writer report.ReportWriter = report.NewWriter(out)
	defer writer.Close()

	queries := make(chan engine.QueryRecord, 64)
	go func() {
		defer close(queries)
		var seq uint64
		for r := range records {
			queries <- engine.QueryRecord{
				Seq:        seq,
				SourceFile: r.SourceFile,
				Edition:    r.Edition,
				Title:      r.Title,
				Author:     r.Author,
				Place:      r.Place,
				Year:       r.Year,
			}
			seq++
		}
	}()

	rows := make(chan engine.OutcomeRow, 64)
	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.RunBatch(ctx, queries, rows)
	}()

	drainErr := make(chan error, 1)
	go func() {
		drainErr <- drainRows(ctx, writer, rows)
	}()

	batchErr := <-runErr
	close(rows)
	writeErr := <-drainErr

	if readErr, ok := reader.(interface{ Err() error }); ok {
		if err := readErr.Err(); err != nil {
			return fmt.Errorf("read query archive: %w", err)
		}
	}
	if batchErr != nil {
		return fmt.Errorf("run batch: %w", batchErr)
	}
	if writeErr != nil {
		return fmt.Errorf("write report: %w", writeErr)
	}

	logger.Info("batch complete")
	return nil
}

// drainRows writes every row from rows to w, stopping at the first write
// error or when ctx is cancelled.
func drainRows(ctx context.Context, w report.ReportWriter, rows <-chan engine.OutcomeRow) error {
	for {
		select {
		case row, ok := <-rows:
			if !ok {
				return nil
			}
			if err := w.WriteRow(ctx, row); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
