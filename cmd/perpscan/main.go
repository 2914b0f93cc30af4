package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/robfig/cron/v3"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"perpscan/internal/config"
	"perpscan/internal/exchange"
	"perpscan/internal/recorder"
	"perpscan/internal/report"
	"perpscan/internal/screener"
	"perpscan/internal/universe"
	"perpscan/pkg/model"
)

var (
	cfgFile    string
	symbolList string
	topN       int
	window     int
	workers    int
	format     string
	outDir     string
	dbPath     string
	cronExpr   string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "perpscan",
		Short: "Multi-timeframe screener for USDT perpetual futures",
		Long: `Perpscan screens high-volume USDT perpetual swaps against a
multi-timeframe technical rule set. A symbol passes only when the 1h trend,
15m momentum and 5m entry conditions all hold simultaneously.

Examples:
  perpscan                                  scan top-volume perpetuals once
  perpscan --symbols BTC-USDT-SWAP,ETH-USDT-SWAP
  perpscan --cron "*/15 * * * *" --db runs.db`,
		RunE: run,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.Flags().StringVar(&symbolList, "symbols", "", "comma-separated instrument IDs (default: top-volume universe)")
	rootCmd.Flags().IntVar(&topN, "top", 0, "universe size by 24h quote volume")
	rootCmd.Flags().IntVar(&window, "window", 0, "visible bars per timeframe")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "number of parallel workers")
	rootCmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	rootCmd.Flags().StringVar(&outDir, "out-dir", "", "directory for the CSV of matched symbols")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "sqlite database for run history")
	rootCmd.Flags().StringVar(&cronExpr, "cron", "", "cron expression for repeated runs (empty: run once)")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "show all verdicts, not only matches")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override file values when explicitly set.
	if topN > 0 {
		cfg.Screener.Top = topN
	}
	if window > 0 {
		cfg.Screener.Window = window
	}
	if workers > 0 {
		cfg.Screener.Workers = workers
	}
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if dbPath != "" {
		cfg.Output.Database = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var rec recorder.Recorder = recorder.Noop{}
	if cfg.Output.Database != "" {
		sqlRec, err := recorder.NewSQLiteRecorder(cfg.Output.Database)
		if err != nil {
			return fmt.Errorf("opening recorder: %w", err)
		}
		rec = sqlRec
	}
	defer rec.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted. Stopping...")
		cancel()
	}()

	source := exchange.NewOKX(cfg.Exchange.BaseURL, cfg.Exchange.RateLimit)

	if cronExpr != "" {
		return runScheduled(ctx, source, cfg, rec)
	}
	return runOnce(ctx, source, cfg, rec)
}

// runScheduled repeats the screening run on a cron schedule until
// interrupted. The first run fires immediately.
func runScheduled(ctx context.Context, source *exchange.OKX, cfg *config.Config, rec recorder.Recorder) error {
	if err := runOnce(ctx, source, cfg, rec); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[ERROR] screening run: %v", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(cronExpr, func() {
		if err := runOnce(ctx, source, cfg, rec); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[ERROR] screening run: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("registering cron schedule %q: %w", cronExpr, err)
	}

	c.Start()
	log.Printf("[INFO] scheduler started: %s", cronExpr)
	<-ctx.Done()
	c.Stop()
	log.Println("[INFO] scheduler stopped")
	return nil
}

func runOnce(ctx context.Context, source *exchange.OKX, cfg *config.Config, rec recorder.Recorder) error {
	startedAt := time.Now()

	symbols, err := loadSymbols(ctx, source, cfg)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols to screen")
	}

	fmt.Printf("Screening %d perpetuals on 1h/15m/5m...\n\n", len(symbols))

	s := screener.New(source, cfg.Screener.Window, cfg.Screener.Workers, cfg.Screener.Timeout)

	bar := progressbar.NewOptions(len(symbols),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Screening"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	s.SetProgressCallback(func(screened, total int) {
		bar.Set(screened)
	})

	result, err := s.ScreenAll(ctx, symbols)
	bar.Finish()
	fmt.Println()
	if err != nil && len(result.Verdicts) == 0 {
		return fmt.Errorf("screening: %w", err)
	}
	if err != nil {
		fmt.Printf("Screening interrupted, %d of %d symbols completed.\n",
			len(result.Verdicts), result.TotalScreened)
	}

	if recordErr := rec.RecordRun(&recorder.Run{
		ID:        uuid.NewString(),
		StartedAt: startedAt,
		Screened:  len(result.Verdicts),
		Matched:   result.MatchedCount,
		Verdicts:  result.Verdicts,
	}); recordErr != nil {
		log.Printf("[ERROR] recording run: %v", recordErr)
	}

	if format == "json" {
		if err := outputJSON(result); err != nil {
			return err
		}
	} else {
		outputTable(result)
	}

	matches := result.Matches()
	if len(matches) > 0 {
		path := filepath.Join(cfg.Output.Dir, report.Filename(startedAt))
		if err := report.WriteCSV(path, matches, startedAt); err != nil {
			return fmt.Errorf("saving results: %w", err)
		}
		fmt.Printf("\nResults saved to %s\n", path)
	}
	return nil
}

func loadSymbols(ctx context.Context, source *exchange.OKX, cfg *config.Config) ([]string, error) {
	if symbolList != "" {
		var symbols []string
		for _, s := range strings.Split(symbolList, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
		return symbols, nil
	}

	fmt.Printf("Loading top %d USDT perpetuals by volume...\n", cfg.Screener.Top)
	loader := universe.NewLoader(source)
	candidates, err := loader.Load(ctx, cfg.Screener.Top)
	if err != nil {
		return nil, fmt.Errorf("loading universe: %w", err)
	}
	return universe.Symbols(candidates), nil
}

func outputTable(result *model.ScreenResult) {
	matches := result.Matches()
	if len(matches) == 0 {
		fmt.Println("No symbols satisfy all timeframe conditions.")
	} else {
		fmt.Printf("Found %d symbols satisfying all conditions:\n\n", len(matches))
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Symbol", "1h", "15m", "5m", "Overall", "Note"}),
	)

	shown := 0
	for _, v := range result.Verdicts {
		if !v.Passed && !verbose {
			continue
		}
		table.Append([]string{
			v.Symbol,
			mark(v.Timeframes[model.Timeframe1h]),
			mark(v.Timeframes[model.Timeframe15m]),
			mark(v.Timeframes[model.Timeframe5m]),
			mark(model.TimeframeResult{Satisfied: v.Passed}),
			note(v),
		})
		shown++
	}
	if shown > 0 {
		table.Render()
	}

	fmt.Printf("\nScreened %d symbols in %s\n",
		result.TotalScreened, result.ScreenTime.Round(time.Second))
}

func mark(r model.TimeframeResult) string {
	if r.Satisfied {
		return "PASS"
	}
	if r.DataError != "" {
		return "NO DATA"
	}
	return "fail"
}

func note(v model.Verdict) string {
	for _, tf := range model.Timeframes {
		if e := v.Timeframes[tf].DataError; e != "" {
			s := fmt.Sprintf("%s: %s", tf, e)
			if len(s) > 45 {
				s = s[:45] + "..."
			}
			return s
		}
	}
	return ""
}

func outputJSON(result *model.ScreenResult) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
