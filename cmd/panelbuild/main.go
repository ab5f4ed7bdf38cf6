// Command panelbuild runs the retail point-of-sale ingestion pipeline:
// it loads every configured retailer's weekly extract, derives the
// elasticity-ready features, and writes the merged panel CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"pospanel/internal/config"
	"pospanel/internal/contract"
	"pospanel/internal/infrastructure"
	"pospanel/internal/panel"
	"pospanel/internal/pipeline"
	"pospanel/pkg/contracts"
)

func main() {
	configPath := flag.String("config", "pospanel.yaml", "path to the pipeline configuration file")
	inDir := flag.String("in", "", "input directory for vendor extracts (overrides paths.input_dir)")
	outFile := flag.String("out", "", "output panel CSV path (overrides paths.output_file)")
	partial := flag.Bool("partial", false, "continue past retailer-fatal errors and emit a partial panel")
	parallel := flag.Int("parallel", 0, "max retailers derived concurrently (overrides pipeline.max_concurrency)")
	version := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *version {
		fmt.Println(contracts.GetFullVersionString())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "config", *configPath, "error", err)
		os.Exit(1)
	}

	if *inDir != "" {
		cfg.Paths.InputDir = *inDir
	}
	if *outFile != "" {
		cfg.Paths.OutputFile = *outFile
	}
	if *partial {
		cfg.Pipeline.AllowPartial = true
	}
	if *parallel > 0 {
		cfg.Pipeline.MaxConcurrency = *parallel
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	registry, err := contract.NewRegistry(cfg.Pipeline)
	if err != nil {
		logger.Error("contract registry rejected the configuration", "error", err)
		os.Exit(1)
	}

	ctx := infrastructure.EnsureRunID(context.Background())
	logger.InfoContext(ctx, "starting panel build",
		"config", *configPath,
		"input_dir", cfg.Paths.InputDir,
		"output_file", cfg.Paths.OutputFile,
		"retailers", registry.Len())

	runner := pipeline.NewRunner(cfg, registry, logger)
	featurePanel, stats, err := runner.Run(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "pipeline run failed", "error", err)
		os.Exit(1)
	}

	writer := panel.NewWriter(logger)
	if err := writer.Write(cfg.Paths.OutputFile, featurePanel, panel.WriteOptions{BOMPrefix: true}); err != nil {
		logger.ErrorContext(ctx, "failed to write panel", "error", err)
		os.Exit(1)
	}

	printSummary(registry, stats, featurePanel.Len(), cfg.Paths.OutputFile)
}

// printSummary writes the human-readable run summary to stdout, one
// line per retailer plus run-level warnings.
func printSummary(registry *contract.Registry, stats *pipeline.RunStats, rows int, outFile string) {
	fmt.Printf("panel written: %s (%d rows)\n", outFile, rows)
	for _, retailer := range registry.Retailers() {
		rs := stats.For(retailer)
		if rs == nil {
			continue
		}
		if rs.Skipped {
			fmt.Printf("  %-12s skipped: %v\n", retailer, rs.Err)
			continue
		}
		integrityTally := "skipped"
		if rs.Integrity != nil {
			integrityTally = rs.Integrity.String()
		}
		kept, drops := 0, 0
		if rs.Derive != nil {
			kept = rs.Derive.WeeksKept
			drops = rs.Derive.DomainDrops
		}
		fmt.Printf("  %-12s %d weeks kept, %d dropped, integrity %s\n",
			retailer, kept, drops, integrityTally)
	}
	for _, w := range stats.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}
