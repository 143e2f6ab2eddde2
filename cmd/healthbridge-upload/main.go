package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/claude/healthbridge/internal/upload"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "healthbridge server URL (e.g. https://healthbridge.tail1234.ts.net)")
	exportPath := flag.String("path", "", "directory of JSON export files")
	apiKey := flag.String("api-key", "", "ingest API key (default $HEALTHBRIDGE_API_KEY)")
	dryRun := flag.Bool("dry-run", false, "parse and validate but don't send to server")
	batchSize := flag.Int("batch-size", 1000, "records per ingest request")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("healthbridge-upload", Version)
		return
	}

	_ = godotenv.Load()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *exportPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: healthbridge-upload -server <URL> -path <export dir> [-dry-run] [-batch-size N]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *serverURL == "" && !*dryRun {
		fmt.Fprintf(os.Stderr, "Error: -server is required (or use -dry-run)\n")
		os.Exit(1)
	}
	if *apiKey == "" {
		*apiKey = os.Getenv("HEALTHBRIDGE_API_KEY")
	}
	if *apiKey == "" && !*dryRun {
		fmt.Fprintf(os.Stderr, "Error: -api-key or HEALTHBRIDGE_API_KEY is required\n")
		os.Exit(1)
	}

	info, err := os.Stat(*exportPath)
	if err != nil || !info.IsDir() {
		log.Error("export directory not found", "path", *exportPath)
		os.Exit(1)
	}

	// Open the upload ledger
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Error("failed to get home directory", "error", err)
		os.Exit(1)
	}
	ledger, err := upload.OpenLedger(filepath.Join(homeDir, ".healthbridge-upload"))
	if err != nil {
		log.Error("failed to open upload ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()

	// Create client (nil in dry-run mode)
	var sender upload.Sender
	if !*dryRun {
		sender = upload.NewClient(*serverURL, *apiKey)
	} else {
		log.Info("DRY RUN mode: files will be parsed and validated but not sent")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := upload.New(sender, ledger, *exportPath, *dryRun, *batchSize, log).Run(ctx)
	printStats(stats)
	if totals, terr := ledger.Totals(context.Background()); terr == nil {
		fmt.Printf("  All runs:         %d files, %d samples and %d sleep sessions stored\n\n",
			totals.Files, totals.SamplesStored, totals.SessionsStored)
	} else {
		log.Warn("reading upload ledger totals", "error", terr)
	}
	if err != nil {
		log.Error("upload failed", "error", err)
		os.Exit(1)
	}
	log.Info("upload complete")
}

func printStats(stats *upload.Stats) {
	fmt.Println()
	fmt.Println("=== Upload Summary ===")
	fmt.Printf("  Files total:      %d\n", stats.FilesTotal)
	fmt.Printf("  Files uploaded:   %d\n", stats.FilesUploaded)
	fmt.Printf("  Files skipped:    %d (already uploaded or empty)\n", stats.FilesSkipped)
	fmt.Printf("  Files errored:    %d\n", stats.FilesErrored)
	fmt.Println()
	fmt.Printf("  Samples sent:     %d (%d new)\n", stats.SamplesSent, stats.SamplesStored)
	fmt.Printf("  Sleep sessions:   %d (%d new)\n", stats.SleepSessionsSent, stats.SleepSessionsStored)
	fmt.Println()
}
