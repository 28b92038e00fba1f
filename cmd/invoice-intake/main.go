package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-intake/internal/dedup"
	"github.com/zombor/invoice-intake/internal/intake"
	"github.com/zombor/invoice-intake/internal/invoice"
	"github.com/zombor/invoice-intake/internal/pipeline"
	"github.com/zombor/invoice-intake/internal/scanning"
	"github.com/zombor/invoice-intake/internal/validation"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("invoice-intake")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "invoice-intake.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./invoices", "Storage directory path")
		extractorType  = fs.StringLong("extractor", "gemini", "Extractor: 'gemini', 'ollama', 'tesseract' or 'text'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		tesseractLang  = fs.StringLong("tesseract-lang", "eng", "Tesseract languages, joined with '+'")
		vendorsPath    = fs.StringLong("vendors", "", "JSON file of approved vendors (optional)")
		lowConfidence  = fs.Float64Long("low-confidence", validation.DefaultLowConfidenceThreshold, "Field confidence below which an invoice is flagged")
		dateHorizon    = fs.IntLong("date-horizon-years", validation.DefaultDateHorizonYears, "Oldest accepted invoice date, in years")
		maxAttempts    = fs.IntLong("max-attempts", pipeline.DefaultRetryPolicy.MaxAttempts, "Extraction attempts per document")
		initialBackoff = fs.DurationLong("initial-backoff", pipeline.DefaultRetryPolicy.InitialBackoff, "Wait before the first extraction retry")
		extractTimeout = fs.DurationLong("extract-timeout", pipeline.DefaultExtractTimeout, "Timeout per extraction attempt")
		batchDir       = fs.StringLong("batch", "", "Process every document in this directory and exit")
		workers        = fs.IntLong("workers", pipeline.DefaultWorkers, "Concurrent documents in batch mode")
		dryRun         = fs.BoolLong("dry-run", "In batch mode, report outcomes without persisting anything")
		debug          = fs.BoolLong("debug", "Enable debug logging")
		_              = fs.StringLong("config", "", "Config file (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_INTAKE"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor, err := buildExtractor(ctx, *extractorType, extractorConfig{
		geminiKey:     *geminiKey,
		geminiModel:   *geminiModel,
		ollamaURL:     *ollamaURL,
		ollamaModel:   *ollamaModel,
		tesseractLang: *tesseractLang,
	})
	if err != nil {
		slog.Error("Failed to initialize extractor", "extractor", *extractorType, "error", err)
		os.Exit(1)
	}
	defer extractor.Close()

	cfg := validation.Config{
		LowConfidenceThreshold: *lowConfidence,
		DateHorizonYears:       *dateHorizon,
	}
	if *vendorsPath != "" {
		cfg.ApprovedVendors, err = validation.LoadApprovedVendors(*vendorsPath)
		if err != nil {
			slog.Error("Failed to load approved vendors", "path", *vendorsPath, "error", err)
			os.Exit(1)
		}
		slog.Info("Approved vendor list loaded", "vendors", len(cfg.ApprovedVendors))
	}

	opts := []pipeline.Option{
		pipeline.WithValidator(validation.NewValidator(cfg)),
		pipeline.WithRetry(pipeline.RetryPolicy{
			MaxAttempts:    *maxAttempts,
			InitialBackoff: *initialBackoff,
			MaxBackoff:     pipeline.DefaultRetryPolicy.MaxBackoff,
		}),
		pipeline.WithExtractTimeout(*extractTimeout),
	}

	if *batchDir != "" && *dryRun {
		docs, err := readDocuments(*batchDir)
		if err != nil {
			slog.Error("Failed to read batch directory", "dir", *batchDir, "error", err)
			os.Exit(1)
		}
		pipe := pipeline.New(extractor, dedup.NewMemoryIndex(), opts...)
		results, err := pipe.Batch(ctx, docs, *workers)
		if err != nil {
			slog.Error("Some documents failed", "error", err)
		}
		printSummary(docs, results)
		return
	}

	slog.Info("Initializing database...", "path", *dbPath)
	db, err := intake.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := intake.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	pipe := pipeline.New(extractor, db, opts...)
	service := intake.NewService(db, pipe, store)

	if *batchDir != "" {
		docs, err := readDocuments(*batchDir)
		if err != nil {
			slog.Error("Failed to read batch directory", "dir", *batchDir, "error", err)
			os.Exit(1)
		}
		results, err := pipeline.RunBatch(ctx, docs, *workers, func(ctx context.Context, doc invoice.RawDocument) (*invoice.ProcessingResult, error) {
			outcome, err := service.ProcessDocument(ctx, doc.Name, doc.Data, doc.Format.ContentType())
			if err != nil {
				return nil, err
			}
			return &outcome.Result, nil
		})
		if err != nil {
			slog.Error("Some documents failed", "error", err)
		}
		printSummary(docs, results)
		return
	}

	server := intake.NewServer(service)
	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "extractor", *extractorType)
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutting down...")
}

type extractorConfig struct {
	geminiKey     string
	geminiModel   string
	ollamaURL     string
	ollamaModel   string
	tesseractLang string
}

// buildExtractor puts the plain-text reader in front of the chosen engine so
// text files and digital PDFs never reach a model
func buildExtractor(ctx context.Context, kind string, cfg extractorConfig) (scanning.Extractor, error) {
	plain := scanning.NewPlainText()
	switch kind {
	case "text":
		return plain, nil
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini extractor...", "model", cfg.geminiModel)
		g, err := scanning.NewGemini(ctx, apiKey, cfg.geminiModel)
		if err != nil {
			return nil, err
		}
		return scanning.NewChain(plain, g), nil
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		o, err := scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
		if err != nil {
			return nil, err
		}
		return scanning.NewChain(plain, o), nil
	case "tesseract":
		slog.Info("Initializing Tesseract extractor...", "lang", cfg.tesseractLang)
		t, err := scanning.NewTesseract(cfg.tesseractLang)
		if err != nil {
			return nil, err
		}
		return scanning.NewChain(plain, t), nil
	}
	return nil, fmt.Errorf("unknown extractor %q, want gemini, ollama, tesseract or text", kind)
}

// readDocuments loads every file in dir with a recognised extension, sorted
// by name
func readDocuments(dir string) ([]invoice.RawDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var docs []invoice.RawDocument
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format := invoice.FormatFromFilename(entry.Name())
		if format == "" {
			slog.Debug("Skipping file with unknown format", "file", entry.Name())
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		docs = append(docs, invoice.RawDocument{Name: entry.Name(), Format: format, Data: data})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

func printSummary(docs []invoice.RawDocument, results []*invoice.ProcessingResult) {
	counts := make(map[invoice.FinalStatus]int, len(invoice.FinalStatuses))
	failed := 0
	for i, r := range results {
		if r == nil {
			failed++
			fmt.Printf("%-40s error\n", docs[i].Name)
			continue
		}
		counts[r.FinalStatus]++
		fmt.Printf("%-40s %-20s %s\n", docs[i].Name, r.FinalStatus, r.Summary())
	}

	fmt.Println()
	for _, status := range invoice.FinalStatuses {
		fmt.Printf("%-20s %d\n", status, counts[status])
	}
	if failed > 0 {
		fmt.Printf("%-20s %d\n", "error", failed)
	}
}
