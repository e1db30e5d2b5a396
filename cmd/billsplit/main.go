package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/billsplit/internal/bill"
	"github.com/zombor/billsplit/internal/scanning"
	"github.com/zombor/billsplit/internal/session"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires the app and returns the exit code, so deferred cleanup runs
// before the process exits.
func run(args []string) int {
	// Check for version flag before parsing other flags
	for _, arg := range args {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			return 0
		}
	}

	// A missing .env is fine; the environment may already be set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error loading .env: %v\n", err)
		return 1
	}

	fs := ff.NewFlagSet("billsplit")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "billsplit.db", "Flag database file path")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY / API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", scanning.DefaultModel, "Google Gemini model name")
		locale         = fs.StringLong("locale", "vi", "Language used for digit grouping")
		currencyCode   = fs.StringLong("currency", "VND", "ISO 4217 currency code")
		scanTimeout    = fs.DurationLong("scan-timeout", scanning.DefaultTimeout, "Maximum time to wait for a receipt scan")
		scansPerMinute = fs.IntLong("scans-per-minute", session.DefaultScansPerMinute, "Receipt scans allowed per minute")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("BILLSPLIT"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		return 0
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	formatter, err := bill.ParseLocale(*locale, *currencyCode)
	if err != nil {
		slog.Error("Invalid locale or currency", "locale", *locale, "currency", *currencyCode, "error", err)
		return 1
	}

	slog.Info("Initializing flag database...", "path", *dbPath)
	flags, err := session.NewBoltFlags(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize flag database", "error", err)
		return 1
	}
	defer flags.Close()

	scanner := newScanner(*geminiKey, *geminiModel, *scanTimeout)
	defer scanner.Close()

	sessionService, err := session.NewServiceWithDeps(scanner, flags, session.Options{
		Formatter:      formatter,
		ScansPerMinute: *scansPerMinute,
	})
	if err != nil {
		slog.Error("Failed to initialize session", "error", err)
		return 1
	}

	basicAuth := session.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := session.NewServer(sessionService, basicAuth)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		return 1
	}
	slog.Info("Shutting down...")
	return 0
}

// newScanner builds the Gemini scanner. Without a usable key the app still
// runs and manual entry keeps working; scans report the configuration error.
func newScanner(flagKey, model string, timeout time.Duration) scanning.Scanner {
	apiKey := flagKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("API_KEY")
	}
	if apiKey == "" {
		slog.Warn("Gemini API key not set; receipt scanning is disabled. Set --gemini-key or GEMINI_API_KEY")
		return scanning.Unconfigured{Err: scanning.ErrMissingCredential}
	}

	slog.Info("Initializing Gemini scanner...", "model", model, "key", scanning.MaskCredential(apiKey))
	scanner, err := scanning.NewGemini(apiKey, model, timeout)
	if err != nil {
		slog.Error("Failed to initialize Gemini; receipt scanning is disabled", "error", err)
		return scanning.Unconfigured{Err: err}
	}
	return scanner
}
