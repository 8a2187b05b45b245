// Package main implements the krushak command-line client.
//
// It drives one recommendation workflow end to end against the Krushak
// backend: an optional weather lookup that pre-fills temperature, humidity
// and moisture, a multi-model fertilizer prediction, and an optional report
// export.
//
// Usage:
//
//	krushak -city Pune -soil Loamy -crop Wheat -n 30 -k 20 -p 25
//	krushak -soil Black -crop Cotton -n 40 -k 10 -p 20 -temp 30 -humidity 60 -moisture 35
//	krushak -city Nashik -soil Red -crop Sugarcane -n 12 -k 8 -p 9 -lang mr -report pdf -out report.pdf
//
// Backend settings come from the same environment variables as krushakd
// (KRUSHAK_API_URL, KRUSHAK_HTTP_TIMEOUT, ...); -api overrides the URL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"krushak/internal/config"
	"krushak/internal/core"
	"krushak/internal/external"
	"krushak/internal/types"
	"krushak/internal/workflow"
)

// errUsage signals a flag error that has already been reported.
var errUsage = errors.New("usage error")

// options are the parsed command-line flags.
type options struct {
	apiURL  string
	city    string
	lang    string
	verbose bool

	// Raw form values; empty means "not given".
	soil, crop                string
	nitrogen, potassium, phos string
	temp, humidity, moisture  string

	report         string
	out            string
	weatherRetries uint64
	retryInterval  time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("krushak", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.apiURL, "api", "", "backend base URL (overrides KRUSHAK_API_URL)")
	fs.StringVar(&opts.city, "city", "", "city to fetch current weather for")
	fs.StringVar(&opts.lang, "lang", "", "language for predictions and reports ("+languageList()+")")
	fs.BoolVar(&opts.verbose, "v", false, "verbose logging")

	fs.StringVar(&opts.soil, "soil", "", "soil type [required]")
	fs.StringVar(&opts.crop, "crop", "", "crop type [required]")
	fs.StringVar(&opts.nitrogen, "n", "", "nitrogen [required]")
	fs.StringVar(&opts.potassium, "k", "", "potassium [required]")
	fs.StringVar(&opts.phos, "p", "", "phosphorous [required]")
	fs.StringVar(&opts.temp, "temp", "", "temperature in °C (default: from weather)")
	fs.StringVar(&opts.humidity, "humidity", "", "relative humidity in % (default: from weather)")
	fs.StringVar(&opts.moisture, "moisture", "", "soil moisture (default: derived from rainfall)")

	fs.StringVar(&opts.report, "report", "", "export a report: pdf or excel")
	fs.StringVar(&opts.out, "out", "", `report output path, "-" for stdout (default: krushak_report.<ext>)`)
	fs.Uint64Var(&opts.weatherRetries, "weather-retries", 0, "retries for the weather lookup on network errors")
	fs.DurationVar(&opts.retryInterval, "retry-interval", 500*time.Millisecond, "initial delay between weather retries")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "krushak - fertilizer recommendations from the Krushak backend\n\n")
		fmt.Fprintf(stderr, "Usage:\n")
		fmt.Fprintf(stderr, "  krushak [-city NAME] -soil TYPE -crop TYPE -n N -k K -p P [flags]\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "error: unexpected arguments %v\n\n", fs.Args())
		fs.Usage()
		return nil, errUsage
	}
	if opts.report != "" {
		if _, err := types.ParseReportFormat(opts.report); err != nil {
			fmt.Fprintf(stderr, "error: invalid -report %q (must be pdf or excel)\n", opts.report)
			return nil, errUsage
		}
	}
	return opts, nil
}

func languageList() string {
	codes := make([]string, len(types.Languages))
	for i, l := range types.Languages {
		codes[i] = string(l)
	}
	return strings.Join(codes, ", ")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if opts.apiURL != "" {
		cfg.Backend.BaseURL = opts.apiURL
	}
	lang := cfg.Workflow.Language
	if opts.lang != "" {
		lang = opts.lang
	}

	// A report streamed to stdout must not be interleaved with the summary.
	summary := stdout
	if opts.report != "" && opts.out == "-" {
		if isTerminal(stdout) {
			return errors.New("refusing to write a binary report to a terminal; use -out FILE or redirect stdout")
		}
		summary = stderr
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	val := core.NewValidator(logger)
	clients := external.NewClientRegistry(cfg.Backend, val, nil, logger)
	ctrl := workflow.New(clients.Weather, clients.Predictor, clients.Reports,
		workflow.WithLogger(logger),
		workflow.WithValidator(val),
		workflow.WithLanguage(lang),
	)

	if err := fillForm(ctrl, opts); err != nil {
		return err
	}

	if opts.city != "" {
		if err := fetchWeather(ctx, ctrl, opts, logger); err != nil {
			return err
		}
	}

	snap, err := ctrl.SubmitPrediction(ctx)
	if err != nil {
		return fmt.Errorf("prediction: %w", err)
	}
	if err := printSnapshot(summary, snap); err != nil {
		return err
	}

	if opts.report != "" {
		return exportReport(ctx, ctrl, opts, stdout, summary)
	}
	return nil
}

// fillForm records every field given on the command line as a user edit, so
// a later weather lookup never overwrites it.
func fillForm(ctrl *workflow.Controller, opts *options) error {
	given := []struct {
		field types.Field
		raw   string
	}{
		{types.FieldTemperature, opts.temp},
		{types.FieldHumidity, opts.humidity},
		{types.FieldMoisture, opts.moisture},
		{types.FieldSoilType, opts.soil},
		{types.FieldCropType, opts.crop},
		{types.FieldNitrogen, opts.nitrogen},
		{types.FieldPotassium, opts.potassium},
		{types.FieldPhosphorus, opts.phos},
	}
	for _, g := range given {
		if g.raw == "" {
			continue
		}
		if err := ctrl.SetField(string(g.field), g.raw); err != nil {
			return err
		}
	}
	return nil
}

// fetchWeather looks up the weather for opts.city. Only network failures are
// retried; a rejected or malformed answer will not improve on retry.
func fetchWeather(ctx context.Context, ctrl *workflow.Controller, opts *options, logger *slog.Logger) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.retryInterval
	bo.MaxElapsedTime = 0

	op := func() error {
		_, err := ctrl.FetchWeather(ctx, opts.city)
		if err == nil {
			return nil
		}
		if kind, ok := types.RemoteKind(err); ok && kind == types.RemoteNetwork {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("weather lookup failed, retrying", "city", opts.city, "wait", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, opts.weatherRetries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return fmt.Errorf("weather for %q: %w", opts.city, err)
	}
	return nil
}

func exportReport(ctx context.Context, ctrl *workflow.Controller, opts *options, stdout, summary io.Writer) error {
	format := types.ReportFormat(opts.report)
	out := opts.out
	if out == "" {
		out = types.ReportFilename(format)
	}

	doc, err := ctrl.ExportReport(ctx, format)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if doc == nil {
		return errors.New("report: export was superseded")
	}

	if out == "-" {
		_, err := stdout.Write(doc.Data)
		return err
	}
	if err := os.WriteFile(out, doc.Data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	fmt.Fprintf(summary, "\nReport saved to %s (%s)\n", out, humanize.Bytes(uint64(len(doc.Data))))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
