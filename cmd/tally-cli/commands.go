package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tally/internal/backend"
	"tally/internal/cli"
	"tally/internal/config"
	"tally/internal/core"
	"tally/internal/ingest"
	"tally/internal/log"
	"tally/internal/records"
	"tally/internal/records/memory"
)

type options struct {
	persist  bool
	asJSON   bool
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "tally-cli",
		Short:         "Sum spreadsheet line items per category",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "Log level: debug, info, warn, error")

	totals := &cobra.Command{
		Use:   "totals <file>",
		Short: "Print per-category totals for an .xlsx or .csv file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTotals(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	totals.Flags().BoolVar(&opts.persist, "persist", false, "Also save every row to the configured DATA_BACKEND")
	totals.Flags().BoolVar(&opts.asJSON, "json", false, "Print JSON instead of a table")

	list := &cobra.Command{
		Use:   "records",
		Short: "List records in the configured DATA_BACKEND",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecords(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	list.Flags().BoolVar(&opts.asJSON, "json", false, "Print JSON instead of a table")

	root.AddCommand(totals, list)
	return root
}

func runTotals(ctx context.Context, out io.Writer, path string, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cli.SetupLogger(opts.logLevel, log.ComponentCLI)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	cfg := config.Load()
	var writer records.RecordWriter = memory.New()
	if opts.persist {
		store, err := openBackend(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		writer = store.Backend
	}

	pipeline := ingest.NewPipeline(
		ingest.NewDecoder(cfg.MaxRows, logger),
		ingest.NewSink(writer, ingest.SinkConfig{Concurrency: cfg.PersistConcurrency, Timeout: cfg.PersistTimeout}, logger),
		ingest.NewStore(),
		logger,
	)
	res, err := pipeline.Run(ctx, ingest.Upload{Name: path, Data: data})
	if err != nil {
		if perr, ok := core.AsPipelineError(err); ok {
			return fmt.Errorf("%s: %w", perr.Message, err)
		}
		return err
	}

	if opts.asJSON {
		return writeTotalsJSON(out, res)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "CATEGORY\tTOTAL\t")
	for _, t := range res.Totals {
		fmt.Fprintf(tw, "%s\t%s\t\n", t.Category, core.FormatTotal(t.Total))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if opts.persist {
		fmt.Fprintf(out, "\nSaved %d of %d rows\n", res.Persist.Succeeded, len(res.Persist.Results))
	}
	if res.Persist.Failed > 0 {
		return fmt.Errorf("%d rows could not be saved", res.Persist.Failed)
	}
	return nil
}

func writeTotalsJSON(out io.Writer, res ingest.Result) error {
	type total struct {
		Category string `json:"category"`
		Total    string `json:"total"`
	}
	payload := struct {
		Totals    []total `json:"totals"`
		Persisted int     `json:"persisted"`
		Failed    int     `json:"failed"`
	}{Totals: make([]total, len(res.Totals)), Persisted: res.Persist.Succeeded, Failed: res.Persist.Failed}
	for i, t := range res.Totals {
		payload.Totals[i] = total{Category: t.Category, Total: t.Total.StringFixed(2)}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func runRecords(ctx context.Context, out io.Writer, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cli.SetupLogger(opts.logLevel, log.ComponentCLI)

	store, err := openBackend(ctx, config.Load(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.Backend.List(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", core.MsgFetchFailed, err)
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tITEM\tCATEGORY\tPRICE\tCREATED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Item, r.Category, r.Price.StringFixed(2), r.CreatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

func openBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.BackendResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return backend.NewFactory(logger).CreateBackend(initCtx, bcfg)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
