package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/soltixdb/forecaster/internal/analytics/forecast"
	"github.com/soltixdb/forecaster/internal/metadata"
	"github.com/soltixdb/forecaster/internal/modelmanager"
	"github.com/soltixdb/forecaster/internal/preprocess"
	"github.com/soltixdb/forecaster/internal/queue"
	"github.com/soltixdb/forecaster/internal/services"
	"github.com/soltixdb/forecaster/internal/storage"
	"github.com/soltixdb/forecaster/internal/utils"
	"github.com/spf13/cobra"
)

type runOptions struct {
	timeColumn   string
	targetColumn string
	exogenous    []string
	horizon      int
	model        string
	dataDir      string
	chart        bool
	asJSON       bool
	timeout      time.Duration
}

// runCmd runs one forecast job in-process
func runCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <file.csv>",
		Short: "Fit the models on a CSV and forecast the target column",
		Long: `Runs the same pipeline as the worker: the CSV is stored as an upload, a
job is created and the forecast service fits, selects and predicts. The job
artifacts (results.json, forecast.csv, forecast.png, the model blob) are kept
under --data-dir.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForecast(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.timeColumn, "time-column", "t", "", "Timestamp column (default: best detected candidate)")
	cmd.Flags().StringVarP(&opts.targetColumn, "target", "y", "", "Target column to forecast (required)")
	cmd.Flags().StringSliceVarP(&opts.exogenous, "exog", "x", nil, "Exogenous regressor columns")
	cmd.Flags().IntVarP(&opts.horizon, "horizon", "n", 0, "Periods to forecast (default from config)")
	cmd.Flags().StringVarP(&opts.model, "model", "m", utils.ModelAuto, "Model: auto, arima, ets or xgboost")
	cmd.Flags().StringVarP(&opts.dataDir, "data-dir", "d", "", "Directory for uploads and job artifacts (default: temporary)")
	cmd.Flags().BoolVar(&opts.chart, "chart", false, "Render forecast.png")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the full forecast record as JSON")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", utils.DefaultJobTimeout, "Upper bound of the run")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func runForecast(ctx context.Context, out io.Writer, path string, opts *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Forecast.ChartEnabled = opts.chart
	logger := newLogger()

	dataDir := opts.dataDir
	if dataDir == "" {
		dataDir, err = os.MkdirTemp("", "forecastctl-")
		if err != nil {
			return err
		}
	}
	store, err := storage.NewLocalStore(dataDir, logger)
	if err != nil {
		return err
	}

	tracker := metadata.NewTracker(metadata.NewMemoryStore())
	q := queue.NewMemoryQueue()
	defer func() { _ = q.Close() }()

	manager, err := modelmanager.NewFromConfig(cfg.Forecast, logger)
	if err != nil {
		return err
	}
	uploads := services.NewUploadService(logger, store)
	jobs := services.NewJobService(logger, uploads, store, tracker, q, cfg.Queue.Subject, cfg.Forecast, manager.Names())
	forecaster := services.NewForecastService(logger, store, tracker, manager,
		preprocess.NewPreparer(cfg.Storage.GetStorageTimezone(), logger), cfg.Forecast)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	upload, err := uploads.Upload(ctx, filepath.Base(path), f)
	_ = f.Close()
	if err != nil {
		return err
	}

	timeColumn := opts.timeColumn
	if timeColumn == "" {
		if len(upload.TimeCandidates) == 0 {
			return fmt.Errorf("no time column detected in %s, pass --time-column", path)
		}
		timeColumn = upload.TimeCandidates[0].Column
	}

	job, err := jobs.Submit(ctx, &services.SubmitRequest{
		UploadID:     upload.UploadID,
		TimeColumn:   timeColumn,
		TargetColumn: opts.targetColumn,
		Exogenous:    opts.exogenous,
		Horizon:      opts.horizon,
		Model:        opts.model,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	result, err := forecaster.Run(runCtx, job.ID)
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if result.Record != nil {
			return enc.Encode(result.Record)
		}
		return enc.Encode(result.Failure)
	}

	if result.Status == metadata.StatusFailed {
		return fmt.Errorf("forecast failed: %s", result.Failure.Error)
	}
	printRecord(out, result.Record, dataDir)
	return nil
}

func printRecord(out io.Writer, r *services.ForecastRecord, dataDir string) {
	fmt.Fprintf(out, "=== Forecast ===\n")
	fmt.Fprintf(out, "Model used: %s\n", r.ModelUsed)
	fmt.Fprintf(out, "History: %d points, horizon: %d\n\n", r.HistoricalDataPoints, r.ForecastHorizon)

	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(out, "Model metrics:\n")
	for _, name := range names {
		fmt.Fprintf(out, "  %-8s %s\n", name, formatMetrics(r.Metrics[name]))
	}

	fmt.Fprintf(out, "\n%-26s %14s", "date", "forecast")
	intervals := len(r.LowerBound) == len(r.Predictions) && len(r.UpperBound) == len(r.Predictions)
	if intervals {
		fmt.Fprintf(out, " %14s %14s", "lower", "upper")
	}
	fmt.Fprintln(out)
	for i, v := range r.Predictions {
		fmt.Fprintf(out, "%-26s %14.4f", r.ForecastDates[i], v)
		if intervals {
			fmt.Fprintf(out, " %14.4f %14.4f", r.LowerBound[i], r.UpperBound[i])
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "\n%s\n\nArtifacts in %s\n", r.Insights, dataDir)
}

func formatMetrics(m forecast.Metrics) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.4f", k, m[k])
	}
	return strings.Join(parts, " ")
}
