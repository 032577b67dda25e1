package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/soltixdb/forecaster/internal/analytics"
	"github.com/soltixdb/forecaster/internal/analytics/forecast"
	"github.com/soltixdb/forecaster/internal/chart"
	"github.com/soltixdb/forecaster/internal/config"
	"github.com/soltixdb/forecaster/internal/insights"
	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/soltixdb/forecaster/internal/metadata"
	"github.com/soltixdb/forecaster/internal/metrics"
	"github.com/soltixdb/forecaster/internal/modelmanager"
	"github.com/soltixdb/forecaster/internal/preprocess"
	"github.com/soltixdb/forecaster/internal/storage"
	"github.com/soltixdb/forecaster/internal/tracing"
	"github.com/soltixdb/forecaster/internal/utils"
)

// ErrJobFinished is returned when a job that already reached a terminal
// state is delivered again. Its record is immutable, so nothing is redone.
var ErrJobFinished = errors.New("job already finished")

// ErrInvalidHorizon is returned for a horizon outside [1, max_horizon].
var ErrInvalidHorizon = errors.New("invalid forecast horizon")

// RunResult is the terminal outcome of one job run. Exactly one of Record
// and Failure is set.
type RunResult struct {
	Status     metadata.Status
	Record     *ForecastRecord
	Failure    *FailureRecord
	ResultPath string
}

// ForecastService runs forecast jobs: it prepares the uploaded series, fits
// and selects models, writes the result artifacts and drives the job status
// from processing to completed or failed.
type ForecastService struct {
	logger   *logging.Logger
	store    storage.Store
	tracker  *metadata.Tracker
	manager  *modelmanager.Manager
	preparer *preprocess.Preparer
	cfg      config.ForecastConfig
	now      func() time.Time
}

// NewForecastService creates a new ForecastService
func NewForecastService(
	logger *logging.Logger,
	store storage.Store,
	tracker *metadata.Tracker,
	manager *modelmanager.Manager,
	preparer *preprocess.Preparer,
	cfg config.ForecastConfig,
) *ForecastService {
	if logger == nil {
		logger = logging.Global()
	}
	return &ForecastService{
		logger:   logger.With("component", "forecast_service"),
		store:    store,
		tracker:  tracker,
		manager:  manager,
		preparer: preparer,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// runError carries the diagnostic trace of a failed run.
type runError struct {
	err   error
	trace string
}

func (e *runError) Error() string { return e.err.Error() }
func (e *runError) Unwrap() error { return e.err }

// Run processes one job. A returned error means the outcome could not be
// recorded (or ctx expired) and the job is left in processing for the
// queue to redeliver; forecast failures are reported through RunResult.
func (s *ForecastService) Run(ctx context.Context, jobID string) (*RunResult, error) {
	start := time.Now()
	ctx = logging.WithJobID(ctx, jobID)
	ctx, span := tracing.StartSpan(ctx, "forecast.run", tracing.AttrJobID.String(jobID))
	defer span.End()
	logger := s.logger.WithContext(ctx)

	job, err := s.tracker.Get(ctx, jobID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		logger.Info("Job already finished, skipping", "status", job.Status)
		return nil, ErrJobFinished
	}

	if _, err := s.tracker.MarkProcessing(ctx, jobID); err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to mark job processing: %w", err)
	}
	metrics.JobStarted()
	span.SetAttributes(
		tracing.AttrUploadID.String(job.UploadID),
		tracing.AttrModel.String(job.Config.Model),
		tracing.AttrHorizon.Int(job.Config.Horizon),
	)
	logger.Info("Forecast job started",
		"upload_id", job.UploadID,
		"model", job.Config.Model,
		"horizon", job.Config.Horizon)

	record, runErr := s.execute(ctx, job, logger)
	if ctx.Err() != nil {
		metrics.JobFinished("aborted", time.Since(start))
		tracing.RecordError(span, ctx.Err())
		logger.Warn("Forecast job aborted", "error", ctx.Err())
		return nil, ctx.Err()
	}

	var result *RunResult
	if runErr == nil {
		result, err = s.complete(ctx, job, record)
	} else {
		logger.Error("Forecast job failed", "error", runErr)
		result, err = s.fail(ctx, job, runErr)
	}
	elapsed := time.Since(start)
	if err != nil {
		metrics.JobFinished("error", elapsed)
		tracing.RecordError(span, err)
		logger.Error("Failed to record job outcome", "error", err)
		return nil, err
	}

	metrics.JobFinished(string(result.Status), elapsed)
	span.SetAttributes(tracing.AttrStatus.String(string(result.Status)))
	logger.Info("Forecast job finished",
		"status", result.Status,
		"latency_ms", elapsed.Milliseconds())
	return result, nil
}

// execute runs the pipeline, turning panics into failures.
func (s *ForecastService) execute(ctx context.Context, job *metadata.Job, logger *logging.Logger) (record *ForecastRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			record = nil
			err = &runError{err: fmt.Errorf("panic: %v", r), trace: string(debug.Stack())}
		}
	}()

	record, err = s.forecast(ctx, job, logger)
	if err != nil {
		var re *runError
		if !errors.As(err, &re) {
			err = &runError{err: err, trace: errorTrace(err)}
		}
	}
	return record, err
}

// errorTrace lists the wrapped error chain followed by the current stack.
func errorTrace(err error) string {
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(&b, "%T: %s\n", e, e.Error())
	}
	b.WriteString("\n")
	b.Write(debug.Stack())
	return b.String()
}

// fittedModel is a model whose prediction succeeded.
type fittedModel struct {
	name       string
	model      forecast.Model
	prediction *forecast.Prediction
}

func (s *ForecastService) forecast(ctx context.Context, job *metadata.Job, logger *logging.Logger) (*ForecastRecord, error) {
	cfg := job.Config
	horizon := cfg.Horizon
	if horizon == 0 {
		horizon = s.cfg.DefaultHorizon
	}
	if horizon < 1 || horizon > s.cfg.MaxHorizon {
		return nil, fmt.Errorf("%w: %d (allowed 1..%d)", ErrInvalidHorizon, horizon, s.cfg.MaxHorizon)
	}
	selector := strings.ToLower(strings.TrimSpace(cfg.Model))
	if selector == "" {
		selector = utils.ModelAuto
	}

	series, err := s.loadSeries(ctx, job)
	if err != nil {
		return nil, err
	}
	logger.Debug("Series prepared",
		"points", series.Len(),
		"frequency", series.Frequency.String(),
		"exogenous", len(series.Exogenous))

	fitted, metricsByModel, err := s.fitModels(ctx, selector, series, cfg.Exogenous)
	if err != nil {
		return nil, err
	}

	predicted := make(map[string]fittedModel, len(fitted))
	order := make([]string, 0, len(fitted))
	for _, r := range fitted {
		pred, err := r.Model.Predict(horizon, true)
		if err == nil && !utils.AllFinite(pred.Forecast) {
			err = errors.New("non-finite forecast")
		}
		if err != nil {
			logger.Warn("Model prediction failed", "model", r.Name, "error", err)
			continue
		}
		if pred.HasIntervals() && (!utils.AllFinite(pred.Lower) || !utils.AllFinite(pred.Upper)) {
			pred.Lower, pred.Upper = nil, nil
		}
		predicted[r.Name] = fittedModel{name: r.Name, model: r.Model, prediction: pred}
		order = append(order, r.Name)
	}
	if len(predicted) == 0 {
		return nil, errors.New("no model produced a forecast")
	}

	best := s.pickBest(selector, metricsByModel, predicted)
	chosen := predicted[best]
	metrics.IncSelected(best)

	dates := series.Frequency.Dates(series.Last(), horizon)
	record := &ForecastRecord{
		Status:               string(metadata.StatusCompleted),
		JobID:                job.ID,
		UploadID:             job.UploadID,
		ModelUsed:            best,
		Predictions:          chosen.prediction.Forecast,
		ForecastDates:        formatDates(dates),
		LowerBound:           chosen.prediction.Lower,
		UpperBound:           chosen.prediction.Upper,
		Metrics:              metricsByModel,
		AllModels:            make(map[string]ModelForecast, len(predicted)),
		HistoricalDataPoints: series.Len(),
		ForecastHorizon:      horizon,
		HistoricalData:       historicalPoints(series),
	}
	for name, fm := range predicted {
		record.AllModels[name] = ModelForecast{
			Predictions: fm.prediction.Forecast,
			LowerBound:  fm.prediction.Lower,
			UpperBound:  fm.prediction.Upper,
			Metrics:     metricsByModel[name],
		}
	}

	record.CSVPath = s.writeCSV(job.ID, dates, chosen.prediction, logger)
	record.ChartPath = s.writeChart(job.ID, series, dates, chosen.prediction, logger)
	record.ModelPath = s.writeModel(job.ID, chosen, logger)
	record.Insights = insights.Generate(insights.Input{
		History:  series.Values,
		Forecast: chosen.prediction.Forecast,
		Lower:    chosen.prediction.Lower,
		Upper:    chosen.prediction.Upper,
		Metrics:  metricsByModel,
		Models:   order,
		Best:     best,
	})
	record.CompletedAt = s.now()
	return record, nil
}

func (s *ForecastService) loadSeries(ctx context.Context, job *metadata.Job) (*analytics.TimeSeries, error) {
	_, span := tracing.StartSpan(ctx, "forecast.prepare", tracing.AttrUploadID.String(job.UploadID))
	defer span.End()

	path, err := s.store.UploadPath(job.UploadID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("source data for upload %s: %w", job.UploadID, err)
	}
	table, err := preprocess.LoadCSV(path)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	series, err := s.preparer.Prepare(table, job.Config.TimeColumn, job.Config.TargetColumn, job.Config.Exogenous)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracing.AttrPoints.Int(series.Len()))
	return series, nil
}

// fitModels fits every model for auto, or only the named one.
func (s *ForecastService) fitModels(ctx context.Context, selector string, series *analytics.TimeSeries, exogenous []string) ([]modelmanager.FitResult, map[string]forecast.Metrics, error) {
	if selector == utils.ModelAuto {
		outcome, err := s.manager.FitAll(ctx, series, analytics.TargetColumn, exogenous)
		if err != nil {
			return nil, nil, err
		}
		fitted := outcome.Fitted()
		return fitted, s.manager.CompareModels(fitted), nil
	}

	model, err := s.manager.Fit(ctx, selector, series, analytics.TargetColumn, exogenous)
	if err != nil {
		return nil, nil, err
	}
	fitted := []modelmanager.FitResult{{Name: selector, Model: model}}
	return fitted, s.manager.CompareModels(fitted), nil
}

// pickBest applies SelectBest over the models that produced a forecast.
func (s *ForecastService) pickBest(selector string, metricsByModel map[string]forecast.Metrics, predicted map[string]fittedModel) string {
	if selector != utils.ModelAuto {
		return selector
	}
	candidates := make(map[string]forecast.Metrics, len(predicted))
	for name := range predicted {
		candidates[name] = metricsByModel[name]
	}
	best := s.manager.SelectBest(candidates)
	if _, ok := predicted[best]; ok {
		return best
	}
	for _, name := range s.manager.Names() {
		if _, ok := predicted[name]; ok {
			return name
		}
	}
	return best
}

// writeCSV exports date, forecast and, with intervals, lower and upper.
func (s *ForecastService) writeCSV(jobID string, dates []time.Time, pred *forecast.Prediction, logger *logging.Logger) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"date", "forecast"}
	if pred.HasIntervals() {
		header = append(header, "lower", "upper")
	}
	_ = w.Write(header)
	for i, d := range dates {
		row := []string{d.Format(time.RFC3339), formatFloat(pred.Forecast[i])}
		if pred.HasIntervals() {
			row = append(row, formatFloat(pred.Lower[i]), formatFloat(pred.Upper[i]))
		}
		_ = w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		logger.Warn("Failed to encode forecast CSV", "error", err)
		return ""
	}

	path, err := s.store.WriteArtifact(jobID, utils.ForecastCSV, buf.Bytes())
	if err != nil {
		logger.Warn("Failed to write forecast CSV", "error", err)
		return ""
	}
	return path
}

// writeChart renders the PNG. Failures leave the chart absent.
func (s *ForecastService) writeChart(jobID string, series *analytics.TimeSeries, dates []time.Time, pred *forecast.Prediction, logger *logging.Logger) *string {
	if !s.cfg.ChartEnabled {
		return nil
	}
	png, err := chart.Render(chart.Data{
		Times:    series.Times,
		Values:   series.Values,
		Dates:    dates,
		Forecast: pred.Forecast,
		Lower:    pred.Lower,
		Upper:    pred.Upper,
	}, s.cfg.ChartMaxPoints)
	if err != nil {
		logger.Warn("Chart generation failed", "error", err)
		return nil
	}
	path, err := s.store.WriteArtifact(jobID, utils.ForecastPNG, png)
	if err != nil {
		logger.Warn("Failed to write chart", "error", err)
		return nil
	}
	return &path
}

func (s *ForecastService) writeModel(jobID string, fm fittedModel, logger *logging.Logger) string {
	blob, err := s.manager.Save(fm.model)
	if err != nil {
		logger.Warn("Failed to serialize model", "model", fm.name, "error", err)
		return ""
	}
	path, err := s.store.WriteArtifact(jobID, utils.ModelFile(fm.name), blob)
	if err != nil {
		logger.Warn("Failed to write model artifact", "model", fm.name, "error", err)
		return ""
	}
	return path
}

func (s *ForecastService) complete(ctx context.Context, job *metadata.Job, record *ForecastRecord) (*RunResult, error) {
	path, err := s.store.WriteJSON(job.ID, utils.ResultsFile, record)
	if err != nil {
		return nil, fmt.Errorf("failed to persist forecast record: %w", err)
	}
	if _, err := s.tracker.MarkCompleted(ctx, job.ID, path); err != nil {
		return nil, fmt.Errorf("failed to mark job completed: %w", err)
	}
	return &RunResult{Status: metadata.StatusCompleted, Record: record, ResultPath: path}, nil
}

func (s *ForecastService) fail(ctx context.Context, job *metadata.Job, runErr error) (*RunResult, error) {
	failure := &FailureRecord{
		Status:   string(metadata.StatusFailed),
		JobID:    job.ID,
		UploadID: job.UploadID,
		Error:    runErr.Error(),
		FailedAt: s.now(),
	}
	var re *runError
	if errors.As(runErr, &re) {
		failure.ErrorTrace = re.trace
	}

	path, err := s.store.WriteJSON(job.ID, utils.ErrorFile, failure)
	if err != nil {
		return nil, fmt.Errorf("failed to persist failure record: %w", err)
	}
	if _, err := s.tracker.MarkFailed(ctx, job.ID, failure.Error, path); err != nil {
		return nil, fmt.Errorf("failed to mark job failed: %w", err)
	}
	return &RunResult{Status: metadata.StatusFailed, Failure: failure, ResultPath: path}, nil
}

func historicalPoints(series *analytics.TimeSeries) []HistoricalPoint {
	out := make([]HistoricalPoint, series.Len())
	for i, p := range series.Points() {
		out[i] = HistoricalPoint{Date: p.Time.Format(time.RFC3339), Actual: p.Value}
	}
	return out
}

func formatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(time.RFC3339)
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
