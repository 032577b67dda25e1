package services

import (
	"time"

	"github.com/soltixdb/forecaster/internal/analytics/forecast"
)

// ModelForecast is one fitted model's forecast and scores.
type ModelForecast struct {
	Predictions []float64        `json:"predictions"`
	LowerBound  []float64        `json:"lowerBound"`
	UpperBound  []float64        `json:"upperBound"`
	Metrics     forecast.Metrics `json:"metrics"`
}

// HistoricalPoint echoes one observation of the prepared series.
type HistoricalPoint struct {
	Date       string  `json:"date"`
	Actual     float64 `json:"actual"`
	IsForecast bool    `json:"isForecast"`
}

// ForecastRecord is the results.json document of a completed job.
type ForecastRecord struct {
	Status               string                      `json:"status"`
	JobID                string                      `json:"jobId"`
	UploadID             string                      `json:"uploadId"`
	ModelUsed            string                      `json:"modelUsed"`
	Predictions          []float64                   `json:"predictions"`
	ForecastDates        []string                    `json:"forecastDates"`
	LowerBound           []float64                   `json:"lowerBound"`
	UpperBound           []float64                   `json:"upperBound"`
	Metrics              map[string]forecast.Metrics `json:"metrics"`
	AllModels            map[string]ModelForecast    `json:"allModels"`
	HistoricalDataPoints int                         `json:"historicalDataPoints"`
	ForecastHorizon      int                         `json:"forecastHorizon"`
	HistoricalData       []HistoricalPoint           `json:"historicalData"`
	Insights             string                      `json:"insights"`
	CSVPath              string                      `json:"csvPath"`
	ChartPath            *string                     `json:"chartPath"`
	ModelPath            string                      `json:"modelPath,omitempty"`
	CompletedAt          time.Time                   `json:"completedAt"`
}

// FailureRecord is the error.json document of a failed job.
type FailureRecord struct {
	Status     string    `json:"status"`
	JobID      string    `json:"jobId"`
	UploadID   string    `json:"uploadId"`
	Error      string    `json:"error"`
	ErrorTrace string    `json:"errorTrace"`
	FailedAt   time.Time `json:"failedAt"`
}
