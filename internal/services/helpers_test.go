package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/soltixdb/forecaster/internal/config"
	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/soltixdb/forecaster/internal/metadata"
	"github.com/soltixdb/forecaster/internal/modelmanager"
	"github.com/soltixdb/forecaster/internal/preprocess"
	"github.com/soltixdb/forecaster/internal/queue"
	"github.com/soltixdb/forecaster/internal/storage"
	"github.com/stretchr/testify/require"
)

const testSubject = "forecast.jobs"

type testEnv struct {
	store    *storage.LocalStore
	tracker  *metadata.Tracker
	queue    *queue.MemoryQueue
	uploads  *UploadService
	jobs     *JobService
	forecast *ForecastService
}

func testForecastConfig() config.ForecastConfig {
	return config.ForecastConfig{
		DefaultHorizon: 14,
		MaxHorizon:     365,
		Confidence:     0.95,
		MaxP:           3,
		MaxD:           2,
		MaxQ:           2,
		NLags:          7,
		MaxDepth:       3,
		NEstimators:    50,
		LearningRate:   0.1,
		Lambda:         1,
		ChartMaxPoints: 500,
	}
}

func newTestEnv(t *testing.T, cfg config.ForecastConfig) *testEnv {
	t.Helper()
	logger := logging.Nop()

	store, err := storage.NewLocalStore(t.TempDir(), logger)
	require.NoError(t, err)

	tracker := metadata.NewTracker(metadata.NewMemoryStore())
	q := queue.NewMemoryQueue()
	t.Cleanup(func() { _ = q.Close() })

	manager := modelmanager.NewDefault(cfg.ModelConfig(), logger)
	uploads := NewUploadService(logger, store)

	return &testEnv{
		store:    store,
		tracker:  tracker,
		queue:    q,
		uploads:  uploads,
		jobs:     NewJobService(logger, uploads, store, tracker, q, testSubject, cfg, manager.Names()),
		forecast: NewForecastService(logger, store, tracker, manager, preprocess.NewPreparer(time.UTC, logger), cfg),
	}
}

// linearCSV builds n daily rows of y = 10 + 2i starting 2024-01-01.
func linearCSV(n int) string {
	var b strings.Builder
	b.WriteString("date,y\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%s,%d\n", start.AddDate(0, 0, i).Format("2006-01-02"), 10+2*i)
	}
	return b.String()
}

func (e *testEnv) upload(t *testing.T, csv string) *Upload {
	t.Helper()
	upload, err := e.uploads.Upload(context.Background(), "sales.csv", strings.NewReader(csv))
	require.NoError(t, err)
	return upload
}
