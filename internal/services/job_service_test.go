package services

import (
	"context"
	"errors"
	"testing"

	"github.com/soltixdb/forecaster/internal/metadata"
	"github.com/soltixdb/forecaster/internal/queue"
	"github.com/soltixdb/forecaster/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, []byte) error {
	return errors.New("broker down")
}

func (failingPublisher) Close() error { return nil }

func TestJobService_Submit(t *testing.T) {
	env := newTestEnv(t, testForecastConfig())
	upload := env.upload(t, linearCSV(20))

	job, err := env.jobs.Submit(context.Background(), &SubmitRequest{
		UploadID:     upload.UploadID,
		TimeColumn:   "date",
		TargetColumn: "y",
		Model:        "ARIMA",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, metadata.StatusPending, job.Status)
	assert.Equal(t, 14, job.Config.Horizon)
	assert.Equal(t, "arima", job.Config.Model)
	assert.Equal(t, 1, env.queue.PendingCount(testSubject))

	stored, err := env.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, stored.ID)
}

func TestJobService_SubmitPublishesJobMessage(t *testing.T) {
	env := newTestEnv(t, testForecastConfig())
	upload := env.upload(t, linearCSV(20))

	received := make(chan queue.JobMessage, 1)
	require.NoError(t, env.queue.Subscribe(context.Background(), testSubject, 1, func(_ context.Context, data []byte) error {
		msg, err := queue.DecodeJobMessage(data)
		if err != nil {
			return err
		}
		received <- msg
		return nil
	}))

	job, err := env.jobs.Submit(context.Background(), &SubmitRequest{
		UploadID:     upload.UploadID,
		TimeColumn:   "date",
		TargetColumn: "y",
		Horizon:      7,
	})
	require.NoError(t, err)

	msg := <-received
	assert.Equal(t, job.ID, msg.JobID)
	assert.Equal(t, upload.UploadID, msg.UploadID)
	assert.Equal(t, utils.ModelAuto, job.Config.Model)
}

func TestJobService_SubmitValidation(t *testing.T) {
	env := newTestEnv(t, testForecastConfig())
	upload := env.upload(t, linearCSV(20))

	tests := []struct {
		name string
		req  SubmitRequest
		code string
	}{
		{
			name: "invalid upload id",
			req:  SubmitRequest{UploadID: "../x", TimeColumn: "date", TargetColumn: "y"},
			code: CodeInvalidRequest,
		},
		{
			name: "unknown upload",
			req:  SubmitRequest{UploadID: "missing-upload", TimeColumn: "date", TargetColumn: "y"},
			code: CodeUploadNotFound,
		},
		{
			name: "missing target column",
			req:  SubmitRequest{UploadID: upload.UploadID, TimeColumn: "date", TargetColumn: "sales"},
			code: CodeInvalidRequest,
		},
		{
			name: "missing exogenous column",
			req:  SubmitRequest{UploadID: upload.UploadID, TimeColumn: "date", TargetColumn: "y", Exogenous: []string{"price"}},
			code: CodeInvalidRequest,
		},
		{
			name: "invalid column name",
			req:  SubmitRequest{UploadID: upload.UploadID, TimeColumn: "date", TargetColumn: "y;drop"},
			code: CodeInvalidRequest,
		},
		{
			name: "horizon too large",
			req:  SubmitRequest{UploadID: upload.UploadID, TimeColumn: "date", TargetColumn: "y", Horizon: 1000},
			code: CodeInvalidRequest,
		},
		{
			name: "negative horizon",
			req:  SubmitRequest{UploadID: upload.UploadID, TimeColumn: "date", TargetColumn: "y", Horizon: -1},
			code: CodeInvalidRequest,
		},
		{
			name: "unknown model",
			req:  SubmitRequest{UploadID: upload.UploadID, TimeColumn: "date", TargetColumn: "y", Model: "prophet"},
			code: CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := env.jobs.Submit(context.Background(), &req)
			se := AsServiceError(err)
			require.NotNil(t, se, "expected service error, got %v", err)
			assert.Equal(t, tt.code, se.Code)
		})
	}

	assert.Equal(t, 0, env.queue.PendingCount(testSubject))
}

func TestJobService_SubmitQueueUnavailable(t *testing.T) {
	env := newTestEnv(t, testForecastConfig())
	upload := env.upload(t, linearCSV(20))
	env.jobs.publisher = failingPublisher{}

	_, err := env.jobs.Submit(context.Background(), &SubmitRequest{
		UploadID:     upload.UploadID,
		TimeColumn:   "date",
		TargetColumn: "y",
	})
	se := AsServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, CodeQueueUnavailable, se.Code)

	jobID, ok := se.Details["jobId"].(string)
	require.True(t, ok)
	job, err := env.jobs.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, metadata.StatusPending, job.Status)
}

func TestJobService_GetUnknown(t *testing.T) {
	env := newTestEnv(t, testForecastConfig())

	_, err := env.jobs.Get(context.Background(), "nope")
	se := AsServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, CodeJobNotFound, se.Code)
}

func TestJobService_List(t *testing.T) {
	env := newTestEnv(t, testForecastConfig())
	upload := env.upload(t, linearCSV(20))

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := env.jobs.Submit(context.Background(), &SubmitRequest{
			UploadID:     upload.UploadID,
			TimeColumn:   "date",
			TargetColumn: "y",
		})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	jobs, err := env.jobs.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)

	jobs, err = env.jobs.List(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = env.jobs.List(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJobService_ResultNotReady(t *testing.T) {
	env := newTestEnv(t, testForecastConfig())
	upload := env.upload(t, linearCSV(20))

	job, err := env.jobs.Submit(context.Background(), &SubmitRequest{
		UploadID:     upload.UploadID,
		TimeColumn:   "date",
		TargetColumn: "y",
	})
	require.NoError(t, err)

	_, err = env.jobs.Result(context.Background(), job.ID)
	se := AsServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, CodeResultNotReady, se.Code)

	_, err = env.jobs.ArtifactPath(context.Background(), job.ID, utils.ForecastCSV)
	se = AsServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, CodeResultNotReady, se.Code)
}

func TestJobService_ArtifactPathUnknownName(t *testing.T) {
	env := newTestEnv(t, testForecastConfig())

	_, err := env.jobs.ArtifactPath(context.Background(), "job-1", "results.json")
	se := AsServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, CodeInvalidRequest, se.Code)
}
