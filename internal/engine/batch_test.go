package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sifthq/sift/internal/domain"
	"github.com/sifthq/sift/internal/storage"
)

func newTestBatch(staging, artifacts domain.ObjectStore, runner *fakeRunner, pollInterval, pollBudget time.Duration) *Batch {
	return NewBatch(BatchDependencies{
		Staging:       staging,
		Artifacts:     artifacts,
		Runner:        runner,
		Model:         "light-model",
		RoleARN:       "arn:aws:iam::123456789012:role/sift-batch",
		JobNamePrefix: "sift",
		PollInterval:  pollInterval,
		PollBudget:    pollBudget,
	})
}

// batchOutput renders one successful backend output line for a record.
func batchOutput(t *testing.T, recordID, text string) string {
	t.Helper()

	line, err := json.Marshal(map[string]any{
		"recordId": recordID,
		"modelOutput": map[string]any{
			"output": map[string]any{
				"message": map[string]any{
					"content": []map[string]string{{"text": text}},
				},
			},
		},
	})
	require.NoError(t, err)
	return string(line)
}

func TestBatchSubmitBuildsManifestAndStartsJob(t *testing.T) {
	staging := storage.NewMemoryStore()
	runner := &fakeRunner{}
	events := caseEvents(3)
	rc := testRunContext(domain.RouteBatch)

	job, err := newTestBatch(staging, storage.NewMemoryStore(), runner, time.Minute, time.Hour).
		Submit(context.Background(), rc, events, testTaxonomy())

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(job.Name, "sift-cases-"), "job name %q", job.Name)
	assert.Equal(t, domain.BatchJobSubmitted, job.Status)
	assert.Equal(t, "job-arn-"+job.Name, job.ID)
	assert.Equal(t, 3, job.RecordCount)
	assert.Equal(t, stagingInputKey(job.Name), job.InputKey)
	assert.Equal(t, stagingOutputPrefix(job.Name), job.OutputPrefix)

	require.Len(t, runner.submitted, 1)
	sub := runner.submitted[0]
	assert.Equal(t, job.Name, sub.JobName)
	assert.Equal(t, "light-model", sub.ModelID)
	assert.Equal(t, "arn:aws:iam::123456789012:role/sift-batch", sub.RoleARN)
	assert.Equal(t, job.InputKey, sub.InputKey)
	assert.Equal(t, job.OutputPrefix, sub.OutputPrefix)
	assert.Equal(t, 3, sub.RecordCount)

	manifest, err := staging.Get(context.Background(), job.InputKey)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(manifest)), "\n")
	require.Len(t, lines, 3)

	for i, line := range lines {
		var record struct {
			RecordID   string `json:"recordId"`
			ModelInput struct {
				Messages []struct {
					Role    string `json:"role"`
					Content []struct {
						Text string `json:"text"`
					} `json:"content"`
				} `json:"messages"`
				System []struct {
					Text string `json:"text"`
				} `json:"system"`
				InferenceConfig struct {
					MaxTokens   int     `json:"maxTokens"`
					Temperature float32 `json:"temperature"`
					TopP        float32 `json:"topP"`
				} `json:"inferenceConfig"`
			} `json:"modelInput"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &record), "line %d", i)

		assert.Equal(t, events[i].ID(), record.RecordID)
		require.Len(t, record.ModelInput.Messages, 1)
		assert.Equal(t, "user", record.ModelInput.Messages[0].Role)
		require.Len(t, record.ModelInput.Messages[0].Content, 1)
		assert.Contains(t, record.ModelInput.Messages[0].Content[0].Text, events[i].ID())
		require.Len(t, record.ModelInput.System, 1)
		assert.Contains(t, record.ModelInput.System[0].Text, "throttling")
		assert.Equal(t, 10240, record.ModelInput.InferenceConfig.MaxTokens)
		assert.InDelta(t, 0.5, record.ModelInput.InferenceConfig.Temperature, 0.0001)
		assert.InDelta(t, 0.1, record.ModelInput.InferenceConfig.TopP, 0.0001)
	}
}

func TestBatchSubmitPropagatesRunnerError(t *testing.T) {
	runner := &fakeRunner{submitErr: errors.New("quota exceeded")}
	rc := testRunContext(domain.RouteBatch)

	_, err := newTestBatch(storage.NewMemoryStore(), storage.NewMemoryStore(), runner, time.Minute, time.Hour).
		Submit(context.Background(), rc, caseEvents(2), testTaxonomy())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to submit batch job")
}

func TestBatchPollWaitsForTerminalStatus(t *testing.T) {
	runner := &fakeRunner{
		statuses: []domain.JobState{
			{Status: domain.BatchJobInProgress},
			{Status: domain.BatchJobInProgress},
			{Status: domain.BatchJobCompleted},
		},
	}
	batch := newTestBatch(storage.NewMemoryStore(), storage.NewMemoryStore(), runner, time.Millisecond, time.Minute)

	job, err := batch.Poll(context.Background(), domain.BatchJob{ID: "job-1", Name: "sift-cases-abc"})

	require.NoError(t, err)
	assert.Equal(t, domain.BatchJobCompleted, job.Status)
	assert.False(t, job.CompletedAt.IsZero())
	assert.Equal(t, 3, runner.statusN)
}

func TestBatchPollReturnsFailedJobWithoutError(t *testing.T) {
	runner := &fakeRunner{
		statuses: []domain.JobState{
			{Status: domain.BatchJobFailed, Message: "model access revoked"},
		},
	}
	batch := newTestBatch(storage.NewMemoryStore(), storage.NewMemoryStore(), runner, time.Millisecond, time.Minute)

	job, err := batch.Poll(context.Background(), domain.BatchJob{ID: "job-1", Name: "sift-cases-abc"})

	require.NoError(t, err, "terminal statuses are reported, not raised")
	assert.Equal(t, domain.BatchJobFailed, job.Status)
	assert.Equal(t, "model access revoked", job.StatusMessage)
}

func TestBatchPollSurvivesTransientStatusErrors(t *testing.T) {
	runner := &fakeRunner{
		statusErrFirst: 2,
		statuses: []domain.JobState{
			{Status: domain.BatchJobCompleted},
		},
	}
	batch := newTestBatch(storage.NewMemoryStore(), storage.NewMemoryStore(), runner, time.Millisecond, time.Minute)

	job, err := batch.Poll(context.Background(), domain.BatchJob{ID: "job-1", Name: "sift-cases-abc"})

	require.NoError(t, err)
	assert.Equal(t, domain.BatchJobCompleted, job.Status)
	assert.Equal(t, 3, runner.statusN)
}

func TestBatchPollTimesOut(t *testing.T) {
	runner := &fakeRunner{} // never reaches a terminal status
	batch := newTestBatch(storage.NewMemoryStore(), storage.NewMemoryStore(), runner, time.Millisecond, 5*time.Millisecond)

	job, err := batch.Poll(context.Background(), domain.BatchJob{ID: "job-1", Name: "sift-cases-abc"})

	require.ErrorIs(t, err, domain.ErrBatchTimeout)
	assert.Equal(t, domain.BatchJobFailed, job.Status)
	assert.Equal(t, "polling budget exhausted", job.StatusMessage)
}

func TestBatchPollStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{}
	batch := newTestBatch(storage.NewMemoryStore(), storage.NewMemoryStore(), runner, time.Hour, 2*time.Hour)

	done := make(chan error, 1)
	go func() {
		_, err := batch.Poll(ctx, domain.BatchJob{ID: "job-1", Name: "sift-cases-abc"})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("poll loop did not observe cancellation")
	}
}

func TestBatchFetchDemuxesOutputsByRecord(t *testing.T) {
	staging := storage.NewMemoryStore()
	artifacts := storage.NewMemoryStore()
	runner := &fakeRunner{}
	rc := testRunContext(domain.RouteBatch)
	partition := batchPartition(rc.Mode, rc.StartedAt)
	events := caseEvents(4)

	job := domain.BatchJob{
		ID:           "job-1",
		Name:         "sift-cases-abc",
		Status:       domain.BatchJobCompleted,
		OutputPrefix: stagingOutputPrefix("sift-cases-abc"),
	}

	outputLines := strings.Join([]string{
		batchOutput(t, "case-000", analysisJSON("throttling", "rate limited")),
		`{"recordId":"case-001","error":{"errorCode":"TooLong","errorMessage":"input too long"}}`,
		batchOutput(t, "case-002", "the model refused to answer"),
		batchOutput(t, "ghost-999", analysisJSON("throttling", "orphan")),
	}, "\n")
	// case-003 has no output line at all.

	ctx := context.Background()
	require.NoError(t, staging.Put(ctx, job.OutputPrefix+"input.jsonl.out", []byte(outputLines)))
	require.NoError(t, staging.Put(ctx, job.OutputPrefix+"manifest.json.out", []byte(`{"totalRecordCount":4}`)))

	results, failures, err := newTestBatch(staging, artifacts, runner, time.Minute, time.Hour).
		Fetch(ctx, rc, partition, job, events, testTaxonomy())

	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "case-000", results[0].EventID)
	assert.Equal(t, "throttling", results[0].Category)
	assert.Equal(t, domain.RouteBatch, results[0].Route)

	require.Len(t, failures, 3)
	assert.Equal(t, "case-001", failures[0].EventID)
	assert.Contains(t, failures[0].Reason, "batch record error")
	assert.Contains(t, failures[0].Reason, "input too long")
	assert.Equal(t, "case-002", failures[1].EventID)
	assert.Contains(t, failures[1].Reason, "no JSON object")
	assert.Equal(t, "case-003", failures[2].EventID)
	assert.Equal(t, "no output record in batch result", failures[2].Reason)

	stored, err := artifacts.Get(ctx, eventKey(partition, "case-000"))
	require.NoError(t, err)
	var result domain.AnalysisResult
	require.NoError(t, json.Unmarshal(stored, &result))
	assert.Equal(t, rc.RunID, result.RunID)

	_, err = artifacts.Get(ctx, eventKey(partition, "case-001"))
	assert.ErrorIs(t, err, domain.ErrObjectNotFound)

	keys, err := staging.List(ctx, stagingPrefix(job.Name))
	require.NoError(t, err)
	assert.Empty(t, keys, "staging area is cleaned up after the fetch")
}

func TestBatchFetchIgnoresNonRecordObjects(t *testing.T) {
	staging := storage.NewMemoryStore()
	rc := testRunContext(domain.RouteBatch)
	partition := batchPartition(rc.Mode, rc.StartedAt)
	events := caseEvents(1)

	job := domain.BatchJob{
		ID:           "job-1",
		Name:         "sift-cases-def",
		OutputPrefix: stagingOutputPrefix("sift-cases-def"),
	}

	ctx := context.Background()
	require.NoError(t, staging.Put(ctx, job.OutputPrefix+"manifest.json.out", []byte(`{"totalRecordCount":1}`)))
	require.NoError(t, staging.Put(ctx, job.OutputPrefix+"input.jsonl.out",
		[]byte(batchOutput(t, "case-000", analysisJSON("limit-reached", "quota")))))

	results, failures, err := newTestBatch(staging, storage.NewMemoryStore(), &fakeRunner{}, time.Minute, time.Hour).
		Fetch(ctx, rc, partition, job, events, testTaxonomy())

	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, results, 1)
	assert.Equal(t, "limit-reached", results[0].Category)
}

func TestBatchFetchSkipsMalformedLines(t *testing.T) {
	staging := storage.NewMemoryStore()
	rc := testRunContext(domain.RouteBatch)
	partition := batchPartition(rc.Mode, rc.StartedAt)
	events := caseEvents(1)

	job := domain.BatchJob{
		ID:           "job-1",
		Name:         "sift-cases-ghi",
		OutputPrefix: stagingOutputPrefix("sift-cases-ghi"),
	}

	lines := fmt.Sprintf("not json at all\n\n%s\n", batchOutput(t, "case-000", analysisJSON("throttling", "ok")))

	ctx := context.Background()
	require.NoError(t, staging.Put(ctx, job.OutputPrefix+"input.jsonl.out", []byte(lines)))

	results, failures, err := newTestBatch(staging, storage.NewMemoryStore(), &fakeRunner{}, time.Minute, time.Hour).
		Fetch(ctx, rc, partition, job, events, testTaxonomy())

	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, results, 1)
	assert.Equal(t, "case-000", results[0].EventID)
}
