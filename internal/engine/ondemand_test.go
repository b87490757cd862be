package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sifthq/sift/internal/domain"
	"github.com/sifthq/sift/internal/storage"
	"github.com/sifthq/sift/pkg/inference"
)

func newTestOnDemand(client *fakeInference, artifacts domain.ObjectStore, workers int) *OnDemand {
	return NewOnDemand(OnDemandDependencies{
		Client:    client,
		Artifacts: artifacts,
		Model:     "light-model",
		Workers:   workers,
		Retry:     RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond},
	})
}

func TestOnDemandAnalyzesAllEvents(t *testing.T) {
	client := &fakeInference{
		generate: func(req inference.GenerateRequest) (*inference.GenerateResponse, error) {
			switch {
			case strings.Contains(req.Prompt, "case-000"):
				return &inference.GenerateResponse{Content: analysisJSON("throttling", "rate limited")}, nil
			case strings.Contains(req.Prompt, "case-001"):
				// Labels come back in whatever casing the model chose.
				return &inference.GenerateResponse{Content: analysisJSON("Limit-Reached", "quota hit")}, nil
			default:
				return &inference.GenerateResponse{Content: analysisJSON("something-new", "unmapped")}, nil
			}
		},
	}
	artifacts := storage.NewMemoryStore()
	rc := testRunContext(domain.RouteOnDemand)
	partition := ondemandPartition(rc.Mode, rc.Window)

	results, failures, err := newTestOnDemand(client, artifacts, 2).
		Run(context.Background(), rc, partition, caseEvents(3), testTaxonomy())

	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, results, 3)

	assert.Equal(t, "case-000", results[0].EventID)
	assert.Equal(t, "case-001", results[1].EventID)
	assert.Equal(t, "case-002", results[2].EventID)

	assert.Equal(t, "throttling", results[0].Category)
	assert.Equal(t, "limit-reached", results[1].Category, "labels are folded onto the taxonomy casing")
	assert.Equal(t, domain.OtherCategory, results[2].Category, "unknown labels land in the fallback category")

	for _, result := range results {
		assert.Equal(t, rc.RunID, result.RunID)
		assert.Equal(t, rc.Mode, result.Mode)
		assert.Equal(t, rc.Window, result.Window)
		assert.Equal(t, domain.RouteOnDemand, result.Route)
		assert.Equal(t, result.EventID, result.Identity["case_id"], "identity comes from the event, not the model")

		data, err := artifacts.Get(context.Background(), eventKey(partition, result.EventID))
		require.NoError(t, err)

		var stored domain.AnalysisResult
		require.NoError(t, json.Unmarshal(data, &stored))
		assert.Equal(t, result.EventID, stored.EventID)
		assert.Equal(t, result.Category, stored.Category)
	}
}

func TestOnDemandContainsPerEventFailures(t *testing.T) {
	client := &fakeInference{
		generate: func(req inference.GenerateRequest) (*inference.GenerateResponse, error) {
			if strings.Contains(req.Prompt, "case-001") {
				return nil, inference.Permanent(errors.New("input rejected"))
			}
			return &inference.GenerateResponse{Content: analysisJSON("throttling", "ok")}, nil
		},
	}
	artifacts := storage.NewMemoryStore()
	rc := testRunContext(domain.RouteOnDemand)
	partition := ondemandPartition(rc.Mode, rc.Window)

	results, failures, err := newTestOnDemand(client, artifacts, 2).
		Run(context.Background(), rc, partition, caseEvents(3), testTaxonomy())

	require.NoError(t, err, "a failed event must not fail the run")
	require.Len(t, results, 2)
	assert.Equal(t, "case-000", results[0].EventID)
	assert.Equal(t, "case-002", results[1].EventID)

	require.Len(t, failures, 1)
	assert.Equal(t, "case-001", failures[0].EventID)
	assert.Contains(t, failures[0].Reason, "input rejected")

	_, err = artifacts.Get(context.Background(), eventKey(partition, "case-001"))
	assert.ErrorIs(t, err, domain.ErrObjectNotFound, "failed events leave no artifact behind")
}

func TestOnDemandRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	client := &fakeInference{
		generate: func(req inference.GenerateRequest) (*inference.GenerateResponse, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("throttled")
			}
			return &inference.GenerateResponse{Content: analysisJSON("throttling", "ok")}, nil
		},
	}
	rc := testRunContext(domain.RouteOnDemand)

	results, failures, err := newTestOnDemand(client, storage.NewMemoryStore(), 1).
		Run(context.Background(), rc, ondemandPartition(rc.Mode, rc.Window), caseEvents(1), testTaxonomy())

	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, results, 1)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestOnDemandBoundsParallelism(t *testing.T) {
	const workers = 2

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	client := &fakeInference{
		generate: func(req inference.GenerateRequest) (*inference.GenerateResponse, error) {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()

			return &inference.GenerateResponse{Content: analysisJSON("throttling", "ok")}, nil
		},
	}
	rc := testRunContext(domain.RouteOnDemand)

	results, failures, err := newTestOnDemand(client, storage.NewMemoryStore(), workers).
		Run(context.Background(), rc, ondemandPartition(rc.Mode, rc.Window), caseEvents(8), testTaxonomy())

	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Len(t, results, 8)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, workers, "no more than %d analyses may run at once", workers)
	assert.Greater(t, peak, 0)
}

func TestOnDemandStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeInference{}
	rc := testRunContext(domain.RouteOnDemand)

	results, failures, err := newTestOnDemand(client, storage.NewMemoryStore(), 2).
		Run(ctx, rc, ondemandPartition(rc.Mode, rc.Window), caseEvents(4), testTaxonomy())

	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
	assert.Nil(t, failures)
}

func TestOnDemandRejectsUndecodableOutput(t *testing.T) {
	client := &fakeInference{
		generate: func(req inference.GenerateRequest) (*inference.GenerateResponse, error) {
			return &inference.GenerateResponse{Content: "I could not classify this event."}, nil
		},
	}
	rc := testRunContext(domain.RouteOnDemand)

	results, failures, err := newTestOnDemand(client, storage.NewMemoryStore(), 1).
		Run(context.Background(), rc, ondemandPartition(rc.Mode, rc.Window), caseEvents(1), testTaxonomy())

	require.NoError(t, err)
	assert.Empty(t, results)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Reason, "no JSON object")
}

func TestOnDemandPromptCarriesEventBody(t *testing.T) {
	client := &fakeInference{}
	rc := testRunContext(domain.RouteOnDemand)
	event := caseEvent("case-042")

	_, _, err := newTestOnDemand(client, storage.NewMemoryStore(), 1).
		Run(context.Background(), rc, ondemandPartition(rc.Mode, rc.Window), []domain.EventRecord{event}, testTaxonomy())
	require.NoError(t, err)

	calls := client.generateCalls()
	require.Len(t, calls, 1)

	assert.Equal(t, "light-model", calls[0].Model)
	assert.Contains(t, calls[0].Prompt, fmt.Sprintf("<event>%s</event>", event.Body()))
	assert.Contains(t, calls[0].System, "throttling")
	assert.Contains(t, calls[0].System, domain.OtherCategory)
	assert.InDelta(t, 0.5, calls[0].Temperature, 0.0001)
	assert.InDelta(t, 0.1, calls[0].TopP, 0.0001)
	assert.Equal(t, 10240, calls[0].MaxTokens)
}
