package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sifthq/sift/internal/domain"
	"github.com/sifthq/sift/internal/prompts"
)

// Batch drives the bulk-inference path: one manifest upload, one submitted
// job, a sleeping poll loop and a demux of the job's output objects.
type Batch struct {
	staging       domain.ObjectStore
	artifacts     domain.ObjectStore
	runner        domain.BatchRunner
	model         string
	roleARN       string
	jobNamePrefix string
	pollInterval  time.Duration
	pollBudget    time.Duration
}

type BatchDependencies struct {
	Staging       domain.ObjectStore
	Artifacts     domain.ObjectStore
	Runner        domain.BatchRunner
	Model         string
	RoleARN       string
	JobNamePrefix string
	PollInterval  time.Duration
	PollBudget    time.Duration
}

func NewBatch(deps BatchDependencies) *Batch {
	return &Batch{
		staging:       deps.Staging,
		artifacts:     deps.Artifacts,
		runner:        deps.Runner,
		model:         deps.Model,
		roleARN:       deps.RoleARN,
		jobNamePrefix: deps.JobNamePrefix,
		pollInterval:  deps.PollInterval,
		pollBudget:    deps.PollBudget,
	}
}

// Manifest record layout expected by the bulk-inference backend. One line per
// event, keyed by the event identifier.
type batchRecord struct {
	RecordID   string          `json:"recordId"`
	ModelInput batchModelInput `json:"modelInput"`
}

type batchModelInput struct {
	Messages        []batchMessage       `json:"messages"`
	System          []batchText          `json:"system"`
	InferenceConfig batchInferenceConfig `json:"inferenceConfig"`
}

type batchMessage struct {
	Role    string      `json:"role"`
	Content []batchText `json:"content"`
}

type batchText struct {
	Text string `json:"text"`
}

type batchInferenceConfig struct {
	MaxTokens   int     `json:"maxTokens"`
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"topP"`
}

type batchOutputLine struct {
	RecordID    string `json:"recordId"`
	ModelOutput struct {
		Output struct {
			Message struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"message"`
		} `json:"output"`
	} `json:"modelOutput"`
	Error json.RawMessage `json:"error,omitempty"`
}

// Submit builds the JSONL manifest, uploads it to the staging store and
// starts the job.
func (b *Batch) Submit(ctx context.Context, rc domain.RunContext, events []domain.EventRecord, tax domain.Taxonomy) (domain.BatchJob, error) {
	jobName := fmt.Sprintf("%s-%s-%s", b.jobNamePrefix, rc.Mode, uuid.NewString()[:8])

	var manifest bytes.Buffer
	for _, event := range events {
		system, user := prompts.Classification(tax, event)

		record := batchRecord{
			RecordID: event.ID(),
			ModelInput: batchModelInput{
				Messages: []batchMessage{
					{
						Role:    "user",
						Content: []batchText{{Text: user}},
					},
				},
				System: []batchText{{Text: system}},
				InferenceConfig: batchInferenceConfig{
					MaxTokens:   prompts.ClassifyMaxTokens,
					Temperature: prompts.ClassifyTemperature,
					TopP:        prompts.ClassifyTopP,
				},
			},
		}

		line, err := json.Marshal(record)
		if err != nil {
			return domain.BatchJob{}, fmt.Errorf("failed to marshal manifest record %s: %w", event.ID(), err)
		}

		manifest.Write(line)
		manifest.WriteByte('\n')
	}

	inputKey := stagingInputKey(jobName)
	outputPrefix := stagingOutputPrefix(jobName)

	if err := b.staging.Put(ctx, inputKey, manifest.Bytes()); err != nil {
		return domain.BatchJob{}, fmt.Errorf("failed to upload manifest: %w", err)
	}

	jobID, err := b.runner.Submit(ctx, domain.BatchSubmission{
		JobName:      jobName,
		ModelID:      b.model,
		RoleARN:      b.roleARN,
		InputKey:     inputKey,
		OutputPrefix: outputPrefix,
		RecordCount:  len(events),
	})
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("failed to submit batch job %s: %w", jobName, err)
	}

	log.Info().
		Str("job_id", jobID).
		Str("job_name", jobName).
		Int("records", len(events)).
		Msg("Batch job submitted")

	return domain.BatchJob{
		ID:           jobID,
		Name:         jobName,
		Status:       domain.BatchJobSubmitted,
		ModelID:      b.model,
		InputKey:     inputKey,
		OutputPrefix: outputPrefix,
		RecordCount:  len(events),
		SubmittedAt:  time.Now().UTC(),
	}, nil
}

// Poll waits for the job to reach a terminal status, sleeping between status
// checks. It returns ErrBatchTimeout when the budget runs out first; context
// cancellation stops polling without stopping the external job.
func (b *Batch) Poll(ctx context.Context, job domain.BatchJob) (domain.BatchJob, error) {
	deadline := time.Now().Add(b.pollBudget)

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}

		state, err := b.runner.Status(ctx, job.ID)
		if err != nil {
			// Status lookups may hit transient backend errors; the poll
			// budget bounds how long this can go on.
			log.Warn().Err(err).Str("job_name", job.Name).Msg("Batch status check failed")
		} else {
			job.Status = state.Status
			job.StatusMessage = state.Message

			if job.Status.Terminal() {
				job.CompletedAt = time.Now().UTC()
				log.Info().
					Str("job_name", job.Name).
					Str("status", string(job.Status)).
					Msg("Batch job reached terminal status")
				return job, nil
			}
		}

		if time.Now().After(deadline) {
			job.Status = domain.BatchJobFailed
			job.StatusMessage = "polling budget exhausted"
			return job, fmt.Errorf("job %s: %w", job.Name, domain.ErrBatchTimeout)
		}

		log.Debug().
			Str("job_name", job.Name).
			Str("status", string(job.Status)).
			Msg("Batch job still running")
	}
}

// Fetch demuxes the job output by record identifier, persists one artifact
// per analyzed event and cleans up the staging area. Events without a usable
// output line become failure entries.
func (b *Batch) Fetch(ctx context.Context, rc domain.RunContext, partition string, job domain.BatchJob, events []domain.EventRecord, tax domain.Taxonomy) ([]domain.AnalysisResult, []domain.EventFailure, error) {
	keys, err := b.staging.List(ctx, job.OutputPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list batch output: %w", err)
	}

	outputs := make(map[string]batchOutputLine, len(events))

	for _, key := range keys {
		// The backend writes <input>.jsonl.out plus a manifest.json.out
		// summary; only the former carries records.
		if !strings.HasSuffix(key, ".jsonl.out") {
			continue
		}

		data, err := b.staging.Get(ctx, key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read batch output %s: %w", key, err)
		}

		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var out batchOutputLine
			if err := json.Unmarshal(line, &out); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Skipping undecodable batch output line")
				continue
			}

			if out.RecordID == "" {
				log.Warn().Str("key", key).Msg("Skipping batch output line without record id")
				continue
			}

			outputs[out.RecordID] = out
		}

		if err := scanner.Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to scan batch output %s: %w", key, err)
		}
	}

	var (
		results  []domain.AnalysisResult
		failures []domain.EventFailure
	)

	for _, event := range events {
		out, ok := outputs[event.ID()]
		if !ok {
			failures = append(failures, domain.EventFailure{
				EventID: event.ID(),
				Reason:  "no output record in batch result",
			})
			continue
		}
		delete(outputs, event.ID())

		if len(out.Error) > 0 {
			failures = append(failures, domain.EventFailure{
				EventID: event.ID(),
				Reason:  fmt.Sprintf("batch record error: %s", string(out.Error)),
			})
			continue
		}

		var text strings.Builder
		for _, content := range out.ModelOutput.Output.Message.Content {
			text.WriteString(content.Text)
		}

		analysis, err := parseModelAnalysis(text.String())
		if err != nil {
			failures = append(failures, domain.EventFailure{
				EventID: event.ID(),
				Reason:  err.Error(),
			})
			continue
		}

		result := assembleResult(rc, event, analysis, tax)

		data, err := marshalResult(result)
		if err != nil {
			failures = append(failures, domain.EventFailure{
				EventID: event.ID(),
				Reason:  err.Error(),
			})
			continue
		}

		if err := b.artifacts.Put(ctx, eventKey(partition, event.ID()), data); err != nil {
			return nil, nil, fmt.Errorf("failed to persist result %s: %w", event.ID(), err)
		}

		results = append(results, result)
	}

	for recordID := range outputs {
		log.Warn().Str("record_id", recordID).Msg("Batch output for unknown record")
	}

	if err := b.staging.DeletePrefix(ctx, stagingPrefix(job.Name)); err != nil {
		log.Warn().Err(err).Str("job_name", job.Name).Msg("Failed to clean up staging area")
	}

	sort.Slice(results, func(i, j int) bool { return results[i].EventID < results[j].EventID })
	sort.Slice(failures, func(i, j int) bool { return failures[i].EventID < failures[j].EventID })

	return results, failures, nil
}
