package managers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/bedrock"
	"github.com/rs/zerolog/log"

	"github.com/sifthq/sift/internal/domain"
)

// MinBatchRecords is the smallest manifest the bulk-inference backend
// accepts. The routing threshold must stay at or above this.
const MinBatchRecords = 100

// BedrockJobsAPI is the slice of the Bedrock control-plane API the batch
// runner needs.
type BedrockJobsAPI interface {
	CreateModelInvocationJobWithContext(ctx aws.Context, input *bedrock.CreateModelInvocationJobInput, opts ...request.Option) (*bedrock.CreateModelInvocationJobOutput, error)
	GetModelInvocationJobWithContext(ctx aws.Context, input *bedrock.GetModelInvocationJobInput, opts ...request.Option) (*bedrock.GetModelInvocationJobOutput, error)
	ListModelInvocationJobsPagesWithContext(ctx aws.Context, input *bedrock.ListModelInvocationJobsInput, fn func(*bedrock.ListModelInvocationJobsOutput, bool) bool, opts ...request.Option) error
}

type batchRunnerManager struct {
	client BedrockJobsAPI
	bucket string
}

type BatchRunnerManagerDependencies struct {
	Client BedrockJobsAPI
	// Bucket holding the staged manifests and job outputs.
	Bucket string
}

func NewBatchRunnerManager(deps BatchRunnerManagerDependencies) domain.BatchRunner {
	return &batchRunnerManager{
		client: deps.Client,
		bucket: deps.Bucket,
	}
}

// NewBedrockJobsClient builds the real control-plane client from an AWS
// session.
func NewBedrockJobsClient(sess *session.Session) BedrockJobsAPI {
	return bedrock.New(sess)
}

func (m *batchRunnerManager) s3URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", m.bucket, key)
}

func (m *batchRunnerManager) Submit(ctx context.Context, sub domain.BatchSubmission) (string, error) {
	if sub.RecordCount < MinBatchRecords {
		return "", fmt.Errorf("manifest holds %d records, the backend requires at least %d", sub.RecordCount, MinBatchRecords)
	}

	out, err := m.client.CreateModelInvocationJobWithContext(ctx, &bedrock.CreateModelInvocationJobInput{
		JobName:            aws.String(sub.JobName),
		ModelId:            aws.String(sub.ModelID),
		RoleArn:            aws.String(sub.RoleARN),
		ClientRequestToken: aws.String(sub.JobName),
		InputDataConfig: &bedrock.ModelInvocationJobInputDataConfig{
			S3InputDataConfig: &bedrock.ModelInvocationJobS3InputDataConfig{
				S3Uri:         aws.String(m.s3URI(sub.InputKey)),
				S3InputFormat: aws.String(bedrock.S3InputFormatJsonl),
			},
		},
		OutputDataConfig: &bedrock.ModelInvocationJobOutputDataConfig{
			S3OutputDataConfig: &bedrock.ModelInvocationJobS3OutputDataConfig{
				S3Uri: aws.String(m.s3URI(sub.OutputPrefix)),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create model invocation job: %w", err)
	}

	return aws.StringValue(out.JobArn), nil
}

func (m *batchRunnerManager) Status(ctx context.Context, jobID string) (domain.JobState, error) {
	out, err := m.client.GetModelInvocationJobWithContext(ctx, &bedrock.GetModelInvocationJobInput{
		JobIdentifier: aws.String(jobID),
	})
	if err != nil {
		return domain.JobState{}, fmt.Errorf("failed to get model invocation job: %w", err)
	}

	return domain.JobState{
		Status:  mapJobStatus(aws.StringValue(out.Status)),
		Message: aws.StringValue(out.Message),
	}, nil
}

func (m *batchRunnerManager) CountActive(ctx context.Context, prefix string) (int, error) {
	var active int

	err := m.client.ListModelInvocationJobsPagesWithContext(ctx, &bedrock.ListModelInvocationJobsInput{
		NameContains: aws.String(prefix),
	}, func(page *bedrock.ListModelInvocationJobsOutput, lastPage bool) bool {
		for _, summary := range page.InvocationJobSummaries {
			if !strings.HasPrefix(aws.StringValue(summary.JobName), prefix) {
				continue
			}
			if !mapJobStatus(aws.StringValue(summary.Status)).Terminal() {
				active++
			}
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list model invocation jobs: %w", err)
	}

	return active, nil
}

func (m *batchRunnerManager) MinRecordCount() int {
	return MinBatchRecords
}

// mapJobStatus folds the backend's job states onto the domain states.
// Partially completed jobs count as completed; the records that failed
// surface as per-event failures when the output is demuxed.
func mapJobStatus(status string) domain.BatchJobStatus {
	switch status {
	case bedrock.ModelInvocationJobStatusSubmitted:
		return domain.BatchJobSubmitted
	case bedrock.ModelInvocationJobStatusValidating,
		bedrock.ModelInvocationJobStatusScheduled,
		bedrock.ModelInvocationJobStatusInProgress,
		bedrock.ModelInvocationJobStatusStopping:
		return domain.BatchJobInProgress
	case bedrock.ModelInvocationJobStatusCompleted,
		bedrock.ModelInvocationJobStatusPartiallyCompleted:
		return domain.BatchJobCompleted
	case bedrock.ModelInvocationJobStatusFailed,
		bedrock.ModelInvocationJobStatusExpired:
		return domain.BatchJobFailed
	case bedrock.ModelInvocationJobStatusStopped:
		return domain.BatchJobStopped
	default:
		log.Warn().Str("status", status).Msg("Unknown batch job status, treating as in progress")
		return domain.BatchJobInProgress
	}
}
