package managers

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/bedrock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sifthq/sift/internal/domain"
)

type fakeBedrockJobs struct {
	created   []*bedrock.CreateModelInvocationJobInput
	createErr error
	status    string
	message   string
	summaries []*bedrock.ModelInvocationJobSummary
}

func (f *fakeBedrockJobs) CreateModelInvocationJobWithContext(ctx aws.Context, input *bedrock.CreateModelInvocationJobInput, opts ...request.Option) (*bedrock.CreateModelInvocationJobOutput, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, input)
	return &bedrock.CreateModelInvocationJobOutput{
		JobArn: aws.String("arn:aws:bedrock:us-east-1:123456789012:model-invocation-job/abc123"),
	}, nil
}

func (f *fakeBedrockJobs) GetModelInvocationJobWithContext(ctx aws.Context, input *bedrock.GetModelInvocationJobInput, opts ...request.Option) (*bedrock.GetModelInvocationJobOutput, error) {
	return &bedrock.GetModelInvocationJobOutput{
		Status:  aws.String(f.status),
		Message: aws.String(f.message),
	}, nil
}

func (f *fakeBedrockJobs) ListModelInvocationJobsPagesWithContext(ctx aws.Context, input *bedrock.ListModelInvocationJobsInput, fn func(*bedrock.ListModelInvocationJobsOutput, bool) bool, opts ...request.Option) error {
	fn(&bedrock.ListModelInvocationJobsOutput{InvocationJobSummaries: f.summaries}, true)
	return nil
}

func testSubmission(records int) domain.BatchSubmission {
	return domain.BatchSubmission{
		JobName:      "sift-cases-abc12345",
		ModelID:      "model-light",
		RoleARN:      "arn:aws:iam::123456789012:role/sift-batch",
		InputKey:     "staging/sift-cases-abc12345/input.jsonl",
		OutputPrefix: "staging/sift-cases-abc12345/output/",
		RecordCount:  records,
	}
}

func TestBatchRunnerSubmit(t *testing.T) {
	client := &fakeBedrockJobs{}
	runner := NewBatchRunnerManager(BatchRunnerManagerDependencies{Client: client, Bucket: "sift-events"})

	jobID, err := runner.Submit(context.Background(), testSubmission(150))

	require.NoError(t, err)
	assert.Contains(t, jobID, "model-invocation-job")

	require.Len(t, client.created, 1)
	input := client.created[0]
	assert.Equal(t, "sift-cases-abc12345", aws.StringValue(input.JobName))
	assert.Equal(t, "model-light", aws.StringValue(input.ModelId))
	assert.Equal(t, "arn:aws:iam::123456789012:role/sift-batch", aws.StringValue(input.RoleArn))
	assert.Equal(t, "s3://sift-events/staging/sift-cases-abc12345/input.jsonl",
		aws.StringValue(input.InputDataConfig.S3InputDataConfig.S3Uri))
	assert.Equal(t, "s3://sift-events/staging/sift-cases-abc12345/output/",
		aws.StringValue(input.OutputDataConfig.S3OutputDataConfig.S3Uri))
}

func TestBatchRunnerSubmitRejectsSmallManifests(t *testing.T) {
	client := &fakeBedrockJobs{}
	runner := NewBatchRunnerManager(BatchRunnerManagerDependencies{Client: client, Bucket: "sift-events"})

	_, err := runner.Submit(context.Background(), testSubmission(MinBatchRecords-1))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least")
	assert.Empty(t, client.created)
}

func TestBatchRunnerStatusMapping(t *testing.T) {
	tests := []struct {
		backend string
		want    domain.BatchJobStatus
	}{
		{backend: bedrock.ModelInvocationJobStatusSubmitted, want: domain.BatchJobSubmitted},
		{backend: bedrock.ModelInvocationJobStatusValidating, want: domain.BatchJobInProgress},
		{backend: bedrock.ModelInvocationJobStatusScheduled, want: domain.BatchJobInProgress},
		{backend: bedrock.ModelInvocationJobStatusInProgress, want: domain.BatchJobInProgress},
		{backend: bedrock.ModelInvocationJobStatusStopping, want: domain.BatchJobInProgress},
		{backend: bedrock.ModelInvocationJobStatusCompleted, want: domain.BatchJobCompleted},
		{backend: bedrock.ModelInvocationJobStatusPartiallyCompleted, want: domain.BatchJobCompleted},
		{backend: bedrock.ModelInvocationJobStatusFailed, want: domain.BatchJobFailed},
		{backend: bedrock.ModelInvocationJobStatusExpired, want: domain.BatchJobFailed},
		{backend: bedrock.ModelInvocationJobStatusStopped, want: domain.BatchJobStopped},
		{backend: "SomethingNew", want: domain.BatchJobInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			client := &fakeBedrockJobs{status: tt.backend, message: "detail"}
			runner := NewBatchRunnerManager(BatchRunnerManagerDependencies{Client: client, Bucket: "b"})

			state, err := runner.Status(context.Background(), "job-1")

			require.NoError(t, err)
			assert.Equal(t, tt.want, state.Status)
			assert.Equal(t, "detail", state.Message)
		})
	}
}

func TestBatchRunnerCountActive(t *testing.T) {
	client := &fakeBedrockJobs{
		summaries: []*bedrock.ModelInvocationJobSummary{
			{JobName: aws.String("sift-cases-aaa"), Status: aws.String(bedrock.ModelInvocationJobStatusInProgress)},
			{JobName: aws.String("sift-cases-bbb"), Status: aws.String(bedrock.ModelInvocationJobStatusSubmitted)},
			{JobName: aws.String("sift-cases-ccc"), Status: aws.String(bedrock.ModelInvocationJobStatusCompleted)},
			{JobName: aws.String("sift-health-ddd"), Status: aws.String(bedrock.ModelInvocationJobStatusInProgress)},
			{JobName: aws.String("other-sift-cases-eee"), Status: aws.String(bedrock.ModelInvocationJobStatusInProgress)},
		},
	}
	runner := NewBatchRunnerManager(BatchRunnerManagerDependencies{Client: client, Bucket: "b"})

	active, err := runner.CountActive(context.Background(), "sift-cases")

	require.NoError(t, err)
	assert.Equal(t, 2, active, "only non-terminal jobs under the prefix count")
}

func TestBatchRunnerMinRecordCount(t *testing.T) {
	runner := NewBatchRunnerManager(BatchRunnerManagerDependencies{Client: &fakeBedrockJobs{}, Bucket: "b"})

	assert.Equal(t, MinBatchRecords, runner.MinRecordCount())
}
