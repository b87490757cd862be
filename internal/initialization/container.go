// Package initialization wires the configuration into a ready-to-run
// orchestrator and its collaborators.
package initialization

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sifthq/sift/internal/config"
	"github.com/sifthq/sift/internal/domain"
	"github.com/sifthq/sift/internal/engine"
	"github.com/sifthq/sift/internal/managers"
	"github.com/sifthq/sift/internal/sources"
	"github.com/sifthq/sift/internal/storage"
	"github.com/sifthq/sift/internal/taxonomy"
	"github.com/sifthq/sift/pkg/inference"
	"github.com/sifthq/sift/pkg/inference/anthropic"
	"github.com/sifthq/sift/pkg/inference/bedrock"
	"github.com/sifthq/sift/pkg/inference/gemini"
	"github.com/sifthq/sift/pkg/inference/openai"
)

// Container holds the wired application graph for one process.
type Container struct {
	cfg          *config.Config
	orchestrator *engine.Orchestrator
	params       domain.ParameterStore
	outcomes     domain.OutcomeManager

	mongoClient *mongo.Client
	redisClient *redis.Client
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	log.Info().Str("provider", cfg.Provider).Msg("Building application dependencies")

	sess, err := newAWSSession(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewS3Store(storage.S3Config{
		Region:          cfg.AWSRegion,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		SessionToken:    cfg.AWSSessionToken,
		Endpoint:        cfg.AWSEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}

	params := managers.NewParameterManager(managers.ParameterManagerDependencies{
		Client: managers.NewSSMClient(sess),
		Prefix: cfg.ParamPrefix,
	})

	runner := managers.NewBatchRunnerManager(managers.BatchRunnerManagerDependencies{
		Client: managers.NewBedrockJobsClient(sess),
		Bucket: cfg.S3Bucket,
	})

	client, err := newInferenceClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	container := &Container{cfg: cfg, params: params}

	container.outcomes, err = container.newOutcomeManager(ctx, cfg)
	if err != nil {
		return nil, err
	}

	eventSources := map[domain.Mode]domain.EventSource{
		domain.ModeCases: sources.NewCases(store, params, sources.CasesConfig{
			Limit: cfg.EventsQueryLimit,
		}),
	}

	if cfg.MongoURI != "" {
		database, err := container.connectMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		eventSources[domain.ModeHealth] = sources.NewHealth(database, params, sources.HealthConfig{
			Collection: cfg.MongoCollection,
			Limit:      cfg.EventsQueryLimit,
		})
	} else {
		log.Warn().Msg("No health event index configured, health mode is unavailable")
	}

	container.orchestrator, err = engine.NewOrchestrator(engine.Dependencies{
		Params:    params,
		Sources:   eventSources,
		Artifacts: store,
		Staging:   store,
		Runner:    runner,
		Inference: client,
		Outcomes:  container.outcomes,
		Taxonomy:  taxonomy.NewLoader(store, ""),
		Config: engine.Config{
			BatchThreshold:         cfg.BatchThreshold,
			Workers:                cfg.Workers,
			LightModel:             cfg.LightModel,
			HeavyModel:             cfg.HeavyModel,
			RetryMaxAttempts:       cfg.RetryMaxAttempts,
			RetryInitialDelay:      cfg.RetryInitialDelay,
			PollInterval:           cfg.PollInterval,
			PollBudget:             cfg.PollBudget,
			MaxSynthesisInputBytes: cfg.MaxSynthesisInputBytes,
			JobNamePrefix:          cfg.JobNamePrefix,
			BatchRoleARN:           cfg.BatchRoleARN,
			RunTimeout:             cfg.RunTimeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build orchestrator: %w", err)
	}

	return container, nil
}

func (c *Container) Orchestrator() *engine.Orchestrator {
	return c.orchestrator
}

func (c *Container) Params() domain.ParameterStore {
	return c.params
}

func (c *Container) Outcomes() domain.OutcomeManager {
	return c.outcomes
}

func (c *Container) Config() *config.Config {
	return c.cfg
}

// Close releases the container's long-lived connections.
func (c *Container) Close(ctx context.Context) {
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close outcome store connection")
		}
	}

	if c.mongoClient != nil {
		if err := c.mongoClient.Disconnect(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to disconnect health event index")
		}
	}
}

func newAWSSession(cfg *config.Config) (*session.Session, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.AWSRegion),
	}

	if cfg.AWSAccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.AWSSessionToken)
	}

	if cfg.AWSEndpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.AWSEndpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return sess, nil
}

func newInferenceClient(ctx context.Context, cfg *config.Config) (inference.Client, error) {
	switch cfg.Provider {
	case "bedrock":
		return bedrock.New(bedrock.Config{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			SessionToken:    cfg.AWSSessionToken,
			Endpoint:        cfg.AWSEndpoint,
		})
	case "anthropic":
		return anthropic.New(anthropic.Config{APIKey: cfg.AnthropicAPIKey}), nil
	case "openai":
		return openai.New(openai.Config{APIKey: cfg.OpenAIAPIKey}), nil
	case "gemini":
		return gemini.New(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey})
	default:
		return nil, fmt.Errorf("unknown inference provider: %q", cfg.Provider)
	}
}

func (c *Container) newOutcomeManager(ctx context.Context, cfg *config.Config) (domain.OutcomeManager, error) {
	if cfg.RedisAddr == "" {
		log.Info().Msg("No outcome store configured, keeping run outcomes in memory")
		return managers.NewMemoryOutcomeManager(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to outcome store: %w", err)
	}

	c.redisClient = client

	return managers.NewOutcomeManager(managers.OutcomeManagerDependencies{
		Client:    client,
		KeyPrefix: cfg.JobNamePrefix,
		TTL:       cfg.OutcomeTTL,
	}), nil
}

func (c *Container) connectMongo(ctx context.Context, cfg *config.Config) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to health event index: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping health event index: %w", err)
	}

	c.mongoClient = client

	return client.Database(cfg.MongoDatabase), nil
}
