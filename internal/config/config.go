package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all orchestrator configuration.
type Config struct {
	// Orchestration settings
	BatchThreshold   int
	Workers          int
	RunTimeout       time.Duration
	EventsQueryLimit int

	// Retry policy for individual model calls
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration

	// Batch job polling
	PollInterval time.Duration
	PollBudget   time.Duration

	// Inference backend
	Provider               string
	LightModel             string
	HeavyModel             string
	MaxSynthesisInputBytes int

	// Provider credentials
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GeminiAPIKey    string

	// AWS settings (Bedrock, S3, SSM)
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string
	AWSEndpoint        string

	// Storage layout
	S3Bucket      string
	BatchRoleARN  string
	JobNamePrefix string
	ParamPrefix   string

	// Health event index
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// Run outcome store
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	OutcomeTTL    time.Duration

	// Monitoring server and scheduler
	HTTPAddress string
	APIToken    string
	Schedule    string
}

// Load reads configuration from defaults, an optional sift.yaml and
// environment variables, in increasing priority.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envMappings := map[string]string{
		"BatchThreshold":         "SIFT_BATCH_THRESHOLD",
		"Workers":                "SIFT_WORKERS",
		"RunTimeout":             "SIFT_RUN_TIMEOUT",
		"EventsQueryLimit":       "SIFT_EVENTS_QUERY_LIMIT",
		"RetryMaxAttempts":       "SIFT_RETRY_MAX_ATTEMPTS",
		"RetryInitialDelay":      "SIFT_RETRY_INITIAL_DELAY",
		"PollInterval":           "SIFT_POLL_INTERVAL",
		"PollBudget":             "SIFT_POLL_BUDGET",
		"Provider":               "SIFT_PROVIDER",
		"LightModel":             "SIFT_LIGHT_MODEL",
		"HeavyModel":             "SIFT_HEAVY_MODEL",
		"MaxSynthesisInputBytes": "SIFT_MAX_SYNTHESIS_INPUT_BYTES",
		"AnthropicAPIKey":        "ANTHROPIC_API_KEY",
		"OpenAIAPIKey":           "OPENAI_API_KEY",
		"GeminiAPIKey":           "GEMINI_API_KEY",
		"AWSRegion":              "AWS_REGION",
		"AWSAccessKeyID":         "AWS_ACCESS_KEY_ID",
		"AWSSecretAccessKey":     "AWS_SECRET_ACCESS_KEY",
		"AWSSessionToken":        "AWS_SESSION_TOKEN",
		"AWSEndpoint":            "AWS_ENDPOINT_URL",
		"S3Bucket":               "SIFT_S3_BUCKET",
		"BatchRoleARN":           "SIFT_BATCH_ROLE_ARN",
		"JobNamePrefix":          "SIFT_JOB_NAME_PREFIX",
		"ParamPrefix":            "SIFT_PARAM_PREFIX",
		"MongoURI":               "SIFT_MONGO_URI",
		"MongoDatabase":          "SIFT_MONGO_DATABASE",
		"MongoCollection":        "SIFT_MONGO_COLLECTION",
		"RedisAddr":              "SIFT_REDIS_ADDR",
		"RedisPassword":          "SIFT_REDIS_PASSWORD",
		"RedisDB":                "SIFT_REDIS_DB",
		"OutcomeTTL":             "SIFT_OUTCOME_TTL",
		"HTTPAddress":            "SIFT_HTTP_ADDRESS",
		"APIToken":               "SIFT_API_TOKEN",
		"Schedule":               "SIFT_SCHEDULE",
	}

	for configKey, envVar := range envMappings {
		if err := v.BindEnv(configKey, envVar); err != nil {
			log.Warn().Err(err).Msgf("Failed to bind environment variable %s for %s", envVar, configKey)
		}
	}

	v.SetConfigName("sift")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.sift")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("BatchThreshold", 100)
	v.SetDefault("Workers", 4)
	v.SetDefault("RunTimeout", "1h")
	v.SetDefault("EventsQueryLimit", 5000)

	v.SetDefault("RetryMaxAttempts", 5)
	v.SetDefault("RetryInitialDelay", "1s")

	v.SetDefault("PollInterval", "1m")
	v.SetDefault("PollBudget", "45m")

	v.SetDefault("Provider", "bedrock")
	v.SetDefault("MaxSynthesisInputBytes", 180000)

	v.SetDefault("AWSRegion", "us-east-1")

	v.SetDefault("JobNamePrefix", "sift")
	v.SetDefault("ParamPrefix", "sift")

	v.SetDefault("MongoDatabase", "sift")
	v.SetDefault("MongoCollection", "health_events")

	v.SetDefault("OutcomeTTL", "720h")

	v.SetDefault("HTTPAddress", ":8080")
	v.SetDefault("Schedule", "@hourly")
}

// Validate checks structural correctness. Cross-checks that need live
// collaborators (runner minimum batch size) happen during wiring.
func (c *Config) Validate() error {
	var missingVars []string

	if c.S3Bucket == "" {
		missingVars = append(missingVars, "SIFT_S3_BUCKET")
	}

	switch c.Provider {
	case "bedrock":
		// Region has a default; credentials may come from the default chain.
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			missingVars = append(missingVars, "ANTHROPIC_API_KEY")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			missingVars = append(missingVars, "OPENAI_API_KEY")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			missingVars = append(missingVars, "GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown inference provider: %q", c.Provider)
	}

	if c.LightModel == "" {
		missingVars = append(missingVars, "SIFT_LIGHT_MODEL")
	}

	if c.HeavyModel == "" {
		missingVars = append(missingVars, "SIFT_HEAVY_MODEL")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missingVars, ", "))
	}

	if c.BatchThreshold < 1 {
		return fmt.Errorf("batch threshold must be at least 1, got %d", c.BatchThreshold)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}

	if c.PollBudget < c.PollInterval {
		return fmt.Errorf("poll budget %s is smaller than poll interval %s", c.PollBudget, c.PollInterval)
	}

	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.RetryMaxAttempts)
	}

	if c.MaxSynthesisInputBytes < 1 {
		return fmt.Errorf("max synthesis input bytes must be positive, got %d", c.MaxSynthesisInputBytes)
	}

	return nil
}
