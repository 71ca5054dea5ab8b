package config

import "time"

// CoordinatorConfig holds runtime configuration for the deployment API service.
type CoordinatorConfig struct {
	Environment       string
	Addr              string
	LogLevel          string
	DatabaseURL       string
	MigrationsDir     string
	PlatformDomain    string
	DefaultBranchRef  string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	LogTopic          string
	LogConsumerGroup  string
	LogBatchSize      int
	LogBlockTimeout   time.Duration
	BlobBucket        string
	BlobRegion        string
	DockerHost        string
	RuntimeImage      string
	AppPort           int
	WorkspaceRoot     string
	ProvisionTimeout  time.Duration
	TeardownOnFailure bool
}

// LoadCoordinatorConfig constructs a CoordinatorConfig from environment variables.
func LoadCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Environment:       GetString("APP_ENV", "development"),
		Addr:              GetString("API_ADDR", ":3000"),
		LogLevel:          GetString("LOG_LEVEL", "info"),
		DatabaseURL:       GetString("DATABASE_URL", "postgres://deploify:deploify@db:5432/deploify?sslmode=disable"),
		MigrationsDir:     GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		PlatformDomain:    GetString("PLATFORM_DOMAIN", "localhost"),
		DefaultBranchRef:  GetString("DEFAULT_BRANCH_REF", "refs/heads/main"),
		RedisAddr:         GetString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     GetString("REDIS_PASSWORD", ""),
		RedisDB:           GetInt("REDIS_DB", 0),
		LogTopic:          GetString("LOG_TOPIC", "build-logs"),
		LogConsumerGroup:  GetString("LOG_CONSUMER_GROUP", "build-logs-consumer"),
		LogBatchSize:      GetInt("LOG_BATCH_SIZE", 100),
		LogBlockTimeout:   GetSeconds("LOG_BLOCK_TIMEOUT_SECONDS", 5*time.Second),
		BlobBucket:        GetString("BLOB_BUCKET", "deploify-artifacts"),
		BlobRegion:        GetString("BLOB_REGION", "us-east-1"),
		DockerHost:        GetString("DOCKER_HOST_OVERRIDE", ""),
		RuntimeImage:      GetString("RUNTIME_IMAGE", "node:20"),
		AppPort:           GetInt("APP_PORT", 3000),
		WorkspaceRoot:     GetString("WORKSPACE_ROOT", "/tmp/deploify"),
		ProvisionTimeout:  GetSeconds("PROVISION_TIMEOUT_SECONDS", 0),
		TeardownOnFailure: GetBool("TEARDOWN_ON_FAILURE", true),
	}
}
