package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixEntity = "automation:entity:"
)

const (
	DefaultEventTopic = "app_events"
)

const (
	DefaultMongoDBName = "opsflow"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	DefaultMaxActionsPerMinute   = 120
	DefaultMaxLineageDepth       = 3
	DefaultRateLimitWindow       = 60 * time.Second
	DefaultEntityCacheTTLSeconds = 30
)

const (
	SourceTypePostgreSQL = "postgresql"
	SourceTypeMongoDB    = "mongodb"
)

const (
	ServiceNameWorker = "automation-worker"
	ServiceNameAPI    = "automation-api"
)
