package utils

import "time"

// =============================================================================
// Timeout Constants
// =============================================================================

// HTTP Handler Timeouts
const (
	// MetadataTimeout bounds a single job-store round trip from a handler
	MetadataTimeout = 5 * time.Second

	// PublishTimeout bounds enqueueing a job
	PublishTimeout = 10 * time.Second
)

// Worker Timeouts
const (
	// DefaultJobTimeout is the upper bound of one forecast run
	DefaultJobTimeout = time.Hour

	// ShutdownTimeout is how long processes wait for in-flight work on exit
	ShutdownTimeout = 30 * time.Second
)

// =============================================================================
// Forecast Constants
// =============================================================================

const (
	// DefaultHorizon is used when a request omits the horizon
	DefaultHorizon = 14

	// MaxHorizon is the largest accepted horizon
	MaxHorizon = 365

	// ModelAuto fits every model and keeps the best
	ModelAuto = "auto"

	// PreviewRows is the number of rows kept in an upload preview
	PreviewRows = 10

	// TimeCandidateSample is how many values are probed per column when
	// scoring time-column candidates
	TimeCandidateSample = 5
)

// =============================================================================
// Listing Constants
// =============================================================================

const (
	// DefaultListLimit is the default page size for job listings
	DefaultListLimit = 50

	// MaxListLimit is the maximum page size for job listings
	MaxListLimit = 100
)

// =============================================================================
// Artifact Names
// =============================================================================

const (
	SourceFile   = "source.csv"
	MetadataFile = "metadata.json"
	ResultsFile  = "results.json"
	ErrorFile    = "error.json"
	ForecastCSV  = "forecast.csv"
	ForecastPNG  = "forecast.png"
)

// ModelFile returns the artifact name of a saved model
func ModelFile(model string) string {
	return "model_" + model + ".bin"
}

// =============================================================================
// Queue Type Constants
// =============================================================================
// QueueType represents the type of message queue
type QueueType string

const (
	// QueueTypeNATS represents NATS JetStream queue (default)
	QueueTypeNATS QueueType = "nats"

	// QueueTypeRedis represents Redis Streams queue
	QueueTypeRedis QueueType = "redis"

	// QueueTypeKafka represents Apache Kafka queue
	QueueTypeKafka QueueType = "kafka"

	// QueueTypeMemory represents in-memory queue (for testing)
	QueueTypeMemory QueueType = "memory"
)
