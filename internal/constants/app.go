package constants

import (
	"time"
)

// Transfer sizing
const (
	// ChunkSize - size of each chunk for resumable uploads (5 MiB).
	// Aligned with the server-side multipart minimum part size so a file
	// partitions identically under either strategy.
	ChunkSize = 5 * 1024 * 1024

	// MinPartSize - object storage minimum part size (5 MiB, except last part).
	MinPartSize = 5 * 1024 * 1024

	// MaxPartsPerUpload - object storage hard cap on parts per multipart upload.
	MaxPartsPerUpload = 10000
)

// Concurrency limits
const (
	// MaxConcurrentFiles - how many files may transfer simultaneously.
	// Admission limit only, not a fair scheduler.
	MaxConcurrentFiles = 5

	// MaxConcurrentParts - parts in flight per file for the multipart strategy.
	// Chunked uploads never parallelize within a file (offset ordering).
	MaxConcurrentParts = 5
)

// RetryDelays is the fixed schedule for chunk and part upload retries:
// immediate, then 1s, 3s, 5s. Exhaustion is a terminal failure for the
// file, not for the session.
var RetryDelays = []time.Duration{
	0,
	1 * time.Second,
	3 * time.Second,
	5 * time.Second,
}

// Progress estimation
const (
	// MinSampleInterval - progress samples closer together than this are
	// discarded so display updates stay stable regardless of how often the
	// network layer reports.
	MinSampleInterval = 200 * time.Millisecond

	// SpeedSmoothingAlpha - EMA weight on the new instantaneous reading.
	// History keeps the remaining 0.7.
	SpeedSmoothingAlpha = 0.3
)

// Resume state
const (
	// MaxResumeAge - resume sidecars older than this are expired. Matches the
	// server's incomplete-upload retention window.
	MaxResumeAge = 7 * 24 * time.Hour
)

// HTTP client tuning
const (
	// HTTPDialTimeout - timeout for establishing a connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - TCP keep-alive interval (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// PartUploadTimeout - per-chunk/per-part request deadline (10 minutes)
	PartUploadTimeout = 10 * time.Minute
)

// Event bus sizing
const (
	// EventBusDefaultBuffer - default buffer size for event channels
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios
	EventBusMaxBuffer = 5000
)
