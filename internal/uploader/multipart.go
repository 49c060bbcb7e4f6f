package uploader

import (
	"context"
	"fmt"
	"io"
	"mime"
	nethttp "net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shelfdrop/shelfdrop-cli/internal/api"
	"github.com/shelfdrop/shelfdrop-cli/internal/constants"
	ihttp "github.com/shelfdrop/shelfdrop-cli/internal/http"
	"github.com/shelfdrop/shelfdrop-cli/internal/logging"
	"github.com/shelfdrop/shelfdrop-cli/internal/queue"
)

// MultipartStrategy transfers a file as concurrently uploaded parts, each
// PUT directly against a presigned URL obtained from the server. The server
// brokers the object-store handshake; the client never holds storage
// credentials. Parts may complete out of order, so progress is the sum of
// confirmed part sizes, and completion submits the ETags sorted by part
// number.
type MultipartStrategy struct {
	api         *api.Client
	client      *nethttp.Client
	partSize    int64
	maxParts    int
	retryDelays []time.Duration
	partTimeout time.Duration
	logger      *logging.Logger
}

// NewMultipartStrategy builds the direct-to-storage strategy. maxParts
// bounds how many part uploads run at once per file.
func NewMultipartStrategy(apiClient *api.Client, client *nethttp.Client, partSize int64, maxParts int, retryDelays []time.Duration, logger *logging.Logger) *MultipartStrategy {
	if partSize < constants.MinPartSize {
		partSize = constants.MinPartSize
	}
	if maxParts <= 0 {
		maxParts = constants.MaxConcurrentParts
	}
	if len(retryDelays) == 0 {
		retryDelays = constants.RetryDelays
	}
	return &MultipartStrategy{
		api:         apiClient,
		client:      client,
		partSize:    partSize,
		maxParts:    maxParts,
		retryDelays: retryDelays,
		partTimeout: constants.PartUploadTimeout,
		logger:      logger,
	}
}

// Name implements Strategy.
func (s *MultipartStrategy) Name() string { return StrategyMultipart }

// Upload implements Strategy.
func (s *MultipartStrategy) Upload(ctx context.Context, q *queue.Queue, f queue.FileSnapshot) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return wrapStrategyErr(StrategyMultipart, f.Name, err)
	}
	defer src.Close()

	partCount := int((f.SizeBytes + s.partSize - 1) / s.partSize)
	if partCount == 0 {
		partCount = 1 // zero-byte files still need one (empty) part
	}
	if partCount > constants.MaxPartsPerUpload {
		return wrapStrategyErr(StrategyMultipart, f.Name,
			fmt.Errorf("file needs %d parts, limit is %d", partCount, constants.MaxPartsPerUpload))
	}

	mimeType := mime.TypeByExtension(filepath.Ext(f.Name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	upload, err := s.api.CreateMultipartUpload(ctx, f.Name, mimeType, map[string]string{
		"relativePath": f.Name,
	})
	if err != nil {
		return wrapStrategyErr(StrategyMultipart, f.Name, err)
	}

	s.logger.Debug().
		Str("file", f.Name).
		Str("uploadId", upload.UploadID).
		Int("parts", partCount).
		Msg("Multipart upload created")

	parts, err := s.uploadParts(ctx, q, f, src, upload, partCount)
	if err != nil {
		return wrapStrategyErr(StrategyMultipart, f.Name, err)
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	if _, err := s.api.CompleteMultipartUpload(ctx, upload.UploadID, upload.Key, parts); err != nil {
		return wrapStrategyErr(StrategyMultipart, f.Name, err)
	}
	return nil
}

// uploadParts fans the file's parts out over a bounded worker pool. The
// first part failure cancels the rest; the file is never completed with a
// hole in it.
func (s *MultipartStrategy) uploadParts(ctx context.Context, q *queue.Queue, f queue.FileSnapshot, src *os.File, upload *api.MultipartUpload, partCount int) ([]api.CompletedPart, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		parts     = make([]api.CompletedPart, 0, partCount)
		confirmed int64
		firstErr  error
	)

	sem := make(chan struct{}, s.maxParts)
	var wg sync.WaitGroup

	for partNumber := 1; partNumber <= partCount; partNumber++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, firstUploadErr(&mu, &firstErr, ctx)
		}

		wg.Add(1)
		go func(partNumber int) {
			defer wg.Done()
			defer func() { <-sem }()

			offset := int64(partNumber-1) * s.partSize
			size := s.partSize
			if remaining := f.SizeBytes - offset; remaining < size {
				size = remaining
			}

			etag, err := s.uploadPart(ctx, src, upload, partNumber, offset, size)

			mu.Lock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
				return
			}
			parts = append(parts, api.CompletedPart{PartNumber: partNumber, ETag: etag})
			confirmed += size
			total := confirmed
			mu.Unlock()

			q.RecordProgress(f.ID, total)
		}(partNumber)
	}

	wg.Wait()
	return parts, firstUploadErr(&mu, &firstErr, ctx)
}

func firstUploadErr(mu *sync.Mutex, firstErr *error, ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()
	if *firstErr != nil {
		return *firstErr
	}
	return ctx.Err()
}

// uploadPart signs and PUTs one part under the fixed retry schedule. The
// presigned URL is re-requested on every attempt in case it expired.
func (s *MultipartStrategy) uploadPart(ctx context.Context, src *os.File, upload *api.MultipartUpload, partNumber int, offset, size int64) (string, error) {
	var etag string
	err := ihttp.ExecuteWithSchedule(ctx, s.retryDelays, func() error {
		// Deadline per attempt, not per part: a stalled connection
		// must not eat the whole retry schedule.
		attemptCtx, cancel := context.WithTimeout(ctx, s.partTimeout)
		defer cancel()

		url, err := s.api.SignPart(attemptCtx, upload.UploadID, upload.Key, partNumber)
		if err != nil {
			return err
		}

		req, err := nethttp.NewRequestWithContext(attemptCtx, nethttp.MethodPut, url, io.NewSectionReader(src, offset, size))
		if err != nil {
			return err
		}
		req.ContentLength = size

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != nethttp.StatusOK {
			return fmt.Errorf("uploading part %d: unexpected status %d", partNumber, resp.StatusCode)
		}
		etag = resp.Header.Get("ETag")
		if etag == "" {
			return fmt.Errorf("uploading part %d: response missing ETag", partNumber)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return etag, nil
}

// ListParts would query the server for parts already uploaded, enabling
// resume of an interrupted multipart transfer. The server does not expose a
// listing endpoint yet, so interrupted multipart uploads restart from
// scratch.
func (s *MultipartStrategy) ListParts(ctx context.Context, uploadID, key string) ([]api.CompletedPart, error) {
	return []api.CompletedPart{}, nil
}

// Abort discards client-side state for an upload. Orphaned parts are
// reaped server-side by the storage lifecycle policy, so no request is
// sent.
func (s *MultipartStrategy) Abort(ctx context.Context, uploadID, key string) error {
	return nil
}
