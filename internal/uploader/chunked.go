package uploader

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shelfdrop/shelfdrop-cli/internal/constants"
	ihttp "github.com/shelfdrop/shelfdrop-cli/internal/http"
	"github.com/shelfdrop/shelfdrop-cli/internal/logging"
	"github.com/shelfdrop/shelfdrop-cli/internal/queue"
)

const tusVersion = "1.0.0"

// ChunkedStrategy transfers a file as fixed-size sequential chunks over the
// tus 1.0.0 protocol. Chunks are strictly offset-ordered, each confirmed by
// the server before the next is sent, so progress equals bytes the server
// actually holds. Interrupted uploads resume from the server offset via the
// fingerprint-keyed sidecar.
type ChunkedStrategy struct {
	client      *nethttp.Client
	baseURL     string
	chunkSize   int64
	retryDelays []time.Duration
	partTimeout time.Duration
	resume      *ResumeStore
	logger      *logging.Logger
}

// NewChunkedStrategy builds the default strategy. resume may be nil to
// disable cross-run resumption.
func NewChunkedStrategy(client *nethttp.Client, baseURL string, chunkSize int64, retryDelays []time.Duration, resume *ResumeStore, logger *logging.Logger) *ChunkedStrategy {
	if chunkSize <= 0 {
		chunkSize = constants.ChunkSize
	}
	if len(retryDelays) == 0 {
		retryDelays = constants.RetryDelays
	}
	return &ChunkedStrategy{
		client:      client,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		chunkSize:   chunkSize,
		retryDelays: retryDelays,
		partTimeout: constants.PartUploadTimeout,
		resume:      resume,
		logger:      logger,
	}
}

// Name implements Strategy.
func (s *ChunkedStrategy) Name() string { return StrategyChunked }

// Upload implements Strategy.
func (s *ChunkedStrategy) Upload(ctx context.Context, q *queue.Queue, f queue.FileSnapshot) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return wrapStrategyErr(StrategyChunked, f.Name, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return wrapStrategyErr(StrategyChunked, f.Name, err)
	}
	if info.Size() != f.SizeBytes {
		return wrapStrategyErr(StrategyChunked, f.Name,
			fmt.Errorf("file changed on disk: queued at %d bytes, now %d", f.SizeBytes, info.Size()))
	}

	fingerprint := Fingerprint(f.Name, f.SizeBytes, info.ModTime())

	uploadURL, offset, err := s.openUpload(ctx, f, fingerprint)
	if err != nil {
		return wrapStrategyErr(StrategyChunked, f.Name, err)
	}

	if offset > 0 {
		s.logger.Info().
			Str("file", f.Name).
			Int64("offset", offset).
			Msg("Resuming chunked upload")
		q.RecordProgress(f.ID, offset)
	}

	for offset < f.SizeBytes {
		if err := ctx.Err(); err != nil {
			return wrapStrategyErr(StrategyChunked, f.Name, err)
		}

		size := s.chunkSize
		if remaining := f.SizeBytes - offset; remaining < size {
			size = remaining
		}

		chunk := make([]byte, size)
		if _, err := io.ReadFull(io.NewSectionReader(src, offset, size), chunk); err != nil {
			return wrapStrategyErr(StrategyChunked, f.Name, fmt.Errorf("reading chunk at %d: %w", offset, err))
		}

		newOffset, err := s.patchChunk(ctx, uploadURL, offset, chunk)
		if err != nil {
			return wrapStrategyErr(StrategyChunked, f.Name, err)
		}

		offset = newOffset
		q.RecordProgress(f.ID, offset)
	}

	if s.resume != nil {
		s.resume.Delete(fingerprint)
	}
	return nil
}

// openUpload returns the upload URL and the server-confirmed offset to
// continue from, either by resuming a cached upload or creating a new one.
func (s *ChunkedStrategy) openUpload(ctx context.Context, f queue.FileSnapshot, fingerprint string) (string, int64, error) {
	if s.resume != nil {
		state, err := s.resume.Load(fingerprint, f.SizeBytes)
		if err != nil {
			return "", 0, err
		}
		if state != nil {
			offset, err := s.headOffset(ctx, state.UploadURL)
			if err == nil && offset <= f.SizeBytes {
				return state.UploadURL, offset, nil
			}
			// Server no longer knows this upload; start over.
			s.resume.Delete(fingerprint)
		}
	}

	uploadURL, err := s.createUpload(ctx, f, fingerprint)
	if err != nil {
		return "", 0, err
	}

	if s.resume != nil {
		state := &ResumeState{
			Fingerprint: fingerprint,
			UploadURL:   uploadURL,
			SizeBytes:   f.SizeBytes,
		}
		if err := s.resume.Save(state); err != nil {
			s.logger.Warn().Err(err).Str("file", f.Name).Msg("Could not persist resume state")
		}
	}
	return uploadURL, 0, nil
}

// createUpload POSTs the tus creation request and returns the upload URL
// from the Location header.
func (s *ChunkedStrategy) createUpload(ctx context.Context, f queue.FileSnapshot, fingerprint string) (string, error) {
	endpoint := s.baseURL + "/api/upload/tus"

	var uploadURL string
	err := ihttp.ExecuteWithSchedule(ctx, s.retryDelays, func() error {
		req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Tus-Resumable", tusVersion)
		req.Header.Set("Upload-Length", strconv.FormatInt(f.SizeBytes, 10))
		req.Header.Set("Upload-Metadata", encodeMetadata(map[string]string{
			"filename":     f.Name,
			"relativePath": f.Name,
			"fingerprint":  fingerprint,
		}))

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != nethttp.StatusCreated {
			return fmt.Errorf("creating upload: unexpected status %d", resp.StatusCode)
		}
		loc := resp.Header.Get("Location")
		if loc == "" {
			return fmt.Errorf("creating upload: missing Location header")
		}
		uploadURL, err = s.absoluteURL(loc)
		return err
	})
	if err != nil {
		return "", err
	}
	return uploadURL, nil
}

// headOffset asks the server how many bytes it already holds, retrying
// under the schedule.
func (s *ChunkedStrategy) headOffset(ctx context.Context, uploadURL string) (int64, error) {
	var offset int64
	err := ihttp.ExecuteWithSchedule(ctx, s.retryDelays, func() error {
		var err error
		offset, err = s.headOffsetOnce(ctx, uploadURL)
		return err
	})
	return offset, err
}

// headOffsetOnce performs a single offset check with no retries. The 409
// recovery inside patchChunk uses this directly: that check already runs
// inside a scheduled attempt, so retrying the HEAD as well would compound
// the delays.
func (s *ChunkedStrategy) headOffsetOnce(ctx context.Context, uploadURL string) (int64, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodHead, uploadURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Tus-Resumable", tusVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == nethttp.StatusNotFound || resp.StatusCode == nethttp.StatusGone {
		return 0, fmt.Errorf("upload expired on server (fatal): status %d", resp.StatusCode)
	}
	if resp.StatusCode != nethttp.StatusOK && resp.StatusCode != nethttp.StatusNoContent {
		return 0, fmt.Errorf("checking upload offset: unexpected status %d", resp.StatusCode)
	}
	offset, err := strconv.ParseInt(resp.Header.Get("Upload-Offset"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing Upload-Offset: %w", err)
	}
	return offset, nil
}

// patchChunk sends one chunk at offset and returns the server's new offset.
// Each attempt re-checks the server offset after a failure so a chunk that
// landed but whose response was lost is not re-sent.
func (s *ChunkedStrategy) patchChunk(ctx context.Context, uploadURL string, offset int64, chunk []byte) (int64, error) {
	var newOffset int64
	err := ihttp.ExecuteWithSchedule(ctx, s.retryDelays, func() error {
		// Deadline per attempt, not per chunk: a stalled connection
		// must not eat the whole retry schedule.
		attemptCtx, cancel := context.WithTimeout(ctx, s.partTimeout)
		defer cancel()

		req, err := nethttp.NewRequestWithContext(attemptCtx, nethttp.MethodPatch, uploadURL, bytes.NewReader(chunk))
		if err != nil {
			return err
		}
		req.Header.Set("Tus-Resumable", tusVersion)
		req.Header.Set("Upload-Offset", strconv.FormatInt(offset, 10))
		req.Header.Set("Content-Type", "application/offset+octet-stream")
		req.ContentLength = int64(len(chunk))

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch resp.StatusCode {
		case nethttp.StatusNoContent:
			newOffset, err = strconv.ParseInt(resp.Header.Get("Upload-Offset"), 10, 64)
			if err != nil {
				return fmt.Errorf("parsing Upload-Offset: %w", err)
			}
			return nil
		case nethttp.StatusConflict:
			// Offset mismatch: the previous attempt may have landed.
			current, herr := s.headOffsetOnce(attemptCtx, uploadURL)
			if herr == nil && current == offset+int64(len(chunk)) {
				newOffset = current
				return nil
			}
			return fmt.Errorf("uploading chunk at %d: offset conflict", offset)
		case nethttp.StatusNotFound, nethttp.StatusGone:
			return fmt.Errorf("uploading chunk at %d: upload expired (fatal)", offset)
		default:
			return fmt.Errorf("uploading chunk at %d: unexpected status %d", offset, resp.StatusCode)
		}
	})
	return newOffset, err
}

// absoluteURL resolves a Location header against the configured server.
func (s *ChunkedStrategy) absoluteURL(loc string) (string, error) {
	u, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("parsing upload location: %w", err)
	}
	if u.IsAbs() {
		return loc, nil
	}
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}
	return base.ResolveReference(u).String(), nil
}

// encodeMetadata renders the tus Upload-Metadata header: comma-separated
// "key base64(value)" pairs.
func encodeMetadata(meta map[string]string) string {
	pairs := make([]string, 0, len(meta))
	// Deterministic order keeps the header stable across runs.
	for _, key := range []string{"filename", "relativePath", "fingerprint"} {
		if v, ok := meta[key]; ok {
			pairs = append(pairs, key+" "+base64.StdEncoding.EncodeToString([]byte(v)))
		}
	}
	for k, v := range meta {
		switch k {
		case "filename", "relativePath", "fingerprint":
			continue
		}
		pairs = append(pairs, k+" "+base64.StdEncoding.EncodeToString([]byte(v)))
	}
	return strings.Join(pairs, ",")
}
