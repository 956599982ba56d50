// Package mediaqueue funnels media acquisition through three bounded queues:
// an outer source queue limiting whole download and decode jobs, and shared
// download and decode queues limiting each stage on its own.
package mediaqueue

import (
	"context"
	"fmt"
	"log/slog"

	"tutti/logger"
	"tutti/playback"
)

// DefaultConcurrency is the limit of every queue unless configured otherwise
const DefaultConcurrency = 2

// Queue names
const (
	SourceQueue   = "source"
	DownloadQueue = "download"
	DecodeQueue   = "decode"
)

// Downloader fetches raw media bytes
type Downloader interface {
	Download(ctx context.Context, sourceURL string) ([]byte, error)
}

// Decoder turns raw media bytes into a playable buffer
type Decoder interface {
	Decode(ctx context.Context, pc playback.Context, data []byte) (playback.Buffer, error)
}

// ContextProvider waits for the shared output context
type ContextProvider interface {
	WaitForContext(ctx context.Context) (playback.Context, error)
}

// Request describes one media acquisition
type Request struct {
	SourceURL       string
	Downloader      Downloader
	Decoder         Decoder
	ContextProvider ContextProvider
}

// Options configures a MediaQueue. Zero limits mean DefaultConcurrency.
type Options struct {
	SourceConcurrency   int
	DownloadConcurrency int
	DecodeConcurrency   int
	Metrics             *Metrics
	Logger              *slog.Logger
}

// MediaQueue is shared by every track of a process
type MediaQueue struct {
	source   *Queue
	download *Queue
	decode   *Queue
	logger   *slog.Logger
}

// New creates a new MediaQueue
func New(opts Options) *MediaQueue {
	log := opts.Logger
	if log == nil {
		log = logger.WithComponent("media-queue")
	}

	return &MediaQueue{
		source:   NewQueue(SourceQueue, orDefault(opts.SourceConcurrency), opts.Metrics),
		download: NewQueue(DownloadQueue, orDefault(opts.DownloadConcurrency), opts.Metrics),
		decode:   NewQueue(DecodeQueue, orDefault(opts.DecodeConcurrency), opts.Metrics),
		logger:   log,
	}
}

func orDefault(n int) int {
	if n <= 0 {
		return DefaultConcurrency
	}
	return n
}

// SetSourceConcurrency changes the limit of whole jobs
func (m *MediaQueue) SetSourceConcurrency(n int) {
	m.source.SetConcurrency(n)
}

// SetDownloadConcurrency changes the limit of simultaneous downloads
func (m *MediaQueue) SetDownloadConcurrency(n int) {
	m.download.SetConcurrency(n)
}

// SetDecodeConcurrency changes the limit of simultaneous decodes
func (m *MediaQueue) SetDecodeConcurrency(n int) {
	m.decode.SetConcurrency(n)
}

// Source returns the outer queue
func (m *MediaQueue) Source() *Queue { return m.source }

// Download returns the download stage queue
func (m *MediaQueue) Download() *Queue { return m.download }

// Decode returns the decode stage queue
func (m *MediaQueue) Decode() *Queue { return m.decode }

// DownloadAndDecode downloads req.SourceURL, waits for the output context and
// decodes the bytes into a buffer. The whole job holds a source slot; each
// stage additionally holds a slot of its own queue.
func (m *MediaQueue) DownloadAndDecode(ctx context.Context, req Request) (playback.Buffer, error) {
	return Do(ctx, m.source, func(ctx context.Context) (playback.Buffer, error) {
		logger := m.logger.With(slog.String("source_url", req.SourceURL))

		data, err := Do(ctx, m.download, func(ctx context.Context) ([]byte, error) {
			logger.Debug("Downloading media")
			return req.Downloader.Download(ctx, req.SourceURL)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", req.SourceURL, err)
		}

		pc, err := req.ContextProvider.WaitForContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain audio context: %w", err)
		}

		buf, err := Do(ctx, m.decode, func(ctx context.Context) (playback.Buffer, error) {
			logger.Debug("Decoding media", slog.Int("bytes", len(data)))
			return req.Decoder.Decode(ctx, pc, data)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", req.SourceURL, err)
		}

		return buf, nil
	})
}
