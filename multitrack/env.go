package multitrack

import (
	"log/slog"

	"github.com/google/uuid"

	"tutti/media"
	"tutti/mediaqueue"
)

// Env holds the collaborators shared by every track of a player
type Env struct {
	// Queue bounds download and decode work. It should be shared by every
	// player of a process.
	Queue *mediaqueue.MediaQueue

	// Downloader fetches source bytes. Defaults to media.HTTPDownloader.
	Downloader mediaqueue.Downloader

	// Decoder turns bytes into buffers. Defaults to media.ContextDecoder.
	Decoder mediaqueue.Decoder

	// Contexts provides the shared output context. Required for loading.
	Contexts mediaqueue.ContextProvider

	// NewID generates instance ids. Defaults to random UUIDs.
	NewID func() string

	Logger *slog.Logger
}

func (e Env) withDefaults() Env {
	if e.Queue == nil {
		e.Queue = mediaqueue.New(mediaqueue.Options{})
	}
	if e.Downloader == nil {
		e.Downloader = media.NewHTTPDownloader(media.DefaultTimeout)
	}
	if e.Decoder == nil {
		e.Decoder = media.ContextDecoder{}
	}
	if e.NewID == nil {
		e.NewID = uuid.NewString
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	return e
}
