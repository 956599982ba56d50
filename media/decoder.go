package media

import (
	"context"

	"tutti/playback"
)

// ContextDecoder decodes with the output context that will play the buffer
type ContextDecoder struct{}

// Decode implements mediaqueue.Decoder
func (ContextDecoder) Decode(ctx context.Context, pc playback.Context, data []byte) (playback.Buffer, error) {
	return pc.DecodeAudioData(ctx, data)
}
