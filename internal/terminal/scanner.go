package terminal

import (
	"context"
	"time"
)

// DecodeSource yields at most one decoded string per scan session. Modelling
// the camera as a bounded producer (instead of a free-running callback) is
// what guarantees a physical code cannot fire two verifications.
type DecodeSource interface {
	Next(ctx context.Context) (string, error)
}

// FrameDecoder tries to decode a single camera frame. ok is false when the
// frame held no readable code.
type FrameDecoder interface {
	DecodeFrame(ctx context.Context) (text string, ok bool, err error)
}

// DefaultFrameInterval bounds the decode loop at ~10 frames per second.
const DefaultFrameInterval = 100 * time.Millisecond

// CameraSource polls a FrameDecoder at a bounded rate and stops on the first
// successful decode.
type CameraSource struct {
	Decoder  FrameDecoder
	Interval time.Duration
}

var _ DecodeSource = (*CameraSource)(nil)

func (c *CameraSource) Next(ctx context.Context) (string, error) {
	interval := c.Interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			text, ok, err := c.Decoder.DecodeFrame(ctx)
			if err != nil {
				return "", err
			}
			if ok {
				return text, nil
			}
		}
	}
}
