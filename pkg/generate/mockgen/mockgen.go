// Package mockgen provides deterministic stand-ins for the generation
// stages. The stand-ins wait a short fixed duration so the pending states
// are visible on the kiosk, always succeed, and return fixed placeholder
// artifacts. Everything above the stage boundary behaves identically to
// real mode.
package mockgen

import (
	"context"
	"log/slog"
	"time"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/generate"
)

// Placeholder artifact references returned by the mock stages.
const (
	PlaceholderImageRef = "/media/placeholder/portrait.jpeg"
	PlaceholderVideoRef = "/media/placeholder/anthem.mp4"
)

// Stages implements both generate.ImageEditor and generate.VideoSynthesizer.
type Stages struct {
	ImageDelay time.Duration
	VideoDelay time.Duration
}

// New creates mock stages. The image delay defaults shorter than the video
// delay, mirroring the real pipeline's stage proportions.
func New(imageDelay, videoDelay time.Duration) *Stages {
	if imageDelay <= 0 {
		imageDelay = 2 * time.Second
	}
	if videoDelay <= 0 {
		videoDelay = 5 * time.Second
	}
	return &Stages{ImageDelay: imageDelay, VideoDelay: videoDelay}
}

// EditImage waits the configured image latency and returns the placeholder
// portrait.
func (m *Stages) EditImage(ctx context.Context, jobID, photoPath string, avatar generate.Avatar) (string, error) {
	slog.Info("Mock image stage", "job", jobID, "avatar", avatar, "delay", m.ImageDelay)
	if err := wait(ctx, m.ImageDelay); err != nil {
		return "", err
	}
	return PlaceholderImageRef, nil
}

// SynthesizeVideo waits the configured video latency and returns the
// placeholder video.
func (m *Stages) SynthesizeVideo(ctx context.Context, jobID, imageRef string, avatar generate.Avatar) (string, error) {
	slog.Info("Mock video stage", "job", jobID, "avatar", avatar, "delay", m.VideoDelay)
	if err := wait(ctx, m.VideoDelay); err != nil {
		return "", err
	}
	return PlaceholderVideoRef, nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
