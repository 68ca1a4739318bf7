// Package generate defines the stage contracts of the photo-to-video
// pipeline. The driver only sees these interfaces; real and mock providers
// are interchangeable behind them.
package generate

import (
	"context"
	"errors"
)

// Upstream conditions the driver maps onto job failure kinds. Providers wrap
// these so the caller can branch with errors.Is regardless of transport.
var (
	ErrUpstreamTimeout     = errors.New("upstream deadline exceeded")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ImageEditor produces the styled portrait for a captured photo.
// The returned reference is a serveable artifact URL.
type ImageEditor interface {
	EditImage(ctx context.Context, jobID, photoPath string, avatar Avatar) (string, error)
}

// VideoSynthesizer animates the styled portrait into the anthem video.
// imageRef must be a URL reachable by the upstream service.
type VideoSynthesizer interface {
	SynthesizeVideo(ctx context.Context, jobID, imageRef string, avatar Avatar) (string, error)
}

// ArtifactStore persists generated artifacts and returns serveable references.
// Implemented by the media store.
type ArtifactStore interface {
	SaveImage(ctx context.Context, name string, data []byte) (string, error)
	FetchVideo(ctx context.Context, name, url string) (string, error)
}
