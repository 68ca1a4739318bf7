// Package wavespeed implements the video stage against the WaveSpeed
// predictions API: the styled portrait plus the avatar's anthem audio are
// synthesized into a singing video. Predictions are asynchronous upstream;
// the client submits one and polls its result URL until it settles.
package wavespeed

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/generate"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/request"
)

// Prediction statuses reported by the API.
const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// Client implements generate.VideoSynthesizer for WaveSpeed.
type Client struct {
	rc           *request.Client
	baseURL      string
	apiKey       string
	model        string
	assetsDir    string
	pollInterval time.Duration
	store        generate.ArtifactStore
}

// Config holds the client settings.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	AssetsDir    string
	PollInterval time.Duration
}

// NewClient creates a WaveSpeed client.
func NewClient(rc *request.Client, cfg Config, store generate.ArtifactStore) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("wavespeed api key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.wavespeed.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "wavespeed-ai/wan-2.2/s2v-480p"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &Client{
		rc:           rc,
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		assetsDir:    cfg.AssetsDir,
		pollInterval: cfg.PollInterval,
		store:        store,
	}, nil
}

type predictionRequest struct {
	Model string          `json:"model"`
	Input predictionInput `json:"input"`
}

type predictionInput struct {
	Image  string `json:"image"`
	Audio  string `json:"audio"`
	Prompt string `json:"prompt"`
}

type predictionEnvelope struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    predictionData `json:"data"`
}

type predictionData struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Outputs []string `json:"outputs"`
	Error   string   `json:"error"`
	URLs    struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// SynthesizeVideo submits a prediction and polls until it completes, then
// downloads the remote video into the media store.
func (c *Client) SynthesizeVideo(ctx context.Context, jobID, imageRef string, avatar generate.Avatar) (string, error) {
	assets, ok := generate.AssetsFor(avatar)
	if !ok {
		return "", fmt.Errorf("no assets for avatar %q", avatar)
	}

	audio, err := os.ReadFile(filepath.Join(c.assetsDir, assets.AnthemAudio))
	if err != nil {
		return "", fmt.Errorf("failed to read anthem audio: %w", err)
	}

	body, err := json.Marshal(predictionRequest{
		Model: c.model,
		Input: predictionInput{
			Image:  imageRef,
			Audio:  "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString(audio),
			Prompt: assets.MotionPrompt,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal prediction: %w", err)
	}

	pred, err := c.submit(ctx, body)
	if err != nil {
		return "", err
	}
	slog.Info("Video prediction submitted", "job", jobID, "prediction", pred.ID)

	videoURL, err := c.awaitPrediction(ctx, pred)
	if err != nil {
		return "", err
	}

	ref, err := c.store.FetchVideo(ctx, jobID+".mp4", videoURL)
	if err != nil {
		return "", fmt.Errorf("failed to store video: %w", err)
	}

	slog.Info("Video generated", "job", jobID, "avatar", avatar)
	return ref, nil
}

func (c *Client) submit(ctx context.Context, body []byte) (*predictionData, error) {
	resp, err := c.rc.PostWithHeaders(ctx, c.baseURL+"/api/v3/predictions", body, map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + c.apiKey,
	})
	if err != nil {
		return nil, classifyErr(ctx, err)
	}

	var env predictionEnvelope
	if err := json.Unmarshal(resp, &env); err != nil {
		return nil, fmt.Errorf("failed to parse prediction response: %w", err)
	}
	if env.Data.ID == "" {
		return nil, fmt.Errorf("prediction response missing id: %s", env.Message)
	}
	if env.Data.URLs.Get == "" {
		env.Data.URLs.Get = fmt.Sprintf("%s/api/v3/predictions/%s/result", c.baseURL, env.Data.ID)
	}
	return &env.Data, nil
}

// awaitPrediction polls the prediction's result URL until it settles.
// The overall deadline comes from ctx (the driver's stage timeout).
func (c *Client) awaitPrediction(ctx context.Context, pred *predictionData) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", classifyErr(ctx, ctx.Err())
		case <-ticker.C:
		}

		resp, err := c.rc.GetWithHeaders(ctx, pred.URLs.Get, map[string]string{
			"Authorization": "Bearer " + c.apiKey,
		})
		if err != nil {
			return "", classifyErr(ctx, err)
		}

		var env predictionEnvelope
		if err := json.Unmarshal(resp, &env); err != nil {
			return "", fmt.Errorf("failed to parse prediction status: %w", err)
		}

		switch env.Data.Status {
		case statusCompleted:
			if len(env.Data.Outputs) == 0 {
				return "", fmt.Errorf("prediction completed without outputs")
			}
			return env.Data.Outputs[0], nil
		case statusFailed:
			return "", fmt.Errorf("prediction failed: %s", env.Data.Error)
		default:
			slog.Debug("Prediction pending", "prediction", pred.ID, "status", env.Data.Status)
		}
	}
}

func classifyErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", generate.ErrUpstreamTimeout, err)
	}
	var se *request.StatusError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %v", generate.ErrUpstreamUnavailable, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", generate.ErrUpstreamUnavailable, err)
}
