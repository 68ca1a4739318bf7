// Package gemini implements the portrait stage against the Gemini image
// model: the visitor's photo plus the avatar's dress reference are edited
// into a styled half-body portrait.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/iterator"
	"google.golang.org/genai"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/generate"
)

// Client implements generate.ImageEditor for Google Gemini.
type Client struct {
	genaiClient *genai.Client
	modelName   string
	assetsDir   string
	store       generate.ArtifactStore
}

// NewClient creates a new Gemini client and validates the configured model.
func NewClient(ctx context.Context, apiKey, modelName, assetsDir string, store generate.ArtifactStore) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash-image"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	c := &Client{
		genaiClient: client,
		modelName:   modelName,
		assetsDir:   assetsDir,
		store:       store,
	}

	if err := c.validateModel(ctx); err != nil {
		slog.Warn("Gemini model validation failed (proceeding anyway)", "error", err)
		// Startup should survive a flaky or rate-limited API; a truly
		// invalid key or model fails on the first generation call.
	}

	return c, nil
}

// EditImage sends the captured photo, the avatar's dress reference and the
// costume prompt to the image model and persists the returned portrait.
func (c *Client) EditImage(ctx context.Context, jobID, photoPath string, avatar generate.Avatar) (string, error) {
	assets, ok := generate.AssetsFor(avatar)
	if !ok {
		return "", fmt.Errorf("no assets for avatar %q", avatar)
	}

	photo, err := os.ReadFile(photoPath)
	if err != nil {
		return "", fmt.Errorf("failed to read captured photo: %w", err)
	}
	dress, err := os.ReadFile(filepath.Join(c.assetsDir, assets.DressImage))
	if err != nil {
		return "", fmt.Errorf("failed to read dress reference: %w", err)
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeForPath(photoPath), Data: photo}},
			{InlineData: &genai.Blob{MIMEType: mimeForPath(assets.DressImage), Data: dress}},
			{Text: assets.CostumePrompt},
		},
	}}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	resp, err := c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, config)
	if err != nil {
		return "", classifyErr(ctx, err)
	}

	data, err := extractImage(resp)
	if err != nil {
		return "", err
	}

	ref, err := c.store.SaveImage(ctx, jobID+".jpeg", data)
	if err != nil {
		return "", fmt.Errorf("failed to store portrait: %w", err)
	}

	slog.Info("Portrait generated", "job", jobID, "avatar", avatar, "bytes", len(data))
	return ref, nil
}

// extractImage pulls the first inline image out of a generation response.
func extractImage(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty response from image model")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, nil
		}
	}
	return nil, fmt.Errorf("no image in response from image model")
}

func classifyErr(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", generate.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", generate.ErrUpstreamUnavailable, err)
}

func mimeForPath(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".png") {
		return "image/png"
	}
	return "image/jpeg"
}

// validateModel checks if the configured model is available for the API key.
func (c *Client) validateModel(ctx context.Context) error {
	name := c.modelName
	if !strings.HasPrefix(name, "models/") {
		name = "models/" + name
	}

	// Try to get the specific model (1 API call)
	_, err := c.genaiClient.Models.Get(ctx, name, nil)
	if err == nil {
		slog.Debug("Gemini model validation success", "model", c.modelName)
		return nil
	}

	slog.Warn("Gemini model validation failed, fetching available models...", "model", c.modelName, "error", err)

	iter, listErr := c.genaiClient.Models.List(ctx, nil)
	if listErr != nil {
		slog.Warn("Failed to list models for recovery", "error", listErr)
		return nil
	}

	for {
		m, nextErr := iter.Next(ctx)
		if nextErr == iterator.Done {
			break
		}
		if nextErr != nil {
			break
		}
		if strings.Contains(strings.ToLower(m.Name), "image") {
			slog.Info("Available image model for this key", "model", m.Name)
		}
	}

	return nil
}
