package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/generate"
)

func TestExtractImage(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{
					{Text: "here is your portrait"},
					{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}}},
				},
			},
		}},
	}

	data, err := extractImage(resp)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, data)
}

func TestExtractImageEmptyResponse(t *testing.T) {
	_, err := extractImage(&genai.GenerateContentResponse{})
	assert.Error(t, err)

	_, err = extractImage(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "no image"}}},
		}},
	})
	assert.Error(t, err)
}

func TestMimeForPath(t *testing.T) {
	assert.Equal(t, "image/png", mimeForPath("dress.PNG"))
	assert.Equal(t, "image/jpeg", mimeForPath("photo.jpg"))
	assert.Equal(t, "image/jpeg", mimeForPath("photo.jpeg"))
}

func TestClassifyErrTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// A cancelled (not deadline-exceeded) context is not an upstream timeout.
	err := classifyErr(ctx, assert.AnError)
	assert.ErrorIs(t, err, generate.ErrUpstreamUnavailable)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), "", "m", "assets", nil)
	assert.Error(t, err)
}
