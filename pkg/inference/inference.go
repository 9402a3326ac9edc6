// Package inference provides a unified interface for hosted vision models.
//
// The package hides provider wire formats behind a single Provider interface
// so the gateway can switch between Gemini and OpenAI-compatible endpoints
// (OpenAI, Ollama, vLLM, Together) without changing its prompt logic.
//
// Example usage:
//
//	p, _ := inference.NewGemini(
//	    inference.WithAPIKey(os.Getenv("GOOGLE_API_KEY")),
//	    inference.WithVisionModel("gemini-2.0-flash"),
//	)
//	defer p.Close()
//
//	resp, _ := p.Vision(ctx, &inference.VisionRequest{
//	    Image:  jpegBytes,
//	    Prompt: "What gesture is the person making?",
//	    JSON:   true,
//	})
package inference

import (
	"context"
)

// Provider is the vision inference interface.
// All implementations must satisfy this interface.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// Vision analyzes an encoded image with a text prompt.
	Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// VisionRequest for image analysis.
type VisionRequest struct {
	// Image is the encoded frame (JPEG unless MimeType says otherwise).
	Image []byte

	// MimeType of Image. Defaults to image/jpeg.
	MimeType string

	// SystemPrompt sets the model's standing instructions.
	SystemPrompt string

	// Prompt describing what to analyze or ask about the image.
	Prompt string

	// JSON asks the provider to constrain output to a JSON object.
	JSON bool

	// Model overrides the default vision model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness.
	Temperature float64
}

// mimeType returns the request's image type, defaulting to JPEG.
func (r *VisionRequest) mimeType() string {
	if r.MimeType != "" {
		return r.MimeType
	}
	return "image/jpeg"
}

// VisionResponse from image analysis.
type VisionResponse struct {
	// Content is the model's text output.
	Content string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for analysis.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
