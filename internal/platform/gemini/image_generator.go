package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/provider"
)

// ErrInvalidConfig is returned when the adapter configuration is invalid.
var ErrInvalidConfig = errors.New("invalid gemini configuration")

// ImageGenerator implements the provider.Generator capability interface
// using Google's Gemini API. It is the pipeline's reference adapter:
// transport errors are mapped into provider.ErrorKind values here, at
// the boundary, so nothing downstream inspects error prose.
type ImageGenerator struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// NewImageGenerator creates an ImageGenerator from LLM configuration.
func NewImageGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*ImageGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return &ImageGenerator{
		logger: logger.With("component", "gemini_image_generator"),
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Generate runs one image generation call and reports the outcome.
func (g *ImageGenerator) Generate(ctx context.Context, req provider.Request) provider.Outcome {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.Failure(provider.KindValidation, errors.New("prompt cannot be empty"))
	}

	g.logger.InfoContext(ctx, "calling Gemini API",
		"task_id", req.TaskID,
		"model", g.model)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), nil)
	if err != nil {
		kind := provider.ClassifyError(err)
		g.logger.ErrorContext(ctx, "Gemini API call failed",
			"task_id", req.TaskID,
			"error_kind", kind.String(),
			"error", err)
		return provider.Failure(kind, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return provider.Failure(provider.KindProvider, errors.New("empty response from Gemini"))
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return provider.Failure(provider.KindProvider, errors.New("content blocked by safety filters"))
	}

	var artifacts []provider.Artifact
	for i, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		artifacts = append(artifacts, provider.Artifact{
			Name:    fmt.Sprintf("image-%d%s", i, extensionFor(part.InlineData.MIMEType)),
			Content: bytes.NewReader(part.InlineData.Data),
		})
	}
	if len(artifacts) == 0 {
		return provider.Failure(provider.KindProvider, errors.New("no image data in response"))
	}

	g.logger.InfoContext(ctx, "Gemini API call successful",
		"task_id", req.TaskID,
		"artifact_count", len(artifacts))

	return provider.Success(&provider.Result{
		Artifacts: artifacts,
		Units:     len(artifacts),
	})
}

// extensionFor maps an image MIME type to a file extension.
func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

var _ provider.Generator = (*ImageGenerator)(nil)
