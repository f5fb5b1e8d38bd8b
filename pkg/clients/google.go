package clients

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// ModelType is an enum for the available Google AI models.
type ModelType string

const (
	// DefaultModel is the default model to use if none is specified
	DefaultModel ModelType = "gemini-3-flash-preview"
	ProModel     ModelType = "gemini-3-pro-preview"
)

// GoogleGenerator implements TextGenerator on top of a langchaingo
// Google AI model.
type GoogleGenerator struct {
	llm llms.Model
}

// GoogleAi creates a generator for the given model name. An empty name
// selects DefaultModel.
func GoogleAi(ctx context.Context, model string, apiKey string) (*GoogleGenerator, error) {
	if model == "" {
		model = string(DefaultModel)
	}

	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to init Google AI client: %w", err)
	}

	return &GoogleGenerator{llm: llm}, nil
}

func (g *GoogleGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// errStreamStopped signals that the consumer stopped iterating; it is
// never surfaced to callers.
var errStreamStopped = errors.New("stream consumer stopped")

func (g *GoogleGenerator) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		_, err := g.llm.GenerateContent(ctx, []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		}, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			if !yield(string(chunk), nil) {
				return errStreamStopped
			}
			return nil
		}))
		if err != nil && !errors.Is(err, errStreamStopped) {
			yield("", fmt.Errorf("llm streaming failed: %w", err))
		}
	}
}
