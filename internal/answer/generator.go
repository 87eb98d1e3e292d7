// Package answer builds augmented prompts from retrieved context and invokes
// a generation model to produce grounded answers with citations.
package answer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

// ErrGeneration indicates a model-call failure after retries were exhausted.
var ErrGeneration = errors.New("generation failed")

// DefaultChatModel is the generation model.
const DefaultChatModel = openai.ChatModelGPT4oMini

// Request is one generation call.
type Request struct {
	System string
	User   string
	JSON   bool // Request a JSON object response
}

// Generator invokes a chat completion model. Implementations own the retry
// policy for transient failures.
type Generator interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// OpenAIGenerator implements Generator with exponential backoff on rate
// limits, mirroring the embedding provider's policy.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator reading OPENAI_API_KEY from the
// environment. An empty model selects DefaultChatModel.
func NewOpenAIGenerator(model string) (*OpenAIGenerator, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if model == "" {
		model = string(DefaultChatModel)
	}
	client := openai.NewClient()
	return &OpenAIGenerator{client: &client, model: model}, nil
}

// Complete runs one chat completion. Rate limit errors retry with
// exponential backoff; other failures are permanent.
func (g *OpenAIGenerator) Complete(ctx context.Context, req Request) (string, error) {
	var content string

	operation := func() error {
		params := openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(req.System),
				openai.UserMessage(req.User),
			},
			Model: openai.ChatModel(g.model),
		}
		if req.JSON {
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &openai.ResponseFormatJSONObjectParam{Type: "json_object"},
			}
		}

		resp, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("empty completion response"))
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return content, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
