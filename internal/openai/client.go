package openai

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/kaelo-ai/kaelo/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from ada-002
	DefaultEmbeddingDimensions = 1536
	// DefaultCompletionModel is used when no model is supplied per call
	DefaultCompletionModel = openai.GPT4o
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions, expected 1536")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// CompletionAPI defines the interface for chat completions
type CompletionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// CompleteOptions tunes one completion call.
type CompleteOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Client wraps the OpenAI API for both embeddings and completions.
type Client struct {
	embeddings  EmbeddingAPI
	completions CompletionAPI
	dimensions  int
}

type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIAdapter(apiKey string, model openai.EmbeddingModel) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

// CreateChatCompletion calls the OpenAI chat completion API
func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return a.client.CreateChatCompletion(ctx, req)
}

type Config struct {
	APIKey              string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	adapter := NewOpenAIAdapter(cfg.APIKey, cfg.EmbeddingModel)
	return &Client{
		embeddings:  adapter,
		completions: adapter,
		dimensions:  dimensions,
	}
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.embeddings.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, classifyError(err)
	}

	expected := c.dimensions
	if expected <= 0 {
		expected = DefaultEmbeddingDimensions
	}
	if len(embedding) != expected {
		return nil, ErrWrongDimensions
	}

	return embedding, nil
}

// Complete runs one chat completion and returns the assistant's text.
// Provider failures surface as domain.ErrProviderUnavailable (retryable at
// a higher layer); an empty or unusable response surfaces as
// domain.ErrInvalidModelOutput (not retryable).
func (c *Client) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyText
	}

	model := opts.Model
	if model == "" {
		model = DefaultCompletionModel
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	resp, err := c.completions.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInvalidOutput, "completion returned no choices", domain.ErrInvalidModelOutput)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInvalidOutput, "completion returned empty content", domain.ErrInvalidModelOutput)
	}

	return content, nil
}

// classifyError maps transport and API errors onto the pipeline's error
// taxonomy. Timeouts, cancellations, rate limits and 5xx responses are
// upstream-unavailable; anything else from the API is invalid output.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "provider call timed out", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "provider unreachable", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "provider unavailable", err)
		}
		return domain.NewDomainErrorWithCause(domain.ErrCodeInvalidOutput, "provider rejected request", err)
	}

	return domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "provider call failed", err)
}
