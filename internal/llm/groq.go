package llm

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultGroqBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// GroqProvider calls Groq through the OpenAI-compatible API.
type GroqProvider struct {
	client *openai.Client
}

// NewGroqProvider creates a provider. An empty baseURL selects Groq; tests
// point it at a local server.
func NewGroqProvider(apiKey, baseURL string, httpClient *http.Client) *GroqProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = DefaultGroqBaseURL
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}
	return &GroqProvider{client: openai.NewClientWithConfig(config)}
}

func (p *GroqProvider) Name() string { return "groq" }

func (p *GroqProvider) buildRequest(req Request, stream bool) openai.ChatCompletionRequest {
	temperature := req.Temperature
	if temperature == 0 {
		// omitempty would drop an explicit zero and the server default applies
		temperature = math.SmallestNonzeroFloat32
	}
	return openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        1,
		Stream:      stream,
	}
}

func (p *GroqProvider) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req, false))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *GroqProvider) OpenStream(ctx context.Context, req Request) (TokenStream, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	return &groqStream{stream: stream}, nil
}

type groqStream struct {
	stream *openai.ChatCompletionStream
}

func (s *groqStream) Next() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *groqStream) Close() error {
	return s.stream.Close()
}
