package inference

import (
	"context"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"
)

// #region config

// OpenAIConfig addresses an OpenAI-compatible endpoint (OpenAI, vLLM,
// llama.cpp server, Ollama's /v1).
type OpenAIConfig struct {
	BaseURL      string  `yaml:"base_url"`
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"system_prompt"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float32 `yaml:"temperature"`
}

const defaultSystemPrompt = "You are a concise code assistant. Answer the last question; reuse the examples only when relevant."

func newOpenAIClient(cfg OpenAIConfig) *openai.Client {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(c)
}

// #endregion

// #region backend

// OpenAIBackend generates completions through the chat completions API and
// derives certainty from token log-probabilities when the server returns them.
type OpenAIBackend struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIBackend builds a backend for cfg.Model.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &OpenAIBackend{client: newOpenAIClient(cfg), cfg: cfg}
}

// Generate implements Backend.
func (o *OpenAIBackend) Generate(ctx context.Context, prompt string) (Output, error) {
	req := openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.cfg.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		LogProbs:    true,
		Temperature: o.cfg.Temperature,
	}
	if o.cfg.MaxTokens > 0 {
		req.MaxCompletionTokens = o.cfg.MaxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Output{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Output{}, fmt.Errorf("chat completion: no choices")
	}

	choice := resp.Choices[0]
	out := Output{Text: choice.Message.Content, Model: resp.Model}
	if out.Model == "" {
		out.Model = o.cfg.Model
	}
	if choice.LogProbs != nil {
		out.Certainty = certaintyFromLogProbs(choice.LogProbs.Content)
	}
	return out, nil
}

// certaintyFromLogProbs is the geometric mean token probability.
func certaintyFromLogProbs(lps []openai.LogProb) *float64 {
	if len(lps) == 0 {
		return nil
	}
	var sum float64
	for _, lp := range lps {
		sum += lp.LogProb
	}
	c := clamp01(math.Exp(sum / float64(len(lps))))
	return &c
}

// #endregion

// #region embedder

// OpenAIEmbedder calls the embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder builds an embedder for cfg.Model.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: newOpenAIClient(cfg), model: cfg.Model}
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("create embeddings: empty response")
	}
	return resp.Data[0].Embedding, nil
}

// #endregion
