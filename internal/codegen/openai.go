package codegen

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"scriptpipe/internal/config"
	"scriptpipe/internal/logging"
	"scriptpipe/internal/telemetry"
)

// openAIGen talks to the Chat Completions API.
type openAIGen struct {
	cfg config.GeneratorConfig
}

func newOpenAI(cfg config.GeneratorConfig) *openAIGen {
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	return &openAIGen{cfg: cfg}
}

func (g *openAIGen) client(token string) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(token),
		option.WithMaxRetries(0),
	}
	if g.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(g.cfg.BaseURL))
	}
	if g.cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(g.cfg.Timeout))
	}
	return openai.NewClient(opts...)
}

func (g *openAIGen) Generate(ctx context.Context, sample []string, prompt string) (string, error) {
	token, err := LoadToken(g.cfg.TokenFile)
	if err != nil {
		return "", err
	}
	client := g.client(token)

	params := openai.ChatCompletionNewParams{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(sampleMessage(sample)),
			openai.UserMessage(questionMessage(prompt)),
		},
		Temperature: openai.Float(g.cfg.Temperature),
	}
	if g.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(g.cfg.MaxTokens)
	}

	logging.L().Debug("codegen: requesting script", "provider", "openai", "model", g.cfg.Model, "sample", len(sample))
	start := time.Now()
	resp, err := client.Chat.Completions.New(ctx, params)
	telemetry.GenerateSeconds.WithLabelValues("openai").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
