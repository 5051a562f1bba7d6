package codegen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"scriptpipe/internal/config"
	"scriptpipe/internal/logging"
	"scriptpipe/internal/telemetry"
)

// anthropicGen talks to the Messages API. Sample and question travel as two
// text blocks of a single user turn.
type anthropicGen struct {
	cfg config.GeneratorConfig
}

func newAnthropic(cfg config.GeneratorConfig) *anthropicGen {
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaude3_5Sonnet20241022)
	}
	return &anthropicGen{cfg: cfg}
}

func (g *anthropicGen) client(token string) anthropic.Client {
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
	return anthropic.NewClient(opts...)
}

func (g *anthropicGen) Generate(ctx context.Context, sample []string, prompt string) (string, error) {
	token, err := LoadToken(g.cfg.TokenFile)
	if err != nil {
		return "", err
	}
	client := g.client(token)

	maxTokens := g.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.cfg.Model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(sampleMessage(sample)),
				anthropic.NewTextBlock(questionMessage(prompt)),
			),
		},
		Temperature: anthropic.Float(g.cfg.Temperature),
	}

	logging.L().Debug("codegen: requesting script", "provider", "anthropic", "model", g.cfg.Model, "sample", len(sample))
	start := time.Now()
	resp, err := client.Messages.New(ctx, params)
	telemetry.GenerateSeconds.WithLabelValues("anthropic").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}
	return sb.String(), nil
}
