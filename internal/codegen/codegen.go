// Package codegen turns a prompt and a sample of the input into a script by
// asking a hosted language model.
package codegen

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"scriptpipe/internal/config"
)

//go:embed system_prompt.txt
var systemPrompt string

var (
	// ErrNoCredentials is returned before any network call when the token
	// file is missing or empty.
	ErrNoCredentials = errors.New("codegen: no credentials")
	// ErrEmptyResponse means the model answered without any text.
	ErrEmptyResponse = errors.New("codegen: empty response")
)

// Generator produces the source text of a script.
type Generator interface {
	Generate(ctx context.Context, sample []string, prompt string) (string, error)
}

// New picks the provider named by cfg. No credentials are read until the
// first Generate call.
func New(cfg config.GeneratorConfig) (Generator, error) {
	switch cfg.Provider {
	case "", "openai":
		return newOpenAI(cfg), nil
	case "anthropic":
		return newAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("codegen: unknown provider %q", cfg.Provider)
	}
}

// LoadToken reads a single-line secret.
func LoadToken(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: token file %s not found", ErrNoCredentials, path)
		}
		return "", fmt.Errorf("codegen: read token: %w", err)
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", fmt.Errorf("%w: token file %s is empty", ErrNoCredentials, path)
	}
	return tok, nil
}

// SystemPrompt is the instruction text sent with every request.
func SystemPrompt() string { return systemPrompt }

func sampleMessage(sample []string) string { return "S:\n" + strings.Join(sample, "\n") }

func questionMessage(prompt string) string { return "Q:\n" + prompt }
