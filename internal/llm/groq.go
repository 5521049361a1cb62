package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/groq"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// ErrEmptyCompletion is returned when the model answers with no choices
var ErrEmptyCompletion = errors.New("completion returned no choices")

// GroqGenerator replies through Groq chat completions
type GroqGenerator struct {
	client       openai.Client
	model        string
	temperature  float64
	systemPrompt string
	policy       *resilience.Policy
	logger       zerolog.Logger
}

// NewGroqGenerator creates a chat generator using the configured persona
func NewGroqGenerator(cfg *config.Config, policy *resilience.Policy, logger zerolog.Logger, opts ...option.RequestOption) *GroqGenerator {
	return &GroqGenerator{
		client:       groq.NewClient(cfg, opts...),
		model:        cfg.GroqChatModel,
		temperature:  cfg.GroqTemperature,
		systemPrompt: cfg.SystemPrompt,
		policy:       policy,
		logger:       logger.With().Str("component", "llm").Str("provider", groq.ServiceName).Logger(),
	}
}

// Generate sends the system prompt and input and returns the first choice
func (g *GroqGenerator) Generate(ctx context.Context, input string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(g.systemPrompt),
			openai.UserMessage(inputOrFallback(input)),
		},
		Temperature: openai.Float(g.temperature),
	}

	var output string
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		resp, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return groq.ClassifyError(err)
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyCompletion
		}
		output = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("groq chat completion: %w", err)
	}

	g.logger.Debug().Str("model", g.model).Int("chars", len(output)).Msg("Generated reply")
	return output, nil
}
