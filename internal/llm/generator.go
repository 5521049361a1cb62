package llm

import (
	"context"
	"strings"
)

// FallbackInput is sent when the caller supplies no text
const FallbackInput = "Hello!"

// Generator produces a single reply for a single input. It carries no
// conversation history.
type Generator interface {
	Generate(ctx context.Context, input string) (string, error)
}

func inputOrFallback(input string) string {
	if strings.TrimSpace(input) == "" {
		return FallbackInput
	}
	return input
}
