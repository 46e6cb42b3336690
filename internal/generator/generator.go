// Package generator adapts text-generation providers to shopscale.Generator.
package generator

import (
	"context"
	"errors"
	"strings"
)

// DefaultTemperature keeps repeated extractions of the same query close to
// each other without making them deterministic.
const DefaultTemperature = 0.3

func temperatureOrDefault(t *float64) float64 {
	if t == nil {
		return DefaultTemperature
	}
	return *t
}

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("provider returned an empty completion")

// Func adapts a plain function to shopscale.Generator.
type Func func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func nonEmpty(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
