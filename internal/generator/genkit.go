package generator

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// GenkitConfig selects the Google AI model used through Genkit.
type GenkitConfig struct {
	APIKey      string
	Model       string   // e.g. "googleai/gemini-2.0-flash"
	Temperature *float64 // nil uses DefaultTemperature
}

// GenkitGenerator runs every prompt through a registered Genkit flow so
// extraction calls show up in Genkit traces and the developer UI.
type GenkitGenerator struct {
	flow *core.Flow[string, string, struct{}]
}

// InitGenkit initialises Genkit with the Google AI plugin.
func InitGenkit(ctx context.Context, cfg GenkitConfig) *genkit.Genkit {
	return genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: cfg.APIKey}),
		genkit.WithDefaultModel(cfg.Model),
	)
}

// NewGenkitGenerator defines the "shoppingPlanFlow" flow on g.
func NewGenkitGenerator(g *genkit.Genkit, cfg GenkitConfig) *GenkitGenerator {
	temperature := temperatureOrDefault(cfg.Temperature)

	flow := genkit.DefineFlow(g, "shoppingPlanFlow", func(ctx context.Context, prompt string) (string, error) {
		opts := []ai.GenerateOption{
			ai.WithPrompt(prompt),
			ai.WithConfig(map[string]any{"temperature": temperature}),
		}
		if cfg.Model != "" {
			opts = append(opts, ai.WithModelName(cfg.Model))
		}
		text, err := genkit.GenerateText(ctx, g, opts...)
		if err != nil {
			return "", err
		}
		return nonEmpty(text)
	})

	return &GenkitGenerator{flow: flow}
}

// Generate implements shopscale.Generator.
func (g *GenkitGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.flow.Run(ctx, prompt)
}
