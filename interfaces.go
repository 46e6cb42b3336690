package shopscale

import "context"

// Generator is the external text-generation service. It accepts one complete
// instruction and returns the instruction-following text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Extractor turns a raw user query into a Plan.
type Extractor interface {
	Extract(ctx context.Context, query string) (*Plan, error)
}

// Resolver executes one directive against the product catalog. index is the
// directive's position in its plan and is stamped on every returned record.
// A zero-match search returns an empty batch and a nil error.
type Resolver interface {
	Resolve(ctx context.Context, directive SearchDirective, index int) ([]ProductRecord, error)
}

// Runner resolves every step of a plan into an order-preserving aggregate.
// Per-step failures are reported in the aggregate, never returned; the error
// is reserved for cancellation of the whole run.
type Runner interface {
	Run(ctx context.Context, plan *Plan) (*Aggregate, error)
}

// PlanCache stores extracted plans keyed by query. A miss is (nil, false, nil).
type PlanCache interface {
	Get(ctx context.Context, key string) (*Plan, bool, error)
	Set(ctx context.Context, key string, plan *Plan) error
}
