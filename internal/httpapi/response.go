package httpapi

import (
	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
)

// assistResponse is the presentation payload: the detected plan, the ordered
// products, one entry per step and the overall message.
type assistResponse struct {
	Query    string                      `json:"query,omitempty"`
	Intent   shopscale.Intent            `json:"intent"`
	RawPlan  string                      `json:"rawPlan,omitempty"`
	Plan     []shopscale.SearchDirective `json:"plan"`
	Products []productView               `json:"products"`
	Steps    []stepView                  `json:"steps"`
	Outcome  shopscale.Outcome           `json:"outcome"`
	Message  string                      `json:"message"`
	Notices  []string                    `json:"notices,omitempty"`
}

type productView struct {
	shopscale.ProductRecord
	DisplayPrice *float64 `json:"displayPrice,omitempty"`
}

type stepView struct {
	Index      int                  `json:"index"`
	SearchText string               `json:"searchText"`
	Filters    map[string]string    `json:"filters,omitempty"`
	Status     shopscale.StepStatus `json:"status"`
	Count      int                  `json:"count"`
	Reason     string               `json:"reason,omitempty"`
	Message    string               `json:"message,omitempty"`
	Attempts   int                  `json:"attempts"`
	DurationMs int64                `json:"durationMs"`
}

func newAssistResponse(result *shopscale.Result) assistResponse {
	resp := assistResponse{
		Query:    result.Query,
		Products: []productView{},
		Steps:    []stepView{},
		Plan:     []shopscale.SearchDirective{},
		Message:  result.Message,
		Outcome:  result.Aggregate.Outcome(),
	}
	if result.Plan != nil {
		resp.Intent = result.Plan.Intent
		resp.RawPlan = result.Plan.Raw
		resp.Plan = append(resp.Plan, result.Plan.Steps...)
	}
	if result.Aggregate == nil {
		return resp
	}
	for _, p := range result.Aggregate.Products {
		view := productView{ProductRecord: p}
		if price, ok := p.DisplayPrice(); ok {
			view.DisplayPrice = &price
		}
		resp.Products = append(resp.Products, view)
	}
	for _, step := range result.Aggregate.Steps {
		resp.Steps = append(resp.Steps, stepView{
			Index:      step.Index,
			SearchText: step.Directive.SearchText,
			Filters:    step.Directive.Filters,
			Status:     step.Status,
			Count:      step.Count,
			Reason:     string(step.Reason),
			Message:    step.UserMessage(),
			Attempts:   step.Attempts,
			DurationMs: step.Duration.Milliseconds(),
		})
		if msg := step.UserMessage(); msg != "" {
			resp.Notices = append(resp.Notices, msg)
		}
	}
	return resp
}
