package shopscale

import (
	"strings"
	"time"
)

// Intent is the coarse classification of what kind of plan was requested.
type Intent string

const (
	// IntentPlanning covers open-ended tasks such as organising a party or a picnic.
	IntentPlanning Intent = "planning"
	// IntentShopping covers explicit buy orders.
	IntentShopping Intent = "shopping"
	// IntentRecipe covers cooking requests that need pantry ingredients.
	IntentRecipe Intent = "recipe"
)

// Valid reports whether the intent is one of the recognised labels.
func (i Intent) Valid() bool {
	switch i {
	case IntentPlanning, IntentShopping, IntentRecipe:
		return true
	}
	return false
}

// Recognised filter keys. The filter map is open; these are the keys the
// catalog and the client-side filter know how to interpret.
const (
	FilterBrand     = "brand"
	FilterMaxPrice  = "maxPrice"
	FilterMinPrice  = "minPrice"
	FilterMinRating = "minRating"
)

// SearchDirective is one atomic catalog search derived from the user's request.
type SearchDirective struct {
	SearchText string            `json:"searchText" yaml:"q" validate:"notblank"`
	Filters    map[string]string `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// NewSearchDirective returns a directive with trimmed search text and a private
// copy of the filters, so later changes to the caller's map are not observed.
func NewSearchDirective(searchText string, filters map[string]string) SearchDirective {
	d := SearchDirective{SearchText: strings.TrimSpace(searchText)}
	if len(filters) > 0 {
		d.Filters = make(map[string]string, len(filters))
		for k, v := range filters {
			d.Filters[k] = v
		}
	}
	return d
}

// Filter returns the value of a filter key and whether it was set to a non-blank value.
func (d SearchDirective) Filter(key string) (string, bool) {
	v, ok := d.Filters[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Plan is the ordered set of directives plus a classified intent, produced from one query.
// Step order encodes relevance and is preserved through to the aggregate.
type Plan struct {
	Intent Intent            `json:"intent" yaml:"intent"`
	Steps  []SearchDirective `json:"steps" yaml:"search_steps"`

	// Raw is the unparsed generator output the plan was extracted from.
	Raw string `json:"raw,omitempty" yaml:"-"`
}

// Empty reports whether the plan has no steps.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Steps) == 0
}

// UnknownValue is the display sentinel for attributes the catalog did not supply.
const UnknownValue = "N/A"

// ProductRecord is one purchasable item resolved from the catalog. Records are
// values; nothing in the pipeline mutates one after the resolver builds it.
// Numeric attributes are nil when unknown.
type ProductRecord struct {
	SKU        string   `json:"sku"`
	SKUConfig  string   `json:"skuConfig"`
	Name       string   `json:"name"`
	Brand      string   `json:"brand"`
	ImageURL   string   `json:"imageUrl"`
	Price      *float64 `json:"price,omitempty"`
	SalePrice  *float64 `json:"salePrice,omitempty"`
	Rating     *float64 `json:"rating,omitempty"`
	ProductURL string   `json:"productUrl"`

	// SourceDirective is the index of the plan step that produced this record.
	// It is provenance only and takes no part in equality.
	SourceDirective int `json:"sourceDirective"`
}

// HasIdentity reports whether the catalog assigned the record an SKU.
func (r ProductRecord) HasIdentity() bool {
	return r.SKU != "" && r.SKU != UnknownValue
}

// DisplayPrice is the sale price when known, otherwise the list price.
func (r ProductRecord) DisplayPrice() (float64, bool) {
	if r.SalePrice != nil {
		return *r.SalePrice, true
	}
	if r.Price != nil {
		return *r.Price, true
	}
	return 0, false
}

// StepStatus classifies how a single plan step ended.
type StepStatus string

const (
	// StepResolved means the catalog returned at least one product.
	StepResolved StepStatus = "resolved"
	// StepEmpty means the catalog legitimately found nothing.
	StepEmpty StepStatus = "empty"
	// StepFailed means the catalog lookup failed; Err carries a CatalogFailure.
	StepFailed StepStatus = "failed"
	// StepSkipped means the directive was invalid and never sent to the catalog.
	StepSkipped StepStatus = "skipped"
)

// StepReport is the per-directive resolution outcome.
type StepReport struct {
	Index     int             `json:"index"`
	Directive SearchDirective `json:"directive"`
	Status    StepStatus      `json:"status"`
	Count     int             `json:"count"`
	Reason    FailureReason   `json:"reason,omitempty"`
	Err       error           `json:"-"`
	Attempts  int             `json:"attempts"`
	Duration  time.Duration   `json:"duration"`
}

// UserMessage is the caller-visible text for a step that did not contribute
// products. Skipped steps are an extraction quality issue and stay silent.
func (s StepReport) UserMessage() string {
	switch s.Status {
	case StepEmpty:
		return "No results found for \"" + s.Directive.SearchText + "\""
	case StepFailed:
		return "Could not look up \"" + s.Directive.SearchText + "\" right now"
	}
	return ""
}

// Aggregate is the order-preserving result of running a plan.
type Aggregate struct {
	Products []ProductRecord `json:"products"`
	Steps    []StepReport    `json:"steps"`
}

// Outcome summarises an aggregate for user messaging.
type Outcome string

const (
	// OutcomeNoSteps means the plan had nothing to resolve.
	OutcomeNoSteps Outcome = "no_steps"
	// OutcomeProducts means at least one product was found.
	OutcomeProducts Outcome = "products"
	// OutcomeNoMatches means every resolved step came back empty.
	OutcomeNoMatches Outcome = "no_matches"
	// OutcomeAllFailed means no step produced products and at least one lookup failed.
	OutcomeAllFailed Outcome = "all_failed"
)

// Outcome classifies the aggregate.
func (a *Aggregate) Outcome() Outcome {
	if a == nil {
		return OutcomeNoSteps
	}
	if len(a.Products) > 0 {
		return OutcomeProducts
	}
	attempted, failed := 0, 0
	for _, s := range a.Steps {
		switch s.Status {
		case StepFailed:
			attempted++
			failed++
		case StepEmpty, StepResolved:
			attempted++
		}
	}
	switch {
	case attempted == 0:
		return OutcomeNoSteps
	case failed > 0:
		return OutcomeAllFailed
	default:
		return OutcomeNoMatches
	}
}

// Failures returns the reports of steps whose lookup failed.
func (a *Aggregate) Failures() []StepReport {
	return a.filter(StepFailed)
}

// EmptySteps returns the reports of steps that found nothing.
func (a *Aggregate) EmptySteps() []StepReport {
	return a.filter(StepEmpty)
}

func (a *Aggregate) filter(status StepStatus) []StepReport {
	if a == nil {
		return nil
	}
	var out []StepReport
	for _, s := range a.Steps {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out
}

// Result is everything the presentation layer needs for one query.
type Result struct {
	Query     string     `json:"query"`
	Plan      *Plan      `json:"plan"`
	Aggregate *Aggregate `json:"aggregate"`
	Message   string     `json:"message"`
}

// Summary returns the message for the result as a whole.
func Summary(plan *Plan, agg *Aggregate) string {
	if plan.Empty() {
		return "We couldn't form a shopping plan for that request. Try rephrasing it."
	}
	switch agg.Outcome() {
	case OutcomeProducts:
		return "Top product recommendations"
	case OutcomeNoMatches:
		return "No products found. Try refining your query."
	case OutcomeAllFailed:
		return "The catalog could not be reached for any step. Please try again."
	}
	return "We couldn't form a shopping plan for that request. Try rephrasing it."
}
