package shopscale

import (
	"errors"
	"testing"
)

func TestNewSearchDirective_CopiesFilters(t *testing.T) {
	filters := map[string]string{"brand": "MDH"}
	d := NewSearchDirective("  1kg sugar ", filters)
	filters["brand"] = "Tata"

	if d.SearchText != "1kg sugar" {
		t.Errorf("search text = %q", d.SearchText)
	}
	if v, ok := d.Filter(FilterBrand); !ok || v != "MDH" {
		t.Errorf("brand = %q, %v", v, ok)
	}
	if _, ok := NewSearchDirective("x", map[string]string{"brand": " "}).Filter(FilterBrand); ok {
		t.Error("blank filter value should be unset")
	}
}

func TestProductRecord_DisplayPrice(t *testing.T) {
	price, sale := 120.0, 95.0
	tests := []struct {
		name   string
		rec    ProductRecord
		want   float64
		wantOK bool
	}{
		{"sale wins", ProductRecord{Price: &price, SalePrice: &sale}, 95, true},
		{"list price", ProductRecord{Price: &price}, 120, true},
		{"unknown", ProductRecord{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rec.DisplayPrice()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("DisplayPrice() = %v, %v", got, ok)
			}
		})
	}
}

func TestAggregate_Outcome(t *testing.T) {
	tests := []struct {
		name string
		agg  *Aggregate
		want Outcome
	}{
		{"nil", nil, OutcomeNoSteps},
		{"only skipped", &Aggregate{Steps: []StepReport{{Status: StepSkipped}}}, OutcomeNoSteps},
		{"products", &Aggregate{Products: []ProductRecord{{SKU: "a"}}, Steps: []StepReport{{Status: StepResolved}, {Status: StepFailed}}}, OutcomeProducts},
		{"all empty", &Aggregate{Steps: []StepReport{{Status: StepEmpty}, {Status: StepEmpty}}}, OutcomeNoMatches},
		{"empty and failed", &Aggregate{Steps: []StepReport{{Status: StepEmpty}, {Status: StepFailed}}}, OutcomeAllFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.agg.Outcome(); got != tt.want {
				t.Errorf("Outcome() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSummary_DistinguishesOutcomes(t *testing.T) {
	plan := &Plan{Intent: IntentShopping, Steps: []SearchDirective{{SearchText: "x"}}}
	messages := make(map[string]bool)
	for _, msg := range []string{
		Summary(nil, nil),
		Summary(plan, &Aggregate{Products: []ProductRecord{{SKU: "a"}}}),
		Summary(plan, &Aggregate{Steps: []StepReport{{Status: StepEmpty}}}),
		Summary(plan, &Aggregate{Steps: []StepReport{{Status: StepFailed}}}),
	} {
		messages[msg] = true
	}
	if len(messages) != 4 {
		t.Errorf("expected 4 distinct messages, got %v", messages)
	}
}

func TestStepReport_UserMessage(t *testing.T) {
	d := SearchDirective{SearchText: "tur dal"}
	if msg := (StepReport{Directive: d, Status: StepEmpty}).UserMessage(); msg != `No results found for "tur dal"` {
		t.Errorf("empty message = %q", msg)
	}
	if (StepReport{Directive: d, Status: StepFailed}).UserMessage() == "" {
		t.Error("failed step should have a message")
	}
	if (StepReport{Directive: d, Status: StepSkipped}).UserMessage() != "" {
		t.Error("skipped step should be silent")
	}
}

func TestErrors_Helpers(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewCatalogError(ReasonTransport, 0, "catalog unreachable", cause)

	if !IsCatalogFailure(err) || IsExtractionFailure(err) {
		t.Error("code helpers disagree")
	}
	if reason, ok := CatalogReason(err); !ok || reason != ReasonTransport {
		t.Errorf("reason = %v, %v", reason, ok)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if got := err.Error(); got != "[resolution:CATALOG_FAILURE{transport}] catalog unreachable: dial tcp: refused" {
		t.Errorf("Error() = %q", got)
	}
}
