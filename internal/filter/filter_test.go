package filter

import (
	"testing"

	"github.com/Knetic/govaluate"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
)

func ptr(v float64) *float64 { return &v }

func records() []shopscale.ProductRecord {
	return []shopscale.ProductRecord{
		{SKU: "A", Brand: "MDH", Price: ptr(120), SalePrice: ptr(95), Rating: ptr(4.5)},
		{SKU: "B", Brand: "Tata", Price: ptr(80), Rating: ptr(3.9)},
		{SKU: "C", Brand: shopscale.UnknownValue},
		{SKU: "D", Brand: "mdh", Price: ptr(150), Rating: ptr(4.8)},
	}
}

func skus(recs []shopscale.ProductRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.SKU
	}
	return out
}

func mustFilter(t *testing.T) *Filter {
	t.Helper()
	f, err := New(DefaultRules(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return f
}

func TestApply_Table(t *testing.T) {
	tests := []struct {
		name    string
		filters map[string]string
		want    []string
	}{
		{"no filters", nil, []string{"A", "B", "C", "D"}},
		{"brand is case-insensitive", map[string]string{"brand": "MDH"}, []string{"A", "C", "D"}},
		{"max price uses sale price", map[string]string{"maxPrice": "100 aed"}, []string{"A", "B", "C"}},
		{"min rating", map[string]string{"minRating": "4.6"}, []string{"C", "D"}},
		{"combined", map[string]string{"brand": "mdh", "maxPrice": "100"}, []string{"A", "C"}},
		{"unparseable value is ignored", map[string]string{"maxPrice": "cheap"}, []string{"A", "B", "C", "D"}},
		{"unknown key is ignored", map[string]string{"colour": "red"}, []string{"A", "B", "C", "D"}},
	}
	f := mustFilter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := shopscale.NewSearchDirective("x", tt.filters)
			got, dropped := f.Apply(d, records())
			if g := skus(got); !equal(g, tt.want) {
				t.Errorf("got %v, want %v", g, tt.want)
			}
			if dropped != 4-len(tt.want) {
				t.Errorf("dropped = %d, want %d", dropped, 4-len(tt.want))
			}
		})
	}
}

func TestNew_InvalidExpression(t *testing.T) {
	_, err := New(map[string]Rule{"maxPrice": {Attr: AttrPrice, Expr: "price <= "}}, nil)
	if !shopscale.IsCode(err, shopscale.ErrCodeConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestRegistry_CustomFunction(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.Register("withTolerance", func(args ...interface{}) (interface{}, error) {
		called = true
		return args[0].(float64) * 1.1, nil
	})
	if _, ok := reg.Functions()["withTolerance"]; !ok {
		t.Fatal("withTolerance not registered")
	}

	f, err := New(map[string]Rule{
		shopscale.FilterMaxPrice: {Attr: AttrPrice, Expr: "price <= withTolerance(want)", Numeric: true},
	}, reg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, _ := f.Apply(shopscale.NewSearchDirective("x", map[string]string{"maxPrice": "90"}), records())
	if g := skus(got); !equal(g, []string{"A", "B", "C"}) {
		t.Errorf("got %v", g)
	}
	if !called {
		t.Error("custom function was not called")
	}
}

func TestRegistry_Builtins(t *testing.T) {
	eval, err := govaluate.NewEvaluableExpressionWithFunctions(`contains(name, "SUGAR")`, NewRegistry().Functions())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	res, err := eval.Evaluate(map[string]interface{}{"name": "MDH sugar 1kg"})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if res != true {
		t.Errorf("expected true, got %v", res)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
