// Package filter applies directive filters to resolved records on the client
// side, for catalogs that ignore or do not receive forwarded filters.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/Knetic/govaluate"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
)

// Attributes a rule can compare against.
const (
	AttrBrand  = "brand"
	AttrPrice  = "price"
	AttrRating = "rating"
)

// wantParam is the expression parameter bound to the filter value.
const wantParam = "want"

var numericValue = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)

// Rule maps one filter key to a boolean expression over a record attribute
// and the filter value, bound as "want".
type Rule struct {
	Attr    string
	Expr    string
	Numeric bool
}

// DefaultRules covers the recognised filter keys.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		shopscale.FilterBrand:     {Attr: AttrBrand, Expr: "lower(brand) == lower(want)"},
		shopscale.FilterMaxPrice:  {Attr: AttrPrice, Expr: "price <= want", Numeric: true},
		shopscale.FilterMinPrice:  {Attr: AttrPrice, Expr: "price >= want", Numeric: true},
		shopscale.FilterMinRating: {Attr: AttrRating, Expr: "rating >= want", Numeric: true},
	}
}

// Registry holds the functions rule expressions may call.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]govaluate.ExpressionFunction
}

// NewRegistry returns a registry with the built-in string helpers.
func NewRegistry() *Registry {
	r := &Registry{functions: make(map[string]govaluate.ExpressionFunction)}
	r.Register("lower", func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("lower expects 1 argument, got %d", len(args))
		}
		return strings.ToLower(strings.TrimSpace(fmt.Sprint(args[0]))), nil
	})
	r.Register("contains", func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("contains expects 2 arguments, got %d", len(args))
		}
		return strings.Contains(strings.ToLower(fmt.Sprint(args[0])), strings.ToLower(fmt.Sprint(args[1]))), nil
	})
	return r
}

// Register adds or replaces a function.
func (r *Registry) Register(name string, fn govaluate.ExpressionFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[name] = fn
}

// Functions returns a snapshot of the registered functions.
func (r *Registry) Functions() map[string]govaluate.ExpressionFunction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]govaluate.ExpressionFunction, len(r.functions))
	for k, v := range r.functions {
		out[k] = v
	}
	return out
}

type compiledRule struct {
	Rule
	expr *govaluate.EvaluableExpression
}

// Filter evaluates directive filters against records. It is safe for concurrent use.
type Filter struct {
	rules map[string]compiledRule
}

// New compiles rules. An expression that does not parse is a configuration error.
func New(rules map[string]Rule, registry *Registry) (*Filter, error) {
	if registry == nil {
		registry = NewRegistry()
	}
	functions := registry.Functions()
	f := &Filter{rules: make(map[string]compiledRule, len(rules))}
	for key, rule := range rules {
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(rule.Expr, functions)
		if err != nil {
			return nil, shopscale.NewConfigurationError(fmt.Sprintf("filter rule %q", key), err)
		}
		f.rules[key] = compiledRule{Rule: rule, expr: expr}
	}
	return f, nil
}

// Apply returns the records that satisfy every filter in directive, preserving
// order, and the number dropped. Unknown attributes and unparseable filter
// values never exclude a record.
func (f *Filter) Apply(directive shopscale.SearchDirective, records []shopscale.ProductRecord) ([]shopscale.ProductRecord, int) {
	if len(directive.Filters) == 0 || len(records) == 0 {
		return records, 0
	}
	kept := make([]shopscale.ProductRecord, 0, len(records))
	for _, rec := range records {
		if f.Match(directive, rec) {
			kept = append(kept, rec)
		}
	}
	return kept, len(records) - len(kept)
}

// Match reports whether rec satisfies every recognised filter.
func (f *Filter) Match(directive shopscale.SearchDirective, rec shopscale.ProductRecord) bool {
	for key := range directive.Filters {
		rule, ok := f.rules[key]
		if !ok {
			continue
		}
		raw, ok := directive.Filter(key)
		if !ok {
			continue
		}
		want, ok := filterValue(raw, rule.Numeric)
		if !ok {
			continue
		}
		have, ok := attribute(rec, rule.Attr)
		if !ok {
			continue
		}
		result, err := rule.expr.Evaluate(map[string]interface{}{rule.Attr: have, wantParam: want})
		if err != nil {
			continue
		}
		if pass, isBool := result.(bool); isBool && !pass {
			return false
		}
	}
	return true
}

func filterValue(raw string, numeric bool) (interface{}, bool) {
	if !numeric {
		return raw, true
	}
	v, err := strconv.ParseFloat(numericValue.FindString(raw), 64)
	if err != nil {
		return nil, false
	}
	return v, true
}

func attribute(rec shopscale.ProductRecord, attr string) (interface{}, bool) {
	switch attr {
	case AttrBrand:
		if rec.Brand == "" || rec.Brand == shopscale.UnknownValue {
			return nil, false
		}
		return rec.Brand, true
	case AttrPrice:
		return rec.DisplayPrice()
	case AttrRating:
		if rec.Rating == nil {
			return nil, false
		}
		return *rec.Rating, true
	}
	return nil, false
}
