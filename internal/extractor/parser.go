package extractor

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
)

var (
	intentPattern    = regexp.MustCompile(`(?im)^[\s\-*#>{"'` + "`" + `]*intent["'*\s]*[:=]\s*(.+)$`)
	directivePattern = regexp.MustCompile(`\bq"?\s*:\s*"((?:[^"\\\n]|\\.)*)"`)
	filterPattern    = regexp.MustCompile(`filters"?\s*:\s*\{([^{}]*)\}`)
	pairPattern      = regexp.MustCompile(`["']?([A-Za-z_][\w-]*)["']?\s*:\s*("(?:[^"\\]|\\.)*"|'[^']*'|[^,}]+)`)
	labelSplit       = regexp.MustCompile(`[^a-z]+`)
)

// intentAliases maps every label the generator has been seen to emit onto a
// recognised intent.
var intentAliases = map[string]shopscale.Intent{
	"planning": shopscale.IntentPlanning,
	"plan":     shopscale.IntentPlanning,
	"shopping": shopscale.IntentShopping,
	"shop":     shopscale.IntentShopping,
	"recipe":   shopscale.IntentRecipe,
	"cooking":  shopscale.IntentRecipe,
	"cook":     shopscale.IntentRecipe,
}

// Parser converts raw generator output into a validated Plan. It is a
// tolerant scanner followed by per-directive validation: malformed entries are
// dropped individually and never fail the whole parse.
type Parser struct {
	validate *validator.Validate
	logger   *zap.Logger
}

// NewParser creates a parser. A nil logger discards drop warnings.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{validate: NewValidator(), logger: logger}
}

// NewValidator returns a validator with the notblank rule used on directives.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Parse extracts the intent and the ordered directives from raw. It fails only
// when no recognised intent label is present; zero directives is an empty plan.
func (p *Parser) Parse(raw string) (*shopscale.Plan, error) {
	intent, ok := parseIntent(raw)
	if !ok {
		return nil, shopscale.NewExtractionError("generator output has no recognised intent label", nil)
	}

	plan := &shopscale.Plan{Intent: intent, Steps: []shopscale.SearchDirective{}, Raw: raw}

	matches := directivePattern.FindAllStringSubmatchIndex(raw, -1)
	for i, m := range matches {
		lo, hi := 0, len(raw)
		if i > 0 {
			lo = matches[i-1][1]
		}
		if i+1 < len(matches) {
			hi = matches[i+1][0]
		}
		segment, ok := enclosingEntry(raw, lo, m[0], m[1], hi)
		if !ok {
			segment = raw[m[1]:hi]
		}
		text := unescape(raw[m[2]:m[3]])
		directive := shopscale.NewSearchDirective(text, parseFilters(segment))

		if err := p.validate.Struct(directive); err != nil {
			p.logger.Warn("dropping invalid directive",
				zap.Int("position", i),
				zap.String("search_text", text),
				zap.Error(shopscale.NewInvalidDirectiveError(i, "blank search text")),
			)
			continue
		}
		plan.Steps = append(plan.Steps, directive)
	}

	return plan, nil
}

// parseIntent returns the first recognised label on the first intent line
// that carries one, so "cooking/recipe" is recipe and "planning/shopping" is planning.
func parseIntent(raw string) (shopscale.Intent, bool) {
	for _, m := range intentPattern.FindAllStringSubmatch(raw, -1) {
		for _, token := range labelSplit.Split(strings.ToLower(m[1]), -1) {
			if intent, ok := intentAliases[token]; ok {
				return intent, true
			}
		}
	}
	return "", false
}

// enclosingEntry returns the brace-delimited entry around raw[start:end],
// looking no further back than lo and no further ahead than hi. Braces nested
// inside the entry, such as a filters block on either side of q, are skipped.
func enclosingEntry(raw string, lo, start, end, hi int) (string, bool) {
	open, depth := -1, 0
back:
	for i := start - 1; i >= lo; i-- {
		switch raw[i] {
		case '}':
			depth++
		case '{':
			if depth == 0 {
				open = i
				break back
			}
			depth--
		}
	}
	if open < 0 {
		return "", false
	}

	depth = 0
	for i := end; i < hi; i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return raw[open : i+1], true
			}
			depth--
		}
	}
	return raw[open:hi], true
}

// parseFilters reads the first filters block in segment. Anything it cannot
// read yields an empty set.
func parseFilters(segment string) map[string]string {
	m := filterPattern.FindStringSubmatch(segment)
	if m == nil {
		return nil
	}
	var filters map[string]string
	for _, pair := range pairPattern.FindAllStringSubmatch(m[1], -1) {
		value := unquote(strings.TrimSpace(pair[2]))
		if value == "" {
			continue
		}
		if filters == nil {
			filters = make(map[string]string)
		}
		filters[normalizeKey(pair[1])] = value
	}
	return filters
}

// normalizeKey turns snake_case and kebab-case keys into camelCase.
func normalizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	switch len(parts) {
	case 0:
		return key
	case 1:
		// Already camelCase keys keep their inner capitals.
		return strings.ToLower(parts[0][:1]) + parts[0][1:]
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(parts[0]))
	for _, part := range parts[1:] {
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(strings.ToLower(part[1:]))
	}
	return b.String()
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			v = unescape(v[1 : len(v)-1])
		}
	}
	return strings.TrimSpace(v)
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(s)
}
