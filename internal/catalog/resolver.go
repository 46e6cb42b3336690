package catalog

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
)

var numericValue = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)

// numericFilters are forwarded only as bare numbers, so "100 aed" becomes "100".
var numericFilters = map[string]bool{
	shopscale.FilterMaxPrice:  true,
	shopscale.FilterMinPrice:  true,
	shopscale.FilterMinRating: true,
}

// Resolver implements shopscale.Resolver over HTTP.
type Resolver struct {
	cfg         Config
	client      *resty.Client
	credentials CredentialSource
	mapper      mapper
	logger      *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCredentials sets the session credential source.
func WithCredentials(src CredentialSource) Option {
	return func(r *Resolver) { r.credentials = src }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = resty.NewWithClient(c) }
}

// NewResolver validates cfg and builds a resolver. Retries are left to the caller.
func NewResolver(cfg Config, opts ...Option) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Resolver{
		cfg:         cfg,
		client:      resty.New(),
		credentials: StaticCredential(""),
		mapper:      newMapper(cfg),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.client.SetRetryCount(0)
	if cfg.Timeout > 0 {
		r.client.SetTimeout(cfg.Timeout)
	}
	headers := map[string]string{"Accept": "application/json"}
	for k, v := range map[string]string{"User-Agent": cfg.UserAgent, "Referer": cfg.Referer, "Origin": cfg.Origin} {
		if v != "" {
			headers[k] = v
		}
	}
	r.client.SetHeaders(headers)
	return r, nil
}

// Resolve looks the directive up with the configured limit and market.
func (r *Resolver) Resolve(ctx context.Context, directive shopscale.SearchDirective, index int) ([]shopscale.ProductRecord, error) {
	return r.Lookup(ctx, directive, index, r.cfg.Limit, r.cfg.Country)
}

// Lookup runs one search. It returns at most limit records, an empty batch
// when the catalog has no matches, or a CatalogFailure.
func (r *Resolver) Lookup(ctx context.Context, directive shopscale.SearchDirective, index, limit int, country string) ([]shopscale.ProductRecord, error) {
	if strings.TrimSpace(directive.SearchText) == "" {
		return nil, shopscale.NewInvalidDirectiveError(index, "blank search text")
	}
	if limit < 1 {
		limit = r.cfg.Limit
	}
	if country == "" {
		country = r.cfg.Country
	}

	credential, err := r.credentials.Credential(ctx)
	if err != nil {
		return nil, shopscale.NewCatalogError(shopscale.ReasonAuth, 0, "catalog credential unavailable", err)
	}

	req := r.client.R().
		SetContext(ctx).
		SetQueryParams(r.params(directive, limit, country))
	if credential != "" {
		req.SetHeader("Cookie", credential)
	}

	start := time.Now()
	resp, err := req.Get(r.cfg.SearchURL)
	if err != nil {
		return nil, shopscale.NewCatalogError(shopscale.ReasonTransport, 0, "catalog request failed", err)
	}

	records, err := r.decode(resp.StatusCode(), resp.Body(), index, limit)
	r.logger.Debug("catalog lookup",
		zap.Int("step", index),
		zap.String("q", directive.SearchText),
		zap.Int("status", resp.StatusCode()),
		zap.Int("records", len(records)),
		zap.Duration("took", time.Since(start)),
		zap.Error(err),
	)
	return records, err
}

func (r *Resolver) params(directive shopscale.SearchDirective, limit int, country string) map[string]string {
	params := map[string]string{
		"q":         directive.SearchText,
		"country":   country,
		"limit":     strconv.Itoa(limit),
		"page":      strconv.Itoa(r.cfg.Page),
		"sort[by]":  r.cfg.SortBy,
		"sort[dir]": r.cfg.SortDir,
	}
	if !r.cfg.ForwardFilters {
		return params
	}
	for key, value := range directive.Filters {
		name, ok := r.cfg.FilterParams[key]
		if !ok {
			r.logger.Debug("filter not forwarded", zap.String("key", key))
			continue
		}
		value = strings.TrimSpace(value)
		if numericFilters[key] {
			value = numericValue.FindString(value)
		}
		if value != "" {
			params[name] = value
		}
	}
	return params
}

func (r *Resolver) decode(status int, body []byte, index, limit int) ([]shopscale.ProductRecord, error) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, shopscale.NewCatalogError(shopscale.ReasonAuth, status, "catalog rejected the session credential", nil)
	case status != http.StatusOK:
		return nil, shopscale.NewCatalogError(shopscale.ReasonStatus, status, fmt.Sprintf("catalog returned status %d", status), nil)
	case len(strings.TrimSpace(string(body))) == 0:
		return nil, shopscale.NewCatalogError(shopscale.ReasonEmptyBody, status, "catalog returned an empty body", nil)
	case !gjson.ValidBytes(body):
		return nil, shopscale.NewCatalogError(shopscale.ReasonMalformedBody, status, "catalog returned invalid JSON", nil)
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, shopscale.NewCatalogError(shopscale.ReasonMalformedBody, status, "catalog response is not an object", nil)
	}
	hits := doc.Get("hits")
	switch {
	case !hits.Exists() || hits.Type == gjson.Null:
		return []shopscale.ProductRecord{}, nil
	case !hits.IsArray():
		return nil, shopscale.NewCatalogError(shopscale.ReasonMalformedBody, status, "catalog hits is not a list", nil)
	}

	items := hits.Array()
	if len(items) > limit {
		items = items[:limit]
	}
	records := make([]shopscale.ProductRecord, 0, len(items))
	for _, hit := range items {
		records = append(records, r.mapper.toRecord(hit, index))
	}
	return records, nil
}
