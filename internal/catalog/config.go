// Package catalog resolves search directives against a noon-style product
// search API and maps its untrusted responses onto product records.
package catalog

import (
	"time"

	"github.com/go-playground/validator/v10"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
)

// Config describes the catalog endpoint and the fixed request shape.
type Config struct {
	SearchURL string `validate:"required,url"`
	Country   string `validate:"required"`
	Locale    string `validate:"required"`
	Limit     int    `validate:"min=1,max=50"`
	Page      int    `validate:"min=1"`
	SortBy    string `validate:"required"`
	SortDir   string `validate:"oneof=asc desc"`

	Timeout   time.Duration
	UserAgent string
	Referer   string
	Origin    string

	// ImageURLTemplate and ProductURLTemplate use {key}, {sku} and {locale}.
	ImageURLTemplate   string `validate:"required"`
	ProductURLTemplate string `validate:"required"`

	// ForwardFilters translates recognised directive filters into upstream
	// query parameters. Off by default: the storefront search has never been
	// verified to honour them.
	ForwardFilters bool
	FilterParams   map[string]string
}

// DefaultConfig returns the UAE storefront settings.
func DefaultConfig() Config {
	return Config{
		SearchURL:          "https://api-app.noon.com/_svc/catalog/api/v3/search",
		Country:            "AE",
		Locale:             "uae-en",
		Limit:              2,
		Page:               1,
		SortBy:             "popularity",
		SortDir:            "desc",
		Timeout:            10 * time.Second,
		UserAgent:          "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
		Referer:            "https://www.noon.com/",
		Origin:             "https://www.noon.com",
		ImageURLTemplate:   "https://f.nooncdn.com/p/{key}.jpg?width=800",
		ProductURLTemplate: "https://www.noon.com/{locale}/{sku}/p/",
		FilterParams:       DefaultFilterParams(),
	}
}

// DefaultFilterParams maps directive filter keys to upstream parameter names.
func DefaultFilterParams() map[string]string {
	return map[string]string{
		shopscale.FilterBrand:     "f[brand]",
		shopscale.FilterMaxPrice:  "f[price][max]",
		shopscale.FilterMinPrice:  "f[price][min]",
		shopscale.FilterMinRating: "f[rating][min]",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return shopscale.NewConfigurationError("invalid catalog configuration", err)
	}
	return nil
}
