package catalog

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
)

// mapper converts upstream hits into records. Every field is read
// defensively: absent or mistyped fields become the unknown sentinel or nil.
type mapper struct {
	locale        string
	imageTemplate string
	productTmpl   string
}

func newMapper(cfg Config) mapper {
	return mapper{
		locale:        cfg.Locale,
		imageTemplate: cfg.ImageURLTemplate,
		productTmpl:   cfg.ProductURLTemplate,
	}
}

func (m mapper) toRecord(hit gjson.Result, index int) shopscale.ProductRecord {
	rec := shopscale.ProductRecord{
		SKU:             shopscale.UnknownValue,
		SKUConfig:       shopscale.UnknownValue,
		Name:            shopscale.UnknownValue,
		Brand:           shopscale.UnknownValue,
		ImageURL:        shopscale.UnknownValue,
		ProductURL:      shopscale.UnknownValue,
		SourceDirective: index,
	}
	if !hit.IsObject() {
		return rec
	}

	rec.SKU = text(hit.Get("sku"))
	rec.SKUConfig = text(hit.Get("sku_config"))
	rec.Name = text(hit.Get("name"))
	rec.Brand = text(hit.Get("brand"))
	rec.Price = number(hit.Get("price"))
	rec.SalePrice = number(hit.Get("sale_price"))
	rec.Rating = number(hit.Get("product_rating.value"))

	if key := text(hit.Get("image_key")); key != shopscale.UnknownValue {
		// Image keys are CDN paths and keep their slashes.
		rec.ImageURL = m.expand(m.imageTemplate, "{key}", key)
	}
	if rec.HasIdentity() {
		rec.ProductURL = m.expand(m.productTmpl, "{sku}", url.PathEscape(rec.SKU))
	}
	return rec
}

func (m mapper) expand(tmpl, placeholder, value string) string {
	return strings.NewReplacer("{locale}", m.locale, placeholder, value).Replace(tmpl)
}

// text returns strings and numbers verbatim; anything else is unknown.
func text(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		if s := strings.TrimSpace(r.Str); s != "" {
			return s
		}
	case gjson.Number:
		return r.Raw
	}
	return shopscale.UnknownValue
}

// number accepts JSON numbers and numeric strings.
func number(r gjson.Result) *float64 {
	switch r.Type {
	case gjson.Number:
		v := r.Num
		return &v
	case gjson.String:
		if v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64); err == nil {
			return &v
		}
	}
	return nil
}
