package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// FlexibleID is a product identifier that the product API may send either as
// a JSON number or a JSON string. It is always held as its decimal text.
type FlexibleID string

// UnmarshalJSON accepts a number, a string or null.
func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode product id: %w", err)
		}
		*id = FlexibleID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("decode product id: %w", err)
		}
		*id = FlexibleID(n.String())
		return nil
	}
}

// RawProduct is a product record as the product API sends it. Price and
// rating stay unset when the API omits them.
type RawProduct struct {
	ID              FlexibleID          `json:"id"`
	Title           string              `json:"title"`
	Price           decimal.NullDecimal `json:"price"`
	Rating          *float64            `json:"rating,omitempty"`
	TotalReviews    *int                `json:"total_reviews,omitempty"`
	Description     *string             `json:"description,omitempty"`
	ImageURL        string              `json:"image_url"`
	Availability    *string             `json:"availability,omitempty"`
	Brand           string              `json:"brand"`
	SimilarProducts []RawProduct        `json:"similar_products,omitempty"`
}

// ProductDetail is the normalized product shown in the detail panel.
type ProductDetail struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Price        decimal.NullDecimal `json:"price"`
	Rating       *float64            `json:"rating"`
	TotalReviews int                 `json:"totalReviews"`
	Description  string              `json:"description"`
	ImageURL     string              `json:"imageUrl"`
	Available    string              `json:"available"`
	Brand        string              `json:"brand"`
}

// SimilarProduct is one card in the similar products list. The fields the
// card does not display are kept when the API sent them.
type SimilarProduct struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Brand        string              `json:"brand"`
	Price        decimal.NullDecimal `json:"price"`
	Rating       *float64            `json:"rating"`
	ImageURL     string              `json:"imageUrl"`
	TotalReviews *int                `json:"totalReviews,omitempty"`
	Description  *string             `json:"description,omitempty"`
	Available    *string             `json:"available,omitempty"`
}

// Normalize renames the wire fields of r to the view's naming. Text fields
// the API omitted are left empty; price and rating stay unset.
func Normalize(r RawProduct) ProductDetail {
	return ProductDetail{
		ID:           string(r.ID),
		Title:        r.Title,
		Price:        r.Price,
		Rating:       r.Rating,
		TotalReviews: derefOr(r.TotalReviews, 0),
		Description:  derefOr(r.Description, ""),
		ImageURL:     r.ImageURL,
		Available:    derefOr(r.Availability, ""),
		Brand:        r.Brand,
	}
}

// NormalizeSimilar applies the same renaming as Normalize to one entry of
// similar_products.
func NormalizeSimilar(r RawProduct) SimilarProduct {
	d := Normalize(r)
	return SimilarProduct{
		ID:           d.ID,
		Title:        d.Title,
		Brand:        d.Brand,
		Price:        d.Price,
		Rating:       d.Rating,
		ImageURL:     d.ImageURL,
		TotalReviews: r.TotalReviews,
		Description:  r.Description,
		Available:    r.Availability,
	}
}

// NormalizeResponse splits a product API payload into the detail record and
// its similar products, in the order the API listed them. The returned slice
// is never nil.
func NormalizeResponse(r RawProduct) (ProductDetail, []SimilarProduct) {
	similar := make([]SimilarProduct, 0, len(r.SimilarProducts))
	for _, s := range r.SimilarProducts {
		similar = append(similar, NormalizeSimilar(s))
	}
	return Normalize(r), similar
}

// FormatPrice renders a price the way the storefront displays it, e.g.
// "Rs 499/-". An unset price renders empty.
func FormatPrice(p decimal.NullDecimal) string {
	if !p.Valid {
		return ""
	}
	return "Rs " + p.Decimal.String() + "/-"
}

// FormatRating renders a rating as the API sent it, e.g. "3.6". An unset
// rating renders empty.
func FormatRating(r *float64) string {
	if r == nil {
		return ""
	}
	return strconv.FormatFloat(*r, 'f', -1, 64)
}

func derefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
