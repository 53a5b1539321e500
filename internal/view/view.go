// Package view renders the product details page from a page state snapshot.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"net/url"

	"github.com/utafrali/storefront/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const starImageURL = "https://assets.ccbp.in/frontend/react-js/star-img.png"

// Page is the input of a render.
type Page struct {
	State domain.PageState
	// RefreshSeconds is the meta refresh delay of a Loading page.
	RefreshSeconds int
}

// NotFound reports whether the page failed because the product does not exist.
func (p Page) NotFound() bool {
	return p.State.Failure == domain.FailureNotFound
}

type layoutData struct {
	Title          string
	RefreshURL     string
	RefreshSeconds int
	Body           template.HTML
}

// Renderer executes the page templates. It is safe for concurrent use.
type Renderer struct {
	tmpl *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	funcs := template.FuncMap{
		"price":      domain.FormatPrice,
		"rating":     domain.FormatRating,
		"pathEscape": url.PathEscape,
		"starImage":  func() string { return starImageURL },
	}
	tmpl, err := template.New("page").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render writes the full HTML document for p. Nothing is written to w when
// rendering fails.
func (r *Renderer) Render(w io.Writer, p Page) error {
	name, err := bodyTemplate(p.State)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&body, name, p); err != nil {
		return fmt.Errorf("render %s view: %w", name, err)
	}

	data := layoutData{
		Title: pageTitle(p.State),
		Body:  template.HTML(body.String()),
	}
	if p.State.Status == domain.StatusLoading {
		data.RefreshURL = ViewPath(p.State.ProductID)
		data.RefreshSeconds = max(p.RefreshSeconds, 1)
	}

	var out bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&out, "layout", data); err != nil {
		return fmt.Errorf("render layout: %w", err)
	}
	_, err = out.WriteTo(w)
	return err
}

// bodyTemplate selects the view for a status. Every FetchStatus has exactly
// one view.
func bodyTemplate(s domain.PageState) (string, error) {
	switch s.Status {
	case domain.StatusIdle:
		return "idle", nil
	case domain.StatusLoading:
		return "loading", nil
	case domain.StatusSuccess:
		if s.Product == nil {
			return "", fmt.Errorf("render page %s: success state without product", s.SessionID)
		}
		return "success", nil
	case domain.StatusFailure:
		return "failure", nil
	default:
		return "", fmt.Errorf("render page %s: unknown fetch status %d", s.SessionID, int(s.Status))
	}
}

func pageTitle(s domain.PageState) string {
	if s.Status == domain.StatusSuccess && s.Product != nil {
		return s.Product.Title + " | Nxt Trendz"
	}
	return "Product Details | Nxt Trendz"
}

// ProductPath is the page that mounts a product.
func ProductPath(productID string) string {
	return "/products/" + url.PathEscape(productID)
}

// ViewPath re-renders a mounted product page without refetching.
func ViewPath(productID string) string {
	return ProductPath(productID) + "/view"
}

// StaticHandler serves the embedded stylesheet under the /static/ prefix.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
