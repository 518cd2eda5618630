// Package render converts transformed markdown into the final HTML document.
package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// DefaultTitle is used when a page has no title of its own.
const DefaultTitle = "Generated Content"

var (
	//go:embed assets/page.html
	pageHTML string
	//go:embed assets/styles.css
	stylesCSS string

	page = template.Must(template.New("page").Parse(pageHTML))
)

// Renderer turns markdown into a complete HTML page.
type Renderer struct {
	md goldmark.Markdown
}

// New builds a Renderer. Raw HTML in the markdown is passed through, since
// component fragments arrive as raw HTML blocks.
func New() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
			html.WithHardWraps(),
			html.WithXHTML(),
			renderer.WithNodeRenderers(util.Prioritized(newCodeRenderer(), 100)),
		),
	)
	return &Renderer{md: md}
}

// Body renders markdown to an HTML fragment.
func (r *Renderer) Body(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}

// Page renders markdown into the full document with the given title.
func (r *Renderer) Page(title, markdown string) (string, error) {
	body, err := r.Body(markdown)
	if err != nil {
		return "", err
	}
	if title == "" {
		title = DefaultTitle
	}
	var buf bytes.Buffer
	err = page.Execute(&buf, struct {
		Title  string
		Styles template.CSS
		Body   template.HTML
	}{title, template.CSS(stylesCSS), template.HTML(body)})
	if err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return buf.String(), nil
}
