package render

import (
	"bytes"
	"strings"

	"github.com/developingchet/pagesmith/internal/blocks"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// codeRenderer writes code blocks that hold an already-rendered component
// as raw HTML; every other code block renders as escaped <pre><code>.
type codeRenderer struct{}

func newCodeRenderer() renderer.NodeRenderer {
	return &codeRenderer{}
}

func (r *codeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderCode)
	reg.Register(ast.KindCodeBlock, r.renderCode)
}

func (r *codeRenderer) renderCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	var body bytes.Buffer
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		body.Write(seg.Value(source))
	}

	if isComponent(body.Bytes()) {
		_, _ = w.Write(body.Bytes())
		_ = w.WriteByte('\n')
		return ast.WalkSkipChildren, nil
	}

	_, _ = w.WriteString("<pre><code")
	if fenced, ok := node.(*ast.FencedCodeBlock); ok {
		if lang := fenced.Language(source); len(lang) > 0 {
			_, _ = w.WriteString(` class="language-`)
			_, _ = w.Write(util.EscapeHTML(lang))
			_ = w.WriteByte('"')
		}
	}
	_ = w.WriteByte('>')
	_, _ = w.Write(util.EscapeHTML(body.Bytes()))
	_, _ = w.WriteString("</code></pre>\n")
	return ast.WalkSkipChildren, nil
}

func isComponent(body []byte) bool {
	s := string(body)
	for _, class := range blocks.ContainerClasses {
		if strings.Contains(s, class) {
			return true
		}
	}
	return false
}
