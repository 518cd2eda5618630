// Package transform rewrites generated markdown into the hybrid
// markdown/HTML text handed to the renderer. Every step is deterministic and
// the whole pipeline is idempotent.
package transform

import (
	"html"
	"regexp"
	"strings"

	"github.com/developingchet/pagesmith/internal/blocks"
	"github.com/developingchet/pagesmith/internal/topic"
	"github.com/rs/zerolog"
)

// InternalLinkClass is applied to every root-relative anchor.
const InternalLinkClass = "internal-link text-blue-600 hover:text-blue-800 underline"

var (
	linkRe      = regexp.MustCompile(`(!?)\[([^\]]*)\]\(([^)]*)\)`)
	pathTitleRe = regexp.MustCompile(`\[(/[^\]\s]*)\]`)
	schemeRe    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
	fenceRe     = regexp.MustCompile(`:::([a-zA-Z][\w-]*):::([\s\S]*?):::`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
)

// Pipeline runs the transform steps in order.
type Pipeline struct {
	registry   *blocks.Registry
	vocabulary []string
	log        zerolog.Logger
}

// New builds a pipeline. vocabulary filters the Related Topics section.
func New(registry *blocks.Registry, vocabulary []string, log zerolog.Logger) *Pipeline {
	norm := make([]string, 0, len(vocabulary))
	for _, v := range vocabulary {
		if v = normalizeTerm(v); v != "" {
			norm = append(norm, v)
		}
	}
	log.Debug().Strs("blocks", registry.Names()).Int("vocabulary", len(norm)).Msg("transform: pipeline ready")
	return &Pipeline{registry: registry, vocabulary: norm, log: log}
}

// Run transforms markdown generated for path.
func (p *Pipeline) Run(markdown, path string) string {
	out := RootLinks(markdown)
	out = NormalizeTitles(out)
	out = p.ExpandBlocks(out, path)
	out = p.RelatedTopics(out)
	return ClassifyLinks(out)
}

// RootLinks prefixes relative link targets with "/". Images and targets that
// are already rooted, fragments or scheme-prefixed are left alone.
func RootLinks(s string) string {
	return linkRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := linkRe.FindStringSubmatch(m)
		if sub[1] == "!" {
			return m
		}
		href := strings.TrimSpace(sub[3])
		if href == "" || strings.HasPrefix(href, "/") || strings.HasPrefix(href, "#") || schemeRe.MatchString(href) {
			return m
		}
		return "[" + sub[2] + "](/" + href + ")"
	})
}

// NormalizeTitles replaces link texts that are bare paths with their
// humanized title, and turns a bare "[/path]" into a link.
func NormalizeTitles(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range pathTitleRe.FindAllStringSubmatchIndex(s, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && s[start-1] == '!' {
			continue
		}
		p := s[loc[2]:loc[3]]
		b.WriteString(s[last:start])
		b.WriteString("[" + topic.Humanize(p) + "]")
		if end >= len(s) || s[end] != '(' {
			b.WriteString("(" + p + ")")
		}
		last = end
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// ExpandBlocks replaces every registered :::kind::: fence with its rendered
// fragment. Unknown kinds and blocks that fail to parse stay verbatim.
func (p *Pipeline) ExpandBlocks(s, path string) string {
	ordinal := 0
	expanded := false
	out := fenceRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := fenceRe.FindStringSubmatch(m)
		frag, known, err := p.registry.Expand(sub[1], sub[2], path, ordinal)
		if !known {
			return m
		}
		ordinal++
		if err != nil {
			p.log.Warn().Err(err).Str("path", path).Str("kind", sub[1]).Msg("transform: block left as text")
			return m
		}
		expanded = true
		return "\n\n" + frag + "\n\n"
	})
	if !expanded {
		return out
	}
	return blankRunRe.ReplaceAllString(out, "\n\n")
}

// ClassifyLinks turns the remaining markdown links into anchors: rooted
// targets are internal, scheme-prefixed targets open in a new tab.
func ClassifyLinks(s string) string {
	return linkRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := linkRe.FindStringSubmatch(m)
		if sub[1] == "!" {
			return m
		}
		text, href := sub[2], strings.TrimSpace(sub[3])
		switch {
		case strings.HasPrefix(href, "/"):
			return internalAnchor(href, text)
		case schemeRe.MatchString(href):
			return `<a href="` + html.EscapeString(href) + `" class="external-link" target="_blank" rel="noopener noreferrer">` + text + `</a>`
		}
		return m
	})
}

func internalAnchor(href, text string) string {
	return `<a href="` + html.EscapeString(href) + `" class="` + InternalLinkClass + `">` + text + `</a>`
}
