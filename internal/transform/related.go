package transform

import (
	"html"
	"regexp"
	"strings"

	"github.com/developingchet/pagesmith/internal/topic"
)

var (
	relatedHeadingRe = regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s*related topics:?\s*#*|\*\*\s*related topics:?\s*\*\*:?|related topics:?)\s*$`)
	bulletPathRe     = regexp.MustCompile(`^[-*+]\s+(/[^\s<>]*)$`)
	bulletLinkRe     = regexp.MustCompile(`^[-*+]\s+\[[^\]]*\]\((/[^)\s]*)\)$`)
	barePathRe       = regexp.MustCompile(`^/[^\s<>]*$`)
	lineBreakRe      = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// RelatedTopics rewrites each Related Topics section into a filtered list of
// internal links. A section whose candidates are all off-topic is removed; a
// heading with no candidate lines is left as is.
func (p *Pipeline) RelatedTopics(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		if !relatedHeadingRe.MatchString(lines[i]) {
			out = append(out, lines[i])
			continue
		}

		j := i + 1
		for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
			j++
		}
		var paths []string
		for j < len(lines) {
			found, ok := candidatePaths(lines[j])
			if !ok {
				break
			}
			paths = append(paths, found...)
			j++
		}
		if len(paths) == 0 {
			out = append(out, lines[i])
			continue
		}

		if section := p.relatedSection(paths); section != "" {
			out = append(out, "", section, "")
		}
		i = j - 1
	}
	return strings.Join(out, "\n")
}

// candidatePaths reports the root-relative paths on one candidate line.
// A line holding <br> separators is split before any single-path match.
func candidatePaths(line string) ([]string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}
	if parts := lineBreakRe.Split(line, -1); len(parts) > 1 {
		var out []string
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if !barePathRe.MatchString(part) {
				return nil, false
			}
			out = append(out, part)
		}
		return out, len(out) > 0
	}
	if m := bulletLinkRe.FindStringSubmatch(line); m != nil {
		return []string{m[1]}, true
	}
	if m := bulletPathRe.FindStringSubmatch(line); m != nil {
		return []string{m[1]}, true
	}
	if barePathRe.MatchString(line) {
		return []string{line}, true
	}
	return nil, false
}

func (p *Pipeline) relatedSection(paths []string) string {
	seen := make(map[string]bool)
	var items []string
	for _, path := range paths {
		if seen[path] || path == "/" {
			continue
		}
		seen[path] = true
		title := topic.Humanize(path)
		if !p.relevant(title) {
			continue
		}
		items = append(items, "<li>"+internalAnchor(path, html.EscapeString(title))+"</li>")
	}
	if len(items) == 0 {
		return ""
	}
	return `<h2 class="related-topics-heading">Related Topics</h2>` + "\n" +
		`<ul class="related-topics">` + "\n" + strings.Join(items, "\n") + "\n</ul>"
}

// relevant reports whether title contains, or is contained in, a vocabulary
// entry.
func (p *Pipeline) relevant(title string) bool {
	t := normalizeTerm(title)
	if t == "" {
		return false
	}
	for _, v := range p.vocabulary {
		if strings.Contains(t, v) || strings.Contains(v, t) {
			return true
		}
	}
	return false
}

func normalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", " ")))
}
