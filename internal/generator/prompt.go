package generator

import (
	"fmt"
	"strings"

	"github.com/developingchet/pagesmith/internal/config"
)

const blockGrammar = `Include interactive elements using these exact block formats:

- Data visualizations:
  :::chart:::
  Chart Title
  Label 1|75
  Label 2|50
  Label 3|25
  :::
- Knowledge checks (mark the correct option with *-):
  :::quiz:::
  What is the question?
  - Wrong answer
  *- Correct answer
  - Another wrong answer
  :::
- Key statistics:
  :::stats:::
  Metric 1: 500
  Metric 2: 75%
  :::
- Timeline events:
  :::timeline:::
  1950 - First major event
  1960 - Second major event
  :::
- Feature highlights, one per line:
  :::features:::
  Feature with details
  Feature with explanation
  :::
- Review flashcards, question and answer separated by |:
  :::flashcards:::
  What is a knot? | One nautical mile per hour
  :::
- Vessel diagrams (type is container, tanker or bulker):
  :::vessel-diagram:::
  type: container
  :::
- Port layouts:
  :::port-layout:::
  :::
- Equipment schematics (type is radar, engine or propulsion):
  :::equipment-schematic:::
  type: radar
  :::`

const linkRules = `Linking rules:
1. Use real Wikipedia links for relevant topics, e.g. [Topic](https://en.wikipedia.org/wiki/Topic).
2. Create extensive internal navigation with ROOT-relative links such as [Related Topic](/related-topic).
   Internal links must always start with / and use lower-case hyphenated slugs.`

const formatting = `Formatting guidelines:
- Start with a single # heading for the page title.
- Use ## and ### headings to structure sections.
- Keep paragraphs short and include real-world examples and case studies.
- Do not wrap custom blocks in code fences.`

// SystemInstruction composes the fixed system message for a site.
func SystemInstruction(site config.SiteContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert content generator for a %s knowledge site, creating comprehensive, well-researched content.\n\n", site.MainTopic)
	if site.Context != "" {
		b.WriteString(site.Context)
		b.WriteString("\n\n")
	}
	b.WriteString(linkRules)
	b.WriteString("\n\n")
	b.WriteString(blockGrammar)
	b.WriteString("\n\n")
	b.WriteString(formatting)
	b.WriteString("\n\n")
	b.WriteString("End every page with a \"## Related Topics\" section listing at least 5 internal links, one per line as \"- [Title](/slug)\"")
	if scope := site.RelatedTopicsScope; len(scope) > 0 {
		fmt.Fprintf(&b, ", chosen from areas such as: %s", strings.Join(scope, ", "))
	}
	b.WriteString(".\n")
	return b.String()
}

// UserMessage is the per-page request. facts is the optional grounding text.
func UserMessage(topicName, facts string) string {
	msg := fmt.Sprintf("Create engaging content about: %s.", topicName)
	if facts = strings.TrimSpace(facts); facts != "" {
		msg += " Include these verified facts: " + facts
	}
	return msg
}
