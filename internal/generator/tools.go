package generator

import (
	"strings"

	"github.com/developingchet/pagesmith/internal/topic"
)

// ToolsPrefix is the path namespace served from static calculator pages.
const ToolsPrefix = "tools"

type tool struct {
	slug  string
	title string
	blurb string
	kind  string // calculator block argument
}

var tools = []tool{
	{"speed-calculator", "Maritime Speed Calculator", "Solve for speed, time or distance from the other two values.", "speed"},
	{"fuel-calculator", "Fuel Consumption Calculator", "Estimate bunker consumption for a passage from distance, speed and daily rate.", "fuel"},
	{"draft-calculator", "Draft Survey Calculator", "Work out mean draft and trim from forward and aft readings.", "draft"},
	{"unit-converter", "Maritime Unit Converter", "Convert between nautical miles, kilometers, knots and kilometers per hour.", "converter"},
}

// ToolPage returns the static markdown for a path in the tools namespace.
// ok is false for every other path. Unknown tool names get the index.
func ToolPage(path string) (page string, ok bool) {
	segments := topic.Segments(path)
	if len(segments) == 0 || segments[0] != ToolsPrefix {
		return "", false
	}
	if len(segments) > 1 {
		for _, t := range tools {
			if t.slug == segments[1] {
				return toolMarkdown(t), true
			}
		}
	}
	return toolsIndex(), true
}

func toolMarkdown(t tool) string {
	var b strings.Builder
	b.WriteString("# " + t.title + "\n\n")
	b.WriteString(t.blurb + "\n\n")
	b.WriteString(":::calculator:::" + t.kind + ":::\n\n")
	b.WriteString("## More Tools\n\n")
	for _, other := range tools {
		if other.slug == t.slug {
			continue
		}
		b.WriteString("- [" + other.title + "](/" + ToolsPrefix + "/" + other.slug + ")\n")
	}
	b.WriteString("- [All Tools](/" + ToolsPrefix + ")\n")
	return b.String()
}

func toolsIndex() string {
	var b strings.Builder
	b.WriteString("# Maritime Tools\n\n")
	b.WriteString("Interactive calculators for everyday navigation and ship operations.\n\n")
	for _, t := range tools {
		b.WriteString("## [" + t.title + "](/" + ToolsPrefix + "/" + t.slug + ")\n\n")
		b.WriteString(t.blurb + "\n\n")
	}
	return b.String()
}
