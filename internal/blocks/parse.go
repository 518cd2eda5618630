package blocks

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// plain strips any markup from s and returns unescaped text; escaping is left
// to the templates.
func plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

func bodyLines(body string) []string {
	var out []string
	for _, l := range strings.Split(strings.TrimSpace(body), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Point is one chart bar.
type Point struct {
	Label string
	Value float64
}

// Chart is a titled bar chart.
type Chart struct {
	Title  string
	Points []Point
}

// parseChart reads a title line followed by "Label|value" lines. Lines whose
// value is not a number are skipped.
func parseChart(body string) Chart {
	lines := bodyLines(body)
	var c Chart
	if len(lines) == 0 {
		return c
	}
	c.Title = plain(lines[0])
	for _, l := range lines[1:] {
		label, value, found := strings.Cut(l, "|")
		if !found {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(value), "%"), 64)
		if err != nil {
			continue
		}
		c.Points = append(c.Points, Point{Label: plain(label), Value: v})
	}
	return c
}

// Option is one quiz answer.
type Option struct {
	Text    string
	Correct bool
}

// Quiz is a single multiple-choice question.
type Quiz struct {
	Question string
	Options  []Option
}

// parseQuiz reads a question line followed by "- option" lines; "*-" marks
// the correct one. It never fails: missing parts render empty.
func parseQuiz(body string) Quiz {
	lines := bodyLines(body)
	var q Quiz
	if len(lines) == 0 {
		return q
	}
	q.Question = plain(lines[0])
	for _, l := range lines[1:] {
		text, correct := strings.CutPrefix(l, "*-")
		if !correct {
			text = trimBullet(text)
		}
		if text = plain(text); text == "" {
			continue
		}
		q.Options = append(q.Options, Option{Text: text, Correct: correct})
	}
	return q
}

// trimBullet drops a leading "-", "*" or "+" list marker.
func trimBullet(l string) string {
	for _, marker := range []string{"- ", "* ", "+ "} {
		if rest, ok := strings.CutPrefix(l, marker); ok {
			return rest
		}
	}
	return strings.TrimPrefix(l, "-")
}

// Stat is one labeled figure.
type Stat struct {
	Label string
	Value string
}

func parseStats(body string) []Stat {
	var out []Stat
	for _, l := range bodyLines(body) {
		label, value, _ := strings.Cut(l, ":")
		out = append(out, Stat{Label: plain(label), Value: plain(value)})
	}
	return out
}

// Event is one timeline entry.
type Event struct {
	Year        string
	Description string
}

func parseTimeline(body string) []Event {
	var out []Event
	for _, l := range bodyLines(body) {
		year, desc, _ := strings.Cut(l, " - ")
		out = append(out, Event{Year: plain(year), Description: plain(desc)})
	}
	return out
}

func parseFeatures(body string) []string {
	var out []string
	for _, l := range bodyLines(body) {
		l = strings.TrimPrefix(l, "- ")
		l = strings.ReplaceAll(l, "**", "")
		if l = plain(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Card is a question/answer flashcard.
type Card struct {
	Question string
	Answer   string
}

func parseFlashcards(body string) []Card {
	var out []Card
	for _, l := range bodyLines(body) {
		q, a, found := strings.Cut(l, "|")
		if !found {
			continue
		}
		out = append(out, Card{Question: plain(q), Answer: plain(a)})
	}
	return out
}

// typeArg reads a "type: x" argument, or a bare "x", from a fence body.
func typeArg(body string) string {
	lines := bodyLines(body)
	if len(lines) == 0 {
		return ""
	}
	v := lines[0]
	if k, rest, found := strings.Cut(v, ":"); found && strings.EqualFold(strings.TrimSpace(k), "type") {
		v = rest
	}
	if i := strings.Index(v, "#"); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}

// Diagram selects one embedded SVG.
type Diagram struct {
	Class string
	Name  string
}

func parseVessel(body string) Diagram {
	name := typeArg(body)
	if _, ok := vesselSVGs[name]; !ok {
		name = "container"
	}
	return Diagram{Class: "diagram-container", Name: "vessel-" + name}
}

func parsePortLayout(string) Diagram {
	return Diagram{Class: "diagram-container", Name: "port-layout"}
}

func parseEquipment(body string) Diagram {
	name := typeArg(body)
	if _, ok := equipmentSVGs[name]; !ok {
		name = "radar"
	}
	return Diagram{Class: "schematic-container", Name: "equipment-" + name}
}

// Calculator names one of the embedded interactive calculators.
type Calculator string

func parseCalculator(body string) (Calculator, error) {
	name := typeArg(body)
	if _, ok := calculatorHTML[name]; !ok {
		return "", fmt.Errorf("unknown calculator %q", name)
	}
	return Calculator(name), nil
}
