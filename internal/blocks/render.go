package blocks

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
)

//go:embed assets
var assets embed.FS

// ContainerClasses are the outer class names of every rendered component.
// A code block containing one of them holds an already-rendered fragment.
var ContainerClasses = []string{
	"timeline-container",
	"chart-container",
	"quiz-container",
	"stats-grid",
	"features-grid",
	"flashcards-container",
	"diagram-container",
	"schematic-container",
	"calculator-container",
}

var (
	vesselSVGs     = loadAssets("assets/svg", "vessel-")
	equipmentSVGs  = loadAssets("assets/svg", "equipment-")
	portLayoutSVG  = mustAsset("assets/svg/port-layout.svg")
	calculatorHTML = loadAssets("assets/calculators", "")

	chartFill = []string{
		"rgba(16, 185, 129, 0.5)",
		"rgba(245, 158, 11, 0.5)",
		"rgba(236, 72, 153, 0.5)",
		"rgba(139, 92, 246, 0.5)",
		"rgba(239, 68, 68, 0.5)",
	}
	chartBorder = []string{
		"rgb(16, 185, 129)",
		"rgb(245, 158, 11)",
		"rgb(236, 72, 153)",
		"rgb(139, 92, 246)",
		"rgb(239, 68, 68)",
	}

	components = template.Must(template.New("components").Funcs(template.FuncMap{
		"chartConfig": chartConfig,
		"diagram":     diagramSVG,
	}).ParseFS(assets, "assets/components.tmpl"))
)

// loadAssets reads every file in dir whose name starts with prefix, keyed by
// the remaining base name without extension.
func loadAssets(dir, prefix string) map[string]template.HTML {
	entries, err := fs.ReadDir(assets, dir)
	if err != nil {
		panic(err)
	}
	out := make(map[string]template.HTML)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, prefix), path.Ext(name))
		out[key] = mustAsset(path.Join(dir, name))
	}
	return out
}

func mustAsset(name string) template.HTML {
	b, err := assets.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return template.HTML(b) // trusted embedded markup
}

func diagramSVG(name string) template.HTML {
	switch {
	case name == "port-layout":
		return portLayoutSVG
	case strings.HasPrefix(name, "vessel-"):
		return vesselSVGs[strings.TrimPrefix(name, "vessel-")]
	case strings.HasPrefix(name, "equipment-"):
		return equipmentSVGs[strings.TrimPrefix(name, "equipment-")]
	}
	return ""
}

type chartDataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor []string  `json:"backgroundColor"`
	BorderColor     []string  `json:"borderColor"`
	BorderWidth     int       `json:"borderWidth"`
}

// chartConfig builds the Chart.js bar configuration read from data-chart.
func chartConfig(c Chart) (string, error) {
	ds := chartDataset{Label: c.Title, BorderWidth: 1, Data: []float64{}}
	labels := make([]string, 0, len(c.Points))
	for i, p := range c.Points {
		labels = append(labels, p.Label)
		ds.Data = append(ds.Data, p.Value)
		ds.BackgroundColor = append(ds.BackgroundColor, chartFill[i%len(chartFill)])
		ds.BorderColor = append(ds.BorderColor, chartBorder[i%len(chartBorder)])
	}
	cfg := map[string]any{
		"type": "bar",
		"data": map[string]any{
			"labels":   labels,
			"datasets": []chartDataset{ds},
		},
		"options": map[string]any{
			"responsive": true,
			"scales":     map[string]any{"y": map[string]any{"beginAtZero": true}},
		},
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type view[T any] struct {
	ID   string
	Data T
}

// typed adapts a total parser and a named template into a Kind.
func typed[T any](parse func(string) T, tmpl string) Kind {
	return Kind{
		Parse: func(body string) (any, error) { return parse(body), nil },
		Render: func(id string, data any) (string, error) {
			v, ok := data.(T)
			if !ok {
				return "", fmt.Errorf("%s: unexpected data %T", tmpl, data)
			}
			var buf bytes.Buffer
			if err := components.ExecuteTemplate(&buf, tmpl, view[T]{ID: id, Data: v}); err != nil {
				return "", err
			}
			return buf.String(), nil
		},
	}
}

func renderCalculator(id string, data any) (string, error) {
	c, ok := data.(Calculator)
	if !ok {
		return "", fmt.Errorf("calculator: unexpected data %T", data)
	}
	body, ok := calculatorHTML[string(c)]
	if !ok {
		return "", fmt.Errorf("calculator: unknown %q", c)
	}
	var buf bytes.Buffer
	err := components.ExecuteTemplate(&buf, "calculator", struct {
		ID   string
		Body template.HTML
	}{id, body})
	return buf.String(), err
}
