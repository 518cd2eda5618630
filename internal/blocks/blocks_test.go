package blocks

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func doc(t *testing.T, fragment string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	require.NoError(t, err)
	return d
}

func TestParseQuiz(t *testing.T) {
	q := parseQuiz("What is a knot?\n- A unit of distance\n*- A unit of speed\n- A type of rope\n")
	require.Equal(t, "What is a knot?", q.Question)
	require.Len(t, q.Options, 3)
	require.Equal(t, Option{Text: "A unit of speed", Correct: true}, q.Options[1])
	require.False(t, q.Options[0].Correct)
	require.False(t, q.Options[2].Correct)
}

func TestParseQuizStarBulletsAreNotCorrect(t *testing.T) {
	q := parseQuiz("What is a knot?\n* A rope\n+ A unit of distance\n*- A unit of speed\n")
	require.Equal(t, []Option{
		{Text: "A rope"},
		{Text: "A unit of distance"},
		{Text: "A unit of speed", Correct: true},
	}, q.Options)
}

func TestParseChartFloats(t *testing.T) {
	c := parseChart("Fleet size\nLabel 1|75\nLabel 2| 12.5 \nPercent|40%\nbroken line\nBad|abc\n")
	require.Equal(t, "Fleet size", c.Title)
	require.Equal(t, []Point{
		{Label: "Label 1", Value: 75},
		{Label: "Label 2", Value: 12.5},
		{Label: "Percent", Value: 40},
	}, c.Points)
}

func TestParseStatsAndTimeline(t *testing.T) {
	stats := parseStats("Ships: 500\nShare: 75%\nValue: $1.2M")
	require.Equal(t, Stat{Label: "Value", Value: "$1.2M"}, stats[2])

	events := parseTimeline("1950 - First event\n1960 - Second - with dash")
	require.Equal(t, []Event{
		{Year: "1950", Description: "First event"},
		{Year: "1960", Description: "Second - with dash"},
	}, events)
}

func TestParseStripsMarkup(t *testing.T) {
	f := parseFeatures("- **Radar**: sees <b>far</b>\n<script>alert(1)</script>Sonar")
	require.Equal(t, []string{"Radar: sees far", "Sonar"}, f)
}

func TestTypeArg(t *testing.T) {
	require.Equal(t, "tanker", typeArg("type: tanker    # For tanker vessels"))
	require.Equal(t, "engine", typeArg("\n  Engine\n"))
	require.Equal(t, "", typeArg(""))
}

func TestExpandQuiz(t *testing.T) {
	r := Default()
	out, ok, err := r.Expand("quiz", "\nWhat is a knot?\n- A unit of distance\n*- A unit of speed\n- A type of rope\n", "/knots", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotContains(t, out, "\n\n")

	d := doc(t, out)
	require.Equal(t, 1, d.Find(".quiz-container").Length())
	require.Equal(t, "What is a knot?", d.Find(".quiz-container h3").Text())
	opts := d.Find("button.quiz-option")
	require.Equal(t, 3, opts.Length())
	require.Equal(t, "true", opts.Eq(1).AttrOr("data-correct", ""))
	require.Equal(t, "A unit of speed", opts.Eq(1).Text())
}

func TestMalformedQuizStillRenders(t *testing.T) {
	out, ok, err := Default().Expand("quiz", "Only a question, no options", "/x", 0)
	require.NoError(t, err)
	require.True(t, ok)
	d := doc(t, out)
	require.Equal(t, 1, d.Find(".quiz-container").Length())
	require.Equal(t, 0, d.Find("button.quiz-option").Length())

	out, _, err = Default().Expand("quiz", "", "/x", 1)
	require.NoError(t, err)
	require.Contains(t, out, "quiz-container")
}

func TestExpandEscapesText(t *testing.T) {
	out, _, err := Default().Expand("stats", `Tom & Jerry: "5" <i>ships</i>`, "/x", 0)
	require.NoError(t, err)
	require.Contains(t, out, "Tom &amp; Jerry")
	require.NotContains(t, out, "<i>")
}

func TestExpandChartConfig(t *testing.T) {
	out, _, err := Default().Expand("chart", "Cargo\nOil|75\nGrain|50", "/cargo", 0)
	require.NoError(t, err)

	d := doc(t, out)
	raw, ok := d.Find(".chart-container canvas").Attr("data-chart")
	require.True(t, ok)

	var cfg struct {
		Type string `json:"type"`
		Data struct {
			Labels   []string `json:"labels"`
			Datasets []struct {
				Label           string    `json:"label"`
				Data            []float64 `json:"data"`
				BackgroundColor []string  `json:"backgroundColor"`
			} `json:"datasets"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))
	require.Equal(t, "bar", cfg.Type)
	require.Equal(t, []string{"Oil", "Grain"}, cfg.Data.Labels)
	require.Equal(t, []float64{75, 50}, cfg.Data.Datasets[0].Data)
	require.Equal(t, "rgba(16, 185, 129, 0.5)", cfg.Data.Datasets[0].BackgroundColor[0])
}

func TestExpandDiagrams(t *testing.T) {
	r := Default()
	cases := []struct {
		kind, body, class, label string
	}{
		{"vessel-diagram", "type: tanker", "diagram-container", "Tanker Vessel Profile"},
		{"vessel-diagram", "type: submarine", "diagram-container", "Container Vessel Cross Section"},
		{"port-layout", "", "diagram-container", "Bulk Terminal"},
		{"equipment-schematic", "type: propulsion", "schematic-container", "Propulsion System"},
	}
	for _, tc := range cases {
		out, ok, err := r.Expand(tc.kind, tc.body, "/p", 0)
		require.NoError(t, err, tc.kind)
		require.True(t, ok)
		d := doc(t, out)
		require.Equal(t, 1, d.Find("."+tc.class+" svg").Length(), tc.kind)
		require.Contains(t, out, tc.label)
	}
}

func TestExpandCalculator(t *testing.T) {
	r := Default()
	for _, name := range []string{"speed", "fuel", "draft", "converter"} {
		out, ok, err := r.Expand("calculator", name, "/tools", 0)
		require.NoError(t, err, name)
		require.True(t, ok)
		require.Contains(t, out, "calculator-container")
		require.Contains(t, out, "<script>")
		require.NotContains(t, out, "\n\n")
	}
	_, ok, err := r.Expand("calculator", "warp-drive", "/tools", 0)
	require.True(t, ok)
	require.Error(t, err)
}

func TestFlashcards(t *testing.T) {
	out, _, err := Default().Expand("flashcards", "What is a knot? | Speed unit\nno separator\nPort? | Left side", "/terms", 0)
	require.NoError(t, err)
	d := doc(t, out)
	require.Equal(t, 2, d.Find(".flashcard").Length())
	require.Equal(t, 1, d.Find(".flashcard.active").Length())
	require.Equal(t, "Review Key Concepts", d.Find("h3").Text())
}

func TestUnknownKind(t *testing.T) {
	out, ok, err := Default().Expand("hologram", "x", "/p", 0)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, out)
}

func TestElementIDDeterministic(t *testing.T) {
	a := ElementID("/knots", "quiz", 0)
	require.Equal(t, a, ElementID("/knots", "quiz", 0))
	require.NotEqual(t, a, ElementID("/knots", "quiz", 1))
	require.NotEqual(t, a, ElementID("/speed", "quiz", 0))
	require.True(t, strings.HasPrefix(a, "quiz-"))
}

func TestRegisterCustomKind(t *testing.T) {
	r := NewRegistry()
	r.Register("Note", Kind{
		Parse:  func(body string) (any, error) { return strings.TrimSpace(body), nil },
		Render: func(id string, data any) (string, error) { return `<div class="note" id="` + id + `">` + data.(string) + "</div>", nil },
	})
	out, ok, err := r.Expand("note", " hi ", "/p", 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, out, ">hi<")
	require.Equal(t, []string{"note"}, r.Names())
}
