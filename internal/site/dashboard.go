package site

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/developingchet/pagesmith/internal/storage"
)

//go:embed assets/dashboard.html
var dashboardHTML string

var dashboardTmpl = template.Must(template.New("dashboard").Parse(dashboardHTML))

type dashboardView struct {
	Days           int
	GeneratedAt    string
	TotalViews     int
	Pages          []storage.Count
	TopReferrers   []storage.Count
	TopSearchTerms []storage.Count
}

func (s *Site) handleDashboard(w http.ResponseWriter, r *http.Request) {
	days := s.cfg.AnalyticsDays
	summary, err := s.deps.Recorder.Summary(r.Context(), days)
	if err != nil {
		s.log.Error().Err(err).Msg("site: analytics summary failed")
		http.Error(w, analyticsErrorText, http.StatusInternalServerError)
		return
	}

	view := dashboardView{
		Days:           days,
		GeneratedAt:    time.Now().UTC().Format(time.RFC1123),
		TotalViews:     summary.TotalViews,
		Pages:          sortedPages(summary.PageViews),
		TopReferrers:   summary.TopReferrers,
		TopSearchTerms: summary.TopSearchTerms,
	}

	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, view); err != nil {
		s.log.Error().Err(err).Msg("site: render dashboard failed")
		http.Error(w, analyticsErrorText, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// sortedPages orders page views by count, then path.
func sortedPages(views map[string]int) []storage.Count {
	out := make([]storage.Count, 0, len(views))
	for path, n := range views {
		out = append(out, storage.Count{Value: path, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}
