package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sitecontext.yaml
var defaultSiteContext []byte

// SiteContext fixes the subject domain of generated pages and the vocabulary
// used to filter Related Topics links.
type SiteContext struct {
	MainTopic          string   `yaml:"main_topic"`
	Context            string   `yaml:"context"`
	RelatedTopicsScope []string `yaml:"related_topics_scope"`
	RelevanceKeywords  []string `yaml:"relevance_keywords"`
}

// LoadSiteContext reads a YAML site context from path, or the built-in
// maritime context when path is empty.
func LoadSiteContext(path string) (SiteContext, error) {
	data := defaultSiteContext
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return SiteContext{}, fmt.Errorf("read site context %s: %w", path, err)
		}
		data = raw
	}

	var sc SiteContext
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return SiteContext{}, fmt.Errorf("parse site context: %w", err)
	}
	sc.MainTopic = strings.TrimSpace(sc.MainTopic)
	sc.Context = strings.TrimSpace(sc.Context)
	if sc.MainTopic == "" {
		return SiteContext{}, fmt.Errorf("site context: main_topic is required")
	}
	if len(sc.Vocabulary()) == 0 {
		return SiteContext{}, fmt.Errorf("site context: related_topics_scope or relevance_keywords must not be empty")
	}
	return sc, nil
}

// Vocabulary returns the related-topics scope followed by the relevance
// keywords, with blanks and duplicates removed.
func (s SiteContext) Vocabulary() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(s.RelatedTopicsScope)+len(s.RelevanceKeywords))
	for _, list := range [][]string{s.RelatedTopicsScope, s.RelevanceKeywords} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" || seen[strings.ToLower(v)] {
				continue
			}
			seen[strings.ToLower(v)] = true
			out = append(out, v)
		}
	}
	return out
}
