// Package blocks parses the custom :::kind::: fences found in generated
// markdown and renders them into self-contained HTML components.
package blocks

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Kind couples a fence parser with its renderer. Parse receives the raw fence
// body; Render receives the parsed value and a deterministic element id.
type Kind struct {
	Parse  func(body string) (any, error)
	Render func(id string, data any) (string, error)
}

// Registry maps fence names to kinds.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Kind)}
}

// Default returns a registry with every built-in component registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register("chart", typed(parseChart, "chart"))
	r.Register("quiz", typed(parseQuiz, "quiz"))
	r.Register("stats", typed(parseStats, "stats"))
	r.Register("timeline", typed(parseTimeline, "timeline"))
	r.Register("features", typed(parseFeatures, "features"))
	r.Register("flashcards", typed(parseFlashcards, "flashcards"))
	r.Register("vessel-diagram", typed(parseVessel, "vessel-diagram"))
	r.Register("port-layout", typed(parsePortLayout, "port-layout"))
	r.Register("equipment-schematic", typed(parseEquipment, "equipment-schematic"))
	r.Register("calculator", Kind{
		Parse:  func(body string) (any, error) { return parseCalculator(body) },
		Render: renderCalculator,
	})
	return r
}

// Register adds or replaces a kind. Names are case-insensitive.
func (r *Registry) Register(name string, k Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[strings.ToLower(name)] = k
}

// Lookup returns the kind registered under name.
func (r *Registry) Lookup(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[strings.ToLower(name)]
	return k, ok
}

// Names lists registered kinds in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for n := range r.kinds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Expand parses and renders one fence. ok is false when the kind is unknown.
// The returned fragment has no blank lines so markdown keeps it as a single
// raw HTML block.
func (r *Registry) Expand(name, body, path string, ordinal int) (fragment string, ok bool, err error) {
	k, found := r.Lookup(name)
	if !found {
		return "", false, nil
	}
	data, err := k.Parse(body)
	if err != nil {
		return "", true, fmt.Errorf("parse %s block: %w", name, err)
	}
	out, err := k.Render(ElementID(path, name, ordinal), data)
	if err != nil {
		return "", true, fmt.Errorf("render %s block: %w", name, err)
	}
	return compact(out), true, nil
}

// ElementID derives a stable DOM id for the ordinal-th block of a page.
func ElementID(path, kind string, ordinal int) string {
	name := path + "\x00" + strings.ToLower(kind) + "\x00" + strconv.Itoa(ordinal)
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(name))
	return strings.ToLower(kind) + "-" + id.String()
}

func compact(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
