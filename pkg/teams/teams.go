// Package teams canonicalizes team names so fixtures, provider
// opinions, and statistics rows referring to the same club line up on
// one spelling.
package teams

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Team is one registered club.
type Team struct {
	Name    string   `json:"name"`
	Short   string   `json:"short,omitempty"`
	League  string   `json:"league,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
}

// Registry maps name variants to canonical teams.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*Team
	byAbbrev map[string]*Team
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]*Team),
		byAbbrev: make(map[string]*Team),
	}
}

// Add registers a team and all its name variants.
func (r *Registry) Add(t *Team) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName[Normalize(t.Name)] = t
	for _, alias := range t.Aliases {
		r.byName[Normalize(alias)] = t
	}
	if t.Short != "" {
		r.byAbbrev[strings.ToLower(t.Short)] = t
	}
}

// Len returns the number of indexed name variants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Find resolves a name variant to its team.
func (r *Registry) Find(name string) (*Team, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	norm := Normalize(name)

	if t, ok := r.byName[norm]; ok {
		return t, true
	}
	if t, ok := r.byAbbrev[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t, true
	}

	// Tolerate trailing qualifiers like "united" dropped from inputs.
	for _, suffix := range []string{" united", " city", " town"} {
		if t, ok := r.byName[strings.TrimSuffix(norm, suffix)]; ok {
			return t, true
		}
	}

	for key, t := range r.byName {
		if strings.Contains(key, norm) || strings.Contains(norm, key) {
			return t, true
		}
	}

	return nil, false
}

// Canonical returns the registered spelling for a name, or the
// normalized input when the team is unknown.
func (r *Registry) Canonical(name string) string {
	if t, ok := r.Find(name); ok {
		return t.Name
	}
	return Normalize(name)
}

// Normalize lowercases a name, strips diacritics and club suffixes,
// and collapses whitespace.
func Normalize(name string) string {
	name = strings.ToLower(name)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)

	name = strings.ReplaceAll(name, " fc", "")
	name = strings.ReplaceAll(name, " afc", "")
	name = strings.ReplaceAll(name, " cf", "")

	name = strings.Join(strings.Fields(name), " ")

	return strings.TrimSpace(name)
}
