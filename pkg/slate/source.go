package slate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/junhopark/slatepick/pkg/predict"
	"github.com/junhopark/slatepick/pkg/teams"
)

// FileSource reads the slate from a JSON file on every run, so the
// file can be swapped between rounds without restarting the daemon.
// Team names are resolved through a shared registry, so spelling
// variants between file revisions land on one canonical name.
type FileSource struct {
	Path  string
	Teams *teams.Registry
}

// NewFileSource creates a source for the given path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path, Teams: teams.NewRegistry()}
}

// UpcomingSlate loads and validates the match list.
func (f *FileSource) UpcomingSlate(ctx context.Context) ([]*predict.MatchContext, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading slate file: %w", err)
	}

	var matches []*predict.MatchContext
	if err := json.Unmarshal(data, &matches); err != nil {
		return nil, fmt.Errorf("parsing slate file: %w", err)
	}

	for i, mc := range matches {
		mc.HomeTeam = f.resolveTeam(mc.HomeTeam)
		mc.AwayTeam = f.resolveTeam(mc.AwayTeam)
		if err := mc.Validate(); err != nil {
			return nil, fmt.Errorf("slate entry %d: %w", i, err)
		}
	}
	return matches, nil
}

// resolveTeam maps a name through the registry, registering it on
// first sight so later variants resolve to the first-seen spelling.
func (f *FileSource) resolveTeam(name string) string {
	if f.Teams == nil || name == "" {
		return name
	}
	if t, ok := f.Teams.Find(name); ok {
		return t.Name
	}
	f.Teams.Add(&teams.Team{Name: name})
	return name
}

// StaticSource serves a fixed slate, mainly for one-shot runs.
type StaticSource struct {
	Matches []*predict.MatchContext
}

// UpcomingSlate returns the fixed slate.
func (s *StaticSource) UpcomingSlate(ctx context.Context) ([]*predict.MatchContext, error) {
	return s.Matches, nil
}
