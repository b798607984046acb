package teams

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Manchester United FC", "manchester united"},
		{"  Real   Madrid CF ", "real madrid"},
		{"Atlético Madrid", "atletico madrid"},
		{"SÃO PAULO", "sao paulo"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegistryFind(t *testing.T) {
	r := NewRegistry()
	r.Add(&Team{Name: "Manchester United", Short: "MUN", Aliases: []string{"Man Utd", "Man United"}})
	r.Add(&Team{Name: "Newcastle United", Short: "NEW"})

	tests := []struct {
		query string
		want  string
	}{
		{"manchester united", "Manchester United"},
		{"Man Utd", "Manchester United"},
		{"MUN", "Manchester United"},
		{"Manchester United FC", "Manchester United"},
		{"newcastle", "Newcastle United"},
	}

	for _, tt := range tests {
		team, ok := r.Find(tt.query)
		if !ok {
			t.Errorf("Find(%q) found nothing", tt.query)
			continue
		}
		if team.Name != tt.want {
			t.Errorf("Find(%q) = %q, want %q", tt.query, team.Name, tt.want)
		}
	}

	if _, ok := r.Find("borussia dortmund"); ok {
		t.Error("Find matched an unregistered team")
	}
}

func TestCanonicalUnknownFallsBackToNormalized(t *testing.T) {
	r := NewRegistry()
	if got := r.Canonical("Górnik Zabrze"); got != "gornik zabrze" {
		t.Errorf("Canonical = %q, want normalized fallback", got)
	}
}
