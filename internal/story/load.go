package story

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/myrjola/compassmystery/internal/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultStory []byte

var ErrInvalidStory = errors.NewSentinel("invalid story")

type document struct {
	Title                string             `yaml:"title"`
	Intro                string             `yaml:"intro"`
	StartLocation        string             `yaml:"start_location"`
	Crime                crimeDocument      `yaml:"crime"`
	BackgroundCharacters []string           `yaml:"background_characters"`
	LocationKeywords     []string           `yaml:"location_keywords"`
	Locations            []locationDocument `yaml:"locations"`
	NPCs                 []npcDocument      `yaml:"npcs"`
}

type crimeDocument struct {
	What  string `yaml:"what"`
	When  string `yaml:"when"`
	Where string `yaml:"where"`
	Who   string `yaml:"who"`
	How   string `yaml:"how"`
	Why   string `yaml:"why"`
}

type locationDocument struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Aliases     []string           `yaml:"aliases"`
	Evidence    []evidenceDocument `yaml:"evidence"`
}

type evidenceDocument struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Reveals     string   `yaml:"reveals"`
	PointsTo    []string `yaml:"points_to"`
	SolvesCase  bool     `yaml:"solves_case"`
	Aliases     []string `yaml:"aliases"`
}

type npcDocument struct {
	ID                string     `yaml:"id"`
	Name              string     `yaml:"name"`
	Persona           string     `yaml:"persona"`
	Aliases           []string   `yaml:"aliases"`
	Knows             []string   `yaml:"knows"`
	Forbidden         []string   `yaml:"forbidden"`
	Secrets           []string   `yaml:"secrets"`
	ConfessionMarkers [][]string `yaml:"confession_markers"`
	ConfessThreshold  int        `yaml:"confess_threshold"`
	Behaviour         struct {
		Defensive string `yaml:"defensive"`
		Pressured string `yaml:"pressured"`
		Confess   string `yaml:"confess"`
	} `yaml:"behaviour"`
	Fallback string `yaml:"fallback"`
}

// Default returns the embedded Celestial Compass mystery.
func Default() (*Truth, error) {
	return Load(bytes.NewReader(defaultStory))
}

// LoadFile reads a story definition from a YAML file.
func LoadFile(path string) (*Truth, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open story", slog.String("path", path))
	}
	defer f.Close()
	truth, err := Load(f)
	if err != nil {
		return nil, errors.Wrap(err, "load story", slog.String("path", path))
	}
	return truth, nil
}

// Load decodes and validates a story definition. Unknown fields are rejected and every validation problem is
// reported at once.
func Load(r io.Reader) (*Truth, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.Join(ErrInvalidStory, err), "decode story")
	}
	if errs := doc.validate(); len(errs) > 0 {
		return nil, errors.Wrap(errors.Join(append([]error{ErrInvalidStory}, errs...)...), "validate story")
	}
	return doc.build(), nil
}

func (d document) validate() []error {
	var errs []error
	problem := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...)) //nolint:err113 // collected validation messages
	}

	if strings.TrimSpace(d.Title) == "" {
		problem("title is empty")
	}
	if len(d.Locations) == 0 {
		problem("no locations")
	}
	if len(d.NPCs) == 0 {
		problem("no npcs")
	}

	npcIDs := map[string]bool{}
	for i, n := range d.NPCs {
		switch {
		case n.ID == "":
			problem("npc #%d has no id", i)
		case npcIDs[n.ID]:
			problem("duplicate npc id %q", n.ID)
		}
		npcIDs[n.ID] = true
		if n.Name == "" {
			problem("npc %q has no name", n.ID)
		}
		if n.ConfessThreshold < 1 {
			problem("npc %q confess_threshold must be at least 1, got %d", n.ID, n.ConfessThreshold)
		}
		if n.Fallback == "" {
			problem("npc %q has no fallback reply", n.ID)
		}
		for _, alias := range n.Aliases {
			if strings.TrimSpace(alias) == "" {
				problem("npc %q has an empty alias", n.ID)
			}
		}
		for j, marker := range n.ConfessionMarkers {
			if len(marker) == 0 {
				problem("npc %q confession marker #%d is empty", n.ID, j)
			}
		}
	}

	locationIDs := map[string]bool{}
	evidenceIDs := map[string]bool{}
	for i, l := range d.Locations {
		switch {
		case l.ID == "":
			problem("location #%d has no id", i)
		case locationIDs[l.ID]:
			problem("duplicate location id %q", l.ID)
		}
		locationIDs[l.ID] = true
		if l.Name == "" {
			problem("location %q has no name", l.ID)
		}
		for j, e := range l.Evidence {
			switch {
			case e.ID == "":
				problem("evidence #%d at %q has no id", j, l.ID)
			case evidenceIDs[e.ID]:
				problem("duplicate evidence id %q", e.ID)
			}
			evidenceIDs[e.ID] = true
			if e.Description == "" {
				problem("evidence %q has no description", e.ID)
			}
			for _, suspect := range e.PointsTo {
				if !npcIDs[suspect] {
					problem("evidence %q points to unknown npc %q", e.ID, suspect)
				}
			}
		}
	}
	if !locationIDs[d.StartLocation] {
		problem("start_location %q is not a location", d.StartLocation)
	}
	return errs
}

func (d document) build() *Truth {
	t := &Truth{
		title:         d.Title,
		intro:         d.Intro,
		startLocation: d.StartLocation,
		crime: Crime{
			What:  d.Crime.What,
			When:  d.Crime.When,
			Where: d.Crime.Where,
			Who:   d.Crime.Who,
			How:   d.Crime.How,
			Why:   d.Crime.Why,
		},
		locations:            make(map[string]Location, len(d.Locations)),
		evidence:             map[string]EvidenceItem{},
		npcs:                 make(map[string]NPC, len(d.NPCs)),
		backgroundCharacters: d.BackgroundCharacters,
		locationKeywords:     d.LocationKeywords,
	}
	for _, l := range d.Locations {
		loc := Location{
			ID:          l.ID,
			Name:        l.Name,
			Description: l.Description,
			Aliases:     l.Aliases,
		}
		for _, e := range l.Evidence {
			loc.EvidenceIDs = append(loc.EvidenceIDs, e.ID)
			t.evidence[e.ID] = EvidenceItem{
				ID:          e.ID,
				LocationID:  l.ID,
				Description: e.Description,
				Reveals:     e.Reveals,
				PointsTo:    e.PointsTo,
				SolvesCase:  e.SolvesCase,
				Aliases:     e.Aliases,
			}
		}
		t.locations[l.ID] = loc
		t.locationOrder = append(t.locationOrder, l.ID)
	}
	for _, n := range d.NPCs {
		t.npcs[n.ID] = NPC{
			ID:                n.ID,
			Name:              n.Name,
			Persona:           n.Persona,
			Aliases:           n.Aliases,
			Knows:             n.Knows,
			Forbidden:         n.Forbidden,
			Secrets:           n.Secrets,
			ConfessionMarkers: n.ConfessionMarkers,
			ConfessThreshold:  n.ConfessThreshold,
			Behaviour: Behaviour{
				Defensive: n.Behaviour.Defensive,
				Pressured: n.Behaviour.Pressured,
				Confess:   n.Behaviour.Confess,
			},
			Fallback: n.Fallback,
		}
		t.npcOrder = append(t.npcOrder, n.ID)
	}
	return t
}
