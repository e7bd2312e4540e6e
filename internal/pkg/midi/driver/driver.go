package driver

import (
	"fmt"
	"strings"

	"github.com/gethiox/magneto/internal/pkg/midi"
)

// Listener receives raw events, it must not retain the slice after return.
type Listener func(midi.Event)

// Source is anything that can deliver raw MIDI events, hardware port, keyboard or file player.
type Source interface {
	Name() string
	// Listen starts delivering events to fn until stop is called.
	Listen(fn Listener) (stop func(), err error)
}

// Discover lists currently available sources.
type Discover func() []Source

// Filter selects source names by case-insensitive substrings.
// Excluded patterns win over preferred ones, empty Preferred accepts everything not excluded.
type Filter struct {
	Preferred []string
	Excluded  []string
}

func contains(name string, patterns []string) bool {
	name = strings.ToLower(name)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

func nonEmpty(patterns []string) bool {
	for _, p := range patterns {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

func (f Filter) Accepts(name string) bool {
	if contains(name, f.Excluded) {
		return false
	}
	if !nonEmpty(f.Preferred) {
		return true
	}
	return contains(name, f.Preferred)
}

// Select returns accepted sources, preferred ones ordered by pattern position.
func (f Filter) Select(sources []Source) []Source {
	var selected []Source
	if !nonEmpty(f.Preferred) {
		for _, s := range sources {
			if f.Accepts(s.Name()) {
				selected = append(selected, s)
			}
		}
		return selected
	}

	taken := make(map[int]bool)
	for _, p := range f.Preferred {
		for i, s := range sources {
			if taken[i] || !f.Accepts(s.Name()) || !contains(s.Name(), []string{p}) {
				continue
			}
			taken[i] = true
			selected = append(selected, s)
		}
	}
	return selected
}

// Pick returns n-th source accepted by filter.
func Pick(sources []Source, f Filter, idx int) (Source, error) {
	selected := f.Select(sources)
	if idx < 0 || idx+1 > len(selected) {
		return nil, fmt.Errorf("midi port ID %d doesn't exist, %d available", idx, len(selected))
	}
	return selected[idx], nil
}
