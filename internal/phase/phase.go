// Package phase models the ordered lifecycle an annotator moves through,
// from login to the terminal done state. A study configures a subset of the
// phase types; only configured phases participate in transitions.
package phase

import "fmt"

type Type string

const (
	Login        Type = "login"
	Consent      Type = "consent"
	PreStudy     Type = "prestudy"
	Instructions Type = "instructions"
	Training     Type = "training"
	Annotation   Type = "annotation"
	PostStudy    Type = "poststudy"
	Done         Type = "done"
)

// order is the canonical progression of phase types. Done is terminal and
// always participates even when not configured explicitly.
var order = []Type{Login, Consent, PreStudy, Instructions, Training, Annotation, PostStudy, Done}

// Parse converts a phase name strictly. Configuration goes through Parse
// so a mistyped phase name is an error, never a silent substitution.
func Parse(value string) (Type, error) {
	switch t := Type(value); t {
	case Login, Consent, PreStudy, Instructions, Training, Annotation, PostStudy, Done:
		return t, nil
	default:
		return "", fmt.Errorf("unknown phase %q", value)
	}
}

// Normalize is the lenient variant used when restoring persisted state:
// an unrecognized phase falls back to Login rather than failing the load.
func Normalize(value string) Type {
	t, err := Parse(value)
	if err != nil {
		return Login
	}
	return t
}

// Position is one step of the lifecycle: a phase plus the named page within
// it. Phases configured without pages get a single unnamed page.
type Position struct {
	Phase Type
	Page  string
}

// Model is the per-study phase state machine. Immutable after construction.
type Model struct {
	pages map[Type][]string
}

// NewModel builds a model from the configured phase → page lists. A phase
// present with no pages is normalized to one unnamed page so it still takes
// exactly one step to pass through.
func NewModel(configured map[Type][]string) *Model {
	pages := make(map[Type][]string, len(configured))
	for t, names := range configured {
		if len(names) == 0 {
			pages[t] = []string{""}
			continue
		}
		copied := make([]string, len(names))
		copy(copied, names)
		pages[t] = copied
	}
	return &Model{pages: pages}
}

func (m *Model) Configured(t Type) bool {
	_, ok := m.pages[t]
	return ok
}

// Pages returns the configured page names for a phase, or nil when the phase
// is not part of this study.
func (m *Model) Pages(t Type) []string {
	names, ok := m.pages[t]
	if !ok {
		return nil
	}
	copied := make([]string, len(names))
	copy(copied, names)
	return copied
}

// First returns the starting position: the first configured phase in the
// canonical order, at its first page. A model with nothing configured starts
// at Done.
func (m *Model) First() Position {
	for _, t := range order {
		if t == Done {
			break
		}
		if names, ok := m.pages[t]; ok {
			return Position{Phase: t, Page: names[0]}
		}
	}
	return Position{Phase: Done}
}

// Next computes the position after pos. Within a phase it steps to the next
// page; at the last page it moves to the next configured phase's first page;
// past the last configured phase it lands on Done. Next on Done returns Done.
func (m *Model) Next(pos Position) Position {
	if pos.Phase == Done {
		return Position{Phase: Done}
	}

	if names, ok := m.pages[pos.Phase]; ok {
		for i, name := range names {
			if name == pos.Page && i+1 < len(names) {
				return Position{Phase: pos.Phase, Page: names[i+1]}
			}
		}
	}

	started := false
	for _, t := range order {
		if t == pos.Phase {
			started = true
			continue
		}
		if !started || t == Done {
			continue
		}
		if names, ok := m.pages[t]; ok {
			return Position{Phase: t, Page: names[0]}
		}
	}
	return Position{Phase: Done}
}
