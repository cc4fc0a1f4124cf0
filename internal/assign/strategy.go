// Package assign decides which pool items each user receives next. One
// strategy interface, one implementation per configured variant, selected
// through a lookup table so adding a strategy never grows an if/else chain.
package assign

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/davidjurgens/potato-sub004/internal/pool"
	"github.com/davidjurgens/potato-sub004/internal/session"
)

// Strategy orders the eligible candidates for one user. eligible arrives in
// pool load order and contains only items the user does not already hold
// and that have not reached the per-item cap; implementations return it in
// assignment priority order.
type Strategy interface {
	Name() string
	Prioritize(p *pool.Pool, s *session.UserSession, eligible []string) []string
}

// Config carries the strategy-specific knobs from the task configuration.
type Config struct {
	// Category qualification inputs (category strategy only).
	QualificationThreshold    float64
	QualificationMinQuestions int
	// CategoryFallback is "uncategorized" or "random"; applied when the
	// user has no qualified category.
	CategoryFallback string
}

type factory func(cfg Config) Strategy

var factories = map[string]factory{
	"random":          func(Config) Strategy { return randomStrategy{} },
	"fixed_order":     func(Config) Strategy { return fixedOrderStrategy{} },
	"least_annotated": func(Config) Strategy { return leastAnnotatedStrategy{} },
	"max_diversity":   func(Config) Strategy { return maxDiversityStrategy{} },
	"category":        func(cfg Config) Strategy { return categoryStrategy{cfg: cfg} },
	// Placeholders: prioritization is not model-driven yet, but they must
	// still assign items, never silently no-op.
	"active_learning": func(Config) Strategy { return placeholderStrategy{name: "active_learning"} },
	"llm_confidence":  func(Config) Strategy { return placeholderStrategy{name: "llm_confidence"} },
}

// NewStrategy resolves a configured strategy name. Unknown names are a
// configuration error surfaced at startup, never silently substituted.
func NewStrategy(name string, cfg Config) (Strategy, error) {
	build, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown assignment strategy %q (known: %v)", name, Names())
	}
	return build(cfg), nil
}

// Names lists the registered strategy names, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// randomStrategy draws uniformly across the eligible set.
type randomStrategy struct{}

func (randomStrategy) Name() string { return "random" }

func (randomStrategy) Prioritize(_ *pool.Pool, _ *session.UserSession, eligible []string) []string {
	shuffled := append([]string(nil), eligible...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}

// fixedOrderStrategy hands out items in deterministic pool load order, so
// every user starting from scratch receives the same prefix.
type fixedOrderStrategy struct{}

func (fixedOrderStrategy) Name() string { return "fixed_order" }

func (fixedOrderStrategy) Prioritize(_ *pool.Pool, _ *session.UserSession, eligible []string) []string {
	return append([]string(nil), eligible...)
}

// leastAnnotatedStrategy ranks ascending by global distinct-annotator
// count, ties broken by pool order, so coverage converges toward uniform.
type leastAnnotatedStrategy struct{}

func (leastAnnotatedStrategy) Name() string { return "least_annotated" }

func (leastAnnotatedStrategy) Prioritize(p *pool.Pool, _ *session.UserSession, eligible []string) []string {
	ranked := append([]string(nil), eligible...)
	counts := make(map[string]int, len(ranked))
	for _, itemID := range ranked {
		counts[itemID] = p.AnnotationCount(itemID)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return counts[ranked[i]] < counts[ranked[j]]
	})
	return ranked
}

// maxDiversityStrategy prefers items whose existing annotations disagree
// (two or more distinct values on some label), falling back to the
// least-annotated ordering when no disagreement signal exists yet.
type maxDiversityStrategy struct{}

func (maxDiversityStrategy) Name() string { return "max_diversity" }

func (maxDiversityStrategy) Prioritize(p *pool.Pool, s *session.UserSession, eligible []string) []string {
	base := leastAnnotatedStrategy{}.Prioritize(p, s, eligible)
	disagreeing := make([]string, 0, len(base))
	rest := make([]string, 0, len(base))
	for _, itemID := range base {
		if p.HasDisagreement(itemID) {
			disagreeing = append(disagreeing, itemID)
		} else {
			rest = append(rest, itemID)
		}
	}
	return append(disagreeing, rest...)
}

// categoryStrategy restricts candidates to the user's qualified categories;
// with no qualification it falls back to the uncategorized bucket or to a
// full random draw, per configuration.
type categoryStrategy struct {
	cfg Config
}

func (categoryStrategy) Name() string { return "category" }

func (c categoryStrategy) Prioritize(p *pool.Pool, s *session.UserSession, eligible []string) []string {
	qualified := s.QualifiedCategories(c.cfg.QualificationThreshold, c.cfg.QualificationMinQuestions)

	var allowed map[string]struct{}
	if len(qualified) > 0 {
		allowed = p.ItemsByCategories(qualified)
	} else if c.cfg.CategoryFallback == "random" {
		return randomStrategy{}.Prioritize(p, s, eligible)
	} else {
		allowed = p.ItemsByCategories([]string{pool.Uncategorized})
	}

	restricted := make([]string, 0, len(eligible))
	for _, itemID := range eligible {
		if _, ok := allowed[itemID]; ok {
			restricted = append(restricted, itemID)
		}
	}
	return restricted
}

// placeholderStrategy covers the strategies whose real prioritization is
// not wired yet; it degrades to a uniform draw so capacity is always used.
type placeholderStrategy struct {
	name string
}

func (p placeholderStrategy) Name() string { return p.name }

func (placeholderStrategy) Prioritize(p *pool.Pool, s *session.UserSession, eligible []string) []string {
	return randomStrategy{}.Prioritize(p, s, eligible)
}
