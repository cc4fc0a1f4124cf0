package assign

import (
	"reflect"
	"testing"

	"github.com/davidjurgens/potato-sub004/internal/phase"
	"github.com/davidjurgens/potato-sub004/internal/pool"
	"github.com/davidjurgens/potato-sub004/internal/session"
)

func testModel() *phase.Model {
	return phase.NewModel(map[phase.Type][]string{
		phase.Annotation: {"main"},
	})
}

func newSession(id string) *session.UserSession {
	return session.New(id, testModel(), session.Settings{MaxAssignments: -1})
}

func poolOf(t *testing.T, items ...map[string]any) *pool.Pool {
	t.Helper()
	p := pool.New()
	for _, props := range items {
		id := props["id"].(string)
		if err := p.AddItem(id, props, "text", "category"); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	return p
}

func item(id string, extra map[string]any) map[string]any {
	props := map[string]any{"id": id}
	for key, value := range extra {
		props[key] = value
	}
	return props
}

func TestUnknownStrategyIsConfigError(t *testing.T) {
	if _, err := NewStrategy("bogus", Config{}); err == nil {
		t.Fatal("unknown strategy must fail, not be substituted")
	}
}

func TestNamesAreStable(t *testing.T) {
	names := Names()
	want := []string{"active_learning", "category", "fixed_order", "least_annotated", "llm_confidence", "max_diversity", "random"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("registered strategies changed: %v", names)
	}
}

func TestLeastAnnotatedPrefersUnderAnnotated(t *testing.T) {
	p := poolOf(t, item("a", nil), item("b", nil), item("c", nil))
	// Global counts: a=3, b=1, c=2.
	for _, user := range []string{"u1", "u2", "u3"} {
		p.RecordAnnotator("a", user)
	}
	p.RecordAnnotator("b", "u1")
	p.RecordAnnotator("c", "u1")
	p.RecordAnnotator("c", "u2")

	strategy, err := NewStrategy("least_annotated", Config{})
	if err != nil {
		t.Fatal(err)
	}
	ranked := strategy.Prioritize(p, newSession("alice"), []string{"a", "b", "c"})
	if !reflect.DeepEqual(ranked, []string{"b", "c", "a"}) {
		t.Fatalf("expected b,c,a, got %v", ranked)
	}
}

func TestLeastAnnotatedTiesBreakByPoolOrder(t *testing.T) {
	p := poolOf(t, item("x", nil), item("y", nil), item("z", nil))
	strategy, _ := NewStrategy("least_annotated", Config{})

	ranked := strategy.Prioritize(p, newSession("alice"), []string{"x", "y", "z"})
	if !reflect.DeepEqual(ranked, []string{"x", "y", "z"}) {
		t.Fatalf("all-zero counts must keep pool order, got %v", ranked)
	}
}

func TestFixedOrderGivesIdenticalPrefixes(t *testing.T) {
	p := poolOf(t, item("i0", nil), item("i1", nil), item("i2", nil), item("i3", nil))
	engine, err := NewEngine(p, EngineConfig{Strategy: "fixed_order", MaxAnnotationsPerItem: -1, BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}

	alice := newSession("alice")
	bob := newSession("bob")
	if got := engine.AssignInstancesToUser(alice); got != 2 {
		t.Fatalf("expected 2 assignments, got %d", got)
	}
	engine.AssignInstancesToUser(bob)

	if !reflect.DeepEqual(alice.Ordering(), bob.Ordering()) {
		t.Fatalf("fixed order must give every fresh user the same prefix: %v vs %v",
			alice.Ordering(), bob.Ordering())
	}
	if !reflect.DeepEqual(alice.Ordering(), []string{"i0", "i1"}) {
		t.Fatalf("expected load-order prefix, got %v", alice.Ordering())
	}
}

func TestMaxDiversityPrefersDisagreement(t *testing.T) {
	p := poolOf(t, item("calm", nil), item("contested", nil))
	p.ObserveLabelValue("contested", "sentiment", "positive")
	p.ObserveLabelValue("contested", "sentiment", "negative")
	// Give the contested item more annotators so plain least-annotated
	// would rank it last.
	p.RecordAnnotator("contested", "u1")
	p.RecordAnnotator("contested", "u2")

	strategy, _ := NewStrategy("max_diversity", Config{})
	ranked := strategy.Prioritize(p, newSession("alice"), []string{"calm", "contested"})
	if ranked[0] != "contested" {
		t.Fatalf("disagreeing item must lead, got %v", ranked)
	}
}

func TestMaxDiversityFallsBackToLeastAnnotated(t *testing.T) {
	p := poolOf(t, item("a", nil), item("b", nil))
	p.RecordAnnotator("a", "u1")

	strategy, _ := NewStrategy("max_diversity", Config{})
	ranked := strategy.Prioritize(p, newSession("alice"), []string{"a", "b"})
	if !reflect.DeepEqual(ranked, []string{"b", "a"}) {
		t.Fatalf("no disagreement anywhere must give least-annotated order, got %v", ranked)
	}
}

func TestCategoryStrategyRestrictsToQualified(t *testing.T) {
	p := poolOf(t,
		item("legal-1", map[string]any{"category": "legal"}),
		item("medical-1", map[string]any{"category": "medical"}),
		item("plain-1", nil),
	)

	s := newSession("alice")
	for i := 0; i < 2; i++ {
		s.RecordTrainingCategoryAnswer([]string{"legal"}, true)
	}

	cfg := Config{QualificationThreshold: 0.7, QualificationMinQuestions: 2, CategoryFallback: "uncategorized"}
	strategy, _ := NewStrategy("category", cfg)
	ranked := strategy.Prioritize(p, s, []string{"legal-1", "medical-1", "plain-1"})
	if !reflect.DeepEqual(ranked, []string{"legal-1"}) {
		t.Fatalf("expected only qualified-category items, got %v", ranked)
	}
}

func TestCategoryStrategyFallbacks(t *testing.T) {
	p := poolOf(t,
		item("legal-1", map[string]any{"category": "legal"}),
		item("plain-1", nil),
		item("plain-2", nil),
	)
	unqualified := newSession("bob")
	eligible := []string{"legal-1", "plain-1", "plain-2"}

	bucket, _ := NewStrategy("category", Config{CategoryFallback: "uncategorized"})
	ranked := bucket.Prioritize(p, unqualified, eligible)
	if !reflect.DeepEqual(ranked, []string{"plain-1", "plain-2"}) {
		t.Fatalf("uncategorized fallback must serve the bucket, got %v", ranked)
	}

	random, _ := NewStrategy("category", Config{CategoryFallback: "random"})
	ranked = random.Prioritize(p, unqualified, eligible)
	if len(ranked) != len(eligible) {
		t.Fatalf("random fallback must keep the full candidate set, got %v", ranked)
	}
}

func TestPlaceholderStrategiesStillAssign(t *testing.T) {
	for _, name := range []string{"active_learning", "llm_confidence"} {
		p := poolOf(t, item("i0", nil), item("i1", nil))
		engine, err := NewEngine(p, EngineConfig{Strategy: name, MaxAnnotationsPerItem: -1, BatchSize: 10})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		s := newSession("alice")
		if got := engine.AssignInstancesToUser(s); got != 2 {
			t.Fatalf("%s must degrade to random and still assign, got %d", name, got)
		}
	}
}

func TestRandomRespectsExclusions(t *testing.T) {
	p := poolOf(t, item("held", nil), item("capped", nil), item("open", nil))
	p.RecordAnnotator("capped", "u1")

	engine, err := NewEngine(p, EngineConfig{Strategy: "random", MaxAnnotationsPerItem: 1, BatchSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	s := newSession("alice")
	s.AssignInstance("held")

	engine.AssignInstancesToUser(s)
	if s.HasAssigned("capped") {
		t.Fatal("items at the per-item cap must be excluded")
	}
	if !s.HasAssigned("open") {
		t.Fatal("the remaining eligible item must be assigned")
	}
}

func TestCompletionReturnsZeroWithoutMutation(t *testing.T) {
	p := poolOf(t, item("i0", nil), item("i1", nil))
	// Both items at the cap of 2 distinct annotators.
	for _, itemID := range []string{"i0", "i1"} {
		p.RecordAnnotator(itemID, "u1")
		p.RecordAnnotator(itemID, "u2")
	}

	for _, name := range Names() {
		engine, err := NewEngine(p, EngineConfig{
			Strategy:              name,
			MaxAnnotationsPerItem: 2,
			BatchSize:             10,
			StrategyConfig:        Config{CategoryFallback: "uncategorized"},
		})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		fresh := newSession("late-arrival")
		if got := engine.AssignInstancesToUser(fresh); got != 0 {
			t.Fatalf("%s assigned %d after global completion", name, got)
		}
		if len(fresh.Ordering()) != 0 {
			t.Fatalf("%s mutated a session after completion: %v", name, fresh.Ordering())
		}
	}
}

func TestUserCapBoundsBatch(t *testing.T) {
	p := poolOf(t, item("i0", nil), item("i1", nil), item("i2", nil))
	engine, err := NewEngine(p, EngineConfig{Strategy: "fixed_order", MaxAnnotationsPerItem: -1, BatchSize: 10})
	if err != nil {
		t.Fatal(err)
	}

	capped := session.New("alice", testModel(), session.Settings{MaxAssignments: 2})
	if got := engine.AssignInstancesToUser(capped); got != 2 {
		t.Fatalf("expected the user cap to bound the batch, got %d", got)
	}
	if got := engine.AssignInstancesToUser(capped); got != 0 {
		t.Fatalf("a capped user must get nothing more, got %d", got)
	}
}

func TestBatchSizeMustBePositive(t *testing.T) {
	p := pool.New()
	if _, err := NewEngine(p, EngineConfig{Strategy: "random", BatchSize: 0}); err == nil {
		t.Fatal("zero batch size must be rejected at startup")
	}
}
