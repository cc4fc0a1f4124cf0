package annotation

import (
	"testing"

	"github.com/davidjurgens/potato-sub004/internal/phase"
)

var (
	annotating = phase.Position{Phase: phase.Annotation, Page: "main"}
	consenting = phase.Position{Phase: phase.Consent, Page: "consent"}
)

func TestAddLabelRoutesByPhase(t *testing.T) {
	s := NewStore()
	sentiment := Label{Schema: "sentiment", Name: "positive"}

	s.AddLabel(annotating, "item-1", sentiment, "1")
	if got := s.Labels("item-1")[sentiment]; got != "1" {
		t.Fatalf("expected item label, got %q", got)
	}

	agree := Label{Schema: "consent", Name: "agree"}
	s.AddLabel(consenting, "", agree, "yes")
	if s.HasAnnotated("") {
		t.Fatal("consent response must not count as an item annotation")
	}
	if got := s.Responses(consenting)[agree]; got != "yes" {
		t.Fatalf("expected consent response, got %q", got)
	}
}

func TestSetAnnotationDeletesOnEmptyLabels(t *testing.T) {
	s := NewStore()
	l := Label{Schema: "topic", Name: "sports"}

	if changed := s.SetAnnotation("item-1", map[Label]string{l: "1"}, nil); !changed {
		t.Fatal("first set should report a change")
	}
	if changed := s.SetAnnotation("item-1", map[Label]string{l: "1"}, nil); changed {
		t.Fatal("identical set should not report a change")
	}
	if changed := s.SetAnnotation("item-1", nil, nil); !changed {
		t.Fatal("clearing should report a change")
	}
	if s.HasAnnotated("item-1") {
		t.Fatal("cleared item must not look annotated")
	}
	if len(s.AnnotatedIDs()) != 0 {
		t.Fatal("cleared item must drop out of the annotated set")
	}
}

func TestHasAnnotatedIsUnionOfLabelsAndSpans(t *testing.T) {
	s := NewStore()
	sp := Span{Schema: "ner", Name: "person", Title: "Person", Start: 3, End: 8}

	s.AddSpan(annotating, "span-only", sp, "1")
	if !s.HasAnnotated("span-only") {
		t.Fatal("span-only item must count as annotated")
	}

	s.AddLabel(annotating, "label-only", Label{Schema: "topic", Name: "news"}, "1")
	if !s.HasAnnotated("label-only") {
		t.Fatal("label-only item must count as annotated")
	}
}

func TestCountCountsEachItemOnce(t *testing.T) {
	s := NewStore()
	s.AddLabel(annotating, "both", Label{Schema: "topic", Name: "news"}, "1")
	s.AddSpan(annotating, "both", Span{Schema: "ner", Name: "org", Start: 0, End: 2}, "1")
	s.AddLabel(annotating, "other", Label{Schema: "topic", Name: "sports"}, "1")

	if got := s.Count(); got != 2 {
		t.Fatalf("expected count 2, got %d", got)
	}
}

func TestSetAnnotationKeepsSpansWhenLabelsEmpty(t *testing.T) {
	s := NewStore()
	sp := Span{Schema: "ner", Name: "person", Start: 1, End: 4}

	changed := s.SetAnnotation("item-1", nil, map[Span]string{sp: "1"})
	if !changed {
		t.Fatal("span set should report a change")
	}
	if !s.HasAnnotated("item-1") {
		t.Fatal("item with only spans must stay annotated")
	}
}

func TestSpanValid(t *testing.T) {
	if !(Span{Start: 0, End: 0}).Valid() {
		t.Fatal("zero-length span is valid")
	}
	if (Span{Start: 5, End: 2}).Valid() {
		t.Fatal("inverted span must be invalid")
	}
	if (Span{Start: -1, End: 2}).Valid() {
		t.Fatal("negative offset must be invalid")
	}
}

func TestIdentityIgnoresValueButKeepsTitle(t *testing.T) {
	s := NewStore()
	a := Span{Schema: "ner", Name: "person", Title: "Person", Start: 0, End: 3}
	b := Span{Schema: "ner", Name: "person", Title: "Person", Start: 0, End: 3}

	s.AddSpan(annotating, "item-1", a, "first")
	s.AddSpan(annotating, "item-1", b, "second")

	spans := s.Spans("item-1")
	if len(spans) != 1 {
		t.Fatalf("equal identities must collapse to one entry, got %d", len(spans))
	}
	if spans[a] != "second" {
		t.Fatalf("later write must win, got %q", spans[a])
	}
}
