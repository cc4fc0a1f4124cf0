package pool

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

func TestCategoryExtraction(t *testing.T) {
	p := New()

	if err := p.AddItem("string-cat", map[string]any{"category": "legal"}, "text", "category"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := p.AddItem("list-cat", map[string]any{"category": []any{"legal", "medical"}}, "text", "category"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := p.AddItem("no-cat", map[string]any{"text": "plain"}, "text", "category"); err != nil {
		t.Fatalf("add: %v", err)
	}

	if got := p.Get("string-cat").Categories; !reflect.DeepEqual(got, []string{"legal"}) {
		t.Fatalf("string category: %v", got)
	}
	if got := p.Get("list-cat").Categories; !reflect.DeepEqual(got, []string{"legal", "medical"}) {
		t.Fatalf("list category: %v", got)
	}
	if got := p.Get("no-cat").Categories; !reflect.DeepEqual(got, []string{Uncategorized}) {
		t.Fatalf("missing category must bucket as uncategorized: %v", got)
	}
}

func TestItemsByCategoriesIsUnion(t *testing.T) {
	p := New()
	_ = p.AddItem("a", map[string]any{"category": "legal"}, "", "category")
	_ = p.AddItem("b", map[string]any{"category": "medical"}, "", "category")
	_ = p.AddItem("c", map[string]any{"category": []any{"legal", "medical"}}, "", "category")
	_ = p.AddItem("d", map[string]any{"category": "finance"}, "", "category")

	union := p.ItemsByCategories([]string{"legal", "medical"})
	for _, want := range []string{"a", "b", "c"} {
		if _, ok := union[want]; !ok {
			t.Fatalf("expected %s in union, got %v", want, union)
		}
	}
	if _, ok := union["d"]; ok {
		t.Fatal("finance item must not appear in legal|medical union")
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	p := New()
	if err := p.AddItem("dup", nil, "", ""); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := p.AddItem("dup", nil, "", ""); err == nil {
		t.Fatal("duplicate id must be rejected")
	}
}

func TestRecordAnnotatorCountsDistinctUsersOnce(t *testing.T) {
	p := New()
	_ = p.AddItem("item-1", nil, "", "")

	if !p.RecordAnnotator("item-1", "alice") {
		t.Fatal("first submission by alice must count")
	}
	if p.RecordAnnotator("item-1", "alice") {
		t.Fatal("re-submission by alice must not count again")
	}
	if !p.RecordAnnotator("item-1", "bob") {
		t.Fatal("first submission by bob must count")
	}
	if got := p.AnnotationCount("item-1"); got != 2 {
		t.Fatalf("expected 2 distinct annotators, got %d", got)
	}
}

func TestRecordAnnotatorConcurrent(t *testing.T) {
	p := New()
	_ = p.AddItem("item-1", nil, "", "")

	var wg sync.WaitGroup
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	for _, user := range users {
		wg.Add(2)
		for i := 0; i < 2; i++ {
			go func() {
				defer wg.Done()
				p.RecordAnnotator("item-1", user)
			}()
		}
	}
	wg.Wait()

	if got := p.AnnotationCount("item-1"); got != len(users) {
		t.Fatalf("expected %d distinct annotators, got %d", len(users), got)
	}
}

func TestDisagreementSignal(t *testing.T) {
	p := New()
	_ = p.AddItem("item-1", nil, "", "")

	p.ObserveLabelValue("item-1", "sentiment", "positive")
	if p.HasDisagreement("item-1") {
		t.Fatal("one value is not disagreement")
	}
	p.ObserveLabelValue("item-1", "sentiment", "positive")
	if p.HasDisagreement("item-1") {
		t.Fatal("repeated identical values are not disagreement")
	}
	p.ObserveLabelValue("item-1", "sentiment", "negative")
	if !p.HasDisagreement("item-1") {
		t.Fatal("two distinct values on one label is disagreement")
	}
}

func TestLoadFilesPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	fileA := filepath.Join(dir, "a.jsonl")
	fileB := filepath.Join(dir, "b.jsonl")
	if err := os.WriteFile(fileA, []byte("{\"id\":\"a1\",\"text\":\"one\"}\n{\"id\":\"a2\",\"text\":\"two\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fileB, []byte("{\"id\":\"b1\",\"text\":\"three\",\"category\":\"legal\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := New()
	if err := p.LoadFiles(context.Background(), []string{fileA, fileB}, LoadOptions{CategoryField: "category"}); err != nil {
		t.Fatalf("load: %v", err)
	}

	want := []string{"a1", "a2", "b1"}
	if got := p.Order(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected load order %v, got %v", want, got)
	}
	if got := p.Get("b1").Text; got != "three" {
		t.Fatalf("text field not extracted: %q", got)
	}
}

func TestLoadFilesRejectsMissingID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.jsonl")
	if err := os.WriteFile(path, []byte("{\"text\":\"no id here\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := New()
	if err := p.LoadFiles(context.Background(), []string{path}, LoadOptions{}); err == nil {
		t.Fatal("missing id field must fail the load")
	}
}
