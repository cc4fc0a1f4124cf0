package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTask(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "task.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validTask = `
name: sentiment-study
phases:
  consent: [consent]
  instructions: [overview, examples]
  annotation: [main]
assignment:
  strategy: least_annotated
  batch_size: 5
  max_annotations_per_item: 3
training:
  max_mistakes: 5
  qualification_threshold: 0.7
  qualification_min_questions: 2
data_files:
  - ./data/items/batch1.jsonl
category_field: category
`

func TestLoadTaskValid(t *testing.T) {
	task, err := LoadTask(writeTask(t, validTask))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if task.Assignment.Strategy != "least_annotated" {
		t.Fatalf("strategy: %q", task.Assignment.Strategy)
	}
	if task.Assignment.MaxAssignmentsPerUser != -1 {
		t.Fatalf("default user cap must be unlimited, got %d", task.Assignment.MaxAssignmentsPerUser)
	}
	if task.IDField != "id" || task.TextField != "text" {
		t.Fatal("field-name defaults not applied")
	}
	if len(task.Phases["instructions"]) != 2 {
		t.Fatalf("phases lost in parsing: %v", task.Phases)
	}
}

func TestLoadTaskMissingStrategy(t *testing.T) {
	body := strings.Replace(validTask, "strategy: least_annotated", "", 1)
	if _, err := LoadTask(writeTask(t, body)); err == nil {
		t.Fatal("missing strategy must fail at load time")
	}
}

func TestLoadTaskRejectsUnknownPhaseName(t *testing.T) {
	body := strings.Replace(validTask, "annotation: [main]", "annotaton: [main]", 1)
	if _, err := LoadTask(writeTask(t, body)); err == nil {
		t.Fatal("mistyped phase name must fail at load time, not fall back to login")
	} else if !strings.Contains(err.Error(), "annotaton") {
		t.Fatalf("error should name the bad phase, got %v", err)
	}
}

func TestLoadTaskBadThreshold(t *testing.T) {
	body := strings.Replace(validTask, "qualification_threshold: 0.7", "qualification_threshold: 1.5", 1)
	if _, err := LoadTask(writeTask(t, body)); err == nil {
		t.Fatal("out-of-range threshold must fail")
	}
}

func TestLoadTaskBadFallback(t *testing.T) {
	body := validTask + "\n"
	body = strings.Replace(body, "category_field: category", "category_field: category\n", 1)
	body = strings.Replace(body, "  batch_size: 5", "  batch_size: 5\n  category_fallback: everything", 1)
	if _, err := LoadTask(writeTask(t, body)); err == nil {
		t.Fatal("unknown fallback mode must fail")
	}
}

func TestCategoryStrategyRequiresThreshold(t *testing.T) {
	body := strings.Replace(validTask, "strategy: least_annotated", "strategy: category", 1)
	body = strings.Replace(body, "qualification_threshold: 0.7", "qualification_threshold: 0", 1)
	if _, err := LoadTask(writeTask(t, body)); err == nil {
		t.Fatal("category strategy without a threshold must fail")
	}
}

func TestLoadTaskMissingFile(t *testing.T) {
	if _, err := LoadTask(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing task file must fail")
	}
}
