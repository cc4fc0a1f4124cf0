package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/davidjurgens/potato-sub004/internal/phase"
)

// Task is the YAML description of one annotation study: which phases it
// runs, how items are assigned, and how training qualifies annotators.
type Task struct {
	Name string `yaml:"name"`

	// Phases maps phase type names to their ordered page lists. A phase
	// listed with no pages still takes one step.
	Phases map[string][]string `yaml:"phases"`

	Assignment AssignmentConfig `yaml:"assignment"`
	Training   TrainingConfig   `yaml:"training"`

	// DataFiles are the JSON-lines item files to load, in order.
	DataFiles []string `yaml:"data_files"`
	// Field names inside the item property bags.
	IDField       string `yaml:"id_field"`
	TextField     string `yaml:"text_field"`
	CategoryField string `yaml:"category_field"`
}

type AssignmentConfig struct {
	Strategy              string `yaml:"strategy"`
	BatchSize             int    `yaml:"batch_size"`
	MaxAssignmentsPerUser int    `yaml:"max_assignments_per_user"`
	MaxAnnotationsPerItem int    `yaml:"max_annotations_per_item"`
	// CategoryFallback applies when a user has no qualified category:
	// "uncategorized" or "random".
	CategoryFallback string `yaml:"category_fallback"`
}

type TrainingConfig struct {
	MaxMistakes               int     `yaml:"max_mistakes"`
	MaxQuestionMistakes       int     `yaml:"max_question_mistakes"`
	QualificationThreshold    float64 `yaml:"qualification_threshold"`
	QualificationMinQuestions int     `yaml:"qualification_min_questions"`
}

// LoadTask reads and validates a task file. Configuration errors fail here,
// at startup, never silently substituted.
func LoadTask(path string) (*Task, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	var task Task
	if err := yaml.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("parse task file: %w", err)
	}
	task.applyDefaults()
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("task file %s: %w", path, err)
	}
	return &task, nil
}

func (t *Task) applyDefaults() {
	if t.Assignment.BatchSize == 0 {
		t.Assignment.BatchSize = 10
	}
	if t.Assignment.MaxAssignmentsPerUser == 0 {
		t.Assignment.MaxAssignmentsPerUser = -1
	}
	if t.Assignment.MaxAnnotationsPerItem == 0 {
		t.Assignment.MaxAnnotationsPerItem = -1
	}
	if t.Assignment.CategoryFallback == "" {
		t.Assignment.CategoryFallback = "uncategorized"
	}
	if t.IDField == "" {
		t.IDField = "id"
	}
	if t.TextField == "" {
		t.TextField = "text"
	}
	if t.Training.QualificationMinQuestions == 0 {
		t.Training.QualificationMinQuestions = 1
	}
}

// Validate checks the structural fields. The strategy name itself is
// validated by the assignment engine when it is constructed, which also
// happens at startup.
func (t *Task) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(t.Phases) == 0 {
		return fmt.Errorf("at least one phase must be configured")
	}
	for name := range t.Phases {
		if _, err := phase.Parse(name); err != nil {
			return fmt.Errorf("phases: %w", err)
		}
	}
	if t.Assignment.Strategy == "" {
		return fmt.Errorf("assignment.strategy is required")
	}
	if t.Assignment.BatchSize < 1 {
		return fmt.Errorf("assignment.batch_size must be positive, got %d", t.Assignment.BatchSize)
	}
	if threshold := t.Training.QualificationThreshold; threshold < 0 || threshold > 1 {
		return fmt.Errorf("training.qualification_threshold must be in [0, 1], got %g", threshold)
	}
	if t.Assignment.CategoryFallback != "uncategorized" && t.Assignment.CategoryFallback != "random" {
		return fmt.Errorf("assignment.category_fallback must be \"uncategorized\" or \"random\", got %q", t.Assignment.CategoryFallback)
	}
	if t.Assignment.Strategy == "category" && t.Training.QualificationThreshold == 0 {
		return fmt.Errorf("category strategy requires training.qualification_threshold")
	}
	return nil
}
