// Package training tracks per-question and per-category correctness during
// the training phase, enforces mistake ceilings, and derives the category
// qualifications used by category-based assignment.
package training

import "sort"

// QuestionResult is the latest verdict for one training question.
type QuestionResult struct {
	Correct     bool   `json:"correct"`
	Attempts    int    `json:"attempts"`
	Mistakes    int    `json:"mistakes"`
	Explanation string `json:"explanation,omitempty"`
}

// CategoryScore accumulates answers for one category tag.
type CategoryScore struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// State is the serializable portion of a tracker. Round-tripping State
// through JSON reproduces an equivalent tracker.
type State struct {
	Questions     map[string]QuestionResult `json:"questions"`
	Categories    map[string]CategoryScore  `json:"categories"`
	TotalAttempts int                       `json:"totalAttempts"`
	TotalMistakes int                       `json:"totalMistakes"`
	Passed        bool                      `json:"passed"`
	Failed        bool                      `json:"failed"`
}

// Tracker owns training state for one session. Not safe for concurrent use;
// the owning session serializes access.
type Tracker struct {
	state               State
	maxMistakes         int
	maxQuestionMistakes int
}

// NewTracker creates a tracker with the configured ceilings. A ceiling <= 0
// disables that check.
func NewTracker(maxMistakes, maxQuestionMistakes int) *Tracker {
	return &Tracker{
		state: State{
			Questions:  make(map[string]QuestionResult),
			Categories: make(map[string]CategoryScore),
		},
		maxMistakes:         maxMistakes,
		maxQuestionMistakes: maxQuestionMistakes,
	}
}

// RecordAnswer records one answer event for a question. Every call grows
// TotalAttempts, but correctness reflects only the latest verdict per
// question: re-answering overwrites Correct, not history.
func (t *Tracker) RecordAnswer(questionID string, correct bool, attempts int, explanation string) {
	result := t.state.Questions[questionID]
	result.Correct = correct
	result.Attempts = attempts
	result.Explanation = explanation
	if !correct {
		result.Mistakes++
		t.state.TotalMistakes++
	}
	t.state.Questions[questionID] = result
	t.state.TotalAttempts++
}

// RecordCategoryAnswer increments the per-category score for every tag
// attached to the question. A multi-category question contributes to each.
func (t *Tracker) RecordCategoryAnswer(categories []string, correct bool) {
	for _, category := range categories {
		score := t.state.Categories[category]
		score.Total++
		if correct {
			score.Correct++
		}
		t.state.Categories[category] = score
	}
}

// TotalCorrect counts questions whose latest verdict is correct.
func (t *Tracker) TotalCorrect() int {
	correct := 0
	for _, result := range t.state.Questions {
		if result.Correct {
			correct++
		}
	}
	return correct
}

func (t *Tracker) TotalAttempts() int { return t.state.TotalAttempts }
func (t *Tracker) TotalMistakes() int { return t.state.TotalMistakes }

// Question returns the latest result for a question id.
func (t *Tracker) Question(questionID string) (QuestionResult, bool) {
	result, ok := t.state.Questions[questionID]
	return result, ok
}

// ShouldFailDueToMistakes compares cumulative mistakes against the global
// ceiling. Disabled when the ceiling is <= 0.
func (t *Tracker) ShouldFailDueToMistakes() bool {
	return t.maxMistakes > 0 && t.state.TotalMistakes >= t.maxMistakes
}

// ShouldFailQuestionDueToMistakes applies the separate per-question ceiling.
func (t *Tracker) ShouldFailQuestionDueToMistakes(questionID string) bool {
	if t.maxQuestionMistakes <= 0 {
		return false
	}
	return t.state.Questions[questionID].Mistakes >= t.maxQuestionMistakes
}

func (t *Tracker) SetPassed(passed bool) { t.state.Passed = passed }
func (t *Tracker) SetFailed(failed bool) { t.state.Failed = failed }
func (t *Tracker) Passed() bool          { return t.state.Passed }
func (t *Tracker) Failed() bool          { return t.state.Failed }

// QualifiedCategories returns every category whose accuracy is at least
// threshold AND whose answered total is at least minQuestions. Both
// conditions are mandatory: one answer at 100% does not qualify when
// minQuestions > 1. The result is sorted for deterministic consumers.
func (t *Tracker) QualifiedCategories(threshold float64, minQuestions int) []string {
	var qualified []string
	for category, score := range t.state.Categories {
		if score.Total < minQuestions || score.Total == 0 {
			continue
		}
		if float64(score.Correct)/float64(score.Total) >= threshold {
			qualified = append(qualified, category)
		}
	}
	sort.Strings(qualified)
	return qualified
}

// Snapshot copies the serializable state.
func (t *Tracker) Snapshot() State {
	snap := State{
		Questions:     make(map[string]QuestionResult, len(t.state.Questions)),
		Categories:    make(map[string]CategoryScore, len(t.state.Categories)),
		TotalAttempts: t.state.TotalAttempts,
		TotalMistakes: t.state.TotalMistakes,
		Passed:        t.state.Passed,
		Failed:        t.state.Failed,
	}
	for id, result := range t.state.Questions {
		snap.Questions[id] = result
	}
	for category, score := range t.state.Categories {
		snap.Categories[category] = score
	}
	return snap
}

// Restore replaces the tracker state from a snapshot, tolerating nil maps
// from older state files.
func (t *Tracker) Restore(snap State) {
	if snap.Questions == nil {
		snap.Questions = make(map[string]QuestionResult)
	}
	if snap.Categories == nil {
		snap.Categories = make(map[string]CategoryScore)
	}
	t.state = snap
}
