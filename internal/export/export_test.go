package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type fakeSource struct {
	name     string
	rows     []AnnotationRow
	progress []UserProgress
}

func (f *fakeSource) TaskName() string               { return f.name }
func (f *fakeSource) AnnotationRows() []AnnotationRow { return f.rows }
func (f *fakeSource) UserProgress() []UserProgress    { return f.progress }

func seededSource() *fakeSource {
	return &fakeSource{
		name: "Sentiment Study",
		rows: []AnnotationRow{
			{UserID: "bob", ItemID: "i2", Kind: "label", Schema: "sentiment", Name: "positive", Value: "true"},
			{UserID: "alice", ItemID: "i1", Kind: "span", Schema: "emotion", Name: "joy", Value: "joy", Title: "so happy", Start: 4, End: 12},
			{UserID: "alice", ItemID: "i1", Kind: "label", Schema: "sentiment", Name: "negative", Value: "true"},
		},
		progress: []UserProgress{
			{UserID: "bob", Phase: "annotation", Assigned: 5, Annotated: 1},
			{UserID: "alice", Phase: "annotation", Assigned: 5, Annotated: 1},
		},
	}
}

func TestExportCSV(t *testing.T) {
	svc := NewService(seededSource(), nil)

	result, err := svc.Export(context.Background(), Request{Format: FormatCSV})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.MimeType != "text/csv" {
		t.Errorf("unexpected mime type %q", result.MimeType)
	}
	if !strings.HasSuffix(result.Filename, ".csv") {
		t.Errorf("unexpected filename %q", result.Filename)
	}

	records, err := csv.NewReader(strings.NewReader(string(result.Data))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header + 3 rows, got %d records", len(records))
	}
	if records[0][0] != "user_id" || records[0][8] != "end" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	// Rows sort by user, item, kind.
	if records[1][0] != "alice" || records[1][2] != "label" {
		t.Errorf("unexpected first row: %v", records[1])
	}
	if records[2][2] != "span" || records[2][7] != "4" || records[2][8] != "12" {
		t.Errorf("expected span offsets in row, got %v", records[2])
	}
	if records[3][0] != "bob" {
		t.Errorf("unexpected last row: %v", records[3])
	}
}

func TestExportJSON(t *testing.T) {
	svc := NewService(seededSource(), nil)

	result, err := svc.Export(context.Background(), Request{Format: FormatJSON})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.MimeType != "application/json" {
		t.Errorf("unexpected mime type %q", result.MimeType)
	}

	var bundle jsonBundle
	if err := json.Unmarshal(result.Data, &bundle); err != nil {
		t.Fatalf("parse bundle: %v", err)
	}
	if bundle.Task != "Sentiment Study" {
		t.Errorf("unexpected task name %q", bundle.Task)
	}
	if len(bundle.Annotations) != 3 {
		t.Fatalf("expected 3 annotations, got %d", len(bundle.Annotations))
	}
	if bundle.Annotations[0].UserID != "alice" {
		t.Errorf("expected sorted annotations, got %+v", bundle.Annotations[0])
	}
	if len(bundle.Users) != 2 || bundle.Users[0].UserID != "alice" {
		t.Errorf("expected sorted users, got %+v", bundle.Users)
	}
}

func TestExportEmptySourceProducesEmptyCollections(t *testing.T) {
	svc := NewService(&fakeSource{name: "Empty"}, nil)

	result, err := svc.Export(context.Background(), Request{Format: FormatJSON})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	payload := string(result.Data)
	if !strings.Contains(payload, `"annotations": []`) {
		t.Errorf("expected empty annotations array, got %s", payload)
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService(seededSource(), nil)

	_, err := svc.Export(context.Background(), Request{Format: "xml"})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Sentiment Study":  "Sentiment-Study",
		"a/b\\c":           "abc",
		"":                 "export",
		strings.Repeat("x", 80): strings.Repeat("x", 50),
	}
	for input, want := range cases {
		if got := sanitizeFilename(input); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", input, got, want)
		}
	}
}
