// Package export turns collected annotations into downloadable artifacts:
// JSON and CSV bundles of every label and span, and an HTML progress report
// rendered to PDF.
package export

import "errors"

// Format is the export output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

// Request describes one export operation.
type Request struct {
	Format Format
	// Upload pushes the artifact to object storage when an uploader is
	// configured.
	Upload bool
}

// AnnotationRow is one collected label or span, flattened for export.
type AnnotationRow struct {
	UserID string `json:"user_id"`
	ItemID string `json:"item_id"`
	Kind   string `json:"kind"` // "label" or "span"
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Value  string `json:"value"`
	Title  string `json:"title,omitempty"`
	Start  int    `json:"start,omitempty"`
	End    int    `json:"end,omitempty"`
}

// UserProgress is one annotator's standing for the progress report.
type UserProgress struct {
	UserID    string `json:"user_id"`
	Phase     string `json:"phase"`
	Page      string `json:"page,omitempty"`
	Assigned  int    `json:"assigned"`
	Annotated int    `json:"annotated"`
}

// Source supplies the data an export draws from.
type Source interface {
	TaskName() string
	AnnotationRows() []AnnotationRow
	UserProgress() []UserProgress
}

// Result is the produced artifact.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat indicates an unknown export format was requested.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
