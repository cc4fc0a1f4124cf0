package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"
)

// Service produces export artifacts from a data source.
type Service struct {
	source   Source
	uploader *Uploader
}

// NewService creates an export service. uploader may be nil when object
// storage is not configured.
func NewService(source Source, uploader *Uploader) *Service {
	return &Service{source: source, uploader: uploader}
}

// Export generates an artifact in the requested format. Uploads, when
// requested and configured, happen in the background and never fail the
// export itself.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	var result *Result
	var err error

	switch req.Format {
	case FormatJSON:
		result, err = s.exportJSON()
	case FormatCSV:
		result, err = s.exportCSV()
	case FormatPDF:
		result, err = s.exportReportPDF()
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		return nil, err
	}

	if req.Upload && s.uploader != nil {
		artifact := *result
		go func() {
			if err := s.uploader.Upload(context.Background(), artifact); err != nil {
				log.Printf("export: upload %s: %v", artifact.Filename, err)
			}
		}()
	}
	return result, nil
}

type jsonBundle struct {
	Task        string          `json:"task"`
	GeneratedAt time.Time       `json:"generated_at"`
	Annotations []AnnotationRow `json:"annotations"`
	Users       []UserProgress  `json:"users"`
}

func (s *Service) exportJSON() (*Result, error) {
	bundle := jsonBundle{
		Task:        s.source.TaskName(),
		GeneratedAt: time.Now().UTC(),
		Annotations: sortedRows(s.source.AnnotationRows()),
		Users:       sortedUsers(s.source.UserProgress()),
	}
	if bundle.Annotations == nil {
		bundle.Annotations = []AnnotationRow{}
	}
	if bundle.Users == nil {
		bundle.Users = []UserProgress{}
	}

	payload, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	return &Result{
		Data:     append(payload, '\n'),
		Filename: sanitizeFilename(s.source.TaskName()) + "-annotations.json",
		MimeType: "application/json",
	}, nil
}

func (s *Service) exportCSV() (*Result, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"user_id", "item_id", "kind", "schema", "name", "value", "title", "start", "end"}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range sortedRows(s.source.AnnotationRows()) {
		record := []string{
			row.UserID, row.ItemID, row.Kind, row.Schema, row.Name, row.Value,
			row.Title, strconv.Itoa(row.Start), strconv.Itoa(row.End),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(s.source.TaskName()) + "-annotations.csv",
		MimeType: "text/csv",
	}, nil
}

func (s *Service) exportReportPDF() (*Result, error) {
	data := ReportData{
		TaskName:    s.source.TaskName(),
		GeneratedAt: time.Now().UTC(),
		Users:       sortedUsers(s.source.UserProgress()),
		TotalRows:   len(s.source.AnnotationRows()),
	}
	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return renderPDF(html, s.source.TaskName()+"-report")
}

// sortedRows gives exports a stable order regardless of map iteration.
func sortedRows(rows []AnnotationRow) []AnnotationRow {
	out := make([]AnnotationRow, len(rows))
	copy(out, rows)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Schema != b.Schema {
			return a.Schema < b.Schema
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Start < b.Start
	})
	return out
}

func sortedUsers(users []UserProgress) []UserProgress {
	out := make([]UserProgress, len(users))
	copy(out, users)
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
