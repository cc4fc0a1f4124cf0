package export

import (
	"bytes"
	"html/template"
	"time"
)

var reportTemplate = template.Must(template.New("report").Parse(reportHTML))

// ReportData holds data for progress report rendering.
type ReportData struct {
	TaskName    string
	GeneratedAt time.Time
	Users       []UserProgress
	TotalRows   int
}

// RenderReportHTML renders the progress report template.
func RenderReportHTML(data ReportData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.TaskName}} progress</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; }
    th { background: #f5f5f5; }
  </style>
</head>
<body>
  <h1>{{.TaskName}}</h1>
  <div class="meta">Generated {{.GeneratedAt.Format "Jan 2, 2006 15:04"}} | {{.TotalRows}} annotations | {{len .Users}} annotators</div>
  <table>
    <tr><th>User</th><th>Phase</th><th>Page</th><th>Assigned</th><th>Annotated</th></tr>
    {{range .Users}}<tr><td>{{.UserID}}</td><td>{{.Phase}}</td><td>{{.Page}}</td><td>{{.Assigned}}</td><td>{{.Annotated}}</td></tr>
    {{end}}
  </table>
</body>
</html>`
