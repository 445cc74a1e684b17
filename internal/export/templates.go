package export

import (
	"bytes"
	"html/template"
	"time"

	"sampletrack/internal/store"
)

var summaryTemplate = template.Must(template.New("summary").Funcs(template.FuncMap{
	"formatDate": func(t time.Time) string {
		return t.Format("Jan 2, 2006 15:04 MST")
	},
}).Parse(summaryTemplateHTML))

type templateData struct {
	Summary store.ProjectSummary
	Groups  []store.SequencingGroup
}

// RenderSummaryHTML renders the summary report template.
func RenderSummaryHTML(summary store.ProjectSummary, groups []store.SequencingGroup) (string, error) {
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, templateData{Summary: summary, Groups: groups}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const summaryTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Summary.Project.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; font-size: 0.9em; }
    th { background: #f5f5f5; }
    .counts td { border: none; padding: 0.2rem 1.5rem 0.2rem 0; }
  </style>
</head>
<body>
  <h1>{{.Summary.Project.Name}}</h1>
  <div class="meta">Project report | generated {{formatDate .Summary.GeneratedAt}}</div>
  <table class="counts">
    <tr><td>Participants</td><td>{{.Summary.Participants}}</td></tr>
    <tr><td>Samples</td><td>{{.Summary.Samples}}</td></tr>
    <tr><td>Assays</td><td>{{.Summary.Assays}}</td></tr>
    <tr><td>Active sequencing groups</td><td>{{.Summary.ActiveGroups}}</td></tr>
    <tr><td>Archived sequencing groups</td><td>{{.Summary.ArchivedGroups}}</td></tr>
    <tr><td>Completed analyses</td><td>{{.Summary.CompletedAnalyses}}</td></tr>
  </table>
  {{if .Groups}}
  <h2>Active sequencing groups</h2>
  <table>
    <tr><th>ID</th><th>Sample</th><th>Type</th><th>Technology</th><th>Platform</th><th>Assays</th></tr>
    {{range .Groups}}
    <tr>
      <td>{{.ID}}</td>
      <td>{{.SampleID}}</td>
      <td>{{.Type}}</td>
      <td>{{.Technology}}</td>
      <td>{{.Platform}}</td>
      <td>{{len .AssayIDs}}</td>
    </tr>
    {{end}}
  </table>
  {{end}}
</body>
</html>`
