package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/amosWeiskopf/sitescribe/internal/models"
	"github.com/amosWeiskopf/sitescribe/pkg/utils"
)

// Formats lists the supported output formats
var Formats = []string{"json", "markdown", "html"}

// Document is everything a report is rendered from. Either part may be nil.
type Document struct {
	Crawl    *models.CrawlReport  `json:"crawl,omitempty"`
	Analysis *models.SiteAnalysis `json:"analysis,omitempty"`
}

// Reporter handles report generation in various formats
type Reporter struct {
	html *template.Template
}

// New creates a new Reporter instance
func New() *Reporter {
	funcs := template.FuncMap{
		"truncate": utils.TruncateText,
		"sorted":   sortedCounts,
	}
	return &Reporter{
		html: template.Must(template.New("report").Funcs(funcs).Parse(htmlTemplate)),
	}
}

// GenerateReport renders doc in the specified format
func (r *Reporter) GenerateReport(doc *Document, format string) (string, error) {
	if doc == nil || (doc.Crawl == nil && doc.Analysis == nil) {
		return "", fmt.Errorf("nothing to report")
	}

	switch strings.ToLower(format) {
	case "json":
		return r.generateJSON(doc)
	case "html":
		return r.generateHTML(doc)
	case "markdown", "md":
		return r.generateMarkdown(doc)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// generateJSON creates a JSON formatted report
func (r *Reporter) generateJSON(doc *Document) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

// generateHTML creates an HTML formatted report
func (r *Reporter) generateHTML(doc *Document) (string, error) {
	var buf bytes.Buffer
	if err := r.html.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// generateMarkdown creates a Markdown formatted report
func (r *Reporter) generateMarkdown(doc *Document) (string, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Site Report for %s\n\n", domainOf(doc))

	if c := doc.Crawl; c != nil {
		fmt.Fprintf(&buf, "## Crawl\n\n")
		fmt.Fprintf(&buf, "| Metric | Value |\n")
		fmt.Fprintf(&buf, "|--------|-------|\n")
		fmt.Fprintf(&buf, "| Seed | %s |\n", c.Seed)
		fmt.Fprintf(&buf, "| Started | %s |\n", c.StartedAt.Format(models.TimestampLayout))
		fmt.Fprintf(&buf, "| Duration | %s |\n", c.FinishedAt.Sub(c.StartedAt).Round(time.Millisecond))
		fmt.Fprintf(&buf, "| Pages visited | %d |\n", c.PagesVisited)
		fmt.Fprintf(&buf, "| Pages saved | %d |\n", c.PagesSaved)
		fmt.Fprintf(&buf, "| Failures | %d |\n", c.FailureCount)
		fmt.Fprintf(&buf, "| Status | %s |\n\n", crawlStatus(c))

		if len(c.Failures) > 0 {
			fmt.Fprintf(&buf, "### Failed URLs\n\n")
			for _, f := range c.Failures {
				fmt.Fprintf(&buf, "- `%s` **%s**: %s\n", f.URL, f.Kind, utils.TruncateText(f.Reason, 160))
			}
			fmt.Fprintf(&buf, "\n")
		}

		if len(c.ExternalDomains) > 0 {
			fmt.Fprintf(&buf, "### External Domains\n\n")
			for _, kv := range sortedCounts(c.ExternalDomains) {
				fmt.Fprintf(&buf, "- %s (%d)\n", kv.Key, kv.Count)
			}
			fmt.Fprintf(&buf, "\n")
		}
	}

	a := doc.Analysis
	if a == nil {
		return buf.String(), nil
	}

	fmt.Fprintf(&buf, "## Summary\n\n")
	fmt.Fprintf(&buf, "**Overall Grade:** %s (%.0f/100)\n\n", a.Summary.Grade, a.Summary.Score)

	fmt.Fprintf(&buf, "### Scores\n\n")
	fmt.Fprintf(&buf, "| Metric | Score |\n")
	fmt.Fprintf(&buf, "|--------|-------|\n")
	fmt.Fprintf(&buf, "| Content Quality | %.0f |\n", a.Scores.Content)
	fmt.Fprintf(&buf, "| Site Structure | %.0f |\n", a.Scores.Structure)
	fmt.Fprintf(&buf, "| **Overall** | **%.0f** |\n\n", a.Scores.Overall)

	fmt.Fprintf(&buf, "### Content\n\n")
	fmt.Fprintf(&buf, "- **Pages:** %d\n", a.TotalPages)
	fmt.Fprintf(&buf, "- **Words:** %d (about %d min of reading)\n", a.TotalWords, a.ReadingMinutes)
	fmt.Fprintf(&buf, "- **Verses:** %d\n", a.TotalVerses)
	fmt.Fprintf(&buf, "- **Images:** %d\n", a.TotalImages)
	if len(a.Keywords) > 0 {
		fmt.Fprintf(&buf, "- **Keywords:** %s\n", strings.Join(a.Keywords, ", "))
	}
	fmt.Fprintf(&buf, "\n")

	if len(a.Sections) > 0 {
		fmt.Fprintf(&buf, "### Sections\n\n")
		for _, kv := range sortedCounts(a.Sections) {
			fmt.Fprintf(&buf, "- `%s`: %d pages\n", kv.Key, kv.Count)
		}
		fmt.Fprintf(&buf, "\n")
	}

	if len(a.Summary.Strengths) > 0 {
		fmt.Fprintf(&buf, "### Strengths\n\n")
		for _, strength := range a.Summary.Strengths {
			fmt.Fprintf(&buf, "- %s\n", strength)
		}
		fmt.Fprintf(&buf, "\n")
	}

	if len(a.Summary.Weaknesses) > 0 {
		fmt.Fprintf(&buf, "### Areas for Improvement\n\n")
		for _, weakness := range a.Summary.Weaknesses {
			fmt.Fprintf(&buf, "- %s\n", weakness)
		}
		fmt.Fprintf(&buf, "\n")
	}

	if len(a.TopPages) > 0 {
		fmt.Fprintf(&buf, "## Top Pages\n\n")
		fmt.Fprintf(&buf, "| Page | Title | PageRank | Inbound |\n")
		fmt.Fprintf(&buf, "|------|-------|----------|---------|\n")
		for _, p := range a.TopPages {
			fmt.Fprintf(&buf, "| %s | %s | %.4f | %d |\n", p.URL, escapeCell(utils.TruncateText(p.Title, 60)), p.PageRank, p.Inbound)
		}
		fmt.Fprintf(&buf, "\n")
	}

	if len(a.Findings) > 0 {
		fmt.Fprintf(&buf, "## Key Findings\n\n")
		for _, finding := range a.Findings {
			fmt.Fprintf(&buf, "### %s\n", finding.Type)
			fmt.Fprintf(&buf, "- **Category:** %s\n", finding.Category)
			fmt.Fprintf(&buf, "- **Severity:** %s\n", finding.Severity)
			fmt.Fprintf(&buf, "- **Description:** %s\n", finding.Description)
			if len(finding.URLs) > 0 {
				fmt.Fprintf(&buf, "- **Pages:** %s\n", strings.Join(firstN(finding.URLs, 5), ", "))
			}
			fmt.Fprintf(&buf, "\n")
		}
	}

	if len(a.Recommendations) > 0 {
		fmt.Fprintf(&buf, "## Recommendations\n\n")
		for i, rec := range a.Recommendations {
			fmt.Fprintf(&buf, "### %d. %s\n", i+1, rec.Action)
			fmt.Fprintf(&buf, "- **Priority:** %s\n", rec.Priority)
			fmt.Fprintf(&buf, "- **Category:** %s\n", rec.Category)
			fmt.Fprintf(&buf, "- **Impact:** %s\n", rec.Impact)
			fmt.Fprintf(&buf, "- **Effort:** %s\n", rec.Effort)
			fmt.Fprintf(&buf, "- **Description:** %s\n", rec.Description)
			fmt.Fprintf(&buf, "\n")
		}
	}

	return buf.String(), nil
}

// Count is one entry of a sorted count table
type Count struct {
	Key   string
	Count int
}

// sortedCounts orders counts by descending value, then key
func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func domainOf(doc *Document) string {
	if doc.Analysis != nil && doc.Analysis.Domain != "" {
		return doc.Analysis.Domain
	}
	if doc.Crawl != nil {
		return doc.Crawl.BaseDomain
	}
	return ""
}

func crawlStatus(c *models.CrawlReport) string {
	switch {
	case c.Cancelled:
		return "cancelled"
	case c.OK():
		return "completed"
	default:
		return "failed"
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return append(append([]string(nil), s[:n]...), fmt.Sprintf("and %d more", len(s)-n))
}

const htmlTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Site Report{{with .Analysis}} - {{.Domain}}{{else}}{{with .Crawl}} - {{.BaseDomain}}{{end}}{{end}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 2rem;
            border-radius: 10px;
            margin-bottom: 2rem;
        }
        .score-card {
            background: white;
            border-radius: 10px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
            box-shadow: 0 2px 10px rgba(0,0,0,0.1);
        }
        .score-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
            gap: 1rem;
            margin: 1rem 0;
        }
        .score-item {
            text-align: center;
            padding: 1rem;
            background: #f8f9fa;
            border-radius: 8px;
        }
        .score-value {
            font-size: 2rem;
            font-weight: bold;
            color: #667eea;
        }
        .score-label {
            color: #666;
            font-size: 0.9rem;
            margin-top: 0.5rem;
        }
        .grade {
            display: inline-block;
            padding: 0.5rem 1rem;
            background: #28a745;
            color: white;
            border-radius: 5px;
            font-weight: bold;
            font-size: 1.2rem;
        }
        .finding {
            background: white;
            border-left: 4px solid #ffc107;
            padding: 1rem;
            margin: 1rem 0;
            border-radius: 4px;
        }
        .finding.high {
            border-left-color: #dc3545;
        }
        .finding.medium {
            border-left-color: #ffc107;
        }
        .finding.low {
            border-left-color: #28a745;
        }
        .recommendation {
            background: white;
            padding: 1.5rem;
            margin: 1rem 0;
            border-radius: 8px;
            box-shadow: 0 2px 5px rgba(0,0,0,0.1);
        }
        .priority-badge {
            display: inline-block;
            padding: 0.25rem 0.75rem;
            border-radius: 4px;
            font-size: 0.85rem;
            font-weight: bold;
            margin-right: 0.5rem;
        }
        .priority-critical {
            background: #dc3545;
            color: white;
        }
        .priority-high {
            background: #fd7e14;
            color: white;
        }
        .priority-medium {
            background: #ffc107;
            color: #333;
        }
        .priority-low {
            background: #28a745;
            color: white;
        }
        table {
            width: 100%;
            border-collapse: collapse;
        }
        th, td {
            text-align: left;
            padding: 0.4rem 0.6rem;
            border-bottom: 1px solid #eee;
        }
    </style>
</head>
<body>
    <div class="header">
        {{with .Analysis}}<h1>Site Report for {{.Domain}}</h1>
        <p>Generated on {{.GeneratedAt.Format "January 2, 2006"}}</p>
        {{else}}{{with .Crawl}}<h1>Crawl Report for {{.BaseDomain}}</h1>{{end}}{{end}}
    </div>

    {{with .Crawl}}
    <div class="score-card">
        <h2>Crawl</h2>
        <div class="score-grid">
            <div class="score-item">
                <div class="score-value">{{.PagesVisited}}</div>
                <div class="score-label">Pages Visited</div>
            </div>
            <div class="score-item">
                <div class="score-value">{{.PagesSaved}}</div>
                <div class="score-label">Pages Saved</div>
            </div>
            <div class="score-item">
                <div class="score-value">{{.FailureCount}}</div>
                <div class="score-label">Failures</div>
            </div>
        </div>
        <p>Seed: {{.Seed}}{{if .Cancelled}} (cancelled){{end}}</p>
        {{if .Failures}}
        <h3>Failed URLs</h3>
        <table>
            <tr><th>URL</th><th>Kind</th><th>Reason</th></tr>
            {{range .Failures}}
            <tr><td>{{.URL}}</td><td>{{.Kind}}</td><td>{{truncate .Reason 160}}</td></tr>
            {{end}}
        </table>
        {{end}}
        {{if .ExternalDomains}}
        <h3>External Domains</h3>
        <ul>
            {{range sorted .ExternalDomains}}
            <li>{{.Key}} ({{.Count}})</li>
            {{end}}
        </ul>
        {{end}}
    </div>
    {{end}}

    {{with .Analysis}}
    <div class="score-card">
        <h2>Summary</h2>
        <p>Overall Grade: <span class="grade">{{.Summary.Grade}}</span></p>

        <div class="score-grid">
            <div class="score-item">
                <div class="score-value">{{printf "%.0f" .Scores.Content}}</div>
                <div class="score-label">Content Quality</div>
            </div>
            <div class="score-item">
                <div class="score-value">{{printf "%.0f" .Scores.Structure}}</div>
                <div class="score-label">Site Structure</div>
            </div>
            <div class="score-item">
                <div class="score-value">{{printf "%.0f" .Scores.Overall}}</div>
                <div class="score-label">Overall Score</div>
            </div>
        </div>

        <p>{{.TotalPages}} pages, {{.TotalWords}} words, {{.TotalVerses}} verses, {{.TotalImages}} images</p>

        {{if .Summary.Strengths}}
        <h3>Strengths</h3>
        <ul>
            {{range .Summary.Strengths}}
            <li>{{.}}</li>
            {{end}}
        </ul>
        {{end}}

        {{if .Summary.Weaknesses}}
        <h3>Areas for Improvement</h3>
        <ul>
            {{range .Summary.Weaknesses}}
            <li>{{.}}</li>
            {{end}}
        </ul>
        {{end}}
    </div>

    {{if .TopPages}}
    <div class="score-card">
        <h2>Top Pages</h2>
        <table>
            <tr><th>Page</th><th>Title</th><th>PageRank</th><th>Inbound</th></tr>
            {{range .TopPages}}
            <tr><td><a href="{{.URL}}">{{.URL}}</a></td><td>{{truncate .Title 60}}</td><td>{{printf "%.4f" .PageRank}}</td><td>{{.Inbound}}</td></tr>
            {{end}}
        </table>
    </div>
    {{end}}

    {{if .Findings}}
    <div class="score-card">
        <h2>Key Findings</h2>
        {{range .Findings}}
        <div class="finding {{.Severity}}">
            <h4>{{.Type}}</h4>
            <p>{{.Description}}</p>
        </div>
        {{end}}
    </div>
    {{end}}

    {{if .Recommendations}}
    <div class="score-card">
        <h2>Recommendations</h2>
        {{range .Recommendations}}
        <div class="recommendation">
            <span class="priority-badge priority-{{.Priority}}">{{.Priority}} Priority</span>
            <h4>{{.Action}}</h4>
            <p>{{.Description}}</p>
            <p><small>Impact: {{.Impact}} | Effort: {{.Effort}}</small></p>
        </div>
        {{end}}
    </div>
    {{end}}
    {{end}}
</body>
</html>
`
