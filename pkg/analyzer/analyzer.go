package analyzer

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/amosWeiskopf/sitescribe/internal/models"
	"github.com/amosWeiskopf/sitescribe/pkg/urlnorm"
	"github.com/amosWeiskopf/sitescribe/pkg/utils"
)

// Analyzer performs content and link-structure analysis over saved page records
type Analyzer struct {
	config *Config
	now    func() time.Time
}

// Config holds analyzer configuration
type Config struct {
	AnalyzePageRank  bool
	AnalyzeContent   bool
	AnalyzeStructure bool
	TopPages         int // number of pages kept in TopPages
	Keywords         int // number of site keywords kept
}

// New creates a new Analyzer instance
func New() *Analyzer {
	return NewWithConfig(&Config{
		AnalyzePageRank:  true,
		AnalyzeContent:   true,
		AnalyzeStructure: true,
		TopPages:         10,
		Keywords:         15,
	})
}

// NewWithConfig creates an Analyzer with custom configuration
func NewWithConfig(config *Config) *Analyzer {
	return &Analyzer{config: config, now: time.Now}
}

// page is a record with the values the analysis derives from it
type page struct {
	*models.PageRecord
	text     string
	words    int
	pageRank float64
	inbound  int
}

// Analyze evaluates the records of one crawl. report may be nil; when given,
// its failures become findings and its base domain names the site.
func (a *Analyzer) Analyze(records []*models.PageRecord, report *models.CrawlReport) (*models.SiteAnalysis, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no page records to analyze")
	}

	pages := make([]*page, 0, len(records))
	for _, r := range records {
		text := pageText(r)
		pages = append(pages, &page{PageRecord: r, text: text, words: len(strings.Fields(text))})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })

	analysis := &models.SiteAnalysis{
		Domain:      siteDomain(pages, report),
		GeneratedAt: a.now().UTC(),
		TotalPages:  len(pages),
		Sections:    make(map[string]int),
		Keywords:    []string{},
		TopPages:    []models.RankedPage{},
	}

	var allText strings.Builder
	for _, p := range pages {
		analysis.TotalImages += len(p.Images)
		analysis.TotalVerses += len(p.Verses)
		analysis.TotalWords += p.words
		analysis.Sections[getPathType(p.URL)]++
		allText.WriteString(p.text)
		allText.WriteString(" ")
	}
	analysis.ReadingMinutes = utils.CalculateReadingTime(allText.String())
	analysis.Keywords = utils.ExtractKeywords(allText.String(), a.config.Keywords)

	// Inbound counts feed both TopPages and the orphan check
	a.calculatePageRank(pages)
	if a.config.AnalyzePageRank {
		analysis.TopPages = a.topPages(pages)
	}

	if a.config.AnalyzeContent {
		analysis.Scores.Content = a.analyzeContent(pages)
	}
	if a.config.AnalyzeStructure {
		analysis.Scores.Structure = a.analyzeStructure(pages)
	}
	analysis.Scores.Overall = a.calculateOverallScore(analysis.Scores)

	analysis.Findings = a.generateFindings(pages, report)
	analysis.Recommendations = a.generateRecommendations(analysis.Findings)
	analysis.Summary = a.generateSummary(analysis)

	return analysis, nil
}

// calculatePageRank implements the PageRank algorithm over the links between
// saved pages. Links to pages that were not saved are ignored.
func (a *Analyzer) calculatePageRank(pages []*page) {
	const (
		dampingFactor = 0.85
		iterations    = 100
	)

	known := make(map[string]*page, len(pages))
	for _, p := range pages {
		known[p.URL] = p
	}

	// Build link graph
	linkGraph := make(map[string][]string)
	inboundLinks := make(map[string][]string)
	for _, p := range pages {
		for _, link := range p.Links {
			if _, ok := known[link]; !ok || link == p.URL {
				continue
			}
			linkGraph[p.URL] = append(linkGraph[p.URL], link)
			inboundLinks[link] = append(inboundLinks[link], p.URL)
		}
	}

	// Initialize PageRank values
	pageCount := float64(len(pages))
	pageRank := make(map[string]float64, len(pages))
	for _, p := range pages {
		pageRank[p.URL] = 1.0 / pageCount
	}

	// Iterate PageRank calculation
	for i := 0; i < iterations; i++ {
		// Rank held by pages without outbound links is spread evenly
		dangling := 0.0
		for _, p := range pages {
			if len(linkGraph[p.URL]) == 0 {
				dangling += pageRank[p.URL]
			}
		}

		newPageRank := make(map[string]float64, len(pages))
		for _, p := range pages {
			rank := (1.0-dampingFactor)/pageCount + dampingFactor*dangling/pageCount
			for _, inbound := range inboundLinks[p.URL] {
				rank += dampingFactor * pageRank[inbound] / float64(len(linkGraph[inbound]))
			}
			newPageRank[p.URL] = rank
		}
		pageRank = newPageRank
	}

	for _, p := range pages {
		p.pageRank = pageRank[p.URL]
		p.inbound = len(inboundLinks[p.URL])
	}
}

func (a *Analyzer) topPages(pages []*page) []models.RankedPage {
	ranked := make([]*page, len(pages))
	copy(ranked, pages)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].pageRank != ranked[j].pageRank {
			return ranked[i].pageRank > ranked[j].pageRank
		}
		return ranked[i].URL < ranked[j].URL
	})

	limit := a.config.TopPages
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	top := make([]models.RankedPage, 0, limit)
	for _, p := range ranked[:limit] {
		top = append(top, models.RankedPage{URL: p.URL, Title: p.Title, PageRank: p.pageRank, Inbound: p.inbound})
	}
	return top
}

// analyzeContent evaluates content quality
func (a *Analyzer) analyzeContent(pages []*page) float64 {
	score := 0.0
	factors := 0

	for _, p := range pages {
		// Check title
		titleLen := len([]rune(p.Title))
		if titleLen > 0 && titleLen <= 60 {
			score += 1.0
		} else if titleLen > 0 {
			score += 0.5
		}
		factors++

		// Check meta description
		descLen := len([]rune(p.Metadata["description"]))
		if descLen >= 120 && descLen <= 160 {
			score += 1.0
		} else if descLen > 0 {
			score += 0.5
		}
		factors++

		// Check content length
		if p.words >= 300 {
			score += 1.0
		} else if p.words >= 100 {
			score += 0.5
		}
		factors++
	}

	if factors == 0 {
		return 0
	}
	return (score / float64(factors)) * 100
}

// analyzeStructure evaluates titles, image alt text and internal linking
func (a *Analyzer) analyzeStructure(pages []*page) float64 {
	score := 0.0
	factors := 0

	// Unique titles
	titles := make(map[string]int)
	for _, p := range pages {
		titles[p.Title]++
	}
	duplicated := 0
	for _, p := range pages {
		if titles[p.Title] > 1 {
			duplicated++
		}
	}
	score += 1.0 - float64(duplicated)/float64(len(pages))
	factors++

	// Images with alt text
	images, withAlt := 0, 0
	for _, p := range pages {
		for _, img := range p.Images {
			images++
			if strings.TrimSpace(img.Alt) != "" {
				withAlt++
			}
		}
	}
	if images > 0 {
		score += float64(withAlt) / float64(images)
		factors++
	}

	// Pages reachable through at least one saved page
	if len(pages) > 1 {
		linked := 0
		for _, p := range pages {
			if p.inbound > 0 {
				linked++
			}
		}
		score += float64(linked) / float64(len(pages))
		factors++
	}

	return (score / float64(factors)) * 100
}

// calculateOverallScore computes the weighted average of all scores
func (a *Analyzer) calculateOverallScore(scores models.Scores) float64 {
	weights := map[string]float64{
		"content":   0.5,
		"structure": 0.5,
	}
	return scores.Content*weights["content"] + scores.Structure*weights["structure"]
}

var severityOrder = map[string]int{"critical": 0, "high": 1, "medium": 2, "low": 3}

// generateFindings creates a list of content and crawl findings
func (a *Analyzer) generateFindings(pages []*page, report *models.CrawlReport) []models.Finding {
	findings := []models.Finding{}

	addPages := func(category, kind, severity, format string, urls []string) {
		if len(urls) == 0 {
			return
		}
		findings = append(findings, models.Finding{
			Category:    category,
			Type:        kind,
			Description: fmt.Sprintf(format, len(urls)),
			Severity:    severity,
			URLs:        urls,
		})
	}

	var missingTitle, missingDesc, thin, noAlt, orphans []string
	for _, p := range pages {
		if strings.TrimSpace(p.Title) == "" {
			missingTitle = append(missingTitle, p.URL)
		}
		if p.Metadata["description"] == "" {
			missingDesc = append(missingDesc, p.URL)
		}
		if p.words < 100 {
			thin = append(thin, p.URL)
		}
		for _, img := range p.Images {
			if strings.TrimSpace(img.Alt) == "" {
				noAlt = append(noAlt, p.URL)
				break
			}
		}
		if len(pages) > 1 && p.inbound == 0 && (report == nil || p.URL != report.Seed) {
			orphans = append(orphans, p.URL)
		}
	}

	addPages("Content", "Missing Title", "high", "%d pages have no title", missingTitle)
	addPages("Content", "Missing Meta Descriptions", "medium", "%d pages lack meta descriptions", missingDesc)
	addPages("Content", "Thin Content", "medium", "%d pages have less than 100 words", thin)
	addPages("Accessibility", "Images Without Alt", "low", "%d pages have images without alt text", noAlt)
	addPages("Structure", "Orphan Pages", "low", "%d pages are not linked from any other saved page", orphans)

	// Check for duplicate titles
	titles := make(map[string][]string)
	for _, p := range pages {
		if p.Title != "" {
			titles[p.Title] = append(titles[p.Title], p.URL)
		}
	}
	for title, urls := range titles {
		if len(urls) > 1 {
			findings = append(findings, models.Finding{
				Category:    "Structure",
				Type:        "Duplicate Title",
				Description: fmt.Sprintf("Title '%s' used on %d pages", title, len(urls)),
				Severity:    "high",
				URLs:        urls,
			})
		}
	}

	if report != nil {
		byKind := make(map[models.FailureKind][]string)
		for _, f := range report.Failures {
			byKind[f.Kind] = append(byKind[f.Kind], f.URL)
		}
		for kind, urls := range byKind {
			findings = append(findings, models.Finding{
				Category:    "Crawl",
				Type:        string(kind),
				Description: fmt.Sprintf("%d URLs failed with %s", len(urls), kind),
				Severity:    "high",
				URLs:        urls,
			})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		si, sj := severityOrder[findings[i].Severity], severityOrder[findings[j].Severity]
		if si != sj {
			return si < sj
		}
		if findings[i].Type != findings[j].Type {
			return findings[i].Type < findings[j].Type
		}
		return findings[i].Description < findings[j].Description
	})
	return findings
}

// generateRecommendations creates actionable recommendations based on findings.
// Each finding type yields at most one recommendation.
func (a *Analyzer) generateRecommendations(findings []models.Finding) []models.Recommendation {
	recommendations := []models.Recommendation{}
	seen := make(map[string]bool)

	for _, finding := range findings {
		if seen[finding.Type] {
			continue
		}
		seen[finding.Type] = true

		var rec models.Recommendation
		switch finding.Type {
		case "Missing Title":
			rec = models.Recommendation{
				Priority:    "high",
				Category:    "Content",
				Action:      "Add page titles",
				Impact:      "high",
				Effort:      "low",
				Description: "Give every page a descriptive <title>",
			}
		case "Missing Meta Descriptions":
			rec = models.Recommendation{
				Priority:    "high",
				Category:    "Content",
				Action:      "Add unique meta descriptions",
				Impact:      "high",
				Effort:      "low",
				Description: "Write unique, compelling meta descriptions (120-160 characters) for all pages",
			}
		case "Duplicate Title":
			rec = models.Recommendation{
				Priority:    "critical",
				Category:    "Structure",
				Action:      "Fix duplicate titles",
				Impact:      "high",
				Effort:      "low",
				Description: "Ensure each page has a unique, descriptive title tag",
			}
		case "Thin Content":
			rec = models.Recommendation{
				Priority:    "medium",
				Category:    "Content",
				Action:      "Expand content",
				Impact:      "medium",
				Effort:      "medium",
				Description: "Add more valuable, relevant content to pages with less than 300 words",
			}
		case "Images Without Alt":
			rec = models.Recommendation{
				Priority:    "medium",
				Category:    "Accessibility",
				Action:      "Describe images",
				Impact:      "medium",
				Effort:      "low",
				Description: "Add alt text to every meaningful image",
			}
		case "Orphan Pages":
			rec = models.Recommendation{
				Priority:    "low",
				Category:    "Structure",
				Action:      "Link orphan pages",
				Impact:      "medium",
				Effort:      "medium",
				Description: "Link pages that no other page points to from related content or navigation",
			}
		case string(models.FailureFetch), string(models.FailureExtraction):
			rec = models.Recommendation{
				Priority:    "high",
				Category:    "Crawl",
				Action:      "Fix unreachable pages",
				Impact:      "high",
				Effort:      "medium",
				Description: "Repair or remove links to pages that fail to load or are not HTML",
			}
		default:
			continue
		}
		if seen["rec:"+rec.Action] {
			continue
		}
		seen["rec:"+rec.Action] = true
		recommendations = append(recommendations, rec)
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		return severityOrder[recommendations[i].Priority] < severityOrder[recommendations[j].Priority]
	})
	return recommendations
}

// generateSummary creates a high-level summary
func (a *Analyzer) generateSummary(analysis *models.SiteAnalysis) models.Summary {
	summary := models.Summary{
		Score:         analysis.Scores.Overall,
		Strengths:     []string{},
		Weaknesses:    []string{},
		TopPriorities: []string{},
	}

	// Determine grade
	switch {
	case summary.Score >= 90:
		summary.Grade = "A"
	case summary.Score >= 80:
		summary.Grade = "B"
	case summary.Score >= 70:
		summary.Grade = "C"
	case summary.Score >= 60:
		summary.Grade = "D"
	default:
		summary.Grade = "F"
	}

	// Identify strengths and weaknesses
	if analysis.Scores.Content >= 80 {
		summary.Strengths = append(summary.Strengths, "High-quality content")
	}
	if analysis.Scores.Structure >= 80 {
		summary.Strengths = append(summary.Strengths, "Well-linked site structure")
	}
	if analysis.Scores.Content < 60 {
		summary.Weaknesses = append(summary.Weaknesses, "Content needs attention")
	}
	if analysis.Scores.Structure < 60 {
		summary.Weaknesses = append(summary.Weaknesses, "Site structure needs attention")
	}

	// Top priorities
	for i, rec := range analysis.Recommendations {
		if i >= 3 {
			break
		}
		summary.TopPriorities = append(summary.TopPriorities, rec.Action)
	}

	return summary
}

// pageText joins the text of the top-level content nodes
func pageText(r *models.PageRecord) string {
	parts := make([]string, 0, len(r.Content))
	for _, node := range r.Content {
		if node.Text != "" {
			parts = append(parts, node.Text)
		}
	}
	return strings.Join(parts, " ")
}

// getPathType returns the first path segment of rawURL, e.g. "/surah"
func getPathType(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "/"
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 0 && segments[0] != "" {
		return "/" + segments[0]
	}
	return "/"
}

func siteDomain(pages []*page, report *models.CrawlReport) string {
	if report != nil && report.BaseDomain != "" {
		return report.BaseDomain
	}
	host, _ := urlnorm.Host(pages[0].URL)
	return host
}
