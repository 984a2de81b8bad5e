// Package extractor turns a fetched HTML document into a structured page
// record: title, metadata, the body content tree, text-bearing elements,
// images and same-site links.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/amosWeiskopf/sitescribe/internal/models"
	"github.com/amosWeiskopf/sitescribe/pkg/urlnorm"
	"github.com/amosWeiskopf/sitescribe/pkg/utils"
)

// ErrExtraction is returned when a document cannot be turned into a record.
var ErrExtraction = errors.New("extraction failed")

var webpageMIMEs = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
	"application/xhtml":     true,
	"text/xml":              true,
	"application/xml":       true,
}

// Extractor handles content extraction from HTML
type Extractor struct {
	now func() time.Time
}

// New creates a new Extractor instance
func New() *Extractor {
	return &Extractor{now: time.Now}
}

// Extract parses doc and returns its page record together with every raw href
// found on the page, in document order. The record's Links holds the sorted
// set of canonical links that stay on the page's host.
func (e *Extractor) Extract(doc *models.RawDocument, pageURL string) (*models.PageRecord, []string, error) {
	if doc == nil {
		return nil, nil, fmt.Errorf("%w: %s: no document", ErrExtraction, pageURL)
	}
	if !isWebpageMIME(doc.ContentType) {
		return nil, nil, fmt.Errorf("%w: %s: unsupported content type %q", ErrExtraction, pageURL, doc.ContentType)
	}

	dom, err := ParseHTML(doc.Body, doc.ContentType)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrExtraction, pageURL, err)
	}

	hrefs := ExtractHrefs(dom)
	record := &models.PageRecord{
		URL:       pageURL,
		Title:     ExtractTitle(dom),
		Metadata:  ExtractMetadata(dom),
		Content:   ExtractContent(dom),
		Verses:    ExtractVerses(dom),
		Images:    ExtractImages(dom, pageURL),
		Links:     internalLinks(hrefs, pageURL),
		Timestamp: e.now().UTC().Format(models.TimestampLayout),
	}
	return record, hrefs, nil
}

// ExtractTitle returns the trimmed text of the first <title>.
func ExtractTitle(dom *goquery.Document) string {
	return strings.TrimSpace(dom.Find("title").First().Text())
}

// ExtractMetadata maps the name, property or itemprop of every <meta> tag that
// has content to that content. Keys are lowercased; later tags win.
func ExtractMetadata(dom *goquery.Document) map[string]string {
	meta := make(map[string]string)
	dom.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name := firstAttr(s, "name", "property", "itemprop")
		content, _ := s.Attr("content")
		if name != "" && content != "" {
			meta[strings.ToLower(name)] = content
		}
	})
	return meta
}

// ExtractContent returns the element tree under <body>.
func ExtractContent(dom *goquery.Document) []models.ContentNode {
	body := dom.Find("body").First()
	if body.Length() == 0 {
		return []models.ContentNode{}
	}
	return contentNodes(body)
}

func contentNodes(parent *goquery.Selection) []models.ContentNode {
	children := parent.Children()
	nodes := make([]models.ContentNode, 0, children.Length())
	children.Each(func(_ int, child *goquery.Selection) {
		node := models.ContentNode{
			Type:       goquery.NodeName(child),
			Text:       utils.CleanText(child.Text()),
			Attributes: attributes(child),
		}
		if child.Children().Length() > 0 {
			node.Children = contentNodes(child)
		}
		nodes = append(nodes, node)
	})
	return nodes
}

// ExtractVerses returns every element except script and style whose text is
// not blank, in document order.
func ExtractVerses(dom *goquery.Document) []models.Verse {
	verses := []models.Verse{}
	dom.Find("*").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "script", "style":
			return
		}
		text := utils.CleanText(s.Text())
		if text == "" {
			return
		}
		verses = append(verses, models.Verse{Text: text, Attributes: attributes(s)})
	})
	return verses
}

// ExtractImages returns every <img> with a src or data-src, resolved against
// pageURL.
func ExtractImages(dom *goquery.Document, pageURL string) []models.Image {
	images := []models.Image{}
	dom.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := firstAttr(s, "src", "data-src")
		if src == "" {
			return
		}
		resolved, err := urlnorm.Resolve(src, pageURL)
		if err != nil {
			return
		}
		alt, _ := s.Attr("alt")
		images = append(images, models.Image{
			URL:    resolved,
			Alt:    alt,
			Width:  optionalAttr(s, "width"),
			Height: optionalAttr(s, "height"),
		})
	})
	return images
}

// ExtractHrefs returns the href of every <a>, in document order.
func ExtractHrefs(dom *goquery.Document) []string {
	hrefs := []string{}
	dom.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		hrefs = append(hrefs, href)
	})
	return hrefs
}

func internalLinks(hrefs []string, pageURL string) []string {
	host, err := urlnorm.Host(pageURL)
	if err != nil {
		return []string{}
	}
	seen := make(map[string]struct{}, len(hrefs))
	links := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		canonical, err := urlnorm.Normalize(href, pageURL)
		if err != nil || !urlnorm.IsSameDomain(canonical, host) {
			continue
		}
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		links = append(links, canonical)
	}
	sort.Strings(links)
	return links
}

func attributes(s *goquery.Selection) models.Attributes {
	attrs := models.Attributes{Classes: []string{}}
	if id, ok := s.Attr("id"); ok {
		attrs.ID = &id
	}
	if class, ok := s.Attr("class"); ok {
		attrs.Classes = append(attrs.Classes, strings.Fields(class)...)
	}
	return attrs
}

// firstAttr returns the first non-empty value among the named attributes.
func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := s.Attr(name); ok && v != "" {
			return v
		}
	}
	return ""
}

func optionalAttr(s *goquery.Selection, name string) *string {
	v, ok := s.Attr(name)
	if !ok {
		return nil
	}
	return &v
}

// isWebpageMIME accepts HTML and XML documents. A missing content type is
// given the benefit of the doubt.
func isWebpageMIME(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(strings.ToLower(contentType), ";")[0])
	}
	return webpageMIMEs[mediaType]
}

// ParseHTML parses body as HTML after charset decoding. It is shared with the
// converter, which works from saved snapshots.
func ParseHTML(body []byte, contentType string) (*goquery.Document, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	node, err := html.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return goquery.NewDocumentFromNode(node), nil
}
