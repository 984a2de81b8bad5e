// Package converter turns saved HTML snapshots into plain-text JSON documents.
package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"

	"github.com/amosWeiskopf/sitescribe/pkg/extractor"
	"github.com/amosWeiskopf/sitescribe/pkg/storage"
)

// OutputDir is the subdirectory converted documents are written to.
const OutputDir = "json"

// Document is the converted form of one HTML snapshot.
type Document struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Options controls conversion.
type Options struct {
	// FullText keeps every text node of the page instead of the main content
	// found by trafilatura.
	FullText bool
	Logger   *slog.Logger
}

// Converter converts the snapshots of one crawl output directory.
type Converter struct {
	dir    string
	opts   Options
	logger *slog.Logger
}

// New creates a converter for the crawl output in dir.
func New(dir string, opts Options) *Converter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{dir: dir, opts: opts, logger: logger}
}

// Result summarises a conversion run.
type Result struct {
	Converted int
	Failed    map[string]string
}

// Run converts every .html file in the snapshot directory (or in the output
// directory itself when there is no snapshot directory) into dir/json.
// A file that cannot be converted is reported in Result.Failed.
func (c *Converter) Run(ctx context.Context) (*Result, error) {
	source := filepath.Join(c.dir, storage.HTMLDir)
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		source = c.dir
	}

	entries, err := os.ReadDir(source)
	if err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".html") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	outDir := filepath.Join(c.dir, OutputDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	result := &Result{Failed: make(map[string]string)}
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := c.convertFile(filepath.Join(source, name), outDir); err != nil {
			c.logger.Warn("conversion failed", "file", name, "error", err)
			result.Failed[name] = err.Error()
			continue
		}
		result.Converted++
	}

	c.logger.Info("conversion finished", "converted", result.Converted, "failed", len(result.Failed), "output", outDir)
	return result, nil
}

func (c *Converter) convertFile(path, outDir string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := c.Convert(body)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".json"
	return os.WriteFile(filepath.Join(outDir, name), data, 0o644)
}

// Convert extracts the title and text of an HTML document.
func (c *Converter) Convert(body []byte) (*Document, error) {
	dom, err := extractor.ParseHTML(body, "text/html")
	if err != nil {
		return nil, err
	}
	doc := &Document{Title: extractor.ExtractTitle(dom)}

	if !c.opts.FullText {
		res, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{EnableFallback: true})
		if err == nil && res != nil {
			doc.Text = strings.TrimSpace(res.ContentText)
			if doc.Title == "" {
				doc.Title = res.Metadata.Title
			}
		}
	}
	if doc.Text == "" {
		// Fall back to every text node when no main content was found.
		for _, n := range dom.Nodes {
			doc.Text = strings.Join(textNodes(n, nil), "\n")
		}
	}
	return doc, nil
}

func textNodes(n *html.Node, out []string) []string {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
		return out
	}
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			out = append(out, text)
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		out = textNodes(child, out)
	}
	return out
}
