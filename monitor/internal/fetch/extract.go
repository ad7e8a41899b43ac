package fetch

import (
	"fmt"
	neturl "net/url"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// Extraction is the readable content pulled out of raw page markup.
type Extraction struct {
	Title string
	HTML  string // sanitized readable HTML
	Text  string // markdown rendition used for diffing
}

var (
	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	sanitizer    = bluemonday.UGCPolicy()
	reWhitespace = regexp.MustCompile(`[ \t]+`)
	reBlankLines = regexp.MustCompile(`\n{3,}`)
)

// Extract runs readability over the raw markup, sanitizes the readable HTML,
// and renders it to markdown. The markdown form is stable across cosmetic
// markup changes, which keeps diff noise down.
func Extract(rawHTML, pageURL string) (*Extraction, error) {
	parsed, err := neturl.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
	if err != nil {
		return nil, fmt.Errorf("readability: %w", err)
	}

	sanitized := sanitizer.Sanitize(article.Content)

	text := htmlToMarkdown(sanitized, pageURL)
	if text == "" {
		text = flattenHTML(sanitized)
	}
	if text == "" {
		text = strings.TrimSpace(article.TextContent)
	}

	return &Extraction{
		Title: article.Title,
		HTML:  sanitized,
		Text:  CleanText(text),
	}, nil
}

// htmlToMarkdown converts HTML to structured markdown. Returns "" on
// failure so the caller can fall back to plain text.
func htmlToMarkdown(html, sourceURL string) string {
	if html == "" {
		return ""
	}
	result, err := mdConverter.ConvertString(html, converter.WithDomain(sourceURL))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(result)
}

// flattenHTML extracts the visible text of an HTML fragment.
func flattenHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

// CleanText normalizes extracted text: collapses runs of spaces and tabs,
// trims line ends, and caps consecutive blank lines.
func CleanText(s string) string {
	s = reWhitespace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	s = strings.Join(lines, "\n")
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
