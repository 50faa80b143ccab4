// Package document converts fetched bodies into RawDocuments: plain text
// plus cell grids for every table, which is all the extraction engine wants.
package document

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"github.com/orefield/specharvest/internal/specs"
)

// Parse dispatches on content type. PDF detection prefers the Content-Type
// header but falls back to the URL path, since plenty of servers ship PDFs
// as application/octet-stream.
func Parse(rawURL, contentType string, body []byte, fetchedAt time.Time) (specs.RawDocument, error) {
	if isPDF(rawURL, contentType, body) {
		return ParsePDF(rawURL, body, fetchedAt)
	}
	return ParseHTML(rawURL, body, fetchedAt)
}

func isPDF(rawURL, contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	if parsed, err := url.Parse(rawURL); err == nil &&
		strings.HasSuffix(strings.ToLower(parsed.Path), ".pdf") {
		return true
	}
	return bytes.HasPrefix(body, []byte("%PDF-"))
}

// ParseHTML extracts visible text and all tables from an HTML body.
func ParseHTML(rawURL string, body []byte, fetchedAt time.Time) (specs.RawDocument, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return specs.RawDocument{}, fmt.Errorf("parsing html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	var tables []specs.Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		var table specs.Table
		sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var row []string
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				row = append(row, collapseSpace(cell.Text()))
			})
			if len(row) > 0 {
				table = append(table, row)
			}
		})
		if len(table) > 0 {
			tables = append(tables, table)
		}
	})

	text := collapseSpace(doc.Find("body").Text())
	if text == "" {
		text = collapseSpace(doc.Text())
	}

	return specs.RawDocument{
		URL:          rawURL,
		ContentType:  specs.ContentTypeHTML,
		Text:         text,
		Tables:       tables,
		FetchedAt:    fetchedAt,
		SourceDomain: DomainOf(rawURL),
	}, nil
}

// ParsePDF extracts plain text from a PDF body. PDF table structure does not
// survive text extraction; rimpull grids in PDFs are caught by the prose
// patterns instead.
func ParsePDF(rawURL string, body []byte, fetchedAt time.Time) (specs.RawDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return specs.RawDocument{}, fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return specs.RawDocument{}, fmt.Errorf("extracting pdf text: %w", err)
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return specs.RawDocument{}, fmt.Errorf("reading pdf text: %w", err)
	}

	return specs.RawDocument{
		URL:          rawURL,
		ContentType:  specs.ContentTypePDF,
		Text:         collapseSpace(string(text)),
		FetchedAt:    fetchedAt,
		SourceDomain: DomainOf(rawURL),
	}, nil
}

// DomainOf returns the lower-cased registrable host of a URL, without www.
func DomainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// collapseSpace flattens runs of whitespace into single spaces but keeps
// line breaks, which the prose patterns rely on as soft boundaries.
func collapseSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned := strings.Join(strings.Fields(line), " ")
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return strings.Join(out, "\n")
}
