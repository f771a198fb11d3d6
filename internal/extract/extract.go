// Package extract pulls paged plain text out of uploaded documents.
package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"ragportal/pkg/domain"
)

// Page is the text of one document page. Numbers are 0-based.
type Page struct {
	Number int
	Text   string
}

// SupportedExt reports whether the file extension can be ingested.
func SupportedExt(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".epub", ".txt":
		return true
	default:
		return false
	}
}

// PagedText extracts per-page text from the file at path. The extension of
// filename decides the parser. Failures wrap domain.ErrExtraction.
func PagedText(filename, path string) ([]Page, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return pagedPDF(path)
	case ".epub":
		return pagedEPUB(path)
	case ".txt":
		return pagedTXT(path)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrValidation, filepath.Ext(filename))
	}
}

func pagedPDF(path string) (pages []Page, err error) {
	// The pdf library reports malformed cross-reference data by panicking
	// while resolving the page tree; only GetPlainText recovers internally.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: parse pdf: %v", domain.ErrExtraction, r)
		}
	}()

	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", domain.ErrExtraction, err)
	}
	defer file.Close()

	totalPages := reader.NumPage()
	pages = make([]Page, 0, totalPages)
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely.
			continue
		}
		text = Normalize(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i - 1, Text: text})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no text extracted from pdf", domain.ErrExtraction)
	}
	return pages, nil
}

// pagedEPUB treats each content section of the archive as one page, in
// archive path order.
func pagedEPUB(path string) ([]Page, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open epub: %v", domain.ErrExtraction, err)
	}
	defer reader.Close()

	files := make([]*zip.File, 0, len(reader.File))
	for _, file := range reader.File {
		name := strings.ToLower(file.Name)
		if strings.HasSuffix(name, ".xhtml") || strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".htm") {
			files = append(files, file)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var pages []Page
	for _, file := range files {
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: read epub section: %v", domain.ErrExtraction, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read epub content: %v", domain.ErrExtraction, err)
		}
		doc, err := html.Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: parse epub html: %v", domain.ErrExtraction, err)
		}
		text := Normalize(htmlText(doc))
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: len(pages), Text: text})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no text extracted from epub", domain.ErrExtraction)
	}
	return pages, nil
}

func pagedTXT(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read file: %v", domain.ErrExtraction, err)
	}
	text := Normalize(string(data))
	if text == "" {
		return nil, fmt.Errorf("%w: file contains no text", domain.ErrExtraction)
	}
	return []Page{{Number: 0, Text: text}}, nil
}

// Runes dropped outright during normalization: BOM, zero-width space,
// word joiner and soft hyphen.
func dropped(r rune) bool {
	switch r {
	case '\ufeff', '\u200b', '\u2060', '\u00ad':
		return true
	}
	return false
}

// Normalize strips byte-order marks, zero-width and control characters and
// collapses horizontal whitespace, while preserving line breaks so the
// chunker can still see paragraph and sentence boundaries.
func Normalize(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteRune('\n')
		case dropped(r):
		case unicode.IsControl(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	out := strings.Join(lines, "\n")
	out = collapseBlankLines(out)
	return strings.TrimSpace(out)
}

func collapseBlankLines(text string) string {
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text
}

func htmlText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && (node.Data == "p" || node.Data == "br" || node.Data == "div" || node.Data == "li") {
			buf.WriteString("\n")
		}
	}
	walk(n)
	return buf.String()
}
