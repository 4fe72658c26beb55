package convert

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/xuri/excelize/v2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LocalExtractor converts the direct family in-process.
type LocalExtractor struct{}

// NewLocalExtractor returns a LocalExtractor.
func NewLocalExtractor() *LocalExtractor {
	return &LocalExtractor{}
}

// Extract dispatches on ext.
func (LocalExtractor) Extract(_ context.Context, data []byte, ext string) (string, error) {
	switch NormalizeExtension(ext) {
	case "txt":
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	case "html", "htm":
		return htmlToMarkdown(data)
	case "xlsx":
		return xlsxToMarkdown(data)
	case "docx":
		return docxToMarkdown(data)
	case "pptx":
		return pptxToMarkdown(data)
	default:
		return "", fmt.Errorf("unsupported extension %q", ext)
	}
}

func htmlToMarkdown(data []byte) (string, error) {
	md, err := htmltomarkdown.ConvertString(string(bytes.TrimPrefix(data, utf8BOM)))
	if err != nil {
		return "", fmt.Errorf("html to markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// xlsxToMarkdown renders every sheet as a heading followed by a table whose
// first row is the header.
func xlsxToMarkdown(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sections []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		section := "## " + sheet
		if table := markdownTable(rows); table != "" {
			section += "\n\n" + table
		}
		sections = append(sections, section)
	}
	return strings.Join(sections, "\n\n"), nil
}

func markdownTable(rows [][]string) string {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	if width == 0 {
		return ""
	}
	line := func(cells []string) string {
		out := make([]string, width)
		for i := range out {
			if i < len(cells) {
				out[i] = escapeCell(cells[i])
			}
		}
		return "| " + strings.Join(out, " | ") + " |"
	}
	sep := make([]string, width)
	for i := range sep {
		sep[i] = "---"
	}
	lines := []string{line(rows[0]), line(sep)}
	for _, row := range rows[1:] {
		lines = append(lines, line(row))
	}
	return strings.Join(lines, "\n")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
