package convert

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
)

func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	return zr, nil
}

func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("part %s not found", name)
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// headingPrefix maps a paragraph style id such as "Heading2" or "Title" to a
// Markdown heading prefix.
func headingPrefix(style string) string {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	if s == "title" {
		return "# "
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(s, "heading")); err == nil && strings.HasPrefix(s, "heading") && n >= 1 {
		if n > 6 {
			n = 6
		}
		return strings.Repeat("#", n) + " "
	}
	return ""
}

// paragraphs walks WordprocessingML or DrawingML and returns the text of each
// paragraph element (local name "p") with the style found in its properties.
func paragraphs(part []byte) ([]*paragraph, error) {
	dec := xml.NewDecoder(bytes.NewReader(part))
	var (
		out     []*paragraph
		current *paragraph
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				current = &paragraph{}
			case "pStyle":
				if current != nil {
					current.style = attr(t, "val")
				}
			case "t":
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					return nil, fmt.Errorf("parse text run: %w", err)
				}
				if current != nil {
					current.text.WriteString(s)
				}
			case "tab":
				if current != nil {
					current.text.WriteString("\t")
				}
			case "br":
				if current != nil {
					current.text.WriteString("\n")
				}
			}
		case xml.EndElement:
			if t.Name.Local == "p" && current != nil {
				out = append(out, current)
				current = nil
			}
		}
	}
}

type paragraph struct {
	style string
	text  strings.Builder
}

func docxToMarkdown(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}
	part, err := readPart(zr, "word/document.xml")
	if err != nil {
		return "", err
	}
	paras, err := paragraphs(part)
	if err != nil {
		return "", err
	}
	var blocks []string
	for _, p := range paras {
		text := strings.TrimSpace(p.text.String())
		if text == "" {
			continue
		}
		blocks = append(blocks, headingPrefix(p.style)+text)
	}
	return strings.Join(blocks, "\n\n"), nil
}

func pptxToMarkdown(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}
	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		dir, base := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(base, "slide") || path.Ext(base) != ".xml" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, "slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{num: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var sections []string
	for i, s := range slides {
		part, err := readPart(zr, s.name)
		if err != nil {
			return "", err
		}
		paras, err := paragraphs(part)
		if err != nil {
			return "", fmt.Errorf("slide %d: %w", s.num, err)
		}
		section := fmt.Sprintf("## Slide %d", i+1)
		var lines []string
		for _, p := range paras {
			if text := strings.TrimSpace(p.text.String()); text != "" {
				lines = append(lines, text)
			}
		}
		if len(lines) > 0 {
			section += "\n\n" + strings.Join(lines, "\n")
		}
		sections = append(sections, section)
	}
	return strings.Join(sections, "\n\n"), nil
}
