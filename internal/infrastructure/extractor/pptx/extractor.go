package pptx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const (
	slidePrefix = "ppt/slides/slide"
	slideSuffix = ".xml"
)

// Extractor pulls text runs out of the slide parts of a PPTX archive, in
// slide order.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}

	slides := make([]*zip.File, 0, len(r.File))
	for _, f := range r.File {
		if slideNumber(f.Name) > 0 {
			slides = append(slides, f)
		}
	}
	if len(slides) == 0 {
		return "", errors.New("no slide parts found in archive")
	}
	sort.Slice(slides, func(i, j int) bool {
		return slideNumber(slides[i].Name) < slideNumber(slides[j].Name)
	})

	var out strings.Builder
	for _, f := range slides {
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		text, err := collectSlideText(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", f.Name, err)
		}
		if text == "" {
			continue
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(text)
	}

	return out.String(), nil
}

// slideNumber returns the 1-based slide index for a slide part name, or 0 for
// any other archive entry. Numeric ordering matters: slide10 sorts after
// slide9, not after slide1.
func slideNumber(name string) int {
	if !strings.HasPrefix(name, slidePrefix) || !strings.HasSuffix(name, slideSuffix) {
		return 0
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, slidePrefix), slideSuffix)
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

// collectSlideText walks one DrawingML slide, flushing a line per a:p
// paragraph. Visible text lives in a:t elements.
func collectSlideText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var out strings.Builder
	var current strings.Builder
	var inTextRun bool

	flush := func() {
		line := strings.TrimSpace(current.String())
		current.Reset()
		if line == "" {
			return
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(line)
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inTextRun = true
			}
		case xml.CharData:
			if inTextRun {
				current.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inTextRun = false
				current.WriteByte(' ')
			case "p":
				flush()
			}
		}
	}
	flush()

	return out.String(), nil
}
