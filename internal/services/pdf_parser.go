package services

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const DefaultMaxResumeRunes = 50000

var ErrEmptyResume = errors.New("no text content found in resume")

type ResumeParser interface {
	// ExtractText returns the cleaned text of a PDF resume, bounded to the
	// configured number of runes.
	ExtractText(data []byte) (string, error)
}

type pdfResumeParser struct {
	maxRunes int
}

func NewPDFResumeParser(maxRunes int) ResumeParser {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxResumeRunes
	}
	return &pdfResumeParser{maxRunes: maxRunes}
}

func (p *pdfResumeParser) ExtractText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyResume
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var textBuilder strings.Builder
	totalPage := r.NumPage()

	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// unreadable pages are skipped
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n\n")
	}

	text := CleanText(textBuilder.String())
	if text == "" {
		return "", ErrEmptyResume
	}
	return BoundResume(text, p.maxRunes), nil
}

// BoundResume cuts text to at most maxRunes runes.
func BoundResume(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	return string([]rune(text)[:maxRunes])
}

// CleanText trims every line and drops blank ones.
func CleanText(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var cleanedLines []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanedLines = append(cleanedLines, line)
		}
	}

	return strings.Join(cleanedLines, "\n")
}
