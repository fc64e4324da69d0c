package parser

import (
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/documentloaders"
)

const (
	FormatCSV  = ".csv"
	FormatPDF  = ".pdf"
	FormatDOCX = ".docx"
	FormatTXT  = ".txt"
)

type extractFunc func(filePath string) (string, error)

var extractors = map[string]extractFunc{
	FormatCSV:  parseCSV,
	FormatPDF:  parsePDF,
	FormatDOCX: parseDOCX,
	FormatTXT:  parseText,
}

// Supported reports whether the file extension has an extractor.
func Supported(filePath string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(filePath))]
	return ok
}

// Extract converts the file at filePath to plain text, choosing the reader by
// extension. A reader failure is logged and reported as an *ExtractionError
// together with empty text.
func Extract(filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	extract, ok := extractors[ext]
	if !ok {
		return "", &UnsupportedFormatError{Ext: ext}
	}

	text, err := safeExtract(extract, filePath)
	if err != nil {
		log.Warn().Err(err).Str("file", filePath).Str("format", ext).Msg("Error extracting text")
		return "", &ExtractionError{Path: filePath, Format: strings.TrimPrefix(ext, "."), Err: err}
	}

	log.Debug().Str("file", filePath).Int("chars", len([]rune(text))).Msg("Extracted text")
	return text, nil
}

// safeExtract turns a panic inside a third-party reader into an error.
func safeExtract(extract extractFunc, filePath string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("reader panic: %v", r)
		}
	}()
	return extract(filePath)
}

// parseCSV renders every record as "Row N: col is val, col is val."
func parseCSV(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	headers, err := csv.NewReader(f).Read()
	if err == io.EOF {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	docs, err := documentloaders.NewCSV(f).Load(context.Background())
	if err != nil {
		return "", err
	}

	rows := make([]string, 0, len(docs))
	for i, doc := range docs {
		rows = append(rows, fmt.Sprintf("Row %d: %s.", i+1, strings.Join(csvFields(doc.PageContent, headers), ", ")))
	}
	return strings.Join(rows, "\n"), nil
}

// csvFields turns the loader's "header: value" lines into "header is value".
// The loader writes one line per column in header order, so a field ends
// only where the next column's "header: " starts a line. Anything else,
// including a ": " inside a multi-line value, stays part of the value.
func csvFields(content string, headers []string) []string {
	fields := make([]string, 0, len(headers))
	rest := content
	for i, header := range headers {
		rest = strings.TrimPrefix(rest, header+": ")
		value := rest
		if i+1 < len(headers) {
			if idx := strings.Index(rest, "\n"+headers[i+1]+": "); idx >= 0 {
				value, rest = rest[:idx], rest[idx+1:]
			} else {
				rest = ""
			}
		}
		fields = append(fields, header+" is "+value)
	}
	return fields
}

func parsePDF(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", err
	}

	var text strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		text.WriteString(pageText)
	}
	return text.String(), nil
}

func parseDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	paragraphs, err := docxParagraphs(r.Editable().GetContent())
	if err != nil {
		return "", err
	}
	return strings.Join(paragraphs, "\n"), nil
}

// docxParagraphs walks word/document.xml and returns the text of every <w:p>.
func docxParagraphs(documentXML string) ([]string, error) {
	const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

	dec := xml.NewDecoder(strings.NewReader(documentXML))
	var (
		paragraphs []string
		current    strings.Builder
		inPara     bool
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS && t.Name.Space != "w" {
				continue
			}
			switch t.Name.Local {
			case "p":
				inPara = true
				current.Reset()
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			case "br", "cr":
				current.WriteString("\n")
			}
		case xml.EndElement:
			if t.Name.Space != wordNS && t.Name.Space != "w" {
				continue
			}
			switch t.Name.Local {
			case "p":
				if inPara {
					paragraphs = append(paragraphs, current.String())
				}
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}

func parseText(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	docs, err := documentloaders.NewText(f).Load(context.Background())
	if err != nil {
		return "", err
	}
	var text strings.Builder
	for _, doc := range docs {
		text.WriteString(doc.PageContent)
	}
	return text.String(), nil
}
