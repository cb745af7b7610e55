package handlers

import (
	"bytes"
	"io"

	"github.com/ledongthuc/pdf"
)

// extractPDFText pulls the plain text out of an uploaded PDF resume.
func extractPDFText(ra io.ReaderAt, size int64) (string, error) {
	reader, err := pdf.NewReader(ra, size)
	if err != nil {
		return "", err
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return "", err
	}
	return buf.String(), nil
}
