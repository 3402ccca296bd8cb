package csv

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// NewlinePolicy decides what happens to CR/LF characters embedded in a field.
type NewlinePolicy string

const (
	// NewlineKeep leaves line breaks inside the quoted field.
	NewlineKeep NewlinePolicy = "keep"
	// NewlineStrip removes them.
	NewlineStrip NewlinePolicy = "strip"
	// NewlineEscape replaces them with the two-character sequences \n and \r.
	NewlineEscape NewlinePolicy = "escape"
)

var validNewlinePolicies = []NewlinePolicy{NewlineKeep, NewlineStrip, NewlineEscape}

func ParseNewlinePolicy(s string) (NewlinePolicy, error) {
	for _, p := range validNewlinePolicies {
		if strings.EqualFold(s, string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid newline policy %q. Valid policies = %v", s, validNewlinePolicies)
}

// Writer writes records where every field is quoted, regardless of content.
type Writer struct {
	Delimiter      byte
	QuoteChar      byte
	EscapeChar     byte
	LineTerminator string
	Newlines       NewlinePolicy

	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		Delimiter:      ',',
		QuoteChar:      '"',
		EscapeChar:     '"',
		LineTerminator: "\r\n",
		Newlines:       NewlineKeep,
		w:              bufio.NewWriter(w),
	}
}

func (w *Writer) Write(record []string) error {
	for i, field := range record {
		if i > 0 {
			if err := w.w.WriteByte(w.Delimiter); err != nil {
				return err
			}
		}
		if err := w.writeField(field); err != nil {
			return err
		}
	}
	_, err := w.w.WriteString(w.LineTerminator)
	return err
}

func (w *Writer) writeField(field string) error {
	field = w.applyNewlinePolicy(field)
	if err := w.w.WriteByte(w.QuoteChar); err != nil {
		return err
	}
	for {
		i := strings.IndexByte(field, w.QuoteChar)
		if i < 0 {
			break
		}
		if _, err := w.w.WriteString(field[:i]); err != nil {
			return err
		}
		if err := w.w.WriteByte(w.EscapeChar); err != nil {
			return err
		}
		if err := w.w.WriteByte(w.QuoteChar); err != nil {
			return err
		}
		field = field[i+1:]
	}
	if _, err := w.w.WriteString(field); err != nil {
		return err
	}
	return w.w.WriteByte(w.QuoteChar)
}

func (w *Writer) applyNewlinePolicy(field string) string {
	if !strings.ContainsAny(field, "\r\n") {
		return field
	}
	switch w.Newlines {
	case NewlineStrip:
		return strings.NewReplacer("\r", "", "\n", "").Replace(field)
	case NewlineEscape:
		return strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(field)
	default:
		return field
	}
}

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
