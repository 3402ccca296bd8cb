package csv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// Reader reads records written by Writer: quoted or bare fields, quotes
// escaped by EscapeChar, records ended by LF or CRLF outside quotes.
type Reader struct {
	Delimiter  byte
	QuoteChar  byte
	EscapeChar byte

	r    *bufio.Reader
	line int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{Delimiter: ',', QuoteChar: '"', EscapeChar: '"', r: bufio.NewReader(r)}
}

var errUnterminatedQuote = errors.New("unterminated quoted field")

// Read returns the next record. Blank lines are skipped. io.EOF is returned
// once no record is left.
func (r *Reader) Read() ([]string, error) {
retry:
	r.line++
	var fields []string
	var field []byte
	quoted := false
	started := false
	for {
		b, err := r.r.ReadByte()
		if err == io.EOF {
			if quoted {
				return nil, fmt.Errorf("line %d: %w", r.line, errUnterminatedQuote)
			}
			if !started {
				return nil, io.EOF
			}
			return append(fields, string(field)), nil
		}
		if err != nil {
			return nil, err
		}
		if quoted {
			if b == r.EscapeChar && r.EscapeChar != r.QuoteChar {
				next, err := r.r.ReadByte()
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", r.line, errUnterminatedQuote)
				}
				field = append(field, next)
				continue
			}
			if b == r.QuoteChar {
				// A doubled quote is an escaped quote.
				next, err := r.r.Peek(1)
				if r.EscapeChar == r.QuoteChar && err == nil && next[0] == r.QuoteChar {
					_, _ = r.r.ReadByte()
					field = append(field, r.QuoteChar)
					continue
				}
				quoted = false
				continue
			}
			field = append(field, b)
			continue
		}
		switch b {
		case r.QuoteChar:
			quoted = true
			started = true
		case r.Delimiter:
			fields = append(fields, string(field))
			field = field[:0]
			started = true
		case '\r':
			// dropped; part of a CRLF terminator
		case '\n':
			if !started && len(field) == 0 {
				goto retry // Skip empty lines.
			}
			return append(fields, string(field)), nil
		default:
			field = append(field, b)
			started = true
		}
	}
}

// ReadHeaderFile returns the first record of fileName, or nil if the file is
// empty. A zero delimiter means ','.
func ReadHeaderFile(fileName string, delimiter byte) ([]string, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("error opening file %s: %v", fileName, err)
	}
	defer f.Close()
	r := NewReader(f)
	if delimiter != 0 {
		r.Delimiter = delimiter
	}
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", fileName, err)
	}
	return header, nil
}
