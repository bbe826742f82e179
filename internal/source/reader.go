package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

const (
	// DefaultReadSize is the number of bytes pulled from the stream per read.
	DefaultReadSize = 64 * 1024
	// DefaultMaxQuotedSpan bounds how far a quoted cell may run past a line
	// break before the reader gives up on it.
	DefaultMaxQuotedSpan = 64 * 1024
)

type scanState int

const (
	stateFieldStart scanState = iota
	stateUnquoted
	stateQuoted
	stateQuoteInQuoted
)

// RecordReader splits a CSV byte stream into records without buffering the
// whole object. A newline ends a record only when it is outside a quoted
// field, so cells may carry embedded line breaks. The unfinished tail of a
// read is kept until the next read completes it.
//
// A quote that is never closed would otherwise swallow the rest of the
// object. Once a quoted span crosses a line break and then runs past
// maxQuoted bytes, or the stream ends while it is still open, the record is
// cut at the first line break inside the quote and scanning resumes from
// there as a fresh record.
//
// Records are converted to strings only once complete; a newline byte never
// occurs inside a multi-byte UTF-8 sequence, so characters are never split.
type RecordReader struct {
	r        io.Reader
	buf      []byte
	pending  []byte
	start    int
	scanPos  int
	state    scanState
	eof      bool
	consumed int64

	maxQuoted int
	// quoteNL is the offset in pending of the first line break seen inside
	// a quoted cell of the current record, or -1.
	quoteNL int
}

// NewRecordReader wraps r. A non-positive readSize selects DefaultReadSize.
func NewRecordReader(r io.Reader, readSize int) *RecordReader {
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	return &RecordReader{
		r:         r,
		buf:       make([]byte, readSize),
		maxQuoted: DefaultMaxQuotedSpan,
		quoteNL:   -1,
	}
}

// SetMaxQuotedSpan overrides DefaultMaxQuotedSpan. Non-positive values are
// ignored.
func (rr *RecordReader) SetMaxQuotedSpan(n int) {
	if n > 0 {
		rr.maxQuoted = n
	}
}

// Next returns the next record without its line terminator. When the stream
// ends, the trailing partial record (if any) is returned once, then io.EOF.
func (rr *RecordReader) Next() (string, error) {
	for {
		if rec, ok := rr.scan(); ok {
			return rec, nil
		}

		if rr.eof {
			if rr.state == stateQuoted && rr.quoteNL >= 0 {
				return rr.emit(rr.quoteNL), nil
			}
			if rr.start < len(rr.pending) {
				rec := trimCR(string(rr.pending[rr.start:]))
				rr.pending = rr.pending[:0]
				rr.start, rr.scanPos = 0, 0
				rr.state = stateFieldStart
				rr.quoteNL = -1
				return rec, nil
			}
			return "", io.EOF
		}

		if err := rr.fill(); err != nil {
			return "", err
		}
	}
}

// BytesRead reports how many bytes have been pulled from the stream so far.
func (rr *RecordReader) BytesRead() int64 {
	return rr.consumed
}

func (rr *RecordReader) scan() (string, bool) {
	for i := rr.scanPos; i < len(rr.pending); i++ {
		c := rr.pending[i]
		switch rr.state {
		case stateFieldStart:
			switch c {
			case '"':
				rr.state = stateQuoted
			case ',':
			case '\n':
				return rr.emit(i), true
			default:
				rr.state = stateUnquoted
			}
		case stateUnquoted:
			switch c {
			case ',':
				rr.state = stateFieldStart
			case '\n':
				return rr.emit(i), true
			}
		case stateQuoted:
			switch c {
			case '"':
				rr.state = stateQuoteInQuoted
			case '\n':
				if rr.quoteNL < 0 {
					rr.quoteNL = i
				}
			}
			if rr.quoteNL >= 0 && i-rr.quoteNL >= rr.maxQuoted {
				return rr.emit(rr.quoteNL), true
			}
		case stateQuoteInQuoted:
			switch c {
			case '"':
				rr.state = stateQuoted
			case ',':
				rr.state = stateFieldStart
				rr.quoteNL = -1
			case '\n':
				return rr.emit(i), true
			default:
				rr.state = stateUnquoted
				rr.quoteNL = -1
			}
		}
	}
	rr.scanPos = len(rr.pending)
	return "", false
}

func (rr *RecordReader) emit(newline int) string {
	rec := trimCR(string(rr.pending[rr.start:newline]))
	rr.start = newline + 1
	rr.scanPos = rr.start
	rr.state = stateFieldStart
	rr.quoteNL = -1
	return rec
}

func (rr *RecordReader) fill() error {
	if rr.start > 0 {
		n := copy(rr.pending, rr.pending[rr.start:])
		rr.pending = rr.pending[:n]
		rr.scanPos -= rr.start
		if rr.quoteNL >= 0 {
			rr.quoteNL -= rr.start
		}
		rr.start = 0
	}

	n, err := rr.r.Read(rr.buf)
	if n > 0 {
		rr.pending = append(rr.pending, rr.buf[:n]...)
		rr.consumed += int64(n)
	}
	if err == io.EOF {
		rr.eof = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func trimCR(s string) string {
	return strings.TrimSuffix(s, "\r")
}

// SplitFields decodes one CSV record into its cells. Quoting mistakes are
// tolerated; a record encoding/csv cannot decode at all falls back to a
// plain comma split.
func SplitFields(record string) []string {
	r := csv.NewReader(strings.NewReader(record))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		return strings.Split(record, ",")
	}
	return fields
}

// IsBlank reports whether a record carries no content.
func IsBlank(record string) bool {
	return strings.TrimSpace(record) == ""
}
