package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/example/encounters/internal/geo"
	"github.com/example/encounters/internal/models"
)

// Delimiter separates fields in both the input and the output format.
const Delimiter = "|"

const fieldsPerLine = 4

// ErrMalformedLine is returned for a line without exactly four fields.
var ErrMalformedLine = errors.New("malformed line")

// LineError ties a parse failure to its 1-based line number.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *LineError) Unwrap() error { return e.Err }

// ParseLine parses "username|timestamp|latitude|longitude". The line is
// trimmed first; numeric fields also tolerate surrounding spaces.
func ParseLine(line string) (models.Ping, error) {
	fields := strings.Split(strings.TrimSpace(line), Delimiter)
	if len(fields) != fieldsPerLine {
		return models.Ping{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformedLine, fieldsPerLine, len(fields))
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return models.Ping{}, fmt.Errorf("timestamp: %w", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return models.Ping{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
	if err != nil {
		return models.Ping{}, fmt.Errorf("longitude: %w", err)
	}
	return models.Ping{Username: fields[0], Timestamp: ts, Loc: geo.NewLocation(lat, lon)}, nil
}

// Reader yields pings from a line-oriented source. It stops at the first bad
// line; there is no skip-and-continue.
type Reader struct {
	sc   *bufio.Scanner
	line int
	ping models.Ping
	err  error
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Reader{sc: sc}
}

// Next advances to the next ping. It returns false at EOF or on error.
func (r *Reader) Next() bool {
	if r.err != nil || !r.sc.Scan() {
		return false
	}
	r.line++
	p, err := ParseLine(r.sc.Text())
	if err != nil {
		r.err = &LineError{Line: r.line, Err: err}
		return false
	}
	r.ping = p
	return true
}

func (r *Reader) Ping() models.Ping { return r.ping }

// Line is the number of lines consumed so far.
func (r *Reader) Line() int { return r.line }

func (r *Reader) Err() error {
	if r.err != nil {
		return r.err
	}
	if err := r.sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
