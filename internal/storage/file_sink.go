package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/example/encounters/internal/geo"
	"github.com/example/encounters/internal/models"
)

const delimiter = "|"

// FileSink appends one delimited line per encounter:
//
//	time|user_earlier|lat|lon|user_later|lat|lon
type FileSink struct {
	w      *bufio.Writer
	closer io.Closer
}

// CreateFileSink truncates or creates path.
func CreateFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output %s: %w", path, err)
	}
	return &FileSink{w: bufio.NewWriter(f), closer: f}, nil
}

func (s *FileSink) Emit(ctx context.Context, e models.Encounter) error {
	if _, err := s.w.WriteString(FormatEncounter(e)); err != nil {
		return fmt.Errorf("write encounter: %w", err)
	}
	return nil
}

// Close flushes buffered lines and releases the file.
func (s *FileSink) Close() error {
	err := s.w.Flush()
	if err != nil {
		err = fmt.Errorf("flush output: %w", err)
	}
	if s.closer != nil {
		if cerr := s.closer.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close output: %w", cerr))
		}
		s.closer = nil
	}
	return err
}

// FormatEncounter renders e as a newline-terminated output line.
func FormatEncounter(e models.Encounter) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(e.Time, 10))
	for _, p := range []models.Participant{e.Earlier, e.Later} {
		b.WriteString(delimiter)
		b.WriteString(p.Username)
		b.WriteString(delimiter)
		b.WriteString(geo.FormatCoord(p.Loc.Lat))
		b.WriteString(delimiter)
		b.WriteString(geo.FormatCoord(p.Loc.Lon))
	}
	b.WriteByte('\n')
	return b.String()
}
